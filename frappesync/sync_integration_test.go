package frappesync_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ghoridigital/secretcodes_backend/config"
	"github.com/ghoridigital/secretcodes_backend/frappesync"
	"github.com/ghoridigital/secretcodes_backend/models"
)

// fakeFrappe serves frappe.client.get_list pages from in-memory fixtures.
type fakeFrappe struct {
	codes []map[string]interface{}
	logs  []map[string]interface{}
	leads []map[string]interface{}
}

func (f *fakeFrappe) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "token test-key:test-secret" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		q := r.URL.Query()
		start, _ := strconv.Atoi(q.Get("limit_start"))
		length, _ := strconv.Atoi(q.Get("limit_page_length"))

		var rows []map[string]interface{}
		switch q.Get("doctype") {
		case "Product Secret Code":
			rows = f.codes
		case "Secret Code Log":
			rows = f.logs
		case "Product Offer Lead":
			rows = f.leads
		default:
			t.Errorf("unexpected doctype %q", q.Get("doctype"))
		}

		if strings.Contains(q.Get("order_by"), "desc") {
			// Only the freshness probe orders descending, newest change first.
			if q.Get("order_by") != "modified desc" {
				t.Errorf("freshness probe order_by expected %q, got %q", "modified desc", q.Get("order_by"))
			}
			if len(rows) == 0 {
				rows = nil
			} else {
				rows = rows[len(rows)-1:]
			}
			start, length = 0, 1
		}

		end := start + length
		if start > len(rows) {
			start = len(rows)
		}
		if end > len(rows) {
			end = len(rows)
		}
		page := rows[start:end]

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"message": page})
	}
}

func TestSyncStreamsApplyAndReset(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "secretcodes_test")

	config.ConnectDatabaseWithRetry()
	models.MigrateTable()

	remote := &fakeFrappe{}
	for i := 1; i <= 3; i++ {
		remote.codes = append(remote.codes, map[string]interface{}{
			"name":                    fmt.Sprintf("SC-%04d", i),
			"creation":                fmt.Sprintf("2024-03-0%d 10:00:00.000000", i),
			"secret_code":             fmt.Sprintf("%012d", i),
			"public_code":             fmt.Sprintf("%08d", 10100000+i),
			"batch_code":              "B000001",
			"status":                  "Active",
			"is_printed":              1,
			"is_search_limit_reached": 0,
		})
	}
	// The first code exhausted its searches upstream.
	remote.codes[0]["is_search_limit_reached"] = 1
	remote.codes[0]["searched_count_success"] = 3
	// 150 logs: one full page of 100 plus a short page of 50.
	for i := 1; i <= 150; i++ {
		remote.logs = append(remote.logs, map[string]interface{}{
			"name":          fmt.Sprintf("LOG-%04d", i),
			"creation":      "2024-03-01 12:00:00",
			"searched_code": "000000000001",
			"status":        "Validated",
			"is_matched":    "1",
		})
	}
	remote.leads = append(remote.leads, map[string]interface{}{
		"name":        "LEAD-0001",
		"creation":    "2024-03-02 09:00:00",
		"secret_code": "000000000001",
		"email":       "buyer@example.com",
	})

	srv := httptest.NewServer(remote.handler(t))
	t.Cleanup(srv.Close)

	t.Setenv("FRAPPE_BASE_URL", srv.URL)
	t.Setenv("FRAPPE_API_KEY", "test-key")
	t.Setenv("FRAPPE_API_SECRET", "test-secret")
	t.Setenv("FRAPPE_RATE_LIMIT_PER_MIN", "100000")

	ctx := context.Background()
	db := config.GetDB()
	if err := models.SetSettingBool(ctx, models.SettingCodesSyncEnabled, true); err != nil {
		t.Fatalf("enable codes stream: %v", err)
	}

	if err := frappesync.SyncSecretCodes(ctx); err != nil {
		t.Fatalf("SyncSecretCodes: %v", err)
	}

	var codeCount int64
	if err := db.WithContext(ctx).Model(&models.SecretCode{}).Count(&codeCount).Error; err != nil {
		t.Fatalf("count codes: %v", err)
	}
	if codeCount != 3 {
		t.Fatalf("expected 3 codes, got %d", codeCount)
	}

	var imported models.SecretCode
	if err := db.WithContext(ctx).Where("secret_code = ?", "000000000001").First(&imported).Error; err != nil {
		t.Fatalf("load imported code: %v", err)
	}
	if imported.Status != models.CodeStatusActive || !imported.IsPrinted {
		t.Fatalf("normalization lost fields: status=%s printed=%v", imported.Status, imported.IsPrinted)
	}
	if !imported.IsSearchLimitReached || imported.SearchedCountSuccess != 3 {
		t.Fatalf("limit flag lost on import: limit=%v success=%d",
			imported.IsSearchLimitReached, imported.SearchedCountSuccess)
	}
	var second models.SecretCode
	if err := db.WithContext(ctx).Where("secret_code = ?", "000000000002").First(&second).Error; err != nil {
		t.Fatalf("load second code: %v", err)
	}
	if second.IsSearchLimitReached {
		t.Fatal("limit flag must stay false when the remote clears it")
	}

	// Short page ends the run: cursor reset, trigger disabled.
	page, err := models.GetSettingInt(ctx, models.SettingCodesNextPage, 0)
	if err != nil || page != 1 {
		t.Fatalf("codes cursor expected 1, got %d (%v)", page, err)
	}
	enabled, err := models.GetSettingBool(ctx, models.SettingCodesSyncEnabled, true)
	if err != nil || enabled {
		t.Fatalf("codes trigger expected disabled, got %v (%v)", enabled, err)
	}

	// Replay is idempotent.
	if err := frappesync.SyncSecretCodes(ctx); err != nil {
		t.Fatalf("replay SyncSecretCodes: %v", err)
	}
	if err := db.WithContext(ctx).Model(&models.SecretCode{}).Count(&codeCount).Error; err != nil {
		t.Fatalf("recount codes: %v", err)
	}
	if codeCount != 3 {
		t.Fatalf("replay duplicated codes: %d", codeCount)
	}

	if err := frappesync.SyncLogs(ctx); err != nil {
		t.Fatalf("SyncLogs: %v", err)
	}
	var logCount int64
	if err := db.WithContext(ctx).Model(&models.SecretCodeLog{}).Count(&logCount).Error; err != nil {
		t.Fatalf("count logs: %v", err)
	}
	if logCount != 150 {
		t.Fatalf("expected 150 logs, got %d", logCount)
	}
	if err := frappesync.SyncLogs(ctx); err != nil {
		t.Fatalf("replay SyncLogs: %v", err)
	}
	if err := db.WithContext(ctx).Model(&models.SecretCodeLog{}).Count(&logCount).Error; err != nil {
		t.Fatalf("recount logs: %v", err)
	}
	if logCount != 150 {
		t.Fatalf("replay duplicated logs: %d", logCount)
	}

	if err := frappesync.SyncLeads(ctx); err != nil {
		t.Fatalf("SyncLeads: %v", err)
	}
	var lead models.ProductOfferLead
	if err := db.WithContext(ctx).Where("frappe_name = ?", "LEAD-0001").First(&lead).Error; err != nil {
		t.Fatalf("load lead: %v", err)
	}
	if lead.SubscribedCount != 1 {
		t.Fatalf("lead metrics not recomputed, count %d", lead.SubscribedCount)
	}
	if lead.Source != models.LeadSourceProductVerification {
		t.Fatalf("lead source expected default, got %s", lead.Source)
	}
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("secretcodes-sync-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=secretcodes_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
