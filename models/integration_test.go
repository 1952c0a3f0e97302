package models_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ghoridigital/secretcodes_backend/config"
	"github.com/ghoridigital/secretcodes_backend/models"
)

func setupIntegrationDB(t *testing.T) {
	t.Helper()
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
}

func TestGenerateJobResumesAndCompletes(t *testing.T) {
	setupIntegrationDB(t)
	ctx := context.Background()

	job, err := models.QueueGenerateJob(ctx, "B000001", 12000)
	if err != nil {
		t.Fatalf("QueueGenerateJob: %v", err)
	}
	if job.State != models.JobStatePending {
		t.Fatalf("queued job expected pending, got %s", job.State)
	}

	// Each run is time-boxed; drive the job to completion like the
	// scheduler would.
	db := config.GetDB()
	for i := 0; i < 20; i++ {
		if err := models.RunPendingJobs(ctx); err != nil {
			t.Fatalf("RunPendingJobs: %v", err)
		}
		if err := db.WithContext(ctx).First(job, job.ID).Error; err != nil {
			t.Fatalf("reload job: %v", err)
		}
		if job.State == models.JobStateDone {
			break
		}
		if job.State == models.JobStateFailed {
			t.Fatalf("job failed: %s", job.Message)
		}
	}
	if job.State != models.JobStateDone {
		t.Fatalf("job did not finish, state %s after %d generated", job.State, job.CountGenerated)
	}
	if job.CountGenerated != 12000 {
		t.Fatalf("expected 12000 generated, got %d", job.CountGenerated)
	}

	var total int64
	if err := db.WithContext(ctx).Model(&models.SecretCode{}).Where("batch_code = ?", "B000001").Count(&total).Error; err != nil {
		t.Fatalf("count codes: %v", err)
	}
	if total != 12000 {
		t.Fatalf("expected 12000 rows, got %d", total)
	}

	var distinctSecrets int64
	if err := db.WithContext(ctx).Model(&models.SecretCode{}).Distinct("secret_code").Count(&distinctSecrets).Error; err != nil {
		t.Fatalf("count distinct: %v", err)
	}
	if distinctSecrets != total {
		t.Fatalf("secret codes are not unique: %d distinct of %d", distinctSecrets, total)
	}

	var first, last models.SecretCode
	if err := db.WithContext(ctx).Order("public_code asc").First(&first).Error; err != nil {
		t.Fatalf("first code: %v", err)
	}
	if err := db.WithContext(ctx).Order("public_code desc").First(&last).Error; err != nil {
		t.Fatalf("last code: %v", err)
	}
	if first.PublicCode != models.FormatPublicCode(models.PublicCodeStart) {
		t.Fatalf("first public code expected %s, got %s",
			models.FormatPublicCode(models.PublicCodeStart), first.PublicCode)
	}
	if last.PublicCode != models.FormatPublicCode(models.PublicCodeStart+12000-1) {
		t.Fatalf("last public code expected %s, got %s",
			models.FormatPublicCode(models.PublicCodeStart+12000-1), last.PublicCode)
	}
}

func TestVerifySecretCodeFlow(t *testing.T) {
	setupIntegrationDB(t)
	ctx := context.Background()
	db := config.GetDB()

	code := models.SecretCode{
		BatchCode:  "B000001",
		SecretCode: "111122223333",
		PublicCode: "10100001",
		Status:     models.CodeStatusActive,
	}
	if err := db.WithContext(ctx).Create(&code).Error; err != nil {
		t.Fatalf("seed code: %v", err)
	}

	verify := func(secret string) *models.VerifyResult {
		t.Helper()
		res, err := models.VerifySecretCode(ctx, models.VerifyInput{SecretCode: secret})
		if err != nil {
			t.Fatalf("VerifySecretCode(%q): %v", secret, err)
		}
		return res
	}

	// Invalid format.
	res := verify("short")
	if res.HTTPStatus != 400 || res.FailReason != models.FailReasonInvalidCodeFormat {
		t.Fatalf("invalid format expected 400/%s, got %d/%s",
			models.FailReasonInvalidCodeFormat, res.HTTPStatus, res.FailReason)
	}
	if res.WhatsApp == "" {
		t.Fatal("invalid format response must carry the support contact")
	}

	// Public code pasted into the secret field.
	res = verify("10100001")
	if res.HTTPStatus != 400 || res.FailReason != models.FailReasonSearchedByPublicCode {
		t.Fatalf("public-code paste expected 400/%s, got %d/%s",
			models.FailReasonSearchedByPublicCode, res.HTTPStatus, res.FailReason)
	}

	// Unknown but well-formed code.
	res = verify("999988887777")
	if res.HTTPStatus != 404 || res.FailReason != models.FailReasonNotFound {
		t.Fatalf("unknown code expected 404/%s, got %d/%s",
			models.FailReasonNotFound, res.HTTPStatus, res.FailReason)
	}

	// Three successes, then the sticky limit.
	for attempt := 1; attempt <= models.MaxSearchSuccess; attempt++ {
		res = verify("111122223333")
		if res.HTTPStatus != 200 {
			t.Fatalf("attempt %d expected 200, got %d (%s)", attempt, res.HTTPStatus, res.FailReason)
		}
		if res.Record == nil || res.Record.SearchedCountSuccess != attempt {
			t.Fatalf("attempt %d success counter mismatch", attempt)
		}
	}
	res = verify("111122223333")
	if res.HTTPStatus != 403 || res.FailReason != models.FailReasonSearchLimitReached {
		t.Fatalf("limit expected 403/%s, got %d/%s",
			models.FailReasonSearchLimitReached, res.HTTPStatus, res.FailReason)
	}

	var reloaded models.SecretCode
	if err := db.WithContext(ctx).First(&reloaded, code.ID).Error; err != nil {
		t.Fatalf("reload code: %v", err)
	}
	if !reloaded.IsSearchLimitReached {
		t.Fatal("limit flag must persist")
	}
	if reloaded.ValidateStatus != models.ValidateStatusValidated {
		t.Fatalf("code expected validated, got %s", reloaded.ValidateStatus)
	}

	// Exactly one log row per request: 3 rejected + 3 validated + 1 limit.
	var logCount int64
	if err := db.WithContext(ctx).Model(&models.SecretCodeLog{}).Count(&logCount).Error; err != nil {
		t.Fatalf("count logs: %v", err)
	}
	if logCount != 7 {
		t.Fatalf("expected 7 log rows, got %d", logCount)
	}
}

func TestVerifySecretCodeConcurrentLimit(t *testing.T) {
	setupIntegrationDB(t)
	ctx := context.Background()
	db := config.GetDB()

	code := models.SecretCode{
		BatchCode:  "B000001",
		SecretCode: "444455556666",
		PublicCode: "10100002",
		Status:     models.CodeStatusActive,
	}
	if err := db.WithContext(ctx).Create(&code).Error; err != nil {
		t.Fatalf("seed code: %v", err)
	}

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = models.VerifySecretCode(ctx, models.VerifyInput{SecretCode: "444455556666"})
		}()
	}
	wg.Wait()

	var reloaded models.SecretCode
	if err := db.WithContext(ctx).First(&reloaded, code.ID).Error; err != nil {
		t.Fatalf("reload code: %v", err)
	}
	if reloaded.SearchedCountSuccess > models.MaxSearchSuccess {
		t.Fatalf("success counter exceeded the limit under concurrency: %d", reloaded.SearchedCountSuccess)
	}
}

func TestSubmitLeadDeduplicatesAndRatesGroup(t *testing.T) {
	setupIntegrationDB(t)
	ctx := context.Background()
	db := config.GetDB()

	first, err := models.SubmitLead(ctx, &models.NewProductOfferLead{
		Email:      "buyer@example.com",
		SecretCode: "111122223333",
	})
	if err != nil {
		t.Fatalf("SubmitLead: %v", err)
	}
	if first.AlreadyRegistered {
		t.Fatal("first submission must create")
	}

	second, err := models.SubmitLead(ctx, &models.NewProductOfferLead{
		Email:      "buyer@example.com",
		SecretCode: "999988887777",
	})
	if err != nil {
		t.Fatalf("repeat SubmitLead: %v", err)
	}
	if !second.AlreadyRegistered {
		t.Fatal("matching email must dedupe")
	}
	if second.ID != first.ID {
		t.Fatalf("dedupe must return the existing id, got %d vs %d", second.ID, first.ID)
	}

	var count int64
	if err := db.WithContext(ctx).Model(&models.ProductOfferLead{}).Count(&count).Error; err != nil {
		t.Fatalf("count leads: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 lead row, got %d", count)
	}

	if _, err := models.SubmitLead(ctx, &models.NewProductOfferLead{SecretCode: "111122223333"}); err != models.ErrEmailOrMobileRequired {
		t.Fatalf("expected ErrEmailOrMobileRequired, got %v", err)
	}
	if _, err := models.SubmitLead(ctx, &models.NewProductOfferLead{Email: "x@example.com"}); err != models.ErrSecretCodeRequired {
		t.Fatalf("expected ErrSecretCodeRequired, got %v", err)
	}
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("secretcodes-test-mysql-%d", time.Now().UnixNano())
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
	// wait until ready
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
	// Example: "127.0.0.1:49154\n"
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
