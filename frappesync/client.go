package frappesync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	getListPath    = "/api/method/frappe.client.get_list"
	requestTimeout = 120 * time.Second
	maxAttempts    = 3
	retryBackoff   = 2 * time.Second
)

type frappeClient struct {
	baseURL   string
	apiKey    string
	apiSecret string
	http      *http.Client
	limiter   <-chan time.Time
}

func newFrappeClient() (*frappeClient, error) {
	baseURL := strings.TrimSpace(os.Getenv("FRAPPE_BASE_URL"))
	if baseURL == "" {
		return nil, errors.New("frappe base url is empty")
	}
	apiKey := strings.TrimSpace(os.Getenv("FRAPPE_API_KEY"))
	apiSecret := strings.TrimSpace(os.Getenv("FRAPPE_API_SECRET"))
	if apiKey == "" || apiSecret == "" {
		return nil, errors.New("frappe api credentials are empty")
	}

	rateLimitPerMin := int64(60)
	if v := strings.TrimSpace(os.Getenv("FRAPPE_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			rateLimitPerMin = n
		}
	}
	interval := time.Minute / time.Duration(rateLimitPerMin)

	return &frappeClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		apiSecret: apiSecret,
		http:      &http.Client{Timeout: requestTimeout},
		limiter:   time.Tick(interval),
	}, nil
}

type frappeListResponse struct {
	Message []json.RawMessage `json:"message"`
}

// getList pulls one page of a doctype. limitStart is the 0-based offset the
// remote expects; retries are fixed-interval and exhaust into the last error.
func (c *frappeClient) getList(ctx context.Context, doctype string, fields []string, limitStart int, pageLength int, orderBy string) ([]json.RawMessage, error) {
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("doctype", doctype)
	params.Set("fields", string(fieldsJSON))
	params.Set("limit_start", strconv.Itoa(limitStart))
	params.Set("limit_page_length", strconv.Itoa(pageLength))
	if orderBy != "" {
		params.Set("order_by", orderBy)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryBackoff):
			}
		}

		rows, err := c.getListOnce(ctx, params)
		if err == nil {
			return rows, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *frappeClient) getListOnce(ctx context.Context, params url.Values) ([]json.RawMessage, error) {
	<-c.limiter
	endpoint := c.baseURL + getListPath + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "token "+c.apiKey+":"+c.apiSecret)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("frappe api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed frappeListResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}
	return parsed.Message, nil
}
