package frappesync

import (
	"encoding/json"
	"os"
	"strings"
	"time"
)

// Sync stream names, also used as pubsub payload values.
const (
	StreamSecretCodes = "secret_codes"
	StreamLogs        = "secret_code_logs"
	StreamLeads       = "product_offer_leads"
)

type frappeSecretCode struct {
	Name                 string      `json:"name"`
	Creation             string      `json:"creation"`
	SecretCode           string      `json:"secret_code"`
	PublicCode           string      `json:"public_code"`
	BatchCode            string      `json:"batch_code"`
	Status               string      `json:"status"`
	ValidateStatus       string      `json:"validate_status"`
	IsPrinted            remoteBool  `json:"is_printed"`
	IsSearchLimitReached remoteBool  `json:"is_search_limit_reached"`
	SearchedCountSuccess json.Number `json:"searched_count_success"`
	SearchedCountFail    json.Number `json:"searched_count_fail"`
}

type frappeCodeLog struct {
	Name                string      `json:"name"`
	Creation            string      `json:"creation"`
	SearchedCode        string      `json:"searched_code"`
	PublicCode          string      `json:"public_code"`
	Status              string      `json:"status"`
	IsMatched           remoteBool  `json:"is_matched"`
	FailReason          string      `json:"fail_reason"`
	SuccessAttempt      json.Number `json:"success_attempt"`
	Message             string      `json:"message"`
	Description         string      `json:"description"`
	SearchIPAddress     string      `json:"search_ip_address"`
	SearchDeviceDetails string      `json:"search_device_details"`
	SearchCity          string      `json:"search_city"`
	SearchCountry       string      `json:"search_country"`
	SearchLatitude      json.Number `json:"search_latitude"`
	SearchLongitude     json.Number `json:"search_longitude"`
}

type frappeLead struct {
	Name            string `json:"name"`
	Creation        string `json:"creation"`
	SecretCode      string `json:"secret_code"`
	VerificationLog string `json:"verification_log"`
	Email           string `json:"email"`
	MobileNumber    string `json:"mobile_number"`
	Source          string `json:"source"`
}

// remoteBool accepts the remote's boolean spellings: 0/1, "0"/"1",
// true/false, "yes"/"no".
type remoteBool bool

func (b *remoteBool) UnmarshalJSON(data []byte) error {
	trimmed := strings.Trim(strings.TrimSpace(string(data)), `"`)
	switch strings.ToLower(trimmed) {
	case "1", "true", "yes", "y", "on":
		*b = true
	default:
		*b = false
	}
	return nil
}

// SyncPubSubPayload is the message body of a pubsub-triggered sync run.
type SyncPubSubPayload struct {
	Stream string `json:"stream"`
}

type PubSubPushEnvelope struct {
	Message struct {
		Data      []byte `json:"data"`
		MessageId string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// StatusResponse reports per-stream cursor and enablement.
type StatusResponse struct {
	Streams map[string]StreamStatus `json:"streams"`
}

type StreamStatus struct {
	Enabled  bool `json:"enabled"`
	NextPage int  `json:"next_page"`
}

func codesDoctype() string {
	return doctypeFromEnv("FRAPPE_CODES_DOCTYPE", "Product Secret Code")
}

func logsDoctype() string {
	return doctypeFromEnv("FRAPPE_LOGS_DOCTYPE", "Secret Code Log")
}

func leadsDoctype() string {
	return doctypeFromEnv("FRAPPE_LEADS_DOCTYPE", "Product Offer Lead")
}

func doctypeFromEnv(key string, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// truncateFrappeDatetime drops fractional seconds so every remote timestamp
// parses with one layout.
func truncateFrappeDatetime(value string) string {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) > 19 {
		trimmed = trimmed[:19]
	}
	return trimmed
}

func parseFrappeDatetime(value string) *time.Time {
	trimmed := truncateFrappeDatetime(value)
	if trimmed == "" {
		return nil
	}
	parsed, err := time.Parse("2006-01-02 15:04:05", trimmed)
	if err != nil {
		return nil
	}
	return &parsed
}
