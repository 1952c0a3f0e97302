package models

import "strings"

// Secret code lifecycle status.
const (
	CodeStatusActive   = "active"
	CodeStatusInactive = "inactive"
)

// Validation progress of a secret code.
const (
	ValidateStatusPending   = "pending"
	ValidateStatusValidated = "validated"
)

// Outcome of a single lookup attempt.
const (
	LogStatusValidated = "validated"
	LogStatusRejected  = "rejected"
)

// Enumerated fail reasons written to the log store.
const (
	FailReasonSearchedByPublicCode = "searched_by_public_code"
	FailReasonInvalidCodeFormat    = "invalid_code_format"
	FailReasonSearchPublicCode     = "search_public_code"
	FailReasonNotFound             = "not_found"
	FailReasonInactive             = "inactive"
	FailReasonSearchLimitReached   = "search_limit_reached"
)

// Lead acquisition source.
const (
	LeadSourceProductVerification = "PRODUCT_VERIFICATION"
	LeadSourceQRScan              = "QR_SCAN"
	LeadSourceManual              = "MANUAL"
)

// Generation job states.
const (
	JobStatePending = "pending"
	JobStateRunning = "running"
	JobStateDone    = "done"
	JobStateFailed  = "failed"
)

// NormalizeCodeStatus lower-cases a remote status value and falls back to
// "inactive" on anything outside the local enumeration.
func NormalizeCodeStatus(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case CodeStatusActive:
		return CodeStatusActive
	case CodeStatusInactive:
		return CodeStatusInactive
	default:
		return CodeStatusInactive
	}
}

// NormalizeValidateStatus falls back to "pending" on unrecognized values.
func NormalizeValidateStatus(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case ValidateStatusValidated:
		return ValidateStatusValidated
	case ValidateStatusPending:
		return ValidateStatusPending
	default:
		return ValidateStatusPending
	}
}

// NormalizeLogStatus falls back to "rejected" on unrecognized values.
func NormalizeLogStatus(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case LogStatusValidated:
		return LogStatusValidated
	case LogStatusRejected:
		return LogStatusRejected
	default:
		return LogStatusRejected
	}
}

// NormalizeLeadSource falls back to PRODUCT_VERIFICATION on unrecognized values.
func NormalizeLeadSource(value string) string {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case LeadSourceProductVerification:
		return LeadSourceProductVerification
	case LeadSourceQRScan:
		return LeadSourceQRScan
	case LeadSourceManual:
		return LeadSourceManual
	default:
		return LeadSourceProductVerification
	}
}
