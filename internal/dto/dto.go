package dto

// Outcome qualifies a Result beyond success or failure.
type Outcome string

const (
	OutcomeProcessed        Outcome = "processed"
	OutcomeIgnored          Outcome = "ignored"
	OutcomeAlreadyProcessed Outcome = "already_processed"
	// OutcomePreviouslyFailed acknowledges a redelivery for a transaction
	// that already failed. Error carries the original failure.
	OutcomePreviouslyFailed Outcome = "previously_failed"
	OutcomeSkipped          Outcome = "skipped"
	OutcomeFailed           Outcome = "failed"
)

// ErrorKind buckets failures for the transport layer.
type ErrorKind string

const (
	ErrorKindNone       ErrorKind = ""
	ErrorKindValidation ErrorKind = "validation"
	ErrorKindNotFound   ErrorKind = "not_found"
	ErrorKindDownstream ErrorKind = "downstream"
	ErrorKindStore      ErrorKind = "store"
	ErrorKindInternal   ErrorKind = "internal"
	// ErrorKindPartial is a failure after the payment itself was recorded.
	// Redelivery cannot repair it; it needs manual remediation.
	ErrorKindPartial ErrorKind = "partial"
)

// Result is returned by every webhook handler. Error may be set on success
// to carry an informational message.
type Result struct {
	Success       bool      `json:"success"`
	TransactionID string    `json:"transactionId,omitempty"`
	TokensAwarded *int64    `json:"tokensAwarded,omitempty"`
	Error         string    `json:"error,omitempty"`
	Outcome       Outcome   `json:"outcome,omitempty"`
	Kind          ErrorKind `json:"errorKind,omitempty"`
}

// Tokens returns the awarded token count, 0 when unset.
func (r Result) Tokens() int64 {
	if r.TokensAwarded == nil {
		return 0
	}
	return *r.TokensAwarded
}

// Retryable reports whether the gateway should redeliver the event.
func (r Result) Retryable() bool {
	if r.Success {
		return false
	}
	return r.Kind == ErrorKindStore || r.Kind == ErrorKindDownstream || r.Kind == ErrorKindInternal
}

type PurchaseRequest struct {
	UserID         string            `json:"-"`
	OrganizationID *string           `json:"organizationId,omitempty"`
	ItemID         string            `json:"itemId" validate:"required"`
	Quantity       int64             `json:"quantity" validate:"required,min=1,max=100"`
	Currency       string            `json:"currency" validate:"required,len=3"`
	Metadata       map[string]string `json:"metadata,omitempty" validate:"omitempty,max=20"`
}

type InitiationResult struct {
	Success                     bool   `json:"success"`
	TransactionID               string `json:"transactionId,omitempty"`
	PaymentGatewayTransactionID string `json:"paymentGatewayTransactionId,omitempty"`
	RedirectURL                 string `json:"redirectUrl,omitempty"`
	ClientSecret                string `json:"clientSecret,omitempty"`
	Error                       string `json:"error,omitempty"`
}

type SyncResult struct {
	Success   bool     `json:"success"`
	Total     int      `json:"total"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}
