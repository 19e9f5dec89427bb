package telephony

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Gateway is the provider-agnostic boundary used by business logic.
//
// Rules:
// - No provider SDK or REST calls outside telephony adapters.
// - Keep request/response types provider-agnostic; store provider raw
//   payloads in metadata if needed.
// - Adapters translate provider failures into *GatewayError so callers can
//   distinguish retryable outages from permanent rejections.
type Gateway interface {
	Name() string
	HealthCheck(ctx context.Context) error

	PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error)
	PlaceMessage(ctx context.Context, req PlaceMessageRequest) (PlaceMessageResult, error)

	// EndCall asks the provider to terminate an in-flight call.
	EndCall(ctx context.Context, providerCallID string) error

	// ListCallEvents returns the provider's status history for a call. Used by
	// the reconciliation sweeper to rebuild records for orphaned calls.
	ListCallEvents(ctx context.Context, providerCallID string) ([]CallEvent, error)

	// SearchAvailableNumbers lists numbers purchasable from the provider's
	// inventory.
	SearchAvailableNumbers(ctx context.Context, q NumberSearchQuery) ([]AvailableNumber, error)
}

type PlaceCallRequest struct {
	From string `json:"from"`
	To   string `json:"to"`

	// CallerID overrides the presented number when set; defaults to From.
	CallerID string `json:"caller_id,omitempty"`

	// Record asks the provider to record the call from answer.
	Record bool `json:"record,omitempty"`

	// StatusCallbackURL receives lifecycle webhooks for this call.
	StatusCallbackURL string `json:"status_callback_url,omitempty"`
}

type PlaceCallResult struct {
	ProviderCallID string `json:"provider_call_id"`
	Status         string `json:"status"`
}

type PlaceMessageRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
	Body string `json:"body"`

	MediaURLs []string `json:"media_urls,omitempty"`

	StatusCallbackURL string `json:"status_callback_url,omitempty"`
}

type PlaceMessageResult struct {
	ProviderMessageID string `json:"provider_message_id"`
	Status            string `json:"status"`
	SegmentCount      int    `json:"segment_count,omitempty"`
}

// NumberSearchQuery narrows a provider inventory search. Country is the only
// required field.
type NumberSearchQuery struct {
	Country  string `json:"country"`
	AreaCode string `json:"area_code,omitempty"`
	Contains string `json:"contains,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// AvailableNumber is one purchasable number from provider inventory.
type AvailableNumber struct {
	Number   string `json:"number"`
	Locality string `json:"locality,omitempty"`
	Region   string `json:"region,omitempty"`

	VoiceEnabled bool `json:"voice_enabled"`
	SMSEnabled   bool `json:"sms_enabled"`
}

// CallEvent is one entry of a provider's status stream for a call.
type CallEvent struct {
	ProviderCallID string    `json:"provider_call_id"`
	Status         string    `json:"status"`
	From           string    `json:"from,omitempty"`
	To             string    `json:"to,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`

	DurationSeconds int `json:"duration_seconds,omitempty"`
}

// GatewayError wraps a provider-side failure. Temporary errors (network
// faults, 5xx, rate limiting) may be retried; permanent errors (4xx) mean the
// request itself was rejected and retrying is pointless.
type GatewayError struct {
	Code      int
	Message   string
	Temporary bool
}

func (e *GatewayError) Error() string {
	kind := "permanent"
	if e.Temporary {
		kind = "temporary"
	}
	return fmt.Sprintf("telephony: gateway error (%s, code %d): %s", kind, e.Code, e.Message)
}

// IsTemporary reports whether err is a retryable gateway failure.
func IsTemporary(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && ge.Temporary
}
