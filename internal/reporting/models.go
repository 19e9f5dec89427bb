package reporting

import "time"

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummaryRequest requests aggregated call metrics.
// Multi-tenant isolation: OrgID is required.

type CallsSummaryRequest struct {
	OrgID string    `json:"org_id"`
	Range TimeRange `json:"range"`

	// NumberID narrows the summary to one platform number.
	NumberID string `json:"number_id,omitempty"`
}

type CallsSummary struct {
	OrgID    string `json:"org_id"`
	NumberID string `json:"number_id,omitempty"`

	TotalCalls      int `json:"total_calls"`
	InboundCalls    int `json:"inbound_calls"`
	OutboundCalls   int `json:"outbound_calls"`
	CompletedCalls  int `json:"completed_calls"`
	FailedCalls     int `json:"failed_calls"`
	RejectedCalls   int `json:"rejected_calls"`
	InProgressCalls int `json:"in_progress_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`
}

// MessagesSummaryRequest requests aggregated message metrics.

type MessagesSummaryRequest struct {
	OrgID string    `json:"org_id"`
	Range TimeRange `json:"range"`

	NumberID string `json:"number_id,omitempty"`
}

type MessagesSummary struct {
	OrgID    string `json:"org_id"`
	NumberID string `json:"number_id,omitempty"`

	TotalMessages    int `json:"total_messages"`
	InboundMessages  int `json:"inbound_messages"`
	OutboundMessages int `json:"outbound_messages"`

	DeliveredMessages int `json:"delivered_messages"`
	FailedMessages    int `json:"failed_messages"`
	AutoReplies       int `json:"auto_replies"`

	TotalSegments int `json:"total_segments"`
}
