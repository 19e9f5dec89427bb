package telephony

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Webhook form parsing. Twilio posts application/x-www-form-urlencoded; these
// parsers translate the provider's field names into internal event types and
// nothing else. Business logic does not belong here.

// InboundCallEvent is a new inbound call announced by the provider.
type InboundCallEvent struct {
	ProviderCallID string    `json:"provider_call_id"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	Status         string    `json:"status"`
	CallerName     string    `json:"caller_name,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// CallStatusEvent is a lifecycle update for an existing call.
type CallStatusEvent struct {
	ProviderCallID string `json:"provider_call_id"`
	Status         string `json:"status"`

	// EventID dedupes redelivered webhooks. Twilio does not send a distinct
	// event id, so it is derived from call id + status + sequence number.
	EventID string `json:"event_id"`

	DurationSeconds int       `json:"duration_seconds,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// DialResultEvent reports the outcome of a Dial action: did anyone answer.
type DialResultEvent struct {
	ProviderCallID string    `json:"provider_call_id"`
	DialStatus     string    `json:"dial_status"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// IVRDigitEvent carries the digit a caller pressed in a menu. IVRID comes
// from the callback path, not the form.
type IVRDigitEvent struct {
	ProviderCallID string    `json:"provider_call_id"`
	IVRID          string    `json:"ivr_id"`
	Digit          string    `json:"digit"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// RecordingEvent references a captured voicemail or call recording.
type RecordingEvent struct {
	ProviderCallID  string    `json:"provider_call_id"`
	RecordingURL    string    `json:"recording_url"`
	DurationSeconds int       `json:"duration_seconds,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// InboundMessageEvent is an inbound SMS or MMS announced by the provider.
type InboundMessageEvent struct {
	ProviderMessageID string    `json:"provider_message_id"`
	From              string    `json:"from"`
	To                string    `json:"to"`
	Body              string    `json:"body"`
	MediaURLs         []string  `json:"media_urls,omitempty"`
	SegmentCount      int       `json:"segment_count,omitempty"`
	OccurredAt        time.Time `json:"occurred_at"`
}

// MessageStatusEvent is a delivery update for an outbound message.
type MessageStatusEvent struct {
	ProviderMessageID string    `json:"provider_message_id"`
	Status            string    `json:"status"`
	ErrorCode         string    `json:"error_code,omitempty"`
	OccurredAt        time.Time `json:"occurred_at"`
}

func ParseInboundCall(r *http.Request, now time.Time) (InboundCallEvent, error) {
	if err := r.ParseForm(); err != nil {
		return InboundCallEvent{}, err
	}
	return InboundCallEvent{
		ProviderCallID: r.PostFormValue("CallSid"),
		From:           normalizePhone(r.PostFormValue("From")),
		To:             normalizePhone(r.PostFormValue("To")),
		Status:         r.PostFormValue("CallStatus"),
		CallerName:     r.PostFormValue("CallerName"),
		OccurredAt:     now,
	}, nil
}

func ParseCallStatus(r *http.Request, now time.Time) (CallStatusEvent, error) {
	if err := r.ParseForm(); err != nil {
		return CallStatusEvent{}, err
	}
	sid := r.PostFormValue("CallSid")
	status := r.PostFormValue("CallStatus")
	seq := r.PostFormValue("SequenceNumber")
	duration, _ := strconv.Atoi(r.PostFormValue("CallDuration"))
	return CallStatusEvent{
		ProviderCallID:  sid,
		Status:          status,
		EventID:         sid + ":" + status + ":" + seq,
		DurationSeconds: duration,
		OccurredAt:      now,
	}, nil
}

func ParseDialResult(r *http.Request, now time.Time) (DialResultEvent, error) {
	if err := r.ParseForm(); err != nil {
		return DialResultEvent{}, err
	}
	return DialResultEvent{
		ProviderCallID: r.PostFormValue("CallSid"),
		DialStatus:     r.PostFormValue("DialCallStatus"),
		OccurredAt:     now,
	}, nil
}

func ParseIVRDigit(r *http.Request, now time.Time) (IVRDigitEvent, error) {
	if err := r.ParseForm(); err != nil {
		return IVRDigitEvent{}, err
	}
	return IVRDigitEvent{
		ProviderCallID: r.PostFormValue("CallSid"),
		Digit:          r.PostFormValue("Digits"),
		OccurredAt:     now,
	}, nil
}

func ParseRecording(r *http.Request, now time.Time) (RecordingEvent, error) {
	if err := r.ParseForm(); err != nil {
		return RecordingEvent{}, err
	}
	duration, _ := strconv.Atoi(r.PostFormValue("RecordingDuration"))
	return RecordingEvent{
		ProviderCallID:  r.PostFormValue("CallSid"),
		RecordingURL:    r.PostFormValue("RecordingUrl"),
		DurationSeconds: duration,
		OccurredAt:      now,
	}, nil
}

func ParseInboundMessage(r *http.Request, now time.Time) (InboundMessageEvent, error) {
	if err := r.ParseForm(); err != nil {
		return InboundMessageEvent{}, err
	}
	segments, _ := strconv.Atoi(r.PostFormValue("NumSegments"))

	// MMS attachments arrive as MediaUrl0..MediaUrl{NumMedia-1}.
	numMedia, _ := strconv.Atoi(r.PostFormValue("NumMedia"))
	var media []string
	for i := 0; i < numMedia; i++ {
		if u := r.PostFormValue("MediaUrl" + strconv.Itoa(i)); u != "" {
			media = append(media, u)
		}
	}

	return InboundMessageEvent{
		ProviderMessageID: r.PostFormValue("MessageSid"),
		From:              normalizePhone(r.PostFormValue("From")),
		To:                normalizePhone(r.PostFormValue("To")),
		Body:              r.PostFormValue("Body"),
		MediaURLs:         media,
		SegmentCount:      segments,
		OccurredAt:        now,
	}, nil
}

func ParseMessageStatus(r *http.Request, now time.Time) (MessageStatusEvent, error) {
	if err := r.ParseForm(); err != nil {
		return MessageStatusEvent{}, err
	}
	return MessageStatusEvent{
		ProviderMessageID: r.PostFormValue("MessageSid"),
		Status:            r.PostFormValue("MessageStatus"),
		ErrorCode:         r.PostFormValue("ErrorCode"),
		OccurredAt:        now,
	}, nil
}

func normalizePhone(s string) string {
	// Providers sometimes send "anonymous" or empty; keep as-is.
	return strings.TrimSpace(s)
}
