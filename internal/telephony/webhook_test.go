package telephony

import (
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestParseInboundCall(t *testing.T) {
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	form := url.Values{
		"CallSid":    {"CA123"},
		"From":       {" +15550001111 "},
		"To":         {"+15559990000"},
		"CallStatus": {"ringing"},
		"CallerName": {"ACME CORP"},
	}
	req := httptest.NewRequest("POST", "/webhooks/voice", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	ev, err := ParseInboundCall(req, now)
	if err != nil {
		t.Fatalf("ParseInboundCall: %v", err)
	}
	if ev.ProviderCallID != "CA123" {
		t.Fatalf("ProviderCallID = %q", ev.ProviderCallID)
	}
	if ev.From != "+15550001111" {
		t.Fatalf("From not trimmed: %q", ev.From)
	}
	if ev.Status != "ringing" || ev.CallerName != "ACME CORP" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if !ev.OccurredAt.Equal(now) {
		t.Fatalf("OccurredAt = %v", ev.OccurredAt)
	}
}

func TestParseCallStatusDerivesEventID(t *testing.T) {
	form := url.Values{
		"CallSid":        {"CA123"},
		"CallStatus":     {"completed"},
		"CallDuration":   {"42"},
		"SequenceNumber": {"3"},
	}
	req := httptest.NewRequest("POST", "/webhooks/voice/status", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	ev, err := ParseCallStatus(req, time.Now())
	if err != nil {
		t.Fatalf("ParseCallStatus: %v", err)
	}
	if ev.EventID != "CA123:completed:3" {
		t.Fatalf("EventID = %q", ev.EventID)
	}
	if ev.DurationSeconds != 42 {
		t.Fatalf("DurationSeconds = %d", ev.DurationSeconds)
	}
}

func TestParseDialResult(t *testing.T) {
	form := url.Values{
		"CallSid":        {"CA123"},
		"DialCallStatus": {"no-answer"},
	}
	req := httptest.NewRequest("POST", "/webhooks/voice/dial-result", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	ev, err := ParseDialResult(req, time.Now())
	if err != nil {
		t.Fatalf("ParseDialResult: %v", err)
	}
	if ev.ProviderCallID != "CA123" || ev.DialStatus != "no-answer" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestParseIVRDigit(t *testing.T) {
	form := url.Values{
		"CallSid": {"CA123"},
		"Digits":  {"1"},
	}
	req := httptest.NewRequest("POST", "/webhooks/voice/ivr/ivr-1", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	ev, err := ParseIVRDigit(req, time.Now())
	if err != nil {
		t.Fatalf("ParseIVRDigit: %v", err)
	}
	if ev.ProviderCallID != "CA123" || ev.Digit != "1" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	// IVRID comes from the callback path, not the form.
	if ev.IVRID != "" {
		t.Fatalf("IVRID = %q, want empty", ev.IVRID)
	}
}

func TestParseRecording(t *testing.T) {
	form := url.Values{
		"CallSid":           {"CA123"},
		"RecordingUrl":      {"https://api.twilio.com/recordings/RE1"},
		"RecordingDuration": {"14"},
	}
	req := httptest.NewRequest("POST", "/webhooks/voice/voicemail", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	ev, err := ParseRecording(req, time.Now())
	if err != nil {
		t.Fatalf("ParseRecording: %v", err)
	}
	if ev.ProviderCallID != "CA123" || ev.DurationSeconds != 14 {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.RecordingURL != "https://api.twilio.com/recordings/RE1" {
		t.Fatalf("RecordingURL = %q", ev.RecordingURL)
	}
}

func TestParseInboundMessage(t *testing.T) {
	form := url.Values{
		"MessageSid":  {"SM123"},
		"From":        {"+15550001111"},
		"To":          {"+15559990000"},
		"Body":        {"hello there"},
		"NumSegments": {"1"},
	}
	req := httptest.NewRequest("POST", "/webhooks/sms", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	ev, err := ParseInboundMessage(req, time.Now())
	if err != nil {
		t.Fatalf("ParseInboundMessage: %v", err)
	}
	if ev.ProviderMessageID != "SM123" || ev.Body != "hello there" || ev.SegmentCount != 1 {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if len(ev.MediaURLs) != 0 {
		t.Fatalf("MediaURLs = %v, want none", ev.MediaURLs)
	}
}

func TestParseInboundMessageCollectsMedia(t *testing.T) {
	form := url.Values{
		"MessageSid": {"MM456"},
		"From":       {"+15550001111"},
		"To":         {"+15559990000"},
		"Body":       {""},
		"NumMedia":   {"2"},
		"MediaUrl0":  {"https://api.twilio.com/media/0"},
		"MediaUrl1":  {"https://api.twilio.com/media/1"},
	}
	req := httptest.NewRequest("POST", "/webhooks/sms", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	ev, err := ParseInboundMessage(req, time.Now())
	if err != nil {
		t.Fatalf("ParseInboundMessage: %v", err)
	}
	if len(ev.MediaURLs) != 2 {
		t.Fatalf("MediaURLs = %v, want 2 entries", ev.MediaURLs)
	}
	if ev.MediaURLs[0] != "https://api.twilio.com/media/0" || ev.MediaURLs[1] != "https://api.twilio.com/media/1" {
		t.Fatalf("MediaURLs = %v", ev.MediaURLs)
	}
}

func TestParseMessageStatus(t *testing.T) {
	form := url.Values{
		"MessageSid":    {"SM123"},
		"MessageStatus": {"delivered"},
	}
	req := httptest.NewRequest("POST", "/webhooks/sms/status", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	ev, err := ParseMessageStatus(req, time.Now())
	if err != nil {
		t.Fatalf("ParseMessageStatus: %v", err)
	}
	if ev.ProviderMessageID != "SM123" || ev.Status != "delivered" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}
