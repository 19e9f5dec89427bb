package telephony

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
)

// TwilioGateway talks to the Twilio REST API.
//
// Error translation:
// - transport failures and 5xx/429 responses are temporary (retryable)
// - other 4xx responses are permanent (the request was rejected)

type TwilioGateway struct {
	client     *resty.Client
	accountSID string
}

type TwilioConfig struct {
	AccountSID string
	AuthToken  string

	// BaseURL defaults to the public Twilio API; overridable for tests.
	BaseURL string

	Timeout time.Duration
}

func NewTwilioGateway(cfg TwilioConfig) *TwilioGateway {
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.twilio.com"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetBasicAuth(cfg.AccountSID, cfg.AuthToken).
		SetHeader("Accept", "application/json")

	return &TwilioGateway{client: client, accountSID: cfg.AccountSID}
}

func (g *TwilioGateway) Name() string { return "twilio" }

func (g *TwilioGateway) HealthCheck(ctx context.Context) error {
	resp, err := g.client.R().
		SetContext(ctx).
		Get(fmt.Sprintf("/2010-04-01/Accounts/%s.json", g.accountSID))
	if err != nil {
		return &GatewayError{Message: err.Error(), Temporary: true}
	}
	if resp.IsError() {
		return gatewayErrorFromStatus(resp.StatusCode(), resp.String())
	}
	return nil
}

type twilioCallResponse struct {
	Sid    string `json:"sid"`
	Status string `json:"status"`
}

type twilioMessageResponse struct {
	Sid         string `json:"sid"`
	Status      string `json:"status"`
	NumSegments string `json:"num_segments"`
}

type twilioErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (g *TwilioGateway) PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error) {
	callerID := req.CallerID
	if callerID == "" {
		callerID = req.From
	}

	form := map[string]string{
		"From": callerID,
		"To":   req.To,
	}
	if req.Record {
		form["Record"] = "true"
	}
	if req.StatusCallbackURL != "" {
		form["StatusCallback"] = req.StatusCallbackURL
		form["StatusCallbackEvent"] = "initiated ringing answered completed"
	}

	var out twilioCallResponse
	var apiErr twilioErrorResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetFormData(form).
		SetResult(&out).
		SetError(&apiErr).
		Post(fmt.Sprintf("/2010-04-01/Accounts/%s/Calls.json", g.accountSID))
	if err != nil {
		return PlaceCallResult{}, &GatewayError{Message: err.Error(), Temporary: true}
	}
	if resp.IsError() {
		return PlaceCallResult{}, gatewayErrorFromStatus(resp.StatusCode(), apiErr.Message)
	}
	return PlaceCallResult{ProviderCallID: out.Sid, Status: out.Status}, nil
}

func (g *TwilioGateway) PlaceMessage(ctx context.Context, req PlaceMessageRequest) (PlaceMessageResult, error) {
	form := url.Values{}
	form.Set("From", req.From)
	form.Set("To", req.To)
	form.Set("Body", req.Body)
	// MediaUrl repeats once per attachment.
	for _, mu := range req.MediaURLs {
		form.Add("MediaUrl", mu)
	}
	if req.StatusCallbackURL != "" {
		form.Set("StatusCallback", req.StatusCallbackURL)
	}

	var out twilioMessageResponse
	var apiErr twilioErrorResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetFormDataFromValues(form).
		SetResult(&out).
		SetError(&apiErr).
		Post(fmt.Sprintf("/2010-04-01/Accounts/%s/Messages.json", g.accountSID))
	if err != nil {
		return PlaceMessageResult{}, &GatewayError{Message: err.Error(), Temporary: true}
	}
	if resp.IsError() {
		return PlaceMessageResult{}, gatewayErrorFromStatus(resp.StatusCode(), apiErr.Message)
	}

	segments := 0
	fmt.Sscanf(out.NumSegments, "%d", &segments)
	return PlaceMessageResult{ProviderMessageID: out.Sid, Status: out.Status, SegmentCount: segments}, nil
}

func (g *TwilioGateway) EndCall(ctx context.Context, providerCallID string) error {
	var apiErr twilioErrorResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{"Status": "completed"}).
		SetError(&apiErr).
		Post(fmt.Sprintf("/2010-04-01/Accounts/%s/Calls/%s.json", g.accountSID, providerCallID))
	if err != nil {
		return &GatewayError{Message: err.Error(), Temporary: true}
	}
	if resp.IsError() {
		return gatewayErrorFromStatus(resp.StatusCode(), apiErr.Message)
	}
	return nil
}

func (g *TwilioGateway) ListCallEvents(ctx context.Context, providerCallID string) ([]CallEvent, error) {
	// The events endpoint is eventually consistent; the call resource itself
	// is the authoritative current status, so fetch that and synthesize one
	// event from it.
	var out struct {
		Sid       string `json:"sid"`
		Status    string `json:"status"`
		From      string `json:"from"`
		To        string `json:"to"`
		Duration  string `json:"duration"`
		StartTime string `json:"start_time"`
	}
	var apiErr twilioErrorResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&apiErr).
		Get(fmt.Sprintf("/2010-04-01/Accounts/%s/Calls/%s.json", g.accountSID, providerCallID))
	if err != nil {
		return nil, &GatewayError{Message: err.Error(), Temporary: true}
	}
	if resp.IsError() {
		return nil, gatewayErrorFromStatus(resp.StatusCode(), apiErr.Message)
	}

	duration := 0
	fmt.Sscanf(out.Duration, "%d", &duration)
	occurred, _ := time.Parse(time.RFC1123Z, out.StartTime)
	return []CallEvent{{
		ProviderCallID:  out.Sid,
		Status:          out.Status,
		From:            out.From,
		To:              out.To,
		OccurredAt:      occurred,
		DurationSeconds: duration,
	}}, nil
}

type twilioAvailableNumber struct {
	PhoneNumber  string `json:"phone_number"`
	Locality     string `json:"locality"`
	Region       string `json:"region"`
	Capabilities struct {
		Voice bool `json:"voice"`
		SMS   bool `json:"SMS"`
	} `json:"capabilities"`
}

func (g *TwilioGateway) SearchAvailableNumbers(ctx context.Context, q NumberSearchQuery) ([]AvailableNumber, error) {
	params := map[string]string{}
	if q.AreaCode != "" {
		params["AreaCode"] = q.AreaCode
	}
	if q.Contains != "" {
		params["Contains"] = q.Contains
	}
	if q.Limit > 0 {
		params["PageSize"] = fmt.Sprintf("%d", q.Limit)
	}

	var out struct {
		AvailablePhoneNumbers []twilioAvailableNumber `json:"available_phone_numbers"`
	}
	var apiErr twilioErrorResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&out).
		SetError(&apiErr).
		Get(fmt.Sprintf("/2010-04-01/Accounts/%s/AvailablePhoneNumbers/%s/Local.json", g.accountSID, q.Country))
	if err != nil {
		return nil, &GatewayError{Message: err.Error(), Temporary: true}
	}
	if resp.IsError() {
		return nil, gatewayErrorFromStatus(resp.StatusCode(), apiErr.Message)
	}

	numbers := make([]AvailableNumber, 0, len(out.AvailablePhoneNumbers))
	for _, n := range out.AvailablePhoneNumbers {
		numbers = append(numbers, AvailableNumber{
			Number:       n.PhoneNumber,
			Locality:     n.Locality,
			Region:       n.Region,
			VoiceEnabled: n.Capabilities.Voice,
			SMSEnabled:   n.Capabilities.SMS,
		})
	}
	return numbers, nil
}

func gatewayErrorFromStatus(status int, message string) *GatewayError {
	if message == "" {
		message = http.StatusText(status)
	}
	return &GatewayError{
		Code:      status,
		Message:   message,
		Temporary: status >= 500 || status == http.StatusTooManyRequests,
	}
}
