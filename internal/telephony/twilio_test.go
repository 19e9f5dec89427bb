package telephony

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func twilioTestServer(t *testing.T, handler http.HandlerFunc) *TwilioGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewTwilioGateway(TwilioConfig{
		AccountSID: "AC_test",
		AuthToken:  "secret",
		BaseURL:    srv.URL,
	})
}

func TestTwilioPlaceCall(t *testing.T) {
	g := twilioTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if r.URL.Path != "/2010-04-01/Accounts/AC_test/Calls.json" {
			t.Errorf("path = %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC_test" || pass != "secret" {
			t.Errorf("basic auth = %q %q %v", user, pass, ok)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if got := r.PostFormValue("To"); got != "+15550001111" {
			t.Errorf("To = %q", got)
		}
		if got := r.PostFormValue("From"); got != "+15559990000" {
			t.Errorf("From = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"CA999","status":"queued"}`))
	})

	res, err := g.PlaceCall(context.Background(), PlaceCallRequest{
		From: "+15559990000",
		To:   "+15550001111",
	})
	if err != nil {
		t.Fatalf("PlaceCall: %v", err)
	}
	if res.ProviderCallID != "CA999" || res.Status != "queued" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestTwilioPlaceMessage(t *testing.T) {
	g := twilioTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2010-04-01/Accounts/AC_test/Messages.json" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if got := r.PostForm["MediaUrl"]; len(got) != 2 || got[0] != "https://cdn.example.com/a.jpg" {
			t.Errorf("MediaUrl = %v", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"SM777","status":"queued","num_segments":"2"}`))
	})

	res, err := g.PlaceMessage(context.Background(), PlaceMessageRequest{
		From:      "+15559990000",
		To:        "+15550001111",
		Body:      "hello",
		MediaURLs: []string{"https://cdn.example.com/a.jpg", "https://cdn.example.com/b.jpg"},
	})
	if err != nil {
		t.Fatalf("PlaceMessage: %v", err)
	}
	if res.ProviderMessageID != "SM777" || res.SegmentCount != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestTwilioPlaceCallRequestsRecording(t *testing.T) {
	g := twilioTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if got := r.PostFormValue("Record"); got != "true" {
			t.Errorf("Record = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"CA999","status":"queued"}`))
	})

	if _, err := g.PlaceCall(context.Background(), PlaceCallRequest{
		From:   "+15559990000",
		To:     "+15550001111",
		Record: true,
	}); err != nil {
		t.Fatalf("PlaceCall: %v", err)
	}
}

func TestTwilioSearchAvailableNumbers(t *testing.T) {
	g := twilioTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2010-04-01/Accounts/AC_test/AvailablePhoneNumbers/US/Local.json" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("AreaCode"); got != "415" {
			t.Errorf("AreaCode = %q", got)
		}
		if got := r.URL.Query().Get("PageSize"); got != "5" {
			t.Errorf("PageSize = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"available_phone_numbers":[
			{"phone_number":"+14155550100","locality":"San Francisco","region":"CA","capabilities":{"voice":true,"SMS":true}},
			{"phone_number":"+14155550101","locality":"San Francisco","region":"CA","capabilities":{"voice":true,"SMS":false}}
		]}`))
	})

	nums, err := g.SearchAvailableNumbers(context.Background(), NumberSearchQuery{
		Country:  "US",
		AreaCode: "415",
		Limit:    5,
	})
	if err != nil {
		t.Fatalf("SearchAvailableNumbers: %v", err)
	}
	if len(nums) != 2 {
		t.Fatalf("want 2 numbers, got %d", len(nums))
	}
	if nums[0].Number != "+14155550100" || !nums[0].VoiceEnabled || !nums[0].SMSEnabled {
		t.Fatalf("unexpected number: %+v", nums[0])
	}
	if nums[1].SMSEnabled {
		t.Fatalf("capabilities not mapped: %+v", nums[1])
	}
}

func TestTwilioClientErrorIsPermanent(t *testing.T) {
	g := twilioTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":21211,"message":"Invalid 'To' phone number"}`))
	})

	_, err := g.PlaceCall(context.Background(), PlaceCallRequest{From: "+1555", To: "bogus"})
	var ge *GatewayError
	if !errors.As(err, &ge) {
		t.Fatalf("want GatewayError, got %v", err)
	}
	if ge.Temporary {
		t.Fatalf("4xx must be permanent: %+v", ge)
	}
	if ge.Code != http.StatusBadRequest {
		t.Fatalf("Code = %d", ge.Code)
	}
	if IsTemporary(err) {
		t.Fatal("IsTemporary must be false for 4xx")
	}
}

func TestTwilioServerErrorIsTemporary(t *testing.T) {
	g := twilioTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := g.PlaceMessage(context.Background(), PlaceMessageRequest{From: "+1", To: "+2", Body: "x"})
	if !IsTemporary(err) {
		t.Fatalf("5xx must be temporary, got %v", err)
	}
}

func TestTwilioRateLimitIsTemporary(t *testing.T) {
	g := twilioTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	err := g.EndCall(context.Background(), "CA123")
	if !IsTemporary(err) {
		t.Fatalf("429 must be temporary, got %v", err)
	}
}

func TestTwilioEndCall(t *testing.T) {
	g := twilioTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2010-04-01/Accounts/AC_test/Calls/CA123.json" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if got := r.PostFormValue("Status"); got != "completed" {
			t.Errorf("Status = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sid":"CA123","status":"completed"}`))
	})

	if err := g.EndCall(context.Background(), "CA123"); err != nil {
		t.Fatalf("EndCall: %v", err)
	}
}

func TestTwilioListCallEvents(t *testing.T) {
	g := twilioTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sid":"CA123","status":"completed","from":"+15550001111","to":"+15559990000","duration":"61"}`))
	})

	evs, err := g.ListCallEvents(context.Background(), "CA123")
	if err != nil {
		t.Fatalf("ListCallEvents: %v", err)
	}
	if len(evs) != 1 {
		t.Fatalf("want 1 event, got %d", len(evs))
	}
	if evs[0].Status != "completed" || evs[0].DurationSeconds != 61 {
		t.Fatalf("unexpected event: %+v", evs[0])
	}
}
