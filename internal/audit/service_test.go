package audit

import (
	"context"
	"testing"
)

func TestService_AppendRequiresOrgAndType(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.Append(context.Background(), Event{Type: EventTypeAnomaly}); err == nil {
		t.Fatalf("expected error")
	}
	if err := svc.Append(context.Background(), Event{OrgID: "org-1"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestService_AppendsImmutableEvents(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.LogAnomaly(context.Background(), "org-1", "call-1", "status event on terminal call"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event")
	}
	if evs[0].Type != EventTypeAnomaly {
		t.Fatalf("expected anomaly")
	}
	if evs[0].ID == "" || evs[0].CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp stamped")
	}
}

func TestService_InboundRejectedDefaultsToPlatformOrg(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.LogInboundRejected(context.Background(), "", "1.2.3.4", "+15550009999", "+15550001111", "call"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs := repo.EventsOfType(EventTypeInboundRejected)
	if len(evs) != 1 {
		t.Fatalf("expected 1 event")
	}
	if evs[0].OrgID != PlatformOrgID {
		t.Fatalf("expected platform org, got %q", evs[0].OrgID)
	}
	if evs[0].IPAddress != "1.2.3.4" {
		t.Fatalf("expected ip captured")
	}
}
