package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloudcall-platform/internal/calls"
	"cloudcall-platform/internal/messaging"
)

var (
	rangeStart = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	rangeEnd   = time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
)

func seededRepo() *MemoryRepo {
	inRange := rangeStart.Add(24 * time.Hour)
	repo := NewMemoryRepo()
	repo.Calls = []calls.Call{
		{ID: "c1", OrgID: "org-1", NumberID: "num-1", Direction: calls.DirectionInbound, Status: calls.StatusCompleted, DurationSeconds: 60, CreatedAt: inRange},
		{ID: "c2", OrgID: "org-1", NumberID: "num-1", Direction: calls.DirectionOutbound, Status: calls.StatusCompleted, DurationSeconds: 120, CreatedAt: inRange},
		{ID: "c3", OrgID: "org-1", NumberID: "num-2", Direction: calls.DirectionInbound, Status: calls.StatusFailed, CreatedAt: inRange},
		{ID: "c4", OrgID: "org-1", NumberID: "num-1", Direction: calls.DirectionInbound, Status: calls.StatusRejected, CreatedAt: inRange},
		// Outside the range and outside the org: both invisible.
		{ID: "c5", OrgID: "org-1", Status: calls.StatusCompleted, DurationSeconds: 999, CreatedAt: rangeEnd.Add(time.Hour)},
		{ID: "c6", OrgID: "org-2", Status: calls.StatusCompleted, DurationSeconds: 999, CreatedAt: inRange},
	}
	repo.Messages = []messaging.Message{
		{ID: "m1", OrgID: "org-1", NumberID: "num-1", Direction: messaging.DirectionInbound, Status: messaging.StatusReceived, SegmentCount: 1, CreatedAt: inRange},
		{ID: "m2", OrgID: "org-1", NumberID: "num-1", Direction: messaging.DirectionOutbound, Status: messaging.StatusDelivered, SegmentCount: 2, CreatedAt: inRange},
		{ID: "m3", OrgID: "org-1", NumberID: "num-1", Direction: messaging.DirectionOutbound, Status: messaging.StatusSent, SegmentCount: 1, IsAutoReply: true, CreatedAt: inRange},
		{ID: "m4", OrgID: "org-1", NumberID: "num-2", Direction: messaging.DirectionOutbound, Status: messaging.StatusFailed, SegmentCount: 1, CreatedAt: inRange},
		{ID: "m5", OrgID: "org-2", Direction: messaging.DirectionInbound, Status: messaging.StatusReceived, SegmentCount: 1, CreatedAt: inRange},
	}
	return repo
}

func TestCallsSummary(t *testing.T) {
	svc := NewService(seededRepo())

	got, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{
		OrgID: "org-1",
		Range: TimeRange{From: rangeStart, To: rangeEnd},
	})
	if err != nil {
		t.Fatalf("CallsSummary: %v", err)
	}
	if got.TotalCalls != 4 {
		t.Fatalf("total = %d, want 4", got.TotalCalls)
	}
	if got.InboundCalls != 3 || got.OutboundCalls != 1 {
		t.Fatalf("direction split wrong: %+v", got)
	}
	if got.CompletedCalls != 2 || got.FailedCalls != 1 || got.RejectedCalls != 1 {
		t.Fatalf("status split wrong: %+v", got)
	}
	if got.TotalDurationSeconds != 180 || got.AverageDurationSeconds != 45 {
		t.Fatalf("durations wrong: %+v", got)
	}
}

func TestCallsSummaryNumberFilter(t *testing.T) {
	svc := NewService(seededRepo())

	got, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{
		OrgID:    "org-1",
		Range:    TimeRange{From: rangeStart, To: rangeEnd},
		NumberID: "num-2",
	})
	if err != nil {
		t.Fatalf("CallsSummary: %v", err)
	}
	if got.TotalCalls != 1 || got.FailedCalls != 1 {
		t.Fatalf("filter wrong: %+v", got)
	}
}

func TestMessagesSummary(t *testing.T) {
	svc := NewService(seededRepo())

	got, err := svc.MessagesSummary(context.Background(), MessagesSummaryRequest{
		OrgID: "org-1",
		Range: TimeRange{From: rangeStart, To: rangeEnd},
	})
	if err != nil {
		t.Fatalf("MessagesSummary: %v", err)
	}
	if got.TotalMessages != 4 {
		t.Fatalf("total = %d, want 4", got.TotalMessages)
	}
	if got.InboundMessages != 1 || got.OutboundMessages != 3 {
		t.Fatalf("direction split wrong: %+v", got)
	}
	if got.DeliveredMessages != 1 || got.FailedMessages != 1 || got.AutoReplies != 1 {
		t.Fatalf("status split wrong: %+v", got)
	}
	if got.TotalSegments != 5 {
		t.Fatalf("segments = %d, want 5", got.TotalSegments)
	}
}

func TestSummaryValidation(t *testing.T) {
	svc := NewService(seededRepo())
	ctx := context.Background()

	cases := []CallsSummaryRequest{
		{OrgID: "", Range: TimeRange{From: rangeStart, To: rangeEnd}},
		{OrgID: "org-1"},
		{OrgID: "org-1", Range: TimeRange{From: rangeEnd, To: rangeStart}},
		{OrgID: "org-1", Range: TimeRange{From: rangeStart, To: rangeStart}},
	}
	for i, req := range cases {
		if _, err := svc.CallsSummary(ctx, req); !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("case %d: want ErrInvalidRequest, got %v", i, err)
		}
	}
}

func TestLiveTally(t *testing.T) {
	svc := NewService(nil)
	ctx := context.Background()

	svc.CallCompleted(ctx, calls.Call{DurationSeconds: 30})
	svc.CallCompleted(ctx, calls.Call{DurationSeconds: 45})

	completed, total := svc.LiveTally()
	if completed != 2 || total != 75 {
		t.Fatalf("LiveTally = (%d, %d), want (2, 75)", completed, total)
	}
}
