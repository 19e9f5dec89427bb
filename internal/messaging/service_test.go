package messaging

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"cloudcall-platform/internal/audit"
	"cloudcall-platform/internal/directory"
	"cloudcall-platform/internal/numbers"
	"cloudcall-platform/internal/routing"
	"cloudcall-platform/internal/telephony"
	"cloudcall-platform/pkg/utils"
)

type msgEnv struct {
	svc       *Service
	repo      *MemoryRepo
	gw        *telephony.MemoryGateway
	auditRepo *audit.MemoryRepo
	numRepo   *numbers.MemoryRepo
}

var fixedNow = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC) // a Monday

func newMsgEnv(t *testing.T) *msgEnv {
	t.Helper()

	dir := directory.NewMemoryRepo()
	dir.PutUser(directory.User{ID: "u-alice", OrgID: "org-1", Status: directory.UserStatusActive, TeamIDs: []string{"team-sales"}, ClientName: "client-alice"})
	dir.PutUser(directory.User{ID: "u-bob", OrgID: "org-1", Status: directory.UserStatusActive, TeamIDs: []string{"team-sales"}, ClientName: "client-bob"})
	dir.PutContact(directory.Contact{ID: "contact-9", OrgID: "org-1", Name: "Jane Caller", PhoneNumbers: []string{"+15550001111"}})

	numRepo := numbers.NewMemoryRepo()
	numSvc := numbers.NewService(numRepo)

	resolver := routing.NewResolver(dir, routing.NewMemoryRotationStore(), rand.New(rand.NewSource(1)))

	env := &msgEnv{
		repo:      NewMemoryRepo(),
		gw:        telephony.NewMemoryGateway(),
		auditRepo: audit.NewMemoryRepo(),
		numRepo:   numRepo,
	}

	env.svc = NewService(
		Config{PublicBaseURL: "https://example.com"},
		env.repo,
		numSvc,
		dir,
		resolver,
		env.gw,
		audit.NewService(env.auditRepo),
		utils.NewMemoryDeduper(),
	)
	env.svc.clock = func() time.Time { return fixedNow }
	seq := 0
	env.svc.newID = func() string {
		seq++
		return fmt.Sprintf("msg-%d", seq)
	}
	return env
}

func (e *msgEnv) seedNumber(t *testing.T, n numbers.PhoneNumber) numbers.PhoneNumber {
	t.Helper()
	if n.ID == "" {
		n.ID = "num-1"
	}
	n.OrgID = "org-1"
	n.Active = true
	if err := e.numRepo.Create(context.Background(), n); err != nil {
		t.Fatalf("seed number: %v", err)
	}
	return n
}

func smsNumber() numbers.PhoneNumber {
	return numbers.PhoneNumber{
		Number:     "+15559990000",
		SMSEnabled: true,
		SMS: numbers.SMSConfig{
			Enabled:     true,
			RoutingType: numbers.SMSRouteUser,
			UserID:      "u-alice",
		},
	}
}

func TestSendPlacesAndPersists(t *testing.T) {
	env := newMsgEnv(t)
	n := env.seedNumber(t, smsNumber())
	ctx := context.Background()

	m, err := env.svc.Send(ctx, "org-1", "u-alice", SendRequest{NumberID: n.ID, To: "+15550001111", Body: "hello"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if m.Direction != DirectionOutbound || m.Status != StatusQueued {
		t.Fatalf("unexpected message: %+v", m)
	}
	if m.AssignedUserID != "u-alice" {
		t.Fatalf("sender not recorded as assignee: %+v", m)
	}
	if m.ContactID != "contact-9" {
		t.Fatalf("contact match missing: %+v", m)
	}

	placed := env.gw.PlacedMessages()
	if len(placed) != 1 || placed[0].From != "+15559990000" || placed[0].To != "+15550001111" || placed[0].Body != "hello" {
		t.Fatalf("unexpected gateway request: %+v", placed)
	}

	stored, err := env.repo.GetByProviderID(ctx, m.ProviderMessageID)
	if err != nil {
		t.Fatalf("message not persisted: %v", err)
	}
	if stored.ID != m.ID {
		t.Fatalf("stored %q != returned %q", stored.ID, m.ID)
	}
}

func TestSendMediaOnlyMessage(t *testing.T) {
	env := newMsgEnv(t)
	n := env.seedNumber(t, smsNumber())
	ctx := context.Background()

	media := []string{"https://cdn.example.com/photo.jpg"}
	m, err := env.svc.Send(ctx, "org-1", "u-alice", SendRequest{NumberID: n.ID, To: "+15550001111", MediaURLs: media})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(m.MediaURLs) != 1 || m.MediaURLs[0] != media[0] {
		t.Fatalf("MediaURLs = %v", m.MediaURLs)
	}

	placed := env.gw.PlacedMessages()
	if len(placed) != 1 || len(placed[0].MediaURLs) != 1 || placed[0].MediaURLs[0] != media[0] {
		t.Fatalf("media not forwarded to gateway: %+v", placed)
	}
}

func TestSendRejectsEmptyBody(t *testing.T) {
	env := newMsgEnv(t)
	n := env.seedNumber(t, smsNumber())

	_, err := env.svc.Send(context.Background(), "org-1", "u-alice", SendRequest{NumberID: n.ID, To: "+15550001111", Body: "   "})
	if !errors.Is(err, ErrEmptyBody) {
		t.Fatalf("want ErrEmptyBody, got %v", err)
	}
	if len(env.gw.PlacedMessages()) != 0 {
		t.Fatal("gateway should not be called")
	}
}

func TestSendPermissionDenied(t *testing.T) {
	env := newMsgEnv(t)
	n := smsNumber()
	n.AssignedUserID = "u-alice"
	n = env.seedNumber(t, n)

	_, err := env.svc.Send(context.Background(), "org-1", "u-bob", SendRequest{NumberID: n.ID, To: "+15550001111", Body: "hi"})
	if !errors.Is(err, numbers.ErrPermissionDenied) {
		t.Fatalf("want ErrPermissionDenied, got %v", err)
	}
	if len(env.gw.PlacedMessages()) != 0 {
		t.Fatal("gateway should not be called")
	}
}

func TestSendRejectsNonSMSNumber(t *testing.T) {
	env := newMsgEnv(t)
	n := smsNumber()
	n.SMSEnabled = false
	n = env.seedNumber(t, n)

	_, err := env.svc.Send(context.Background(), "org-1", "u-alice", SendRequest{NumberID: n.ID, To: "+15550001111", Body: "hi"})
	if !errors.Is(err, numbers.ErrInvalidConfig) {
		t.Fatalf("want ErrInvalidConfig, got %v", err)
	}
}

func TestSendPersistFailureQueuesRetry(t *testing.T) {
	env := newMsgEnv(t)
	n := env.seedNumber(t, smsNumber())
	ctx := context.Background()

	env.repo.FailCreates = 1
	env.repo.CreateErr = errors.New("db down")

	m, err := env.svc.Send(ctx, "org-1", "u-alice", SendRequest{NumberID: n.ID, To: "+15550001111", Body: "hello"})
	if err != nil {
		t.Fatalf("Send should not fail when the gateway accepted: %v", err)
	}
	if _, err := env.repo.GetByID(ctx, "org-1", m.ID); !errors.Is(err, ErrNotFound) {
		t.Fatal("row should not be persisted yet")
	}
	if env.svc.PendingCount() != 1 {
		t.Fatalf("pending = %d, want 1", env.svc.PendingCount())
	}
	if got := len(env.auditRepo.EventsOfType(audit.EventTypeOrphanDetected)); got != 1 {
		t.Fatalf("orphan_detected events = %d, want 1", got)
	}

	if n := env.svc.RetryPending(ctx); n != 1 {
		t.Fatalf("RetryPending = %d, want 1", n)
	}
	if _, err := env.repo.GetByID(ctx, "org-1", m.ID); err != nil {
		t.Fatalf("row not recovered: %v", err)
	}
	if got := len(env.auditRepo.EventsOfType(audit.EventTypeOrphanReconciled)); got != 1 {
		t.Fatalf("orphan_reconciled events = %d, want 1", got)
	}
	if env.svc.PendingCount() != 0 {
		t.Fatalf("pending = %d, want 0", env.svc.PendingCount())
	}
}

func TestInboundStoresAndAssigns(t *testing.T) {
	env := newMsgEnv(t)
	env.seedNumber(t, smsNumber())
	ctx := context.Background()

	reply, err := env.svc.HandleInbound(ctx, telephony.InboundMessageEvent{
		ProviderMessageID: "SM100",
		From:              "+15550001111",
		To:                "+15559990000",
		Body:              "hi there",
		OccurredAt:        fixedNow,
	})
	if err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}
	if reply != "" {
		t.Fatalf("no auto-reply configured, got %q", reply)
	}

	m, err := env.repo.GetByProviderID(ctx, "SM100")
	if err != nil {
		t.Fatalf("inbound message not persisted: %v", err)
	}
	if m.Direction != DirectionInbound || m.Status != StatusReceived {
		t.Fatalf("unexpected message: %+v", m)
	}
	if m.AssignedUserID != "u-alice" {
		t.Fatalf("assignment missing: %+v", m)
	}
	if m.ContactID != "contact-9" {
		t.Fatalf("contact match missing: %+v", m)
	}
}

func TestInboundTeamQueueAssignsTeamOnly(t *testing.T) {
	env := newMsgEnv(t)
	n := smsNumber()
	n.SMS = numbers.SMSConfig{Enabled: true, RoutingType: numbers.SMSRouteTeam, TeamID: "team-sales"}
	env.seedNumber(t, n)

	_, err := env.svc.HandleInbound(context.Background(), telephony.InboundMessageEvent{
		ProviderMessageID: "SM101", From: "+15550002222", To: "+15559990000", Body: "hi",
	})
	if err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}

	m, err := env.repo.GetByProviderID(context.Background(), "SM101")
	if err != nil {
		t.Fatalf("message not persisted: %v", err)
	}
	if m.AssignedTeamID != "team-sales" || m.AssignedUserID != "" {
		t.Fatalf("team queue should not fan out to a user: %+v", m)
	}
}

func TestInboundUnregisteredNumberAuditOnly(t *testing.T) {
	env := newMsgEnv(t)
	ctx := context.Background()

	reply, err := env.svc.HandleInbound(ctx, telephony.InboundMessageEvent{
		ProviderMessageID: "SM102", From: "+15550001111", To: "+15551234567", Body: "hi",
	})
	if err != nil || reply != "" {
		t.Fatalf("HandleInbound = (%q, %v), want empty, nil", reply, err)
	}

	if _, err := env.repo.GetByProviderID(ctx, "SM102"); !errors.Is(err, ErrNotFound) {
		t.Fatal("no row should be created for unregistered numbers")
	}
	evs := env.auditRepo.EventsOfType(audit.EventTypeInboundRejected)
	if len(evs) != 1 || evs[0].OrgID != audit.PlatformOrgID {
		t.Fatalf("unexpected audit trail: %+v", evs)
	}
}

func TestInboundDuplicateDeliveryAbsorbed(t *testing.T) {
	env := newMsgEnv(t)
	n := smsNumber()
	n.SMS.AutoReplyEnabled = true
	n.SMS.AutoReplyMessage = "We got your message."
	env.seedNumber(t, n)
	ctx := context.Background()

	ev := telephony.InboundMessageEvent{
		ProviderMessageID: "SM103", From: "+15550001111", To: "+15559990000", Body: "hi",
	}
	reply, err := env.svc.HandleInbound(ctx, ev)
	if err != nil || reply != "We got your message." {
		t.Fatalf("first delivery = (%q, %v)", reply, err)
	}
	reply, err = env.svc.HandleInbound(ctx, ev)
	if err != nil || reply != "" {
		t.Fatalf("redelivery should be absorbed, got (%q, %v)", reply, err)
	}

	msgs, err := env.repo.ListPair(ctx, "org-1", "+15559990000", "+15550001111", 0, 0)
	if err != nil {
		t.Fatalf("ListPair: %v", err)
	}
	// One inbound plus one auto-reply, despite two deliveries.
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
}

func TestInboundAutoReplyPersistsOutboundRow(t *testing.T) {
	env := newMsgEnv(t)
	n := smsNumber()
	n.SMS.AutoReplyEnabled = true
	n.SMS.AutoReplyMessage = "We got your message."
	env.seedNumber(t, n)
	ctx := context.Background()

	reply, err := env.svc.HandleInbound(ctx, telephony.InboundMessageEvent{
		ProviderMessageID: "SM104", From: "+15550001111", To: "+15559990000", Body: "hi",
	})
	if err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}
	if reply != "We got your message." {
		t.Fatalf("reply = %q", reply)
	}

	msgs, err := env.repo.ListPair(ctx, "org-1", "+15559990000", "+15550001111", 0, 0)
	if err != nil {
		t.Fatalf("ListPair: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	out := msgs[1]
	if !out.IsAutoReply || out.Direction != DirectionOutbound {
		t.Fatalf("auto-reply row wrong: %+v", out)
	}
	if out.From != "+15559990000" || out.To != "+15550001111" {
		t.Fatalf("auto-reply direction wrong: %+v", out)
	}
}

func TestInboundNeverRepliesToAReply(t *testing.T) {
	env := newMsgEnv(t)
	n := smsNumber()
	n.SMS.AutoReplyEnabled = true
	n.SMS.AutoReplyMessage = "We got your message."
	env.seedNumber(t, n)

	// The counterpart runs the same auto-responder and echoes our text back.
	reply, err := env.svc.HandleInbound(context.Background(), telephony.InboundMessageEvent{
		ProviderMessageID: "SM105", From: "+15550001111", To: "+15559990000",
		Body: "We got your message.",
	})
	if err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}
	if reply != "" {
		t.Fatalf("echoed auto-reply must not be answered, got %q", reply)
	}
}

func TestInboundAutoReplyOnlyAfterHours(t *testing.T) {
	env := newMsgEnv(t)
	n := smsNumber()
	n.SMS.AutoReplyEnabled = true
	n.SMS.AutoReplyMessage = "We are closed."
	n.SMS.AutoReplyOnlyAfterHours = true
	n.Routing = numbers.RoutingConfig{
		Type:   numbers.RouteTypeUser,
		UserID: "u-alice",
		BusinessHours: &numbers.BusinessHoursPolicy{
			Enabled: true,
			Schedules: []numbers.Schedule{{
				DaysOfWeek: []time.Weekday{time.Monday},
				StartTime:  "09:00",
				EndTime:    "17:00",
				Timezone:   "UTC",
			}},
			AfterHours: numbers.AfterHoursRouting{Type: numbers.AfterHoursVoicemail},
		},
	}
	env.seedNumber(t, n)
	ctx := context.Background()

	// Noon Monday is inside business hours: stay quiet.
	reply, err := env.svc.HandleInbound(ctx, telephony.InboundMessageEvent{
		ProviderMessageID: "SM106", From: "+15550001111", To: "+15559990000", Body: "hi",
	})
	if err != nil || reply != "" {
		t.Fatalf("within hours = (%q, %v), want empty", reply, err)
	}

	env.svc.clock = func() time.Time { return time.Date(2025, 6, 2, 20, 0, 0, 0, time.UTC) }
	reply, err = env.svc.HandleInbound(ctx, telephony.InboundMessageEvent{
		ProviderMessageID: "SM107", From: "+15550001111", To: "+15559990000", Body: "hi again",
	})
	if err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}
	if reply != "We are closed." {
		t.Fatalf("after hours reply = %q", reply)
	}
}

func TestInboundBrokenConfigStoredUnassigned(t *testing.T) {
	env := newMsgEnv(t)
	n := smsNumber()
	n.SMS = numbers.SMSConfig{Enabled: true, RoutingType: "carrier-pigeon"}
	env.seedNumber(t, n)
	ctx := context.Background()

	reply, err := env.svc.HandleInbound(ctx, telephony.InboundMessageEvent{
		ProviderMessageID: "SM108", From: "+15550001111", To: "+15559990000", Body: "hi",
	})
	if err != nil || reply != "" {
		t.Fatalf("HandleInbound = (%q, %v)", reply, err)
	}

	m, err := env.repo.GetByProviderID(ctx, "SM108")
	if err != nil {
		t.Fatalf("message must still be stored: %v", err)
	}
	if m.AssignedUserID != "" || m.AssignedTeamID != "" {
		t.Fatalf("broken config must leave the message unassigned: %+v", m)
	}
	if got := len(env.auditRepo.EventsOfType(audit.EventTypeConfigError)); got != 1 {
		t.Fatalf("config_error events = %d, want 1", got)
	}
}

func TestApplyStatusLatestWins(t *testing.T) {
	env := newMsgEnv(t)
	n := env.seedNumber(t, smsNumber())
	ctx := context.Background()

	m, err := env.svc.Send(ctx, "org-1", "u-alice", SendRequest{NumberID: n.ID, To: "+15550001111", Body: "hi"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	steps := []struct {
		status string
		want   Status
	}{
		{"sent", StatusSent},
		// Redelivered report: harmless no-op.
		{"sent", StatusSent},
		{"delivered", StatusDelivered},
		// Out of order: delivery status has no transition graph, latest wins
		// even for a status string seen earlier.
		{"sent", StatusSent},
		{"delivered", StatusDelivered},
	}
	for _, step := range steps {
		err := env.svc.ApplyStatus(ctx, telephony.MessageStatusEvent{
			ProviderMessageID: m.ProviderMessageID,
			Status:            step.status,
			OccurredAt:        fixedNow,
		})
		if err != nil {
			t.Fatalf("ApplyStatus(%s): %v", step.status, err)
		}
		got, err := env.repo.GetByID(ctx, "org-1", m.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if got.Status != step.want {
			t.Fatalf("after %s: status = %s, want %s", step.status, got.Status, step.want)
		}
	}
}

func TestApplyStatusDropsUnknownStatus(t *testing.T) {
	env := newMsgEnv(t)
	n := env.seedNumber(t, smsNumber())
	ctx := context.Background()

	m, err := env.svc.Send(ctx, "org-1", "u-alice", SendRequest{NumberID: n.ID, To: "+15550001111", Body: "hi"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	err = env.svc.ApplyStatus(ctx, telephony.MessageStatusEvent{
		ProviderMessageID: m.ProviderMessageID, Status: "teleported",
	})
	if err != nil {
		t.Fatalf("unknown status must be dropped, not fail: %v", err)
	}
	got, _ := env.repo.GetByID(ctx, "org-1", m.ID)
	if got.Status != StatusQueued {
		t.Fatalf("status = %s, want unchanged queued", got.Status)
	}
}

func TestApplyStatusUnknownMessage(t *testing.T) {
	env := newMsgEnv(t)
	err := env.svc.ApplyStatus(context.Background(), telephony.MessageStatusEvent{
		ProviderMessageID: "SM-missing", Status: "delivered",
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestConversationsView(t *testing.T) {
	env := newMsgEnv(t)
	env.seedNumber(t, smsNumber())
	ctx := context.Background()

	for i, body := range []string{"one", "two", "three"} {
		env.svc.clock = func() time.Time { return fixedNow.Add(time.Duration(i) * time.Minute) }
		_, err := env.svc.HandleInbound(ctx, telephony.InboundMessageEvent{
			ProviderMessageID: fmt.Sprintf("SM2%02d", i),
			From:              "+15550001111",
			To:                "+15559990000",
			Body:              body,
		})
		if err != nil {
			t.Fatalf("HandleInbound: %v", err)
		}
	}
	// A second correspondent, more recent.
	env.svc.clock = func() time.Time { return fixedNow.Add(time.Hour) }
	if _, err := env.svc.HandleInbound(ctx, telephony.InboundMessageEvent{
		ProviderMessageID: "SM300", From: "+15550002222", To: "+15559990000", Body: "new",
	}); err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}

	convs, err := env.svc.Conversations(ctx, "org-1")
	if err != nil {
		t.Fatalf("Conversations: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("conversations = %d, want 2", len(convs))
	}
	if convs[0].ExternalNumber != "+15550002222" {
		t.Fatalf("most recent conversation first, got %+v", convs[0])
	}
	if convs[1].TotalCount != 3 || convs[1].UnreadCount != 3 {
		t.Fatalf("counts wrong: %+v", convs[1])
	}
	if convs[1].OwnNumber != "+15559990000" || convs[1].ExternalNumber != "+15550001111" {
		t.Fatalf("pair sides wrong: %+v", convs[1])
	}
	if convs[1].LastMessage.Body != "three" {
		t.Fatalf("last message = %q, want three", convs[1].LastMessage.Body)
	}
}

func TestMarkConversationRead(t *testing.T) {
	env := newMsgEnv(t)
	env.seedNumber(t, smsNumber())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := env.svc.HandleInbound(ctx, telephony.InboundMessageEvent{
			ProviderMessageID: fmt.Sprintf("SM4%02d", i),
			From:              "+15550001111",
			To:                "+15559990000",
			Body:              "hi",
		}); err != nil {
			t.Fatalf("HandleInbound: %v", err)
		}
	}

	n, err := env.svc.MarkConversationRead(ctx, "org-1", "u-alice", "+15559990000", "+15550001111")
	if err != nil {
		t.Fatalf("MarkConversationRead: %v", err)
	}
	if n != 2 {
		t.Fatalf("marked = %d, want 2", n)
	}

	convs, err := env.svc.Conversations(ctx, "org-1")
	if err != nil {
		t.Fatalf("Conversations: %v", err)
	}
	if convs[0].UnreadCount != 0 {
		t.Fatalf("unread = %d, want 0", convs[0].UnreadCount)
	}

	// Second pass touches nothing.
	n, err = env.svc.MarkConversationRead(ctx, "org-1", "u-alice", "+15559990000", "+15550001111")
	if err != nil || n != 0 {
		t.Fatalf("second pass = (%d, %v), want (0, nil)", n, err)
	}
}
