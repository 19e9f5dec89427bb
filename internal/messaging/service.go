package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"cloudcall-platform/internal/audit"
	"cloudcall-platform/internal/directory"
	"cloudcall-platform/internal/numbers"
	"cloudcall-platform/internal/routing"
	"cloudcall-platform/internal/telephony"
	"cloudcall-platform/pkg/logger"
	"cloudcall-platform/pkg/utils"

	"github.com/google/uuid"
)

// Service manages the message lifecycle.
//
// Delivery status is latest-wins, so concurrency control here only prevents
// lost updates on the same row, not ordering violations.
//
// Auto-reply rules:
// - at most one reply per inbound message (the inbound event is deduped)
// - never reply to what looks like our own auto-reply echoed back
// - when AutoReplyOnlyAfterHours is set, reply only outside business hours

// NumberLookup is the slice of the numbers service messaging needs.
type NumberLookup interface {
	Get(ctx context.Context, orgID, id string) (numbers.PhoneNumber, error)
	Lookup(ctx context.Context, number string) (numbers.PhoneNumber, error)
}

var ErrEmptyBody = errors.New("messaging: message body is required")

type Config struct {
	// PublicBaseURL is the externally reachable prefix for webhook callbacks.
	PublicBaseURL string
}

type Service struct {
	cfg Config

	repo      Repository
	numbers   NumberLookup
	directory directory.Directory
	resolver  *routing.Resolver
	gateway   telephony.Gateway
	audit     *audit.Service
	dedupe    utils.EventDeduper

	locks *utils.KeyedMutex

	// pending holds rows the provider accepted but the local insert lost.
	// Unlike calls, the full row is known here, so recovery is a re-insert
	// rather than a gateway reconciliation.
	pendingMu sync.Mutex
	pending   []Message

	clock func() time.Time
	newID func() string
}

func NewService(
	cfg Config,
	repo Repository,
	nums NumberLookup,
	dir directory.Directory,
	resolver *routing.Resolver,
	gateway telephony.Gateway,
	auditSvc *audit.Service,
	dedupe utils.EventDeduper,
) *Service {
	return &Service{
		cfg:       cfg,
		repo:      repo,
		numbers:   nums,
		directory: dir,
		resolver:  resolver,
		gateway:   gateway,
		audit:     auditSvc,
		dedupe:    dedupe,
		locks:     utils.NewKeyedMutex(),
		clock:     time.Now,
		newID:     uuid.NewString,
	}
}

type SendRequest struct {
	NumberID  string   `json:"number_id"`
	To        string   `json:"to"`
	Body      string   `json:"body"`
	MediaURLs []string `json:"media_urls,omitempty"`
}

// Send places an outbound SMS on behalf of a user.
//
// Like outbound calls, the gateway accept and the local insert are not
// atomic. When the insert fails the row is kept in the pending queue and
// re-inserted by RetryPending; it is never silently dropped.
func (s *Service) Send(ctx context.Context, orgID, userID string, req SendRequest) (Message, error) {
	log := logger.From(ctx)

	if strings.TrimSpace(req.Body) == "" && len(req.MediaURLs) == 0 {
		return Message{}, ErrEmptyBody
	}

	n, err := s.numbers.Get(ctx, orgID, req.NumberID)
	if err != nil {
		return Message{}, err
	}
	if !n.SMSEnabled {
		return Message{}, fmt.Errorf("%w: number is not sms enabled", numbers.ErrInvalidConfig)
	}

	u, err := s.directory.GetUser(ctx, orgID, userID)
	if err != nil {
		return Message{}, err
	}
	if !numbers.CanUseNumber(u, n) {
		return Message{}, numbers.ErrPermissionDenied
	}

	res, err := s.gateway.PlaceMessage(ctx, telephony.PlaceMessageRequest{
		From:              n.Number,
		To:                req.To,
		Body:              req.Body,
		MediaURLs:         req.MediaURLs,
		StatusCallbackURL: s.cfg.PublicBaseURL + "/webhooks/sms/status",
	})
	if err != nil {
		return Message{}, err
	}

	status := StatusQueued
	if mapped, ok := StatusFromProvider(res.Status); ok {
		status = mapped
	}

	now := s.clock().UTC()
	m := Message{
		ID:                s.newID(),
		OrgID:             orgID,
		NumberID:          n.ID,
		ProviderMessageID: res.ProviderMessageID,
		Direction:         DirectionOutbound,
		From:              n.Number,
		To:                req.To,
		Body:              req.Body,
		MediaURLs:         req.MediaURLs,
		SegmentCount:      res.SegmentCount,
		Status:            status,
		AssignedUserID:    userID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if contact, ok, err := s.directory.FindContactByNumber(ctx, orgID, req.To); err == nil && ok {
		m.ContactID = contact.ID
	}

	if err := s.repo.Create(ctx, m); err != nil {
		log.Error("message accepted at gateway but not persisted, queueing for retry",
			"provider_message_id", res.ProviderMessageID, "err", err)
		s.enqueuePending(ctx, m)
	}
	return m, nil
}

func (s *Service) enqueuePending(ctx context.Context, m Message) {
	s.pendingMu.Lock()
	s.pending = append(s.pending, m)
	s.pendingMu.Unlock()

	_ = s.audit.Append(ctx, audit.Event{
		OrgID:     m.OrgID,
		Type:      audit.EventTypeOrphanDetected,
		MessageID: m.ID,
		Number:    m.From,
		IPAddress: routing.ClientIPFromContext(ctx),
		Message:   "gateway accepted " + m.ProviderMessageID + " but local persist failed",
	})
}

// RetryPending re-inserts rows whose first insert failed. Returns how many
// rows were recovered. Rows that fail again stay queued.
func (s *Service) RetryPending(ctx context.Context) int {
	s.pendingMu.Lock()
	batch := s.pending
	s.pending = nil
	s.pendingMu.Unlock()

	recovered := 0
	for _, m := range batch {
		if err := s.repo.Create(ctx, m); err != nil {
			logger.From(ctx).Warn("pending message insert failed again", "message_id", m.ID, "err", err)
			s.pendingMu.Lock()
			s.pending = append(s.pending, m)
			s.pendingMu.Unlock()
			continue
		}
		recovered++
		_ = s.audit.Append(ctx, audit.Event{
			OrgID:     m.OrgID,
			Type:      audit.EventTypeOrphanReconciled,
			MessageID: m.ID,
			Message:   "message row recovered after failed insert",
		})
	}
	return recovered
}

// PendingCount reports how many rows await re-insertion.
func (s *Service) PendingCount() int {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	return len(s.pending)
}

// HandleInbound processes the provider's inbound-SMS webhook. It persists the
// message, assigns it to an inbox, and returns the auto-reply body when one
// should be sent; an empty string means no reply.
//
// Business failures never surface to the webhook layer as errors. The
// provider has already accepted the message from the sender.
func (s *Service) HandleInbound(ctx context.Context, ev telephony.InboundMessageEvent) (string, error) {
	log := logger.From(ctx)
	now := s.clock().UTC()

	if ev.ProviderMessageID != "" && s.dedupe != nil {
		first, err := s.dedupe.MarkOnce(ctx, "sms-event:"+ev.ProviderMessageID)
		if err != nil {
			log.Warn("event dedupe unavailable, processing anyway", "err", err)
		} else if !first {
			return "", nil
		}
	}

	n, err := s.numbers.Lookup(ctx, ev.To)
	if err != nil {
		if errors.Is(err, numbers.ErrNotFound) {
			_ = s.audit.LogInboundRejected(ctx, "", routing.ClientIPFromContext(ctx), ev.To, ev.From, "message")
			return "", nil
		}
		log.Error("number lookup failed", "to", ev.To, "err", err)
		return "", nil
	}
	if !n.SMSEnabled {
		_ = s.audit.LogInboundRejected(ctx, n.OrgID, routing.ClientIPFromContext(ctx), ev.To, ev.From, "message")
		return "", nil
	}

	m := Message{
		ID:                s.newID(),
		OrgID:             n.OrgID,
		NumberID:          n.ID,
		ProviderMessageID: ev.ProviderMessageID,
		Direction:         DirectionInbound,
		From:              ev.From,
		To:                ev.To,
		Body:              ev.Body,
		MediaURLs:         ev.MediaURLs,
		SegmentCount:      ev.SegmentCount,
		Status:            StatusReceived,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if contact, ok, err := s.directory.FindContactByNumber(ctx, n.OrgID, ev.From); err == nil && ok {
		m.ContactID = contact.ID
	}

	if n.SMS.Enabled {
		assignment, err := s.resolver.ResolveSMS(ctx, n.OrgID, n.SMS)
		if err != nil {
			if errors.Is(err, numbers.ErrInvalidConfig) {
				_ = s.audit.LogConfigError(ctx, n.OrgID, n.ID, err.Error())
			}
			log.Error("sms resolution failed, message left unassigned", "number_id", n.ID, "err", err)
		} else {
			m.AssignedUserID = assignment.AssignedUserID
			m.AssignedTeamID = assignment.AssignedTeamID
		}
	}

	if err := s.repo.Create(ctx, m); err != nil {
		log.Error("inbound message not persisted, queueing for retry",
			"provider_message_id", ev.ProviderMessageID, "err", err)
		s.enqueuePending(ctx, m)
	}

	reply := s.autoReply(ctx, n, ev, now)
	if reply != "" {
		out := Message{
			ID:             s.newID(),
			OrgID:          n.OrgID,
			NumberID:       n.ID,
			Direction:      DirectionOutbound,
			From:           ev.To,
			To:             ev.From,
			Body:           reply,
			SegmentCount:   1,
			Status:         StatusSent,
			IsAutoReply:    true,
			AssignedUserID: m.AssignedUserID,
			AssignedTeamID: m.AssignedTeamID,
			ContactID:      m.ContactID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.repo.Create(ctx, out); err != nil {
			log.Error("auto-reply not persisted, queueing for retry", "message_id", out.ID, "err", err)
			s.enqueuePending(ctx, out)
		}
	}
	return reply, nil
}

// autoReply returns the reply body for an inbound message, or "" when no
// reply applies.
func (s *Service) autoReply(ctx context.Context, n numbers.PhoneNumber, ev telephony.InboundMessageEvent, now time.Time) string {
	cfg := n.SMS
	if !cfg.Enabled || !cfg.AutoReplyEnabled || cfg.AutoReplyMessage == "" {
		return ""
	}
	// The other side may be running the same auto-responder. Matching bodies
	// would ping-pong forever.
	if strings.EqualFold(strings.TrimSpace(ev.Body), strings.TrimSpace(cfg.AutoReplyMessage)) {
		logger.From(ctx).Warn("inbound body matches auto-reply text, suppressing reply",
			"number_id", n.ID, "from", ev.From)
		return ""
	}
	if cfg.AutoReplyOnlyAfterHours {
		hours := n.Routing.BusinessHours
		if hours == nil || !hours.Enabled {
			return ""
		}
		if routing.EvaluateBusinessHours(ctx, hours, now) {
			return ""
		}
	}
	return cfg.AutoReplyMessage
}

// ApplyStatus applies a provider delivery report. Status is latest-wins:
// there is no transition table, the newest report simply overwrites.
//
// Delivery reports carry no distinct event id, so there is no dedupe key here.
// The per-message lock plus the same-status no-op below make redelivery
// harmless, and a report must stay applicable however often its status string
// was seen before.
func (s *Service) ApplyStatus(ctx context.Context, ev telephony.MessageStatusEvent) error {
	log := logger.From(ctx)

	probe, err := s.repo.GetByProviderID(ctx, ev.ProviderMessageID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Warn("status event for unknown message", "provider_message_id", ev.ProviderMessageID)
		}
		return err
	}

	unlock := s.locks.Lock("message:" + probe.ID)
	defer unlock()

	m, err := s.repo.GetByID(ctx, probe.OrgID, probe.ID)
	if err != nil {
		return err
	}

	next, ok := StatusFromProvider(ev.Status)
	if !ok {
		log.Warn("unknown provider status, dropping", "status", ev.Status, "message_id", m.ID)
		return nil
	}
	if m.Status == next {
		return nil
	}

	if (next == StatusFailed || next == StatusUndelivered) && ev.ErrorCode != "" {
		log.Warn("message delivery failed", "message_id", m.ID, "error_code", ev.ErrorCode)
	}

	m.Status = next
	m.UpdatedAt = s.clock().UTC()
	return s.repo.Update(ctx, m)
}

// Get returns one message.
func (s *Service) Get(ctx context.Context, orgID, id string) (Message, error) {
	return s.repo.GetByID(ctx, orgID, id)
}

// Conversations lists an org's conversations, most recent activity first.
func (s *Service) Conversations(ctx context.Context, orgID string) ([]Conversation, error) {
	return s.repo.Conversations(ctx, orgID)
}

// ConversationMessages returns the chronological page of one conversation.
func (s *Service) ConversationMessages(ctx context.Context, orgID, ownNumber, externalNumber string, limit, offset int) ([]Message, error) {
	return s.repo.ListPair(ctx, orgID, ownNumber, externalNumber, limit, offset)
}

// MarkConversationRead stamps every unread inbound message in the pair and
// returns how many it touched.
func (s *Service) MarkConversationRead(ctx context.Context, orgID, userID, ownNumber, externalNumber string) (int, error) {
	return s.repo.MarkPairRead(ctx, orgID, ownNumber, externalNumber, userID, s.clock().UTC())
}
