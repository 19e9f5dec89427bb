package calls

import (
	"context"
	"errors"
	"fmt"
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

// Service manages the call lifecycle.
//
// Concurrency invariant: all writes to one call go through that call's keyed
// mutex. Webhook deliveries for the same call arrive concurrently and out of
// order; the lock plus the transition table make application deterministic.
//
// Webhook invariant: HandleInbound never returns an error to the webhook
// layer for business failures. It degrades to a spoken apology instead,
// because the caller is a live human holding a ringing phone.

// NumberLookup is the slice of the numbers service the lifecycle needs.
type NumberLookup interface {
	Get(ctx context.Context, orgID, id string) (numbers.PhoneNumber, error)
	Lookup(ctx context.Context, number string) (numbers.PhoneNumber, error)
}

// AnalyticsSink receives completed calls exactly once each.
type AnalyticsSink interface {
	CallCompleted(ctx context.Context, c Call)
}

type Config struct {
	// PublicBaseURL is the externally reachable prefix for webhook callbacks.
	PublicBaseURL string

	// DialTimeoutSeconds bounds ringing before no-answer handling.
	DialTimeoutSeconds int
	// GatherTimeoutSeconds bounds IVR digit collection.
	GatherTimeoutSeconds int
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
	orphans   OrphanQueue
	analytics AnalyticsSink

	locks *utils.KeyedMutex

	// clock and newID are injectable for deterministic tests.
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
	orphans OrphanQueue,
	analytics AnalyticsSink,
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
		orphans:   orphans,
		analytics: analytics,
		locks:     utils.NewKeyedMutex(),
		clock:     time.Now,
		newID:     uuid.NewString,
	}
}

type InitiateRequest struct {
	NumberID string `json:"number_id"`
	To       string `json:"to"`
}

// Initiate places an outbound call on behalf of a user.
//
// The gateway accept and the local insert are not atomic. When the insert
// fails after the provider accepted the call, the call is queued as an orphan
// for the reconciler; it is never silently dropped.
func (s *Service) Initiate(ctx context.Context, orgID, userID string, req InitiateRequest) (Call, error) {
	log := logger.From(ctx)

	n, err := s.numbers.Get(ctx, orgID, req.NumberID)
	if err != nil {
		return Call{}, err
	}
	if !n.VoiceEnabled {
		return Call{}, fmt.Errorf("%w: number is not voice enabled", numbers.ErrInvalidConfig)
	}

	u, err := s.directory.GetUser(ctx, orgID, userID)
	if err != nil {
		return Call{}, err
	}
	if !numbers.CanUseNumber(u, n) {
		return Call{}, numbers.ErrPermissionDenied
	}

	res, err := s.gateway.PlaceCall(ctx, telephony.PlaceCallRequest{
		From:              n.Number,
		To:                req.To,
		Record:            n.RecordingEnabled,
		StatusCallbackURL: s.cfg.PublicBaseURL + "/webhooks/voice/status",
	})
	if err != nil {
		return Call{}, err
	}

	now := s.clock().UTC()
	c := Call{
		ID:             s.newID(),
		OrgID:          orgID,
		NumberID:       n.ID,
		ProviderCallID: res.ProviderCallID,
		Direction:      DirectionOutbound,
		From:           n.Number,
		To:             req.To,
		Status:         StatusInitiated,
		UserID:         userID,
		Recording:      n.RecordingEnabled,
		StartedAt:      now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if contact, ok, err := s.directory.FindContactByNumber(ctx, orgID, req.To); err == nil && ok {
		c.ContactID = contact.ID
	}

	if err := s.repo.Create(ctx, c); err != nil {
		log.Error("call persisted at gateway but not locally, queueing orphan",
			"provider_call_id", res.ProviderCallID, "err", err)
		s.enqueueOrphan(ctx, Orphan{
			ProviderCallID: res.ProviderCallID,
			OrgID:          orgID,
			NumberID:       n.ID,
			UserID:         userID,
			From:           n.Number,
			To:             req.To,
			Direction:      DirectionOutbound,
			QueuedAt:       now,
		})
		// The call is in flight regardless; hand it back to the caller.
		return c, nil
	}
	return c, nil
}

func (s *Service) enqueueOrphan(ctx context.Context, o Orphan) {
	if s.orphans == nil {
		logger.From(ctx).Error("no orphan queue configured, record lost",
			"provider_call_id", o.ProviderCallID)
		return
	}
	if err := s.orphans.Enqueue(ctx, o); err != nil {
		logger.From(ctx).Error("orphan enqueue failed", "provider_call_id", o.ProviderCallID, "err", err)
		return
	}
	_ = s.audit.Append(ctx, audit.Event{
		OrgID:     o.OrgID,
		Type:      audit.EventTypeOrphanDetected,
		Number:    o.From,
		IPAddress: routing.ClientIPFromContext(ctx),
		Message:   "gateway accepted " + o.ProviderCallID + " but local persist failed",
	})
}

// HandleInbound answers the provider's inbound-call webhook with an
// instruction tree. Business failures degrade to spoken apologies; only a
// nil-safe instruction slice ever leaves this method.
func (s *Service) HandleInbound(ctx context.Context, ev telephony.InboundCallEvent) ([]telephony.Instruction, error) {
	log := logger.From(ctx)
	now := s.clock().UTC()

	n, err := s.numbers.Lookup(ctx, ev.To)
	if err != nil {
		if errors.Is(err, numbers.ErrNotFound) {
			_ = s.audit.LogInboundRejected(ctx, "", routing.ClientIPFromContext(ctx), ev.To, ev.From, "call")
			return []telephony.Instruction{
				telephony.Say{Text: "The number you have dialed is not in service."},
				telephony.Hangup{},
			}, nil
		}
		log.Error("number lookup failed", "to", ev.To, "err", err)
		return telephony.Apology(), nil
	}

	status := StatusInitiated
	if mapped, ok := StatusFromProvider(ev.Status); ok {
		status = mapped
	}

	c := Call{
		ID:             s.newID(),
		OrgID:          n.OrgID,
		NumberID:       n.ID,
		ProviderCallID: ev.ProviderCallID,
		Direction:      DirectionInbound,
		From:           ev.From,
		To:             ev.To,
		Status:         status,
		Recording:      n.RecordingEnabled,
		StartedAt:      ev.OccurredAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if contact, ok, err := s.directory.FindContactByNumber(ctx, n.OrgID, ev.From); err == nil && ok {
		c.ContactID = contact.ID
	}

	decision, err := s.resolver.ResolveVoice(ctx, n.OrgID, n.Routing, n.VoicemailEnabled, now)
	if err != nil {
		if errors.Is(err, numbers.ErrInvalidConfig) {
			_ = s.audit.LogConfigError(ctx, n.OrgID, n.ID, err.Error())
		}
		log.Error("voice resolution failed", "number_id", n.ID, "err", err)
		decision = routing.Decision{Kind: routing.KindReject, Prompt: routing.DefaultUnavailableText}
	}
	if decision.Kind == routing.KindUser && len(decision.TargetUserIDs) == 1 {
		c.UserID = decision.TargetUserIDs[0]
	}

	if err := s.repo.Create(ctx, c); err != nil {
		log.Error("inbound call persisted at gateway but not locally, queueing orphan",
			"provider_call_id", ev.ProviderCallID, "err", err)
		s.enqueueOrphan(ctx, Orphan{
			ProviderCallID: ev.ProviderCallID,
			OrgID:          n.OrgID,
			NumberID:       n.ID,
			From:           ev.From,
			To:             ev.To,
			Direction:      DirectionInbound,
			QueuedAt:       now,
		})
	}

	instructions, err := s.instructionsFor(ctx, n, decision, ev)
	if err != nil {
		log.Error("instruction build failed", "number_id", n.ID, "err", err)
		return telephony.Apology(), nil
	}
	return instructions, nil
}

func (s *Service) instructionsFor(ctx context.Context, n numbers.PhoneNumber, d routing.Decision, ev telephony.InboundCallEvent) ([]telephony.Instruction, error) {
	switch d.Kind {
	case routing.KindUser, routing.KindTeamMembers:
		return s.dialFor(ctx, n, d.TargetUserIDs, ev.From)

	case routing.KindIVR:
		ivrURL := s.cfg.PublicBaseURL + "/webhooks/voice/ivr/" + d.IVRID
		return []telephony.Instruction{
			telephony.Gather{
				NumDigits:      1,
				TimeoutSeconds: s.cfg.GatherTimeoutSeconds,
				ActionURL:      ivrURL,
				Prompt:         []telephony.Instruction{telephony.Say{Text: d.Prompt}},
			},
			// No digits collected: replay the menu.
			telephony.Redirect{URL: ivrURL},
		}, nil

	case routing.KindVoicemail:
		return s.voicemailTree(d.Prompt), nil

	case routing.KindMessageOnly, routing.KindReject:
		return []telephony.Instruction{
			telephony.Say{Text: d.Prompt},
			telephony.Hangup{},
		}, nil

	default:
		return nil, fmt.Errorf("calls: unknown decision kind %q", d.Kind)
	}
}

// dialFor rings the given users simultaneously. When the number has voicemail
// the dial outcome posts back so an unanswered call can fall through.
func (s *Service) dialFor(ctx context.Context, n numbers.PhoneNumber, userIDs []string, callerID string) ([]telephony.Instruction, error) {
	dial := telephony.Dial{
		TimeoutSeconds: s.cfg.DialTimeoutSeconds,
		CallerID:       callerID,
	}
	if n.VoicemailEnabled {
		dial.ActionURL = s.cfg.PublicBaseURL + "/webhooks/voice/dial-result"
	}
	for _, userID := range userIDs {
		u, err := s.directory.GetUser(ctx, n.OrgID, userID)
		if err != nil {
			return nil, err
		}
		dial.Targets = append(dial.Targets, telephony.DialTarget{ClientName: u.ClientName})
	}
	return []telephony.Instruction{dial}, nil
}

func (s *Service) voicemailTree(prompt string) []telephony.Instruction {
	return []telephony.Instruction{
		telephony.Say{Text: prompt},
		telephony.Record{
			ActionURL:        s.cfg.PublicBaseURL + "/webhooks/voice/voicemail",
			MaxLengthSeconds: 120,
		},
		telephony.Hangup{},
	}
}

// HandleDialResult answers the Dial outcome callback. An answered dial needs
// nothing more; any other outcome falls through to voicemail when the number
// allows it.
func (s *Service) HandleDialResult(ctx context.Context, ev telephony.DialResultEvent) ([]telephony.Instruction, error) {
	log := logger.From(ctx)

	if ev.DialStatus == "completed" || ev.DialStatus == "answered" {
		return []telephony.Instruction{telephony.Hangup{}}, nil
	}

	c, err := s.repo.GetByProviderID(ctx, ev.ProviderCallID)
	if err != nil {
		log.Warn("dial result for unknown call", "provider_call_id", ev.ProviderCallID, "err", err)
		return []telephony.Instruction{
			telephony.Say{Text: routing.DefaultUnavailableText},
			telephony.Hangup{},
		}, nil
	}

	n, err := s.numbers.Get(ctx, c.OrgID, c.NumberID)
	if err != nil || !n.VoicemailEnabled {
		return []telephony.Instruction{
			telephony.Say{Text: routing.DefaultUnavailableText},
			telephony.Hangup{},
		}, nil
	}
	return s.voicemailTree(routing.DefaultVoicemailGreeting), nil
}

// HandleIVRDigit routes a collected menu digit to its configured destination.
// An unrecognized digit replays the menu instead of dropping the caller.
func (s *Service) HandleIVRDigit(ctx context.Context, ev telephony.IVRDigitEvent) ([]telephony.Instruction, error) {
	log := logger.From(ctx)

	c, err := s.repo.GetByProviderID(ctx, ev.ProviderCallID)
	if err != nil {
		log.Warn("ivr digit for unknown call", "provider_call_id", ev.ProviderCallID, "err", err)
		return telephony.Apology(), nil
	}
	n, err := s.numbers.Get(ctx, c.OrgID, c.NumberID)
	if err != nil {
		log.Error("number lookup failed for ivr call", "call_id", c.ID, "err", err)
		return telephony.Apology(), nil
	}

	for _, opt := range n.Routing.IVROptions {
		if opt.Digit != ev.Digit {
			continue
		}
		switch opt.Type {
		case numbers.IVRActionUser:
			return s.dialFor(ctx, n, []string{opt.UserID}, c.From)

		case numbers.IVRActionTeam:
			members, err := s.directory.ListTeamMembers(ctx, n.OrgID, opt.TeamID)
			if err != nil {
				return nil, err
			}
			if len(members) == 0 {
				if n.VoicemailEnabled {
					return s.voicemailTree(routing.DefaultVoicemailGreeting), nil
				}
				return []telephony.Instruction{
					telephony.Say{Text: routing.DefaultUnavailableText},
					telephony.Hangup{},
				}, nil
			}
			ids := make([]string, len(members))
			for i, m := range members {
				ids[i] = m.ID
			}
			return s.dialFor(ctx, n, ids, c.From)

		case numbers.IVRActionVoicemail:
			if !n.VoicemailEnabled {
				return []telephony.Instruction{
					telephony.Say{Text: routing.DefaultUnavailableText},
					telephony.Hangup{},
				}, nil
			}
			return s.voicemailTree(routing.DefaultVoicemailGreeting), nil
		}
	}

	return []telephony.Instruction{
		telephony.Say{Text: "Sorry, that is not a valid option."},
		telephony.Redirect{URL: s.cfg.PublicBaseURL + "/webhooks/voice/ivr/" + ev.IVRID},
	}, nil
}

// AttachRecording stores the provider's recording reference on the call.
func (s *Service) AttachRecording(ctx context.Context, ev telephony.RecordingEvent) error {
	probe, err := s.repo.GetByProviderID(ctx, ev.ProviderCallID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			logger.From(ctx).Warn("recording for unknown call", "provider_call_id", ev.ProviderCallID)
		}
		return err
	}

	unlock := s.locks.Lock("call:" + probe.ID)
	defer unlock()

	c, err := s.repo.GetByID(ctx, probe.OrgID, probe.ID)
	if err != nil {
		return err
	}
	c.RecordingURL = ev.RecordingURL
	c.UpdatedAt = s.clock().UTC()
	return s.repo.Update(ctx, c)
}

// ApplyStatus applies a provider lifecycle event to a call.
//
// Rules, in order:
// - redelivered events (same event id) are absorbed before any lookup
// - re-applying the current status is an idempotent no-op
// - any other event on a terminal call is an anomaly: audited, ErrAlreadyTerminal
// - out-of-order non-terminal events that the transition table rejects are
//   logged and dropped
func (s *Service) ApplyStatus(ctx context.Context, ev telephony.CallStatusEvent) error {
	log := logger.From(ctx)

	if ev.EventID != "" && s.dedupe != nil {
		first, err := s.dedupe.MarkOnce(ctx, "call-event:"+ev.EventID)
		if err != nil {
			log.Warn("event dedupe unavailable, applying anyway", "err", err)
		} else if !first {
			return nil
		}
	}

	probe, err := s.repo.GetByProviderID(ctx, ev.ProviderCallID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Warn("status event for unknown call", "provider_call_id", ev.ProviderCallID)
		}
		return err
	}

	unlock := s.locks.Lock("call:" + probe.ID)
	defer unlock()

	// Re-read under the lock; another delivery may have advanced the call.
	c, err := s.repo.GetByID(ctx, probe.OrgID, probe.ID)
	if err != nil {
		return err
	}

	next, ok := StatusFromProvider(ev.Status)
	if !ok {
		log.Warn("unknown provider status, dropping", "status", ev.Status, "call_id", c.ID)
		return nil
	}

	if c.Status == next {
		return nil
	}
	if c.Status.IsTerminal() {
		_ = s.audit.LogAnomaly(ctx, c.OrgID, c.ID,
			fmt.Sprintf("status event %q for call already %q", next, c.Status))
		log.Warn("status event on terminal call", "call_id", c.ID, "have", c.Status, "event", next)
		return ErrAlreadyTerminal
	}
	if !CanTransition(c.Status, next) {
		log.Warn("out-of-order status event dropped", "call_id", c.ID, "have", c.Status, "event", next)
		return nil
	}

	now := s.clock().UTC()
	c.Status = next
	c.UpdatedAt = now
	if next.IsTerminal() {
		ended := ev.OccurredAt
		if ended.IsZero() {
			ended = now
		}
		c.EndedAt = &ended
		if ev.DurationSeconds > 0 {
			c.DurationSeconds = ev.DurationSeconds
		} else if !c.StartedAt.IsZero() {
			c.DurationSeconds = int(ended.Sub(c.StartedAt) / time.Second)
		}
	}

	if err := s.repo.Update(ctx, c); err != nil {
		return err
	}

	// The transition into completed happens exactly once per call, which
	// makes this the at-most-once analytics point.
	if next == StatusCompleted && s.analytics != nil {
		s.analytics.CallCompleted(ctx, c)
	}
	return nil
}

// End terminates an in-flight call at the caller's request. Unlike status
// events, ending an already-terminal call is an explicit error: the action
// the caller asked for cannot happen.
func (s *Service) End(ctx context.Context, orgID, id string) (Call, error) {
	unlock := s.locks.Lock("call:" + id)
	defer unlock()

	c, err := s.repo.GetByID(ctx, orgID, id)
	if err != nil {
		return Call{}, err
	}
	if c.Status.IsTerminal() {
		return Call{}, ErrAlreadyTerminal
	}

	if err := s.gateway.EndCall(ctx, c.ProviderCallID); err != nil {
		return Call{}, err
	}

	now := s.clock().UTC()
	c.Status = StatusCompleted
	c.EndedAt = &now
	if !c.StartedAt.IsZero() {
		c.DurationSeconds = int(now.Sub(c.StartedAt) / time.Second)
	}
	c.UpdatedAt = now
	if err := s.repo.Update(ctx, c); err != nil {
		return Call{}, err
	}
	if s.analytics != nil {
		s.analytics.CallCompleted(ctx, c)
	}
	return c, nil
}

// Get returns one call. A completed recorded call without a stored recording
// reference gets its URL derived on read.
func (s *Service) Get(ctx context.Context, orgID, id string) (Call, error) {
	c, err := s.repo.GetByID(ctx, orgID, id)
	if err != nil {
		return Call{}, err
	}
	if c.Status == StatusCompleted && c.Recording && c.RecordingURL == "" {
		c.RecordingURL = s.cfg.PublicBaseURL + "/v1/calls/" + c.ID + "/recording"
	}
	return c, nil
}

func (s *Service) List(ctx context.Context, q ListQuery) ([]Call, error) {
	return s.repo.List(ctx, q)
}
