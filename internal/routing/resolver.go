package routing

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"cloudcall-platform/internal/directory"
	"cloudcall-platform/internal/numbers"
	"cloudcall-platform/pkg/logger"
)

// Resolver turns a number's routing configuration into a Decision.
//
// Return decisions only. No side effects (no DB writes, no gateway calls).
//
// Priority for voice:
//  1) Business hours: after-hours routing preempts the primary target.
//  2) Primary target (user / team / ivr).
//  3) Failover, evaluated at most once when the primary is unreachable.
//  4) Reject with an apology prompt.
//
// "Unreachable" is a resolvable outcome (inactive user, empty team), not an
// error. Errors are reserved for lookups failing and for config variants the
// resolver does not recognize.

const (
	// DefaultUnavailableText is spoken before hangup when nothing is reachable.
	DefaultUnavailableText = "We are sorry, no one is available to take your call. Please try again later."
	// DefaultVoicemailGreeting precedes recording when a call lands in voicemail.
	DefaultVoicemailGreeting = "No one is available to take your call. Please leave a message after the tone."
	// DefaultIVRPrompt is used when a menu has no welcome message configured.
	DefaultIVRPrompt = "Thank you for calling. Please make a selection."
)

// RotationStore hands out the next index of a rotating assignment. Key is
// scoped by the caller (org + team); size is the current member count. The
// pointer survives restarts so the rotation stays fair across processes.
type RotationStore interface {
	Next(ctx context.Context, key string, size int) (int, error)
}

type Resolver struct {
	Directory directory.Directory

	// Rotation is optional. When nil, round-robin SMS assignment falls back
	// to a uniform draw from RNG.
	Rotation RotationStore

	RNG *rand.Rand
}

func NewResolver(dir directory.Directory, rotation RotationStore, rng *rand.Rand) *Resolver {
	return &Resolver{Directory: dir, Rotation: rotation, RNG: rng}
}

func (r *Resolver) ResolveVoice(ctx context.Context, orgID string, cfg numbers.RoutingConfig, voicemailEnabled bool, now time.Time) (Decision, error) {
	if cfg.BusinessHours != nil && cfg.BusinessHours.Enabled &&
		!EvaluateBusinessHours(ctx, cfg.BusinessHours, now) {
		return r.resolveAfterHours(ctx, orgID, cfg.BusinessHours.AfterHours, voicemailEnabled)
	}

	d, reachable, err := r.resolvePrimary(ctx, orgID, cfg)
	if err != nil {
		return Decision{}, err
	}
	if reachable {
		return d, nil
	}

	if cfg.Failover != nil && cfg.Failover.Enabled {
		d, reachable, err = r.resolveFailover(ctx, orgID, *cfg.Failover, voicemailEnabled)
		if err != nil {
			return Decision{}, err
		}
		if reachable {
			return d, nil
		}
	}

	return Decision{Kind: KindReject, Prompt: DefaultUnavailableText, Reason: "no_reachable_target"}, nil
}

func (r *Resolver) resolvePrimary(ctx context.Context, orgID string, cfg numbers.RoutingConfig) (Decision, bool, error) {
	switch cfg.Type {
	case numbers.RouteTypeUser:
		return r.resolveUser(ctx, orgID, cfg.UserID, "primary_user")
	case numbers.RouteTypeTeam:
		return r.resolveTeam(ctx, orgID, cfg.TeamID, "primary_team")
	case numbers.RouteTypeIVR:
		prompt := cfg.WelcomeMessage
		if prompt == "" {
			prompt = DefaultIVRPrompt
		}
		return Decision{Kind: KindIVR, IVRID: cfg.IVRID, Prompt: prompt, Reason: "primary_ivr"}, true, nil
	default:
		return Decision{}, false, fmt.Errorf("%w: unknown routing type %q", numbers.ErrInvalidConfig, cfg.Type)
	}
}

func (r *Resolver) resolveFailover(ctx context.Context, orgID string, f numbers.FailoverPolicy, voicemailEnabled bool) (Decision, bool, error) {
	switch f.Type {
	case numbers.FailoverTypeVoicemail:
		if !voicemailEnabled {
			return Decision{}, false, nil
		}
		return Decision{Kind: KindVoicemail, Prompt: DefaultVoicemailGreeting, Reason: "failover_voicemail"}, true, nil
	case numbers.FailoverTypeUser:
		return r.resolveUser(ctx, orgID, f.UserID, "failover_user")
	case numbers.FailoverTypeTeam:
		return r.resolveTeam(ctx, orgID, f.TeamID, "failover_team")
	default:
		return Decision{}, false, fmt.Errorf("%w: unknown failover type %q", numbers.ErrInvalidConfig, f.Type)
	}
}

func (r *Resolver) resolveAfterHours(ctx context.Context, orgID string, ah numbers.AfterHoursRouting, voicemailEnabled bool) (Decision, error) {
	switch ah.Type {
	case numbers.AfterHoursVoicemail:
		if !voicemailEnabled {
			return Decision{Kind: KindReject, Prompt: DefaultUnavailableText, Reason: "after_hours_voicemail_disabled"}, nil
		}
		return Decision{Kind: KindVoicemail, Prompt: DefaultVoicemailGreeting, Reason: "after_hours_voicemail"}, nil
	case numbers.AfterHoursUser:
		d, reachable, err := r.resolveUser(ctx, orgID, ah.UserID, "after_hours_user")
		if err != nil {
			return Decision{}, err
		}
		if !reachable {
			return Decision{Kind: KindReject, Prompt: DefaultUnavailableText, Reason: "after_hours_user_unreachable"}, nil
		}
		return d, nil
	case numbers.AfterHoursTeam:
		d, reachable, err := r.resolveTeam(ctx, orgID, ah.TeamID, "after_hours_team")
		if err != nil {
			return Decision{}, err
		}
		if !reachable {
			return Decision{Kind: KindReject, Prompt: DefaultUnavailableText, Reason: "after_hours_team_unreachable"}, nil
		}
		return d, nil
	case numbers.AfterHoursMessage:
		msg := ah.Message
		if msg == "" {
			msg = DefaultUnavailableText
		}
		return Decision{Kind: KindMessageOnly, Prompt: msg, Reason: "after_hours_message"}, nil
	default:
		return Decision{}, fmt.Errorf("%w: unknown after-hours type %q", numbers.ErrInvalidConfig, ah.Type)
	}
}

func (r *Resolver) resolveUser(ctx context.Context, orgID, userID, reason string) (Decision, bool, error) {
	u, err := r.Directory.GetUser(ctx, orgID, userID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return Decision{}, false, nil
		}
		return Decision{}, false, err
	}
	if !u.IsActive() {
		return Decision{}, false, nil
	}
	return Decision{Kind: KindUser, TargetUserIDs: []string{u.ID}, Reason: reason}, true, nil
}

func (r *Resolver) resolveTeam(ctx context.Context, orgID, teamID, reason string) (Decision, bool, error) {
	members, err := r.Directory.ListTeamMembers(ctx, orgID, teamID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return Decision{}, false, nil
		}
		return Decision{}, false, err
	}
	if len(members) == 0 {
		return Decision{}, false, nil
	}
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	return Decision{Kind: KindTeamMembers, TargetUserIDs: ids, Reason: reason}, true, nil
}

// ResolveSMS picks the assignee for an inbound message.
//
// Team routing assigns the team id only: the message lands in the team's
// shared queue. Round-robin picks one active member using the rotation
// pointer, so no member is skipped while others repeat; when no rotation
// store is configured it degrades to a uniform random draw.
func (r *Resolver) ResolveSMS(ctx context.Context, orgID string, cfg numbers.SMSConfig) (AssignmentDecision, error) {
	switch cfg.RoutingType {
	case numbers.SMSRouteUser:
		return AssignmentDecision{Assigned: true, AssignedUserID: cfg.UserID, Reason: "user"}, nil
	case numbers.SMSRouteTeam:
		return AssignmentDecision{Assigned: true, AssignedTeamID: cfg.TeamID, Reason: "team_queue"}, nil
	case numbers.SMSRouteRoundRobin:
		members, err := r.Directory.ListTeamMembers(ctx, orgID, cfg.TeamID)
		if err != nil && !errors.Is(err, directory.ErrNotFound) {
			return AssignmentDecision{}, err
		}
		if len(members) == 0 {
			return AssignmentDecision{AssignedTeamID: cfg.TeamID, Reason: "round_robin_empty_team"}, nil
		}
		idx, err := r.nextIndex(ctx, orgID, cfg.TeamID, len(members))
		if err != nil {
			logger.From(ctx).Warn("rotation store unavailable, falling back to random pick", "error", err)
			idx = r.randIndex(len(members))
		}
		return AssignmentDecision{
			Assigned:       true,
			AssignedUserID: members[idx].ID,
			AssignedTeamID: cfg.TeamID,
			Reason:         "round_robin",
		}, nil
	default:
		return AssignmentDecision{}, fmt.Errorf("%w: unknown sms routing type %q", numbers.ErrInvalidConfig, cfg.RoutingType)
	}
}

func (r *Resolver) nextIndex(ctx context.Context, orgID, teamID string, size int) (int, error) {
	if r.Rotation == nil {
		return 0, errors.New("routing: no rotation store configured")
	}
	return r.Rotation.Next(ctx, "sms:"+orgID+":"+teamID, size)
}

func (r *Resolver) randIndex(size int) int {
	rng := r.RNG
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return rng.Intn(size)
}
