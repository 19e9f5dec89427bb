package reporting

import (
	"context"
	"errors"
	"sync"
	"time"

	"cloudcall-platform/internal/calls"
	"cloudcall-platform/internal/messaging"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting.
//
// IMPORTANT:
// - Methods must enforce org filtering.
// - Reads go to the same call and message tables the lifecycle services
//   write; reporting owns no tables of its own.

type Repository interface {
	ListCalls(ctx context.Context, orgID string, from, to time.Time, numberID string) ([]calls.Call, error)
	ListMessages(ctx context.Context, orgID string, from, to time.Time, numberID string) ([]messaging.Message, error)
}

type Service struct {
	repo Repository

	// Live tally of completed calls since process start, fed by the call
	// lifecycle. Cheap to read on a dashboard between full summaries.
	mu            sync.Mutex
	completed     int
	totalDuration int
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

// CallCompleted receives each completed call exactly once.
func (s *Service) CallCompleted(ctx context.Context, c calls.Call) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed++
	s.totalDuration += c.DurationSeconds
}

// LiveTally returns completed call count and summed duration since start.
func (s *Service) LiveTally() (completed, totalDurationSeconds int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed, s.totalDuration
}

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if err := validate(req.OrgID, req.Range); err != nil {
		return CallsSummary{}, err
	}
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListCalls(ctx, req.OrgID, req.Range.From, req.Range.To, req.NumberID)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{OrgID: req.OrgID, NumberID: req.NumberID}
	for _, c := range rows {
		out.TotalCalls++
		out.TotalDurationSeconds += c.DurationSeconds
		switch c.Direction {
		case calls.DirectionInbound:
			out.InboundCalls++
		case calls.DirectionOutbound:
			out.OutboundCalls++
		}
		switch c.Status {
		case calls.StatusCompleted:
			out.CompletedCalls++
		case calls.StatusFailed:
			out.FailedCalls++
		case calls.StatusRejected:
			out.RejectedCalls++
		case calls.StatusInProgress:
			out.InProgressCalls++
		case calls.StatusInitiated, calls.StatusRinging:
			// not counted separately
		}
	}
	if out.TotalCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.TotalCalls
	}
	return out, nil
}

func (s *Service) MessagesSummary(ctx context.Context, req MessagesSummaryRequest) (MessagesSummary, error) {
	if err := validate(req.OrgID, req.Range); err != nil {
		return MessagesSummary{}, err
	}
	if s.repo == nil {
		return MessagesSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListMessages(ctx, req.OrgID, req.Range.From, req.Range.To, req.NumberID)
	if err != nil {
		return MessagesSummary{}, err
	}

	out := MessagesSummary{OrgID: req.OrgID, NumberID: req.NumberID}
	for _, m := range rows {
		out.TotalMessages++
		out.TotalSegments += m.SegmentCount
		switch m.Direction {
		case messaging.DirectionInbound:
			out.InboundMessages++
		case messaging.DirectionOutbound:
			out.OutboundMessages++
		}
		switch m.Status {
		case messaging.StatusDelivered:
			out.DeliveredMessages++
		case messaging.StatusFailed, messaging.StatusUndelivered:
			out.FailedMessages++
		}
		if m.IsAutoReply {
			out.AutoReplies++
		}
	}
	return out, nil
}

func validate(orgID string, r TimeRange) error {
	if orgID == "" {
		return ErrInvalidRequest
	}
	if r.From.IsZero() || r.To.IsZero() || !r.To.After(r.From) {
		return ErrInvalidRequest
	}
	return nil
}
