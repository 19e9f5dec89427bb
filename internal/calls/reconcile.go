package calls

import (
	"context"
	"time"

	"cloudcall-platform/internal/audit"
	"cloudcall-platform/internal/telephony"
	"cloudcall-platform/pkg/logger"

	"github.com/google/uuid"
)

// Reconciler drains the orphan queue: calls that the gateway accepted but
// whose local record never persisted. It polls the provider's status stream
// and rebuilds the missing Call row.
//
// Single goroutine, ticker driven. Stop via Stop() or context cancel.

type Reconciler struct {
	repo    Repository
	queue   OrphanQueue
	gateway telephony.Gateway
	audit   *audit.Service

	interval  time.Duration
	batchSize int

	clock func() time.Time
	newID func() string

	stop chan struct{}
	done chan struct{}
}

func NewReconciler(repo Repository, queue OrphanQueue, gateway telephony.Gateway, auditSvc *audit.Service, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Reconciler{
		repo:      repo,
		queue:     queue,
		gateway:   gateway,
		audit:     auditSvc,
		interval:  interval,
		batchSize: 50,
		clock:     time.Now,
		newID:     uuid.NewString,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called or ctx is canceled.
func (r *Reconciler) Start(ctx context.Context) {
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stop:
				return
			case <-ticker.C:
				if n, err := r.RunOnce(ctx); err != nil {
					logger.From(ctx).Error("orphan sweep failed", "err", err)
				} else if n > 0 {
					logger.From(ctx).Info("orphan sweep reconciled calls", "count", n)
				}
			}
		}
	}()
}

func (r *Reconciler) Stop() {
	close(r.stop)
	<-r.done
}

// RunOnce drains one batch from the queue and returns how many calls it
// reconciled. Orphans whose provider lookup fails temporarily go back on the
// queue for the next sweep.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	log := logger.From(ctx)

	orphans, err := r.queue.DequeueBatch(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}

	reconciled := 0
	for _, o := range orphans {
		// A later webhook may have created the row already.
		if _, err := r.repo.GetByProviderID(ctx, o.ProviderCallID); err == nil {
			continue
		}

		events, err := r.gateway.ListCallEvents(ctx, o.ProviderCallID)
		if err != nil {
			if telephony.IsTemporary(err) {
				log.Warn("provider lookup unavailable, requeueing orphan",
					"provider_call_id", o.ProviderCallID, "err", err)
				if reErr := r.queue.Enqueue(ctx, o); reErr != nil {
					log.Error("orphan requeue failed", "provider_call_id", o.ProviderCallID, "err", reErr)
				}
				continue
			}
			// Permanent: the provider no longer knows this call. Record it as
			// failed so it is at least visible.
			log.Warn("provider no longer knows orphaned call, recording as failed",
				"provider_call_id", o.ProviderCallID, "err", err)
			events = nil
		}

		if err := r.rebuild(ctx, o, events); err != nil {
			log.Error("orphan rebuild failed", "provider_call_id", o.ProviderCallID, "err", err)
			if reErr := r.queue.Enqueue(ctx, o); reErr != nil {
				log.Error("orphan requeue failed", "provider_call_id", o.ProviderCallID, "err", reErr)
			}
			continue
		}
		reconciled++
	}
	return reconciled, nil
}

func (r *Reconciler) rebuild(ctx context.Context, o Orphan, events []telephony.CallEvent) error {
	now := r.clock().UTC()

	status := StatusFailed
	duration := 0
	started := o.QueuedAt
	var ended *time.Time
	for _, ev := range events {
		if mapped, ok := StatusFromProvider(ev.Status); ok {
			status = mapped
			if ev.DurationSeconds > 0 {
				duration = ev.DurationSeconds
			}
			if !ev.OccurredAt.IsZero() && status.IsTerminal() {
				t := ev.OccurredAt
				ended = &t
			}
		}
	}
	if status.IsTerminal() && ended == nil {
		ended = &now
	}

	c := Call{
		ID:              r.newID(),
		OrgID:           o.OrgID,
		NumberID:        o.NumberID,
		ProviderCallID:  o.ProviderCallID,
		Direction:       o.Direction,
		From:            o.From,
		To:              o.To,
		Status:          status,
		UserID:          o.UserID,
		DurationSeconds: duration,
		StartedAt:       started,
		EndedAt:         ended,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := r.repo.Create(ctx, c); err != nil {
		return err
	}
	_ = r.audit.Append(ctx, audit.Event{
		OrgID:   o.OrgID,
		Type:    audit.EventTypeOrphanReconciled,
		CallID:  c.ID,
		Message: "rebuilt call " + o.ProviderCallID + " from provider status stream",
	})
	return nil
}
