package telephony

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryGateway is an in-process Gateway for tests and local bring-up.
// It accepts everything and records what it was asked to do.
type MemoryGateway struct {
	mu sync.Mutex

	calls     []PlaceCallRequest
	messages  []PlaceMessageRequest
	ended     []string
	events    map[string][]CallEvent
	available []AvailableNumber

	// FailNext makes the next operation fail with the given error, then resets.
	FailNext error

	seq int
}

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{events: make(map[string][]CallEvent)}
}

func (g *MemoryGateway) Name() string { return "memory" }

func (g *MemoryGateway) HealthCheck(ctx context.Context) error { return nil }

func (g *MemoryGateway) takeFailure() error {
	err := g.FailNext
	g.FailNext = nil
	return err
}

func (g *MemoryGateway) PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure(); err != nil {
		return PlaceCallResult{}, err
	}
	g.seq++
	id := fmt.Sprintf("MEMCA%04d", g.seq)
	g.calls = append(g.calls, req)
	g.events[id] = []CallEvent{{
		ProviderCallID: id,
		Status:         "initiated",
		From:           req.From,
		To:             req.To,
		OccurredAt:     time.Now().UTC(),
	}}
	return PlaceCallResult{ProviderCallID: id, Status: "initiated"}, nil
}

func (g *MemoryGateway) PlaceMessage(ctx context.Context, req PlaceMessageRequest) (PlaceMessageResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure(); err != nil {
		return PlaceMessageResult{}, err
	}
	g.seq++
	g.messages = append(g.messages, req)
	return PlaceMessageResult{
		ProviderMessageID: fmt.Sprintf("MEMSM%04d", g.seq),
		Status:            "queued",
		SegmentCount:      1,
	}, nil
}

func (g *MemoryGateway) EndCall(ctx context.Context, providerCallID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure(); err != nil {
		return err
	}
	g.ended = append(g.ended, providerCallID)
	return nil
}

func (g *MemoryGateway) ListCallEvents(ctx context.Context, providerCallID string) ([]CallEvent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure(); err != nil {
		return nil, err
	}
	evs, ok := g.events[providerCallID]
	if !ok {
		return nil, &GatewayError{Code: 404, Message: "call not found"}
	}
	out := make([]CallEvent, len(evs))
	copy(out, evs)
	return out, nil
}

func (g *MemoryGateway) SearchAvailableNumbers(ctx context.Context, q NumberSearchQuery) ([]AvailableNumber, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeFailure(); err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 || limit > len(g.available) {
		limit = len(g.available)
	}
	out := make([]AvailableNumber, limit)
	copy(out, g.available[:limit])
	return out, nil
}

// SetAvailableNumbers seeds the inventory returned by SearchAvailableNumbers.
func (g *MemoryGateway) SetAvailableNumbers(nums []AvailableNumber) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.available = nums
}

// SetCallEvents seeds the status stream returned for a call.
func (g *MemoryGateway) SetCallEvents(providerCallID string, evs []CallEvent) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events[providerCallID] = evs
}

// PlacedCalls returns a copy of every PlaceCall request seen.
func (g *MemoryGateway) PlacedCalls() []PlaceCallRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]PlaceCallRequest, len(g.calls))
	copy(out, g.calls)
	return out
}

// PlacedMessages returns a copy of every PlaceMessage request seen.
func (g *MemoryGateway) PlacedMessages() []PlaceMessageRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]PlaceMessageRequest, len(g.messages))
	copy(out, g.messages)
	return out
}

// EndedCalls returns the provider call ids EndCall was invoked with.
func (g *MemoryGateway) EndedCalls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.ended))
	copy(out, g.ended)
	return out
}
