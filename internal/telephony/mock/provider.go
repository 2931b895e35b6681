package mock

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/acme/powerdialer/internal/telephony"
)

// Provider simulates outbound call behaviour for local development. Each
// placed call resolves to a terminal status after a short randomized ring
// period; subscribers receive the transition as a pushed event.
type Provider struct {
	ringMin time.Duration
	ringMax time.Duration

	mu    sync.Mutex
	rng   *rand.Rand
	calls map[string]*simulatedCall
}

type simulatedCall struct {
	status telephony.CallStatus
	subs   []chan telephony.CallStatus
}

// NewProvider constructs a mock provider.
func NewProvider() *Provider {
	return &Provider{
		ringMin: 500 * time.Millisecond,
		ringMax: 3 * time.Second,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		calls:   make(map[string]*simulatedCall),
	}
}

// PlaceCall registers a simulated call and schedules its resolution.
func (p *Provider) PlaceCall(ctx context.Context, req telephony.PlaceCallRequest) (telephony.CallHandle, error) {
	if req.To == "" {
		return telephony.CallHandle{}, fmt.Errorf("mock provider: missing destination")
	}

	id := uuid.NewString()

	p.mu.Lock()
	p.calls[id] = &simulatedCall{status: telephony.CallStatus{State: telephony.StateDialing}}
	ring := p.ringMin + time.Duration(p.rng.Int63n(int64(p.ringMax-p.ringMin)))
	final := p.rollOutcome()
	p.mu.Unlock()

	go func() {
		timer := time.NewTimer(ring)
		defer timer.Stop()
		<-timer.C
		p.resolve(id, final)
	}()

	return telephony.CallHandle{ID: id}, nil
}

// GetCallStatus returns the current simulated status.
func (p *Provider) GetCallStatus(ctx context.Context, callID string) (telephony.CallStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	call, ok := p.calls[callID]
	if !ok {
		return telephony.CallStatus{}, fmt.Errorf("mock provider: unknown call %s", callID)
	}
	return call.status, nil
}

// SubscribeStatus returns a channel that receives the terminal status.
func (p *Provider) SubscribeStatus(callID string) <-chan telephony.CallStatus {
	ch := make(chan telephony.CallStatus, 1)
	p.mu.Lock()
	defer p.mu.Unlock()
	call, ok := p.calls[callID]
	if !ok {
		close(ch)
		return ch
	}
	if call.status.Terminal() {
		ch <- call.status
		return ch
	}
	call.subs = append(call.subs, ch)
	return ch
}

// BridgeToAgent is a no-op for the simulation.
func (p *Provider) BridgeToAgent(ctx context.Context, callID, agentTarget string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.calls[callID]; !ok {
		return fmt.Errorf("mock provider: unknown call %s", callID)
	}
	return nil
}

// DropVoicemail is a no-op for the simulation.
func (p *Provider) DropVoicemail(ctx context.Context, callID, recordingURL string) error {
	return nil
}

func (p *Provider) resolve(callID string, status telephony.CallStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	call, ok := p.calls[callID]
	if !ok {
		return
	}
	call.status = status
	for _, ch := range call.subs {
		select {
		case ch <- status:
		default:
		}
	}
	call.subs = nil
}

// rollOutcome picks a terminal status. Caller holds the lock.
func (p *Provider) rollOutcome() telephony.CallStatus {
	roll := p.rng.Float64()
	switch {
	case roll < 0.35:
		return telephony.CallStatus{
			State:           telephony.StateAnswered,
			DurationSeconds: 30 + p.rng.Intn(270),
			AnsweredBy:      telephony.AnsweredByHuman,
		}
	case roll < 0.55:
		return telephony.CallStatus{
			State:           telephony.StateAnswered,
			DurationSeconds: 20 + p.rng.Intn(40),
			AnsweredBy:      telephony.AnsweredByMachine,
		}
	case roll < 0.70:
		return telephony.CallStatus{State: telephony.StateBusy}
	case roll < 0.92:
		return telephony.CallStatus{State: telephony.StateNoAnswer}
	case roll < 0.97:
		return telephony.CallStatus{State: telephony.StateFailed}
	default:
		return telephony.CallStatus{State: telephony.StateInvalidNumber}
	}
}
