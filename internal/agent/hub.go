package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acme/powerdialer/internal/domain"
	"github.com/acme/powerdialer/pkg/logger"
)

// Message types exchanged with agent consoles.
const (
	msgPreview            = "preview"
	msgDispositionRequest = "disposition_request"
	msgReady              = "ready"
	msgDecision           = "decision"
	msgDisposition        = "disposition"
)

type outboundMessage struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Card      *PreviewCard    `json:"card,omitempty"`
	Contact   *domain.Contact `json:"contact,omitempty"`
}

type inboundMessage struct {
	Type        string    `json:"type"`
	CampaignID  uuid.UUID `json:"campaign_id"`
	RequestID   string    `json:"request_id"`
	Decision    Decision  `json:"decision"`
	Disposition string    `json:"disposition"`
}

// Hub maintains the set of connected agent consoles and implements Channel
// over them. Agents register through the websocket endpoint, announce which
// campaign they serve, and answer preview and disposition requests.
type Hub struct {
	logger          *logger.Logger
	decisionTimeout time.Duration

	register   chan *Client
	unregister chan *Client

	mu      sync.Mutex
	clients map[*Client]bool
	ready   map[uuid.UUID]chan struct{}
	waiters map[string]chan inboundMessage
}

// NewHub creates a hub. decisionTimeout bounds how long preview decisions
// and disposition collection may block the dial loop.
func NewHub(lg *logger.Logger, decisionTimeout time.Duration) *Hub {
	if decisionTimeout <= 0 {
		decisionTimeout = 30 * time.Second
	}
	return &Hub{
		logger:          lg,
		decisionTimeout: decisionTimeout,
		register:        make(chan *Client),
		unregister:      make(chan *Client),
		clients:         make(map[*Client]bool),
		ready:           make(map[uuid.UUID]chan struct{}),
		waiters:         make(map[string]chan inboundMessage),
	}
}

// Run processes client registration until the context ends.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("agent connected",
				zap.String("agent_id", client.id),
				zap.Int("total_agents", total))
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("agent disconnected",
				zap.String("agent_id", client.id),
				zap.Int("total_agents", total))
		}
	}
}

// WaitReady blocks until an agent serving the campaign announces readiness.
func (h *Hub) WaitReady(ctx context.Context, campaignID uuid.UUID) error {
	ch := h.readyChan(campaignID)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}

// Decide pushes a preview card to the campaign's agents and waits for a
// verdict. A silent console counts as a skip so the queue keeps moving.
func (h *Hub) Decide(ctx context.Context, card PreviewCard) (Decision, error) {
	requestID := uuid.NewString()
	replies := h.addWaiter(requestID)
	defer h.removeWaiter(requestID)

	h.broadcast(outboundMessage{Type: msgPreview, RequestID: requestID, Card: &card})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(h.decisionTimeout):
		h.logger.Warn("preview decision timed out, skipping contact",
			zap.String("campaign_id", card.CampaignID.String()))
		return DecisionSkip, nil
	case msg := <-replies:
		switch msg.Decision {
		case DecisionDial, DecisionSkip, DecisionRemove:
			return msg.Decision, nil
		}
		return "", fmt.Errorf("agent hub: unknown decision %q", msg.Decision)
	}
}

// Disposition asks the campaign's agents how a bridged call ended. Returns
// empty when nothing arrives before the timeout.
func (h *Hub) Disposition(ctx context.Context, campaignID uuid.UUID, contact domain.Contact) (string, error) {
	requestID := uuid.NewString()
	replies := h.addWaiter(requestID)
	defer h.removeWaiter(requestID)

	h.broadcast(outboundMessage{Type: msgDispositionRequest, RequestID: requestID, Contact: &contact})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(h.decisionTimeout):
		return "", nil
	case msg := <-replies:
		return msg.Disposition, nil
	}
}

// handleInbound routes one parsed agent message.
func (h *Hub) handleInbound(msg inboundMessage) {
	switch msg.Type {
	case msgReady:
		ch := h.readyChan(msg.CampaignID)
		select {
		case ch <- struct{}{}:
		default:
		}
	case msgDecision, msgDisposition:
		h.mu.Lock()
		waiter, ok := h.waiters[msg.RequestID]
		h.mu.Unlock()
		if !ok {
			return
		}
		select {
		case waiter <- msg:
		default:
		}
	}
}

func (h *Hub) broadcast(msg outboundMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("agent hub: marshal", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- payload:
		default:
			// send buffer full, drop the console
			close(client.send)
			delete(h.clients, client)
			h.logger.Warn("agent send buffer full, closing connection",
				zap.String("agent_id", client.id))
		}
	}
}

func (h *Hub) readyChan(campaignID uuid.UUID) chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.ready[campaignID]
	if !ok {
		ch = make(chan struct{}, 16)
		h.ready[campaignID] = ch
	}
	return ch
}

func (h *Hub) addWaiter(requestID string) chan inboundMessage {
	ch := make(chan inboundMessage, 1)
	h.mu.Lock()
	h.waiters[requestID] = ch
	h.mu.Unlock()
	return ch
}

func (h *Hub) removeWaiter(requestID string) {
	h.mu.Lock()
	delete(h.waiters, requestID)
	h.mu.Unlock()
}
