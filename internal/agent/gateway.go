package agent

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/acme/powerdialer/pkg/logger"
)

// Gateway serves the agent console websocket endpoint on its own listener.
type Gateway struct {
	hub      *Hub
	logger   *logger.Logger
	server   *http.Server
	upgrader websocket.Upgrader
}

// NewGateway constructs the websocket gateway on the given port.
func NewGateway(hub *Hub, port int, lg *logger.Logger) *Gateway {
	g := &Gateway{
		hub:    hub,
		logger: lg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Console origin enforcement happens at the edge proxy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/agents", g.serveWS)
	g.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  0, // websocket connections are long lived
		WriteTimeout: 0,
	}
	return g
}

// Start serves until the context ends.
func (g *Gateway) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = g.server.Shutdown(shutdownCtx)
	}()

	g.logger.Info("agent gateway listening", zap.String("addr", g.server.Addr))
	if err := g.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("agent gateway: %w", err)
	}
	return nil
}

func (g *Gateway) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error("agent websocket upgrade failed", zap.Error(err))
		return
	}
	client := NewClient(g.hub, conn, g.logger)
	go client.Serve()
}
