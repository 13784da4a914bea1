// Package apiserver is the Control API transport: plain HTTP for
// getState/control, WebSocket streaming for state and activity-log
// subscriptions. Grounded on the teacher's wricardo-tesla-road-trip-game
// sibling's transport/websocket Hub (upgrader, per-connection send channel,
// ping/pong keepalive, readPump/writePump pair) adapted from a session-keyed
// broadcast hub to one connection directly backed by engine.Subscribe's
// existing pub/sub, since the engine already owns fan-out and doesn't need
// a second broker layered on top.
package apiserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/worldsim/worldsim/internal/engine"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server exposes one Engine over HTTP + WebSocket, per SPEC_FULL §6.
type Server struct {
	eng *engine.Engine
	log *slog.Logger
	mux *http.ServeMux
}

// New builds a Server wired to eng. Call Handler() to get the http.Handler
// to serve, typically via an http.Server.
func New(eng *engine.Engine, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{eng: eng, log: log, mux: http.NewServeMux()}

	s.mux.HandleFunc("/state", s.handleGetState)
	s.mux.HandleFunc("/control", s.handleControl)
	s.mux.HandleFunc("/stream/state", s.handleStreamState)
	s.mux.HandleFunc("/stream/logs", s.handleStreamLogs)

	return s
}

// Handler returns the composed http.Handler.
func (s *Server) Handler() http.Handler { return s.mux }

type getStateResponse struct {
	State engine.SerializedWorldState `json:"state"`
	Meta  engine.Meta                 `json:"meta"`
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	state, meta := s.eng.GetState()
	writeJSON(w, http.StatusOK, getStateResponse{State: state, Meta: meta})
}

type controlRequest struct {
	Action engine.ControlAction `json:"action"`
}

type controlResponse struct {
	IsPaused  bool `json:"isPaused"`
	IsRunning bool `json:"isRunning"`
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	isPaused, isRunning, err := s.eng.Control(req.Action)
	if err != nil {
		var verr *engine.ValidationError
		if errors.As(err, &verr) {
			http.Error(w, verr.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, controlResponse{IsPaused: isPaused, IsRunning: isRunning})
}

func (s *Server) handleStreamState(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket_upgrade_failed", "stream", "state", "error", err.Error())
		return
	}

	send := make(chan []byte, 16)
	unsubscribe := s.eng.Subscribe(func(state engine.SerializedWorldState) {
		b, err := json.Marshal(state)
		if err != nil {
			return
		}
		select {
		case send <- b:
		default:
		}
	})

	s.pump(conn, send, unsubscribe)
}

func (s *Server) handleStreamLogs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket_upgrade_failed", "stream", "logs", "error", err.Error())
		return
	}

	send := make(chan []byte, 64)
	unsubscribe := s.eng.SubscribeToLogs(func(entry engine.ActivityLogEntry) {
		b, err := json.Marshal(entry)
		if err != nil {
			return
		}
		select {
		case send <- b:
		default:
		}
	})

	s.pump(conn, send, unsubscribe)
}

// pump drives one WebSocket connection's write side off send, and its read
// side purely to detect disconnection and service pong keepalives, mirroring
// the teacher's readPump/writePump split. unsubscribe is called exactly once
// on either side's exit.
func (s *Server) pump(conn *websocket.Conn, send chan []byte, unsubscribe func()) {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		defer cancel()
		conn.SetReadLimit(maxMessageSize)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() {
		unsubscribe()
		cancel()
		_ = conn.Close()
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case b := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
