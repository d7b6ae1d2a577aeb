package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

// WS message types: type-tagged JSON envelopes, keyed on terminal id.
type wsEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type wsOutputMsg struct {
	Type string `json:"type"`
	Data string `json:"data"` // base64, already OSC-stripped and batched
}

type wsExitMsg struct {
	Type     string `json:"type"`
	ExitCode *int   `json:"exitCode"`
}

type wsInputMsg struct {
	Type string `json:"type"`
	Data string `json:"data"` // base64
}

type wsResizeMsg struct {
	Type string `json:"type"`
	Cols int    `json:"cols"`
	Rows int    `json:"rows"`
}

// handleWebSocket opens the per-terminal duplex channel: input/resize from
// the client, batched output and an exit event to it. One connection serves
// exactly one terminal id.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	terminalID := r.URL.Query().Get("terminal")
	if terminalID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "missing terminal parameter")
		return
	}
	if !s.ws.Terminals.Exists(terminalID) {
		writeError(w, http.StatusNotFound, "not_found", "terminal not found: "+terminalID)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		s.logger.Error("websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(64 * 1024)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s.logger.Info("websocket connected", "terminal", terminalID)

	ch := s.broker.subscribe(terminalID)
	defer s.broker.unsubscribe(terminalID, ch)

	go s.wsReadLoop(ctx, cancel, conn, terminalID)
	go s.wsPingLoop(ctx, cancel, conn)

	s.wsWriteLoop(ctx, conn, terminalID, ch)
}

func (s *Server) wsPingLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn) {
	defer cancel()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, 10*time.Second)
			err := conn.Ping(pingCtx)
			pingCancel()
			if err != nil {
				s.logger.Debug("websocket ping failed", "err", err)
				return
			}
		}
	}
}

func (s *Server) wsReadLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, terminalID string) {
	defer cancel()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var msg wsEnvelope
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Debug("invalid ws message", "err", err)
			continue
		}

		switch msg.Type {
		case "input":
			var input wsInputMsg
			if err := json.Unmarshal(data, &input); err != nil {
				continue
			}
			decoded, err := base64.StdEncoding.DecodeString(input.Data)
			if err != nil {
				continue
			}
			if err := s.adapter.Write(terminalID, decoded); err != nil {
				s.logger.Debug("pty write error", "err", err)
			}
			if len(decoded) > 0 && decoded[len(decoded)-1] == '\r' {
				s.adapter.NoteEnterKeypress(terminalID)
			}

		case "resize":
			var resize wsResizeMsg
			if err := json.Unmarshal(data, &resize); err != nil {
				continue
			}
			if err := s.adapter.Resize(terminalID, uint16(resize.Cols), uint16(resize.Rows)); err != nil {
				s.logger.Debug("pty resize error", "err", err)
			}

		default:
			s.logger.Debug("unknown ws message type", "type", msg.Type)
		}
	}
}

func (s *Server) wsWriteLoop(ctx context.Context, conn *websocket.Conn, terminalID string, ch chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-ch:
			if !ok {
				sess, exists := s.ws.Terminals.Get(terminalID)
				var exitCode *int
				if exists {
					exitCode = sess.ExitCode
				}
				_ = writeJSONWS(ctx, conn, wsExitMsg{Type: "exit", ExitCode: exitCode})
				return
			}
			msg := wsOutputMsg{Type: "output", Data: base64.StdEncoding.EncodeToString(data)}
			if err := writeJSONWS(ctx, conn, msg); err != nil {
				return
			}
		}
	}
}

func writeJSONWS(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
