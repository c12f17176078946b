// Package voicews is the websocket transport for voice sessions: binary
// frames carry PCM16 audio, text frames carry JSON control messages.
package voicews

import (
	"context"
	"log/slog"
	"net/http"
	"unicode/utf8"

	ws "nhooyr.io/websocket"

	"tiryaq/voice/internal/sessions"
)

// StatusConfigError closes a connection whose tenant or providers could not
// be resolved.
const StatusConfigError ws.StatusCode = 4001

// DefaultReadLimit bounds a single inbound frame.
const DefaultReadLimit = 1 << 20

type Server struct {
	Reg       *sessions.Registry
	ReadLimit int64
	log       *slog.Logger
}

func NewServer(reg *sessions.Registry) *Server {
	return &Server{
		Reg:       reg,
		ReadLimit: DefaultReadLimit,
		log:       slog.Default().With("component", "ws"),
	}
}

// HandleSession upgrades the request and runs one voice session until the
// client goes away.
func (s *Server) HandleSession(w http.ResponseWriter, r *http.Request, tenantID, userID string) {
	log := s.log.With("tenant", tenantID, "user", userID)
	c, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		log.Warn("ws accept failed", "err", err)
		return
	}
	c.SetReadLimit(s.ReadLimit)

	sess, err := s.Reg.Open(r.Context(), tenantID, userID)
	if err != nil {
		log.Error("session rejected", "err", err)
		_ = c.Close(StatusConfigError, closeReason(err.Error()))
		return
	}
	log = log.With("session", sess.ID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		sess.Drain(ctx, c)
	}()

	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			log.Debug("ws read ended", "err", err)
			break
		}
		switch typ {
		case ws.MessageBinary:
			sess.HandleFrame(data)
		case ws.MessageText:
			if err := sess.HandleControl(data); err != nil {
				log.Warn("control message rejected", "err", err)
			}
		}
	}

	// Close may already have run from CloseAll; it is a no-op then.
	s.Reg.Close(sess.ID)
	cancel()
	<-drained
	_ = c.Close(ws.StatusNormalClosure, "done")
}

// HandleEcho verifies that websocket upgrades work end to end.
func (s *Server) HandleEcho(w http.ResponseWriter, r *http.Request) {
	c, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		s.log.Warn("ws accept failed", "err", err)
		return
	}
	if err := c.Write(r.Context(), ws.MessageText, []byte("HANDSHAKE_SUCCESS")); err != nil {
		s.log.Debug("echo write failed", "err", err)
	}
	_ = c.Close(ws.StatusNormalClosure, "")
}

// closeReason keeps a close reason within the 123 bytes a close frame allows.
func closeReason(s string) string {
	const limit = 123
	if len(s) <= limit {
		return s
	}
	s = s[:limit]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
