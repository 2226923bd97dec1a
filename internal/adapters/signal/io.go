package signal

import (
	"context"
	"time"

	"github.com/dkeye/Signal/internal/app/orch"
	"github.com/dkeye/Signal/internal/domain"
	"github.com/dkeye/Signal/internal/metrics"
	"github.com/dkeye/Signal/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// writePump owns all writes to the socket. It returns once the sink is closed
// and drained, or on the first write error, and always closes the socket.
func (s *Server) writePump(sid domain.SessionID, c *WsSignalConn) {
	ticker := time.NewTicker(s.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				log.Debug().Str("module", "signal").Str("sid", string(sid)).Msg("writePump drained")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("writePump ping error")
				return
			}
		}
	}
}

// readPump feeds inbound frames to the router until the peer goes away, a
// read fails or ctx is cancelled.
func (s *Server) readPump(ctx context.Context, sid domain.SessionID, c *WsSignalConn) {
	pongWait := s.opts.PingPeriod * 10 / 9
	c.conn.SetReadLimit(s.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		if ctx.Err() != nil {
			return nil
		}
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Cancellation unblocks the pending read without touching the write side,
	// so the sink can still be flushed.
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	var limiter *rate.Limiter
	if s.opts.MessagesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.opts.MessagesPerSecond), s.opts.MessageBurst)
	}

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			switch {
			case ctx.Err() != nil:
				log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump cancelled")
			case websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
			default:
				log.Info().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump closed")
			}
			return
		}
		if mt != websocket.TextMessage {
			s.Orch.Deliver(errorTo(sid, "binary frames are not accepted"))
			continue
		}
		if limiter != nil && !limiter.Allow() {
			s.Orch.Metrics.Drop(metrics.DropRateLimited)
			s.Orch.Deliver(errorTo(sid, "rate limit exceeded"))
			continue
		}
		s.Orch.HandleFrame(sid, data)
	}
}

func errorTo(sid domain.SessionID, reason string) []orch.Delivery {
	return []orch.Delivery{{To: sid, Msg: protocol.NewError(protocol.CodeConnectionError, reason)}}
}
