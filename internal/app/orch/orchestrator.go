package orch

import (
	"errors"

	"github.com/dkeye/Signal/internal/app"
	"github.com/dkeye/Signal/internal/core"
	"github.com/dkeye/Signal/internal/domain"
	"github.com/dkeye/Signal/internal/metrics"
	"github.com/dkeye/Signal/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Delivery is one outbound message addressed to one session.
type Delivery struct {
	To  domain.SessionID
	Msg protocol.Message
}

// Orchestrator routes decoded signaling messages. Handlers run on the
// originating session's read goroutine; the registries serialize the rest.
type Orchestrator struct {
	Registry *app.Registry
	Rooms    *app.RoomManager
	Policy   app.Policy
	Media    core.MediaRouter
	Limiter  *app.RoomRateLimiter
	Metrics  *metrics.Metrics
}

// HandleFrame decodes one inbound frame, routes it and delivers the result.
// Malformed input is always answered, never dropped.
func (o *Orchestrator) HandleFrame(sid domain.SessionID, data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		var de *protocol.DecodeError
		reason := err.Error()
		if errors.As(err, &de) {
			reason = de.Reason
		}
		log.Warn().Str("module", "orch").Str("sid", string(sid)).Str("reason", reason).Msg("bad frame")
		o.Metrics.Message("invalid")
		o.Deliver(reply(sid, protocol.NewError(protocol.CodeConnectionError, reason)))
		return
	}
	o.Metrics.Message(string(msg.Kind()))
	o.Deliver(o.Route(sid, msg))
}

// Route runs the handler for msg and returns what has to be sent where.
func (o *Orchestrator) Route(sid domain.SessionID, msg protocol.Message) []Delivery {
	switch m := msg.(type) {
	case protocol.Connect:
		return o.connect(sid, m)
	case protocol.CreateRoom:
		return o.createRoom(sid, m)
	case protocol.JoinRoom:
		return o.joinRoom(sid, m)
	case protocol.LeaveRoom:
		return o.leaveRoom(sid, m)
	case protocol.StartStream:
		return o.startStream(sid, m)
	case protocol.StopStream:
		return o.stopStream(sid, m)
	case protocol.Offer:
		return o.relay(sid, m.RoomID, m.SenderID, m.ReceiverID, m)
	case protocol.Answer:
		return o.relay(sid, m.RoomID, m.SenderID, m.ReceiverID, m)
	case protocol.IceCandidate:
		return o.relay(sid, m.RoomID, m.SenderID, m.ReceiverID, m)
	default:
		// Server-originated variants, Error included, are never valid inbound.
		log.Warn().Str("module", "orch").Str("sid", string(sid)).Str("type", string(msg.Kind())).Msg("unexpected inbound message")
		return reply(sid, protocol.NewError(protocol.CodeConnectionError, "unexpected inbound message type "+string(msg.Kind())))
	}
}

// Deliver encodes and enqueues each delivery. It never blocks: a full queue
// is handed to the backpressure policy.
func (o *Orchestrator) Deliver(ds []Delivery) {
	for _, d := range ds {
		if e, ok := d.Msg.(protocol.Error); ok {
			o.Metrics.Error(string(e.Code))
		}
		conn, ok := o.Registry.Conn(d.To)
		if !ok {
			log.Debug().Str("module", "orch").Str("to", string(d.To)).Str("type", string(d.Msg.Kind())).Msg("recipient gone")
			continue
		}
		frame, err := protocol.Encode(d.Msg)
		if err != nil {
			log.Error().Err(err).Str("module", "orch").Msg("encode")
			continue
		}
		err = conn.TrySend(frame)
		switch {
		case err == nil:
		case errors.Is(err, core.ErrBackpressure):
			o.onBackpressure(d.To)
		default:
			log.Debug().Err(err).Str("module", "orch").Str("to", string(d.To)).Msg("send failed")
		}
	}
}

func (o *Orchestrator) onBackpressure(sid domain.SessionID) {
	o.Metrics.Drop(metrics.DropBackpressure)
	action := app.KickMember
	if o.Policy != nil {
		action = o.Policy.OnBackPressure(sid)
	}
	log.Warn().Str("module", "orch").Str("sid", string(sid)).Str("action", action.String()).Msg("backpressure")
	if action == app.KickMember {
		o.Registry.Cancel(sid)
	}
}

func reply(sid domain.SessionID, msg protocol.Message) []Delivery {
	return []Delivery{{To: sid, Msg: msg}}
}

func fanout(to []domain.SessionID, msg protocol.Message) []Delivery {
	out := make([]Delivery, 0, len(to))
	for _, sid := range to {
		out = append(out, Delivery{To: sid, Msg: msg})
	}
	return out
}
