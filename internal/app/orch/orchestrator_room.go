package orch

import (
	"github.com/dkeye/Signal/internal/core"
	"github.com/dkeye/Signal/internal/domain"
	"github.com/dkeye/Signal/internal/metrics"
	"github.com/dkeye/Signal/internal/protocol"
	"github.com/rs/zerolog/log"
)

// connect names the session. The id stays the one assigned at accept time.
func (o *Orchestrator) connect(sid domain.SessionID, m protocol.Connect) []Delivery {
	if m.PreferredID != "" && m.PreferredID != sid {
		log.Debug().Str("module", "orch").Str("sid", string(sid)).Str("preferred", string(m.PreferredID)).Msg("ignoring client-chosen id")
	}
	if err := o.Registry.UpdateUsername(sid, m.Username); err != nil {
		return reply(sid, protocol.ErrorFor(err))
	}
	return reply(sid, protocol.Connected{UserID: sid})
}

func (o *Orchestrator) createRoom(sid domain.SessionID, m protocol.CreateRoom) []Delivery {
	if o.Limiter != nil && !o.Limiter.Allow(sid) {
		o.Metrics.Drop(metrics.DropRateLimited)
		return reply(sid, protocol.NewError(protocol.CodeConnectionError, "rate limit exceeded"))
	}
	name := domain.TruncateRoomName(m.RoomName)
	id := o.Rooms.CreateRoom(name, sid)
	o.Metrics.RoomStarted()
	return reply(sid, protocol.RoomCreated{RoomID: id, RoomName: name})
}

func (o *Orchestrator) joinRoom(sid domain.SessionID, m protocol.JoinRoom) []Delivery {
	members, added, err := o.Rooms.Join(m.RoomID, sid)
	if err != nil {
		log.Info().Err(err).Str("module", "orch").Str("sid", string(sid)).Str("room_id", string(m.RoomID)).Msg("join refused")
		return reply(sid, protocol.ErrorFor(err))
	}
	joined := protocol.MemberJoined{RoomID: m.RoomID, UserID: sid}
	if !added {
		return reply(sid, joined)
	}
	return fanout(members, joined)
}

func (o *Orchestrator) leaveRoom(sid domain.SessionID, m protocol.LeaveRoom) []Delivery {
	res := o.Rooms.Leave(m.RoomID, sid)
	return o.afterLeave(m.RoomID, sid, res, true)
}

// afterLeave turns a leave into notifications. ack adds the leaver itself to
// the MemberLeft recipients.
func (o *Orchestrator) afterLeave(id domain.RoomID, sid domain.SessionID, res core.LeaveResult, ack bool) []Delivery {
	if !res.Left {
		return nil
	}
	left := protocol.MemberLeft{RoomID: id, UserID: sid}
	out := fanout(res.Remaining, left)
	if ack {
		out = append(out, Delivery{To: sid, Msg: left})
	}
	if res.StoppedStream != "" {
		o.notifyMedia(id, res.StoppedStream, false)
		out = append(out, fanout(res.Remaining, protocol.StreamStatus{RoomID: id, StreamKey: res.StoppedStream, Active: false})...)
	}
	if res.Deleted {
		o.Metrics.RoomEnded()
	}
	return out
}

// OnDisconnect runs the Closing steps that touch shared state: leave every
// room, then drop the session from the registry. It must be called from the
// session's own goroutine after its read loop has stopped, so no join can
// race with it.
func (o *Orchestrator) OnDisconnect(sid domain.SessionID) {
	for _, id := range o.Rooms.RoomsOf(sid) {
		res := o.Rooms.Leave(id, sid)
		o.Deliver(o.afterLeave(id, sid, res, false))
	}
	o.Registry.Unregister(sid)
	if o.Limiter != nil {
		o.Limiter.Forget(sid)
	}
	log.Info().Str("module", "orch").Str("sid", string(sid)).Msg("session cleaned up")
}
