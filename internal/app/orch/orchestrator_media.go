package orch

import (
	"context"
	"slices"

	"github.com/dkeye/Signal/internal/domain"
	"github.com/dkeye/Signal/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) startStream(sid domain.SessionID, m protocol.StartStream) []Delivery {
	prev, members, err := o.Rooms.StartStream(m.RoomID, sid, m.StreamKey)
	if err != nil {
		log.Info().Err(err).Str("module", "orch").Str("sid", string(sid)).Str("room_id", string(m.RoomID)).Msg("start stream refused")
		return reply(sid, protocol.ErrorFor(err))
	}
	if prev != "" && prev != m.StreamKey {
		o.notifyMedia(m.RoomID, prev, false)
	}
	o.notifyMedia(m.RoomID, m.StreamKey, true)
	return fanout(members, protocol.StreamStatus{RoomID: m.RoomID, StreamKey: m.StreamKey, Active: true})
}

func (o *Orchestrator) stopStream(sid domain.SessionID, m protocol.StopStream) []Delivery {
	stopped, members, err := o.Rooms.StopStream(m.RoomID, sid)
	if err != nil {
		log.Info().Err(err).Str("module", "orch").Str("sid", string(sid)).Str("room_id", string(m.RoomID)).Msg("stop stream refused")
		return reply(sid, protocol.ErrorFor(err))
	}
	if stopped == "" {
		return nil
	}
	o.notifyMedia(m.RoomID, stopped, false)
	return fanout(members, protocol.StreamStatus{RoomID: m.RoomID, StreamKey: stopped, Active: false})
}

// relay forwards an Offer, Answer or IceCandidate unmodified to its receiver.
// Nobody else sees it.
func (o *Orchestrator) relay(sid domain.SessionID, roomID domain.RoomID, from, to domain.SessionID, msg protocol.Message) []Delivery {
	if from != sid {
		return reply(sid, protocol.NewError(protocol.CodeUnauthorized, "sender_id does not match this session"))
	}
	members, err := o.Rooms.MembersOf(roomID)
	if err != nil {
		return reply(sid, protocol.ErrorFor(err))
	}
	if !o.Registry.IsLive(to) {
		return reply(sid, protocol.ErrorFor(domain.ErrNotLive))
	}
	if !slices.Contains(members, to) {
		return reply(sid, protocol.ErrorFor(domain.ErrNotMember))
	}
	log.Debug().Str("module", "orch").Str("type", string(msg.Kind())).Str("from", string(from)).Str("to", string(to)).Msg("relay")
	return reply(to, msg)
}

// notifyMedia reports a stream transition. Media is expected not to block
// (see sfu.Notifier).
func (o *Orchestrator) notifyMedia(roomID domain.RoomID, streamKey string, active bool) {
	if o.Media == nil {
		return
	}
	if err := o.Media.StreamStateChanged(context.Background(), roomID, streamKey, active); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("room_id", string(roomID)).Bool("active", active).Msg("media notify")
	}
}
