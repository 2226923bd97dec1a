package app

import (
	"cmp"
	"slices"
	"sync"

	"github.com/dkeye/Signal/internal/core"
	"github.com/dkeye/Signal/internal/domain"
	"github.com/rs/zerolog/log"
)

// DefaultMaxRoomMembers bounds a room when no limit is configured.
const DefaultMaxRoomMembers = 100

type room struct {
	id        domain.RoomID
	name      domain.RoomName
	creator   domain.SessionID
	members   []domain.SessionID
	streamKey string
}

func (r *room) snapshot() domain.Room {
	return domain.Room{
		ID:        r.id,
		Name:      r.name,
		Creator:   r.creator,
		Members:   slices.Clone(r.members),
		StreamKey: r.streamKey,
	}
}

func (r *room) has(sid domain.SessionID) bool {
	return slices.Contains(r.members, sid)
}

// controlledBy reports whether sid may start or stop the stream. A creator
// who has left gives up control.
func (r *room) controlledBy(sid domain.SessionID) bool {
	return sid == r.creator && r.has(sid)
}

// RoomManager is the threadsafe in-memory room registry. Every method is a
// single critical section, so no caller can observe a half-applied change.
// It never touches transport resources.
type RoomManager struct {
	mu         sync.RWMutex
	rooms      map[domain.RoomID]*room
	bySession  map[domain.SessionID]map[domain.RoomID]struct{}
	maxMembers int
	newID      func() domain.RoomID
}

func NewRoomManager(maxMembers int) *RoomManager {
	if maxMembers <= 0 {
		maxMembers = DefaultMaxRoomMembers
	}
	return &RoomManager{
		rooms:      make(map[domain.RoomID]*room),
		bySession:  make(map[domain.SessionID]map[domain.RoomID]struct{}),
		maxMembers: maxMembers,
		newID:      domain.NewRoomID,
	}
}

func (m *RoomManager) track(sid domain.SessionID, id domain.RoomID) {
	set, ok := m.bySession[sid]
	if !ok {
		set = make(map[domain.RoomID]struct{})
		m.bySession[sid] = set
	}
	set[id] = struct{}{}
}

func (m *RoomManager) untrack(sid domain.SessionID, id domain.RoomID) {
	set, ok := m.bySession[sid]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(m.bySession, sid)
	}
}

// CreateRoom always succeeds; the creator is the first member.
func (m *RoomManager) CreateRoom(name domain.RoomName, creator domain.SessionID) domain.RoomID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.newID()
	for {
		if _, taken := m.rooms[id]; !taken {
			break
		}
		id = m.newID()
	}
	m.rooms[id] = &room{
		id:      id,
		name:    name,
		creator: creator,
		members: []domain.SessionID{creator},
	}
	m.track(creator, id)
	log.Info().Str("module", "app.rooms").Str("room_id", string(id)).Str("creator", string(creator)).Msg("room created")
	return id
}

// Join adds sid to the room. Joining twice is a no-op reported by added=false.
// members is the membership right after the call.
func (m *RoomManager) Join(id domain.RoomID, sid domain.SessionID) (members []domain.SessionID, added bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok {
		return nil, false, domain.ErrRoomNotFound
	}
	if r.has(sid) {
		return slices.Clone(r.members), false, nil
	}
	if len(r.members) >= m.maxMembers {
		return nil, false, domain.ErrRoomFull
	}
	r.members = append(r.members, sid)
	m.track(sid, id)
	log.Info().Str("module", "app.rooms").Str("room_id", string(id)).Str("sid", string(sid)).Msg("member added")
	return slices.Clone(r.members), true, nil
}

// Leave removes sid from the room. A room left empty is deleted in the same
// step; a departing creator takes an active stream down with them.
func (m *RoomManager) Leave(id domain.RoomID, sid domain.SessionID) core.LeaveResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok {
		return core.LeaveResult{}
	}
	idx := slices.Index(r.members, sid)
	if idx < 0 {
		return core.LeaveResult{Remaining: slices.Clone(r.members)}
	}
	r.members = slices.Delete(r.members, idx, idx+1)
	m.untrack(sid, id)

	res := core.LeaveResult{Left: true, Remaining: slices.Clone(r.members)}
	if sid == r.creator || len(r.members) == 0 {
		res.StoppedStream = r.streamKey
		r.streamKey = ""
	}
	if len(r.members) == 0 {
		delete(m.rooms, id)
		res.Deleted = true
		log.Info().Str("module", "app.rooms").Str("room_id", string(id)).Msg("room deleted")
	}
	log.Info().Str("module", "app.rooms").Str("room_id", string(id)).Str("sid", string(sid)).Msg("member removed")
	return res
}

// StartStream sets the stream key. Only the creator, while still a member,
// may do this. prev is the key that was replaced, if any.
func (m *RoomManager) StartStream(id domain.RoomID, sid domain.SessionID, key string) (prev string, members []domain.SessionID, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok {
		return "", nil, domain.ErrRoomNotFound
	}
	if !r.controlledBy(sid) {
		return "", nil, domain.ErrUnauthorized
	}
	if key == "" {
		return "", nil, domain.ErrEmptyStreamKey
	}
	prev, r.streamKey = r.streamKey, key
	log.Info().Str("module", "app.rooms").Str("room_id", string(id)).Msg("stream started")
	return prev, slices.Clone(r.members), nil
}

// StopStream clears the stream key. stopped is empty when nothing was active.
func (m *RoomManager) StopStream(id domain.RoomID, sid domain.SessionID) (stopped string, members []domain.SessionID, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok {
		return "", nil, domain.ErrRoomNotFound
	}
	if !r.controlledBy(sid) {
		return "", nil, domain.ErrUnauthorized
	}
	stopped, r.streamKey = r.streamKey, ""
	if stopped != "" {
		log.Info().Str("module", "app.rooms").Str("room_id", string(id)).Msg("stream stopped")
	}
	return stopped, slices.Clone(r.members), nil
}

// MembersOf returns members in join order.
func (m *RoomManager) MembersOf(id domain.RoomID) ([]domain.SessionID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return slices.Clone(r.members), nil
}

func (m *RoomManager) Get(id domain.RoomID) (domain.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return r.snapshot(), nil
}

// RoomsOf lists the rooms sid currently belongs to.
func (m *RoomManager) RoomsOf(sid domain.SessionID) []domain.RoomID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := m.bySession[sid]
	out := make([]domain.RoomID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (m *RoomManager) List() []core.RoomInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(m.rooms))
	for id, r := range m.rooms {
		out = append(out, core.RoomInfo{
			ID:          id,
			Name:        r.name,
			MemberCount: len(r.members),
			Streaming:   r.streamKey != "",
		})
	}
	slices.SortFunc(out, func(a, b core.RoomInfo) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (m *RoomManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}
