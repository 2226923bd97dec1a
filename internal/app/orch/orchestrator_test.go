package orch

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Signal/internal/app"
	"github.com/dkeye/Signal/internal/core"
	"github.com/dkeye/Signal/internal/domain"
	"github.com/dkeye/Signal/internal/metrics"
	"github.com/dkeye/Signal/internal/protocol"
)

// fakeConn records every frame. A positive limit makes it report
// backpressure once that many frames are queued.
type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	limit  int
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrSinkClosed
	}
	if c.limit > 0 && len(c.frames) >= c.limit {
		return core.ErrBackpressure
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) messages(t *testing.T) []protocol.Message {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.Message, 0, len(c.frames))
	for _, f := range c.frames {
		m, err := protocol.Decode(f)
		require.NoError(t, err)
		out = append(out, m)
	}
	return out
}

func (c *fakeConn) last(t *testing.T) protocol.Message {
	t.Helper()
	ms := c.messages(t)
	require.NotEmpty(t, ms)
	return ms[len(ms)-1]
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

type mockMedia struct {
	mock.Mock
}

func (m *mockMedia) StreamStateChanged(ctx context.Context, id domain.RoomID, key string, active bool) error {
	return m.Called(id, key, active).Error(0)
}

type harness struct {
	orch     *Orchestrator
	conns    map[domain.SessionID]*fakeConn
	canceled map[domain.SessionID]bool
	metrics  *metrics.Metrics
}

func newHarness() *harness {
	m := metrics.New()
	return &harness{
		orch: &Orchestrator{
			Registry: app.NewRegistry(),
			Rooms:    app.NewRoomManager(0),
			Policy:   app.SimplePolicy{},
			Limiter:  app.NewRoomRateLimiter(1000, 1000),
			Metrics:  m,
		},
		conns:    make(map[domain.SessionID]*fakeConn),
		canceled: make(map[domain.SessionID]bool),
		metrics:  m,
	}
}

func (h *harness) connect(t *testing.T, name string) domain.SessionID {
	t.Helper()
	c := &fakeConn{}
	var sid domain.SessionID
	sid = h.orch.Registry.Register(c, "", func() { h.canceled[sid] = true })
	h.conns[sid] = c
	h.send(t, sid, protocol.Connect{Username: name})
	assert.Equal(t, protocol.Connected{UserID: sid}, c.last(t))
	c.reset()
	return sid
}

func (h *harness) send(t *testing.T, sid domain.SessionID, m protocol.Message) {
	t.Helper()
	b, err := protocol.Encode(m)
	require.NoError(t, err)
	h.orch.HandleFrame(sid, b)
}

func (h *harness) createRoom(t *testing.T, sid domain.SessionID, name string) domain.RoomID {
	t.Helper()
	h.send(t, sid, protocol.CreateRoom{RoomName: name})
	rc, ok := h.conns[sid].last(t).(protocol.RoomCreated)
	require.True(t, ok, "want RoomCreated")
	h.conns[sid].reset()
	return rc.RoomID
}

func (h *harness) resetAll() {
	for _, c := range h.conns {
		c.reset()
	}
}

func TestConnectAssignsServerID(t *testing.T) {
	h := newHarness()
	c := &fakeConn{}
	sid := h.orch.Registry.Register(c, "", nil)
	h.conns[sid] = c

	h.send(t, sid, protocol.Connect{Username: "alice", PreferredID: "chosen-by-client"})
	assert.Equal(t, protocol.Connected{UserID: sid}, c.last(t))
	m, ok := h.orch.Registry.Member(sid)
	require.True(t, ok)
	assert.Equal(t, "alice", m.Username)
	assert.False(t, h.orch.Registry.IsLive("chosen-by-client"))
}

func TestConnectEmptyUsername(t *testing.T) {
	h := newHarness()
	c := &fakeConn{}
	sid := h.orch.Registry.Register(c, "", nil)
	h.conns[sid] = c
	h.send(t, sid, protocol.Connect{Username: ""})
	e, ok := c.last(t).(protocol.Error)
	require.True(t, ok)
	assert.Equal(t, protocol.CodeConnectionError, e.Code)
}

func TestCreateRoomTruncatesName(t *testing.T) {
	h := newHarness()
	a := h.connect(t, "a")
	long := make([]byte, domain.MaxRoomNameLen+20)
	for i := range long {
		long[i] = 'x'
	}
	h.send(t, a, protocol.CreateRoom{RoomName: string(long)})
	rc, ok := h.conns[a].last(t).(protocol.RoomCreated)
	require.True(t, ok)
	assert.Len(t, string(rc.RoomName), domain.MaxRoomNameLen)
	assert.Equal(t, 1, h.orch.Rooms.Len())
}

func TestJoinNotifiesEveryMember(t *testing.T) {
	h := newHarness()
	a, b := h.connect(t, "a"), h.connect(t, "b")
	r := h.createRoom(t, a, "lobby")

	h.send(t, b, protocol.JoinRoom{RoomID: r})
	want := protocol.MemberJoined{RoomID: r, UserID: b}
	assert.Equal(t, []protocol.Message{want}, h.conns[a].messages(t))
	assert.Equal(t, []protocol.Message{want}, h.conns[b].messages(t))
}

func TestJoinUnknownRoom(t *testing.T) {
	h := newHarness()
	b := h.connect(t, "b")
	h.send(t, b, protocol.JoinRoom{RoomID: "does-not-exist"})
	assert.Equal(t, protocol.CodeRoomNotFound, h.conns[b].last(t).(protocol.Error).Code)
	assert.Empty(t, h.orch.Rooms.RoomsOf(b))
}

func TestRelayReachesOnlyReceiver(t *testing.T) {
	h := newHarness()
	a, b, c := h.connect(t, "a"), h.connect(t, "b"), h.connect(t, "c")
	r := h.createRoom(t, a, "lobby")
	h.send(t, b, protocol.JoinRoom{RoomID: r})
	h.send(t, c, protocol.JoinRoom{RoomID: r})
	h.resetAll()

	offer := protocol.Offer{RoomID: r, SenderID: a, ReceiverID: b, SDP: "v=0\r\n"}
	h.send(t, a, offer)

	assert.Equal(t, []protocol.Message{offer}, h.conns[b].messages(t))
	assert.Empty(t, h.conns[a].messages(t))
	assert.Empty(t, h.conns[c].messages(t))

	ice := protocol.IceCandidate{RoomID: r, SenderID: b, ReceiverID: a, Candidate: "candidate:0"}
	h.send(t, b, ice)
	assert.Equal(t, []protocol.Message{ice}, h.conns[a].messages(t))
}

func TestRelayRejections(t *testing.T) {
	h := newHarness()
	a, b, outsider := h.connect(t, "a"), h.connect(t, "b"), h.connect(t, "o")
	r := h.createRoom(t, a, "lobby")
	h.send(t, b, protocol.JoinRoom{RoomID: r})
	h.resetAll()

	tests := []struct {
		name string
		msg  protocol.Message
		code protocol.ErrorCode
	}{
		{"spoofed sender", protocol.Answer{RoomID: r, SenderID: b, ReceiverID: b, SDP: "x"}, protocol.CodeUnauthorized},
		{"unknown room", protocol.Offer{RoomID: "nope", SenderID: a, ReceiverID: b, SDP: "x"}, protocol.CodeRoomNotFound},
		{"receiver offline", protocol.Offer{RoomID: r, SenderID: a, ReceiverID: "ghost", SDP: "x"}, protocol.CodeConnectionError},
		{"receiver not a member", protocol.Offer{RoomID: r, SenderID: a, ReceiverID: outsider, SDP: "x"}, protocol.CodeConnectionError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.resetAll()
			h.send(t, a, tt.msg)
			e, ok := h.conns[a].last(t).(protocol.Error)
			require.True(t, ok)
			assert.Equal(t, tt.code, e.Code)
			assert.Empty(t, h.conns[b].messages(t))
			assert.Empty(t, h.conns[outsider].messages(t))
		})
	}
}

func TestBogusFrameKeepsSessionUsable(t *testing.T) {
	h := newHarness()
	a := h.connect(t, "a")
	h.orch.HandleFrame(a, []byte(`{"type":"Bogus"}`))
	e, ok := h.conns[a].last(t).(protocol.Error)
	require.True(t, ok)
	assert.Equal(t, protocol.CodeConnectionError, e.Code)

	h.send(t, a, protocol.CreateRoom{RoomName: "still works"})
	_, ok = h.conns[a].last(t).(protocol.RoomCreated)
	assert.True(t, ok)
}

func TestInboundServerMessagesRejected(t *testing.T) {
	h := newHarness()
	a := h.connect(t, "a")
	for _, m := range []protocol.Message{
		protocol.Error{Code: protocol.CodeRoomNotFound, Message: "x"},
		protocol.Connected{UserID: a},
		protocol.StreamStatus{RoomID: "r", Active: true},
	} {
		h.conns[a].reset()
		h.send(t, a, m)
		e, ok := h.conns[a].last(t).(protocol.Error)
		require.True(t, ok, m.Kind())
		assert.Equal(t, protocol.CodeConnectionError, e.Code)
	}
}

func TestStreamLifecycle(t *testing.T) {
	h := newHarness()
	media := &mockMedia{}
	h.orch.Media = media
	a, b := h.connect(t, "a"), h.connect(t, "b")
	r := h.createRoom(t, a, "show")
	h.send(t, b, protocol.JoinRoom{RoomID: r})
	h.resetAll()

	h.send(t, b, protocol.StartStream{RoomID: r, StreamKey: "k"})
	assert.Equal(t, protocol.CodeUnauthorized, h.conns[b].last(t).(protocol.Error).Code)
	assert.Empty(t, h.conns[a].messages(t))

	h.send(t, a, protocol.StartStream{RoomID: r, StreamKey: ""})
	assert.Equal(t, protocol.CodeStreamingError, h.conns[a].last(t).(protocol.Error).Code)
	h.resetAll()

	media.On("StreamStateChanged", r, "k", true).Return(nil).Once()
	h.send(t, a, protocol.StartStream{RoomID: r, StreamKey: "k"})
	on := protocol.StreamStatus{RoomID: r, StreamKey: "k", Active: true}
	assert.Equal(t, []protocol.Message{on}, h.conns[a].messages(t))
	assert.Equal(t, []protocol.Message{on}, h.conns[b].messages(t))
	h.resetAll()

	media.On("StreamStateChanged", r, "k", false).Return(nil).Once()
	h.send(t, a, protocol.StopStream{RoomID: r})
	off := protocol.StreamStatus{RoomID: r, StreamKey: "k", Active: false}
	assert.Equal(t, []protocol.Message{off}, h.conns[b].messages(t))
	h.resetAll()

	h.send(t, a, protocol.StopStream{RoomID: r})
	assert.Empty(t, h.conns[a].messages(t))
	assert.Empty(t, h.conns[b].messages(t))
	media.AssertExpectations(t)
}

func TestLeaveRoom(t *testing.T) {
	h := newHarness()
	a, b := h.connect(t, "a"), h.connect(t, "b")
	r := h.createRoom(t, a, "lobby")
	h.send(t, b, protocol.JoinRoom{RoomID: r})
	h.resetAll()

	h.send(t, b, protocol.LeaveRoom{RoomID: r})
	left := protocol.MemberLeft{RoomID: r, UserID: b}
	assert.Equal(t, []protocol.Message{left}, h.conns[a].messages(t))
	assert.Equal(t, []protocol.Message{left}, h.conns[b].messages(t))

	h.resetAll()
	h.send(t, b, protocol.LeaveRoom{RoomID: r})
	assert.Empty(t, h.conns[a].messages(t))
	assert.Empty(t, h.conns[b].messages(t))

	h.send(t, a, protocol.LeaveRoom{RoomID: r})
	assert.Equal(t, 0, h.orch.Rooms.Len())
}

func TestCreatorLeaveStopsStream(t *testing.T) {
	h := newHarness()
	media := &mockMedia{}
	h.orch.Media = media
	a, b := h.connect(t, "a"), h.connect(t, "b")
	r := h.createRoom(t, a, "show")
	h.send(t, b, protocol.JoinRoom{RoomID: r})
	media.On("StreamStateChanged", r, "k", true).Return(nil).Once()
	h.send(t, a, protocol.StartStream{RoomID: r, StreamKey: "k"})
	h.resetAll()

	media.On("StreamStateChanged", r, "k", false).Return(nil).Once()
	h.send(t, a, protocol.LeaveRoom{RoomID: r})
	assert.Equal(t, []protocol.Message{
		protocol.MemberLeft{RoomID: r, UserID: a},
		protocol.StreamStatus{RoomID: r, StreamKey: "k", Active: false},
	}, h.conns[b].messages(t))
	h.resetAll()

	h.send(t, a, protocol.StartStream{RoomID: r, StreamKey: "k1"})
	e, ok := h.conns[a].last(t).(protocol.Error)
	require.True(t, ok)
	assert.Equal(t, protocol.CodeUnauthorized, e.Code)
	assert.Empty(t, h.conns[b].messages(t))

	h.orch.OnDisconnect(a)
	room, err := h.orch.Rooms.Get(r)
	require.NoError(t, err)
	assert.Empty(t, room.StreamKey)
	media.AssertExpectations(t)
	media.AssertNotCalled(t, "StreamStateChanged", r, "k1", true)
}

func TestDisconnectCleansEveryRoom(t *testing.T) {
	h := newHarness()
	a, b, c := h.connect(t, "a"), h.connect(t, "b"), h.connect(t, "c")
	r1 := h.createRoom(t, b, "one")
	r2 := h.createRoom(t, c, "two")
	h.send(t, a, protocol.JoinRoom{RoomID: r1})
	h.send(t, a, protocol.JoinRoom{RoomID: r2})
	h.resetAll()

	h.orch.OnDisconnect(a)

	assert.False(t, h.orch.Registry.IsLive(a))
	assert.Empty(t, h.orch.Rooms.RoomsOf(a))
	m1, _ := h.orch.Rooms.MembersOf(r1)
	m2, _ := h.orch.Rooms.MembersOf(r2)
	assert.Equal(t, []domain.SessionID{b}, m1)
	assert.Equal(t, []domain.SessionID{c}, m2)
	assert.Equal(t, []protocol.Message{protocol.MemberLeft{RoomID: r1, UserID: a}}, h.conns[b].messages(t))
	assert.Equal(t, []protocol.Message{protocol.MemberLeft{RoomID: r2, UserID: a}}, h.conns[c].messages(t))
	assert.Empty(t, h.conns[a].messages(t))

	h.send(t, b, protocol.Offer{RoomID: r1, SenderID: b, ReceiverID: a, SDP: "x"})
	assert.Equal(t, protocol.CodeConnectionError, h.conns[b].last(t).(protocol.Error).Code)
}

func TestDisconnectDeletesSoleRoom(t *testing.T) {
	h := newHarness()
	a := h.connect(t, "a")
	h.createRoom(t, a, "solo")
	h.orch.OnDisconnect(a)
	assert.Equal(t, 0, h.orch.Rooms.Len())
}

func TestBackpressureKicks(t *testing.T) {
	h := newHarness()
	a, b := h.connect(t, "a"), h.connect(t, "b")
	r := h.createRoom(t, a, "lobby")
	h.send(t, b, protocol.JoinRoom{RoomID: r})
	h.resetAll()
	h.conns[b].limit = 1

	h.send(t, a, protocol.Offer{RoomID: r, SenderID: a, ReceiverID: b, SDP: "1"})
	assert.False(t, h.canceled[b])
	h.send(t, a, protocol.Offer{RoomID: r, SenderID: a, ReceiverID: b, SDP: "2"})
	assert.True(t, h.canceled[b])
	assert.False(t, h.canceled[a])
}

func TestBackpressureDrop(t *testing.T) {
	h := newHarness()
	h.orch.Policy = app.DropPolicy{}
	a, b := h.connect(t, "a"), h.connect(t, "b")
	r := h.createRoom(t, a, "lobby")
	h.send(t, b, protocol.JoinRoom{RoomID: r})
	h.resetAll()
	h.conns[b].limit = 1

	h.send(t, a, protocol.Offer{RoomID: r, SenderID: a, ReceiverID: b, SDP: "1"})
	h.send(t, a, protocol.Offer{RoomID: r, SenderID: a, ReceiverID: b, SDP: "2"})
	assert.False(t, h.canceled[b])
	assert.Len(t, h.conns[b].messages(t), 1)
}

func TestCreateRoomRateLimited(t *testing.T) {
	h := newHarness()
	h.orch.Limiter = app.NewRoomRateLimiter(0.001, 1)
	a := h.connect(t, "a")
	h.createRoom(t, a, "first")
	h.send(t, a, protocol.CreateRoom{RoomName: "second"})
	e, ok := h.conns[a].last(t).(protocol.Error)
	require.True(t, ok)
	assert.Equal(t, protocol.CodeConnectionError, e.Code)
	assert.Equal(t, 1, h.orch.Rooms.Len())
}

func TestDeliverSkipsGoneRecipient(t *testing.T) {
	h := newHarness()
	assert.NotPanics(t, func() {
		h.orch.Deliver([]Delivery{{To: "ghost", Msg: protocol.Connected{UserID: "ghost"}}})
	})
}
