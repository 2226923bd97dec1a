package signal

import (
	"context"
	"sync/atomic"

	"github.com/dkeye/Signal/internal/domain"
	"github.com/rs/zerolog/log"
)

type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// session is the runner of one connection. It is only driven by its own
// goroutine; state is atomic so the server can observe it.
type session struct {
	id     domain.SessionID
	conn   *WsSignalConn
	cancel context.CancelFunc
	state  atomic.Int32
}

func (s *session) State() State { return State(s.state.Load()) }

// advance moves forward only. It reports false when next is not ahead of the
// current state.
func (s *session) advance(next State) bool {
	for {
		cur := s.state.Load()
		if State(cur) >= next {
			return false
		}
		if s.state.CompareAndSwap(cur, int32(next)) {
			log.Debug().Str("module", "signal").Str("sid", string(s.id)).Str("state", next.String()).Msg("session state")
			return true
		}
	}
}

// run is the whole life of a session after registration: Active until the
// read loop ends, then Closing, then Closed.
func (srv *Server) run(ctx context.Context, s *session) {
	defer srv.wg.Done()
	defer s.cancel()

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		srv.writePump(s.id, s.conn)
	}()

	s.advance(StateActive)
	srv.readPump(ctx, s.id, s.conn)

	s.advance(StateClosing)
	srv.Orch.OnDisconnect(s.id)
	s.conn.Close()
	<-writeDone

	srv.forget(s.id)
	s.advance(StateClosed)
	srv.Orch.Metrics.SessionClosed()
	log.Info().Str("module", "signal").Str("sid", string(s.id)).Msg("session closed")
}
