package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Signal/internal/app/orch"
	"github.com/dkeye/Signal/internal/domain"
	"github.com/dkeye/Signal/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Options tune the per-session transport.
type Options struct {
	ReadLimit         int64
	PingPeriod        time.Duration
	WriteWait         time.Duration
	SendBuffer        int
	MessagesPerSecond float64
	MessageBurst      int
}

func DefaultOptions() Options {
	return Options{
		ReadLimit:         32768,
		PingPeriod:        54 * time.Second,
		WriteWait:         10 * time.Second,
		SendBuffer:        64,
		MessagesPerSecond: 50,
		MessageBurst:      100,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server accepts signaling connections and runs one session per connection
// until Shutdown.
type Server struct {
	Orch *orch.Orchestrator
	opts Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	closing  bool
	sessions map[domain.SessionID]*session
}

func NewServer(o *orch.Orchestrator, opts Options) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		Orch:     o,
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[domain.SessionID]*session),
	}
}

// ServeWS upgrades the request and starts a session. username seeds the
// display name until the client sends Connect.
func (srv *Server) ServeWS(c *gin.Context, username string) {
	srv.mu.Lock()
	closing := srv.closing
	srv.mu.Unlock()
	if closing {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "shutting down"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := newWsSignalConn(ws, srv.opts.SendBuffer)
	ctx, cancel := context.WithCancel(srv.ctx)
	sid := srv.Orch.Registry.Register(conn, username, cancel)
	s := &session{id: sid, conn: conn, cancel: cancel}

	srv.mu.Lock()
	if srv.closing {
		srv.mu.Unlock()
		cancel()
		srv.Orch.Registry.Unregister(sid)
		_ = ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		_ = ws.Close()
		return
	}
	srv.sessions[sid] = s
	srv.wg.Add(1)
	srv.mu.Unlock()

	srv.Orch.Metrics.SessionOpened()
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("remote", c.Request.RemoteAddr).Msg("new WS connection")
	go srv.run(ctx, s)
}

func (srv *Server) forget(sid domain.SessionID) {
	srv.mu.Lock()
	delete(srv.sessions, sid)
	srv.mu.Unlock()
}

// Len reports sessions that have not reached Closed yet.
func (srv *Server) Len() int {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return len(srv.sessions)
}

// Shutdown stops accepting connections, tells every session it is being
// disconnected and waits for all of them to finish cleanup or for ctx.
func (srv *Server) Shutdown(ctx context.Context) error {
	srv.mu.Lock()
	if srv.closing {
		srv.mu.Unlock()
		return nil
	}
	srv.closing = true
	live := make([]*session, 0, len(srv.sessions))
	for _, s := range srv.sessions {
		live = append(live, s)
	}
	srv.mu.Unlock()

	log.Info().Str("module", "signal").Int("sessions", len(live)).Msg("shutting down")
	for _, s := range live {
		srv.Orch.Deliver([]orch.Delivery{{To: s.id, Msg: protocol.Disconnected{UserID: s.id}}})
	}
	srv.cancel()

	done := make(chan struct{})
	go func() {
		srv.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info().Str("module", "signal").Msg("all sessions closed")
		return nil
	case <-ctx.Done():
		log.Warn().Str("module", "signal").Int("sessions", srv.Len()).Msg("shutdown timed out")
		return ctx.Err()
	}
}
