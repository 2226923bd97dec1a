package sfu

import (
	"context"
	"net/http"

	"github.com/carlmjohnson/requests"
	"github.com/dkeye/Signal/internal/domain"
	"github.com/rs/zerolog/log"
)

// LogRouter only records transitions. It is the default when no media router
// endpoint is configured.
type LogRouter struct{}

func (LogRouter) StreamStateChanged(_ context.Context, roomID domain.RoomID, streamKey string, active bool) error {
	log.Info().
		Str("module", "sfu").
		Str("room_id", string(roomID)).
		Str("stream_key", streamKey).
		Bool("active", active).
		Msg("stream state changed")
	return nil
}

// WebhookRouter posts each transition as JSON to an external media router.
type WebhookRouter struct {
	URL    string
	Client *http.Client
}

func (w *WebhookRouter) StreamStateChanged(ctx context.Context, roomID domain.RoomID, streamKey string, active bool) error {
	rb := requests.
		URL(w.URL).
		Method(http.MethodPost).
		BodyJSON(StreamEvent{RoomID: roomID, StreamKey: streamKey, Active: active})
	if w.Client != nil {
		rb = rb.Client(w.Client)
	}
	return rb.Fetch(ctx)
}
