package core

import (
	"context"

	"github.com/dkeye/Signal/internal/domain"
)

// MediaRouter is the external media-routing collaborator. It is told when a
// room's stream becomes active or inactive and owns everything past that.
type MediaRouter interface {
	StreamStateChanged(ctx context.Context, roomID domain.RoomID, streamKey string, active bool) error
}
