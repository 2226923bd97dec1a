package core

import "github.com/dkeye/Signal/internal/domain"

// RoomInfo is a read-only view for APIs.
type RoomInfo struct {
	ID          domain.RoomID   `json:"id"`
	Name        domain.RoomName `json:"name"`
	MemberCount int             `json:"members"`
	Streaming   bool            `json:"streaming"`
}

// LeaveResult reports side effects of a leave so callers can notify others.
type LeaveResult struct {
	// Remaining members after the removal, in join order.
	Remaining []domain.SessionID
	// Deleted is set when the room was removed because it became empty.
	Deleted bool
	// StoppedStream holds the stream key cleared by this leave, if any.
	StoppedStream string
	// Left is false when the session was not a member.
	Left bool
}
