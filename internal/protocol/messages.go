// Package protocol defines the signaling wire messages and their JSON codec.
//
// Every frame is one JSON object whose "type" field names the variant; the
// remaining fields belong to that variant.
package protocol

import "github.com/dkeye/Signal/internal/domain"

type Kind string

const (
	KindConnect      Kind = "Connect"
	KindConnected    Kind = "Connected"
	KindDisconnected Kind = "Disconnected"
	KindCreateRoom   Kind = "CreateRoom"
	KindRoomCreated  Kind = "RoomCreated"
	KindJoinRoom     Kind = "JoinRoom"
	KindMemberJoined Kind = "MemberJoined"
	KindLeaveRoom    Kind = "LeaveRoom"
	KindMemberLeft   Kind = "MemberLeft"
	KindStartStream  Kind = "StartStream"
	KindStopStream   Kind = "StopStream"
	KindStreamStatus Kind = "StreamStatus"
	KindOffer        Kind = "Offer"
	KindAnswer       Kind = "Answer"
	KindIceCandidate Kind = "IceCandidate"
	KindError        Kind = "Error"
)

// ServerOnly reports whether k is only ever sent by the server.
func (k Kind) ServerOnly() bool {
	switch k {
	case KindConnected, KindDisconnected, KindRoomCreated, KindMemberJoined,
		KindMemberLeft, KindStreamStatus, KindError:
		return true
	}
	return false
}

type ErrorCode string

const (
	CodeUnauthorized    ErrorCode = "Unauthorized"
	CodeRoomNotFound    ErrorCode = "RoomNotFound"
	CodeStreamingError  ErrorCode = "StreamingError"
	CodeConnectionError ErrorCode = "ConnectionError"
)

func (c ErrorCode) valid() bool {
	switch c {
	case CodeUnauthorized, CodeRoomNotFound, CodeStreamingError, CodeConnectionError:
		return true
	}
	return false
}

// Message is the closed set of signaling variants.
type Message interface {
	Kind() Kind
	isMessage()
}

type Connect struct {
	Username string
	// PreferredID is accepted for compatibility and never honored.
	PreferredID domain.SessionID
}

type Connected struct {
	UserID domain.SessionID
}

type Disconnected struct {
	UserID domain.SessionID
}

type CreateRoom struct {
	RoomName string
}

type RoomCreated struct {
	RoomID   domain.RoomID
	RoomName domain.RoomName
}

type JoinRoom struct {
	RoomID domain.RoomID
}

type MemberJoined struct {
	RoomID domain.RoomID
	UserID domain.SessionID
}

type LeaveRoom struct {
	RoomID domain.RoomID
}

type MemberLeft struct {
	RoomID domain.RoomID
	UserID domain.SessionID
}

type StartStream struct {
	RoomID    domain.RoomID
	StreamKey string
}

type StopStream struct {
	RoomID domain.RoomID
}

type StreamStatus struct {
	RoomID    domain.RoomID
	StreamKey string
	Active    bool
}

type Offer struct {
	RoomID     domain.RoomID
	SenderID   domain.SessionID
	ReceiverID domain.SessionID
	SDP        string
}

type Answer struct {
	RoomID     domain.RoomID
	SenderID   domain.SessionID
	ReceiverID domain.SessionID
	SDP        string
}

type IceCandidate struct {
	RoomID     domain.RoomID
	SenderID   domain.SessionID
	ReceiverID domain.SessionID
	Candidate  string
}

type Error struct {
	Code    ErrorCode
	Message string
}

func (Connect) Kind() Kind      { return KindConnect }
func (Connected) Kind() Kind    { return KindConnected }
func (Disconnected) Kind() Kind { return KindDisconnected }
func (CreateRoom) Kind() Kind   { return KindCreateRoom }
func (RoomCreated) Kind() Kind  { return KindRoomCreated }
func (JoinRoom) Kind() Kind     { return KindJoinRoom }
func (MemberJoined) Kind() Kind { return KindMemberJoined }
func (LeaveRoom) Kind() Kind    { return KindLeaveRoom }
func (MemberLeft) Kind() Kind   { return KindMemberLeft }
func (StartStream) Kind() Kind  { return KindStartStream }
func (StopStream) Kind() Kind   { return KindStopStream }
func (StreamStatus) Kind() Kind { return KindStreamStatus }
func (Offer) Kind() Kind        { return KindOffer }
func (Answer) Kind() Kind       { return KindAnswer }
func (IceCandidate) Kind() Kind { return KindIceCandidate }
func (Error) Kind() Kind        { return KindError }

func (Connect) isMessage()      {}
func (Connected) isMessage()    {}
func (Disconnected) isMessage() {}
func (CreateRoom) isMessage()   {}
func (RoomCreated) isMessage()  {}
func (JoinRoom) isMessage()     {}
func (MemberJoined) isMessage() {}
func (LeaveRoom) isMessage()    {}
func (MemberLeft) isMessage()   {}
func (StartStream) isMessage()  {}
func (StopStream) isMessage()   {}
func (StreamStatus) isMessage() {}
func (Offer) isMessage()        {}
func (Answer) isMessage()       {}
func (IceCandidate) isMessage() {}
func (Error) isMessage()        {}

// NewError builds an Error message.
func NewError(code ErrorCode, message string) Error {
	return Error{Code: code, Message: message}
}
