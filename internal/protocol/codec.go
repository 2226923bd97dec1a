package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/dkeye/Signal/internal/domain"
)

// DecodeError reports a frame that is not a valid signaling message.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string { return "decode: " + e.Reason }

func decodeErrorf(format string, args ...any) *DecodeError {
	return &DecodeError{Reason: fmt.Sprintf(format, args...)}
}

// frame is the flat wire shape shared by all variants. Pointers tell an
// absent field apart from an empty one.
type frame struct {
	Type       Kind       `json:"type"`
	Username   *string    `json:"username,omitempty"`
	UserID     *string    `json:"user_id,omitempty"`
	RoomName   *string    `json:"room_name,omitempty"`
	RoomID     *string    `json:"room_id,omitempty"`
	StreamKey  *string    `json:"stream_key,omitempty"`
	Active     *bool      `json:"active,omitempty"`
	SenderID   *string    `json:"sender_id,omitempty"`
	ReceiverID *string    `json:"receiver_id,omitempty"`
	SDP        *string    `json:"sdp,omitempty"`
	Candidate  *string    `json:"candidate,omitempty"`
	Code       *ErrorCode `json:"code,omitempty"`
	Message    *string    `json:"message,omitempty"`
}

type field struct {
	name string
	v    *string
}

func missing(fields ...field) error {
	for _, f := range fields {
		if f.v == nil {
			return decodeErrorf("missing field %q", f.name)
		}
	}
	return nil
}

func ptr[T any](v T) *T { return &v }

// fieldsOf lists the exact keys each variant may carry besides "type".
var fieldsOf = map[Kind][]string{
	KindConnect:      {"username", "user_id"},
	KindConnected:    {"user_id"},
	KindDisconnected: {"user_id"},
	KindCreateRoom:   {"room_name"},
	KindRoomCreated:  {"room_id", "room_name"},
	KindJoinRoom:     {"room_id"},
	KindMemberJoined: {"room_id", "user_id"},
	KindLeaveRoom:    {"room_id"},
	KindMemberLeft:   {"room_id", "user_id"},
	KindStartStream:  {"room_id", "stream_key"},
	KindStopStream:   {"room_id"},
	KindStreamStatus: {"room_id", "stream_key", "active"},
	KindOffer:        {"room_id", "sender_id", "receiver_id", "sdp"},
	KindAnswer:       {"room_id", "sender_id", "receiver_id", "sdp"},
	KindIceCandidate: {"room_id", "sender_id", "receiver_id", "candidate"},
	KindError:        {"code", "message"},
}

// scanKeys walks the top-level object and returns its keys. encoding/json
// folds key case and keeps the last duplicate, so both are checked here on
// the raw bytes.
func scanKeys(data []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, decodeErrorf("malformed json: %v", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, decodeErrorf("frame is not a json object")
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, decodeErrorf("malformed json: %v", err)
		}
		key, _ := tok.(string)
		if slices.Contains(keys, key) {
			return nil, decodeErrorf("duplicate field %q", key)
		}
		keys = append(keys, key)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, decodeErrorf("malformed json: %v", err)
		}
	}
	return keys, nil
}

// Decode parses one frame. Unknown types, unknown or duplicate fields, keys in
// the wrong case, missing required fields and trailing data are all rejected
// with a *DecodeError.
func Decode(data []byte) (Message, error) {
	keys, err := scanKeys(data)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var f frame
	if err := dec.Decode(&f); err != nil {
		return nil, decodeErrorf("malformed json: %v", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, decodeErrorf("unexpected trailing data")
	}

	if want, ok := fieldsOf[f.Type]; ok {
		for _, k := range keys {
			if k != "type" && !slices.Contains(want, k) {
				return nil, decodeErrorf("field %q not allowed in %s", k, f.Type)
			}
		}
	}

	switch f.Type {
	case "":
		return nil, decodeErrorf("missing message type")
	case KindConnect:
		if err := missing(field{"username", f.Username}); err != nil {
			return nil, err
		}
		m := Connect{Username: *f.Username}
		if f.UserID != nil {
			m.PreferredID = domain.SessionID(*f.UserID)
		}
		return m, nil
	case KindConnected:
		if err := missing(field{"user_id", f.UserID}); err != nil {
			return nil, err
		}
		return Connected{UserID: domain.SessionID(*f.UserID)}, nil
	case KindDisconnected:
		if err := missing(field{"user_id", f.UserID}); err != nil {
			return nil, err
		}
		return Disconnected{UserID: domain.SessionID(*f.UserID)}, nil
	case KindCreateRoom:
		if err := missing(field{"room_name", f.RoomName}); err != nil {
			return nil, err
		}
		return CreateRoom{RoomName: *f.RoomName}, nil
	case KindRoomCreated:
		if err := missing(field{"room_id", f.RoomID}, field{"room_name", f.RoomName}); err != nil {
			return nil, err
		}
		return RoomCreated{RoomID: domain.RoomID(*f.RoomID), RoomName: domain.RoomName(*f.RoomName)}, nil
	case KindJoinRoom:
		if err := missing(field{"room_id", f.RoomID}); err != nil {
			return nil, err
		}
		return JoinRoom{RoomID: domain.RoomID(*f.RoomID)}, nil
	case KindMemberJoined:
		if err := missing(field{"room_id", f.RoomID}, field{"user_id", f.UserID}); err != nil {
			return nil, err
		}
		return MemberJoined{RoomID: domain.RoomID(*f.RoomID), UserID: domain.SessionID(*f.UserID)}, nil
	case KindLeaveRoom:
		if err := missing(field{"room_id", f.RoomID}); err != nil {
			return nil, err
		}
		return LeaveRoom{RoomID: domain.RoomID(*f.RoomID)}, nil
	case KindMemberLeft:
		if err := missing(field{"room_id", f.RoomID}, field{"user_id", f.UserID}); err != nil {
			return nil, err
		}
		return MemberLeft{RoomID: domain.RoomID(*f.RoomID), UserID: domain.SessionID(*f.UserID)}, nil
	case KindStartStream:
		if err := missing(field{"room_id", f.RoomID}, field{"stream_key", f.StreamKey}); err != nil {
			return nil, err
		}
		return StartStream{RoomID: domain.RoomID(*f.RoomID), StreamKey: *f.StreamKey}, nil
	case KindStopStream:
		if err := missing(field{"room_id", f.RoomID}); err != nil {
			return nil, err
		}
		return StopStream{RoomID: domain.RoomID(*f.RoomID)}, nil
	case KindStreamStatus:
		if err := missing(field{"room_id", f.RoomID}, field{"stream_key", f.StreamKey}); err != nil {
			return nil, err
		}
		if f.Active == nil {
			return nil, decodeErrorf("missing field %q", "active")
		}
		return StreamStatus{RoomID: domain.RoomID(*f.RoomID), StreamKey: *f.StreamKey, Active: *f.Active}, nil
	case KindOffer, KindAnswer:
		if err := missing(
			field{"room_id", f.RoomID},
			field{"sender_id", f.SenderID},
			field{"receiver_id", f.ReceiverID},
			field{"sdp", f.SDP},
		); err != nil {
			return nil, err
		}
		room, from, to := domain.RoomID(*f.RoomID), domain.SessionID(*f.SenderID), domain.SessionID(*f.ReceiverID)
		if f.Type == KindOffer {
			return Offer{RoomID: room, SenderID: from, ReceiverID: to, SDP: *f.SDP}, nil
		}
		return Answer{RoomID: room, SenderID: from, ReceiverID: to, SDP: *f.SDP}, nil
	case KindIceCandidate:
		if err := missing(
			field{"room_id", f.RoomID},
			field{"sender_id", f.SenderID},
			field{"receiver_id", f.ReceiverID},
			field{"candidate", f.Candidate},
		); err != nil {
			return nil, err
		}
		return IceCandidate{
			RoomID:     domain.RoomID(*f.RoomID),
			SenderID:   domain.SessionID(*f.SenderID),
			ReceiverID: domain.SessionID(*f.ReceiverID),
			Candidate:  *f.Candidate,
		}, nil
	case KindError:
		if f.Code == nil {
			return nil, decodeErrorf("missing field %q", "code")
		}
		if !f.Code.valid() {
			return nil, decodeErrorf("unknown error code %q", *f.Code)
		}
		if err := missing(field{"message", f.Message}); err != nil {
			return nil, err
		}
		return Error{Code: *f.Code, Message: *f.Message}, nil
	default:
		return nil, decodeErrorf("unknown message type %q", f.Type)
	}
}

// Encode serializes m. It fails for a nil message and for an Error whose code
// is outside the closed set, since neither would decode back.
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, errors.New("encode: nil message")
	}
	if e, ok := m.(Error); ok && !e.Code.valid() {
		return nil, fmt.Errorf("encode: unknown error code %q", e.Code)
	}
	f := frame{Type: m.Kind()}
	switch m := m.(type) {
	case Connect:
		f.Username = ptr(m.Username)
		if m.PreferredID != "" {
			f.UserID = ptr(string(m.PreferredID))
		}
	case Connected:
		f.UserID = ptr(string(m.UserID))
	case Disconnected:
		f.UserID = ptr(string(m.UserID))
	case CreateRoom:
		f.RoomName = ptr(m.RoomName)
	case RoomCreated:
		f.RoomID = ptr(string(m.RoomID))
		f.RoomName = ptr(string(m.RoomName))
	case JoinRoom:
		f.RoomID = ptr(string(m.RoomID))
	case MemberJoined:
		f.RoomID = ptr(string(m.RoomID))
		f.UserID = ptr(string(m.UserID))
	case LeaveRoom:
		f.RoomID = ptr(string(m.RoomID))
	case MemberLeft:
		f.RoomID = ptr(string(m.RoomID))
		f.UserID = ptr(string(m.UserID))
	case StartStream:
		f.RoomID = ptr(string(m.RoomID))
		f.StreamKey = ptr(m.StreamKey)
	case StopStream:
		f.RoomID = ptr(string(m.RoomID))
	case StreamStatus:
		f.RoomID = ptr(string(m.RoomID))
		f.StreamKey = ptr(m.StreamKey)
		f.Active = ptr(m.Active)
	case Offer:
		f.RoomID = ptr(string(m.RoomID))
		f.SenderID = ptr(string(m.SenderID))
		f.ReceiverID = ptr(string(m.ReceiverID))
		f.SDP = ptr(m.SDP)
	case Answer:
		f.RoomID = ptr(string(m.RoomID))
		f.SenderID = ptr(string(m.SenderID))
		f.ReceiverID = ptr(string(m.ReceiverID))
		f.SDP = ptr(m.SDP)
	case IceCandidate:
		f.RoomID = ptr(string(m.RoomID))
		f.SenderID = ptr(string(m.SenderID))
		f.ReceiverID = ptr(string(m.ReceiverID))
		f.Candidate = ptr(m.Candidate)
	case Error:
		f.Code = ptr(m.Code)
		f.Message = ptr(m.Message)
	}
	return json.Marshal(f)
}

// CodeFor maps a domain error to the wire error code.
func CodeFor(err error) ErrorCode {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		return CodeRoomNotFound
	case errors.Is(err, domain.ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, domain.ErrEmptyStreamKey):
		return CodeStreamingError
	default:
		return CodeConnectionError
	}
}

// ErrorFor builds the Error reply for err.
func ErrorFor(err error) Error {
	return NewError(CodeFor(err), err.Error())
}
