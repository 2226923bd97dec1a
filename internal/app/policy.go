package app

import "github.com/dkeye/Signal/internal/domain"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropFrame
)

func (a BackpressureAction) String() string {
	switch a {
	case KickMember:
		return "kick"
	case DropFrame:
		return "drop"
	}
	return "none"
}

// Policy decides what happens to a session whose outbound queue is full.
type Policy interface {
	OnBackPressure(sid domain.SessionID) BackpressureAction
}

// SimplePolicy disconnects slow peers.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(domain.SessionID) BackpressureAction {
	return KickMember
}

// DropPolicy keeps slow peers and discards what does not fit.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(domain.SessionID) BackpressureAction {
	return DropFrame
}

// PolicyByName maps the config value to a Policy. Unknown names kick.
func PolicyByName(name string) Policy {
	if name == "drop" {
		return DropPolicy{}
	}
	return SimplePolicy{}
}
