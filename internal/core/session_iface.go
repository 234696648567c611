package core

import "github.com/dkeye/Inkroom/internal/domain"

type SessionID = domain.ConnID

// MemberSession binds domain.Member and its transport endpoint.
// This is what a room stores and fans out to.
type MemberSession interface {
	Meta() *domain.Member
	Signal() SignalConnection
}
