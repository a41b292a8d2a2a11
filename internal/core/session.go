package core

import "github.com/google/uuid"

// SessionID names one client connection, whatever transport carried it.
type SessionID string

func NewSessionID() SessionID {
	return SessionID(uuid.NewString())
}
