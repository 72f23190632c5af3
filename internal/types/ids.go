// internal/types/ids.go
package types

import (
	"github.com/google/uuid"
)

// SessionID is the opaque token the backend issues for a prompt session.
type SessionID string
type RequestID string
type ClientID string

func NewRequestID() RequestID {
	return RequestID(uuid.New().String())
}

func NewClientID() ClientID {
	return ClientID(uuid.New().String())
}
