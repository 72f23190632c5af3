// Package api is an HTTP JSON client for the prompt-session backend.
package api

import (
	"fmt"
	"time"

	"github.com/user/promptline/internal/types"
)

// DefaultBaseURL is where the reference backend listens.
const DefaultBaseURL = "http://localhost:5000/api"

// Config holds connection settings for the backend.
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	ClientID types.ClientID
}

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: backend error (status %d): %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Compile-time interface compliance check.
var _ types.Backend = (*Client)(nil)
