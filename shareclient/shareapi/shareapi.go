package shareapi

import (
	"errors"

	"github.com/lumilearn/lumilearn-publish-server/domain"
)

var (
	ErrInvalidRequest = errors.New("missing or invalid courses")
	ErrNotFound       = errors.New("share not found")
	ErrShareDisabled  = errors.New("share disabled")
	ErrNetworkFailure = errors.New("network failure")
)

// PublishRequest creates or fully replaces a snapshot. Token absent
// means create: the server mints one. Courses is required; an empty
// sequence is a valid "no courses yet" catalog, a missing one is not.
type PublishRequest struct {
	Token      string           `json:"token,omitempty"`
	Courses    []domain.Course  `json:"courses"`
	HeroCover  domain.HeroCover `json:"heroCover"`
	Categories []string         `json:"categories"`
	Enabled    *bool            `json:"enabled,omitempty"`
}

type PublishResponse struct {
	Token   string `json:"token"`
	Enabled bool   `json:"enabled"`
}

type ToggleRequest struct {
	Enabled bool `json:"enabled"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
