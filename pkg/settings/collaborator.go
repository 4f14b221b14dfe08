package settings

import (
	"context"
	"errors"
	"strings"
)

// Errors returned by the settings package.
var (
	ErrCollaborator       = errors.New("settings collaborator failed")
	ErrInstanceExtraction = errors.New("device instance not found in settings reply")
	ErrInvalidRequest     = errors.New("invalid settings request")
)

// Request asks for a setting to exist with a default value.
type Request struct {
	// Path is the setting key, e.g. Settings/Devices/virtual_batt1/ClassAndVrmInstance.
	Path string

	// Default is the value stored when the setting does not exist yet.
	Default string

	// Type is the D-Bus type code of the value.
	Type string
}

// Collaborator is a persistent key-value settings service.
type Collaborator interface {
	// AddSetting ensures the setting exists and returns the raw reply body.
	AddSetting(ctx context.Context, req Request) ([]any, error)
}

// CollaboratorFunc adapts a function to the Collaborator interface.
type CollaboratorFunc func(ctx context.Context, req Request) ([]any, error)

// AddSetting calls f(ctx, req).
func (f CollaboratorFunc) AddSetting(ctx context.Context, req Request) ([]any, error) {
	return f(ctx, req)
}

// normalizePath strips the leading slash so "/Settings/x" and "Settings/x"
// name the same setting.
func normalizePath(p string) string {
	return strings.TrimPrefix(p, "/")
}
