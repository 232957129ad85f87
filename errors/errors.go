// Package errors defines the error taxonomy shared by the sync engine
// and the API client. All types use value receivers so they work with
// errors.As against a value target.
package errors

import (
	"errors"
	"fmt"
)

// FileNotFound is returned when a path cannot be resolved locally,
// remotely, or through the move-detection matcher.
type FileNotFound struct {
	Path string
}

func (err FileNotFound) Error() string {
	return fmt.Sprintf("file %q not found locally or remotely", err.Path)
}

// FileExists is returned when a download target already exists locally
// and overwriting was not permitted.
type FileExists struct {
	Path string
}

func (err FileExists) Error() string {
	return fmt.Sprintf("file %q already exists", err.Path)
}

// ProjectUnavailable is returned when the configured project id does
// not resolve to a reachable remote project. It aborts a sync pass
// before any action runs.
type ProjectUnavailable struct {
	ID int64
}

func (err ProjectUnavailable) Error() string {
	return fmt.Sprintf("project %d is not available", err.ID)
}

// RemoteRequestError is returned for non-2xx responses and for
// responses whose body carries an error detail. The response has
// already been through the client's rate-limit retries by the time
// this surfaces.
type RemoteRequestError struct {
	Method string
	Path   string
	Status int
	Detail string
}

func (err RemoteRequestError) Error() string {
	if err.Detail != "" {
		return fmt.Sprintf("%s %s: %s (status %d)", err.Method, err.Path, err.Detail, err.Status)
	}
	return fmt.Sprintf("%s %s: unexpected status %d", err.Method, err.Path, err.Status)
}

// IsNotFound reports whether err is a FileNotFound.
func IsNotFound(err error) bool {
	var e FileNotFound
	return errors.As(err, &e)
}

// IsExists reports whether err is a FileExists.
func IsExists(err error) bool {
	var e FileExists
	return errors.As(err, &e)
}

// IsUnavailable reports whether err is a ProjectUnavailable.
func IsUnavailable(err error) bool {
	var e ProjectUnavailable
	return errors.As(err, &e)
}

// IsRemote reports whether err is a RemoteRequestError, meaning the
// service answered but rejected the request. Transport failures are
// not remote errors.
func IsRemote(err error) bool {
	var e RemoteRequestError
	return errors.As(err, &e)
}
