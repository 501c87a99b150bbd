package registry

import (
	"errors"
	"fmt"
	"net/http"

	"oras.land/oras-go/v2/registry/remote/errcode"
)

// Sentinel errors for push operations.
var (
	// ErrInvalidReference is returned when a repository reference is malformed.
	ErrInvalidReference = errors.New("registry: invalid reference")

	// ErrInvalidArtifact is returned when an artifact lacks a path, name or digest.
	ErrInvalidArtifact = errors.New("registry: invalid artifact")

	// ErrUnauthorized is returned when the registry rejects our credentials.
	ErrUnauthorized = errors.New("registry: unauthorized")

	// ErrForbidden is returned when the credentials lack push access.
	ErrForbidden = errors.New("registry: forbidden")
)

// mapError translates registry HTTP errors to sentinel errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var errResp *errcode.ErrorResponse
	if errors.As(err, &errResp) {
		switch errResp.StatusCode {
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %v", ErrUnauthorized, err)
		case http.StatusForbidden:
			return fmt.Errorf("%w: %v", ErrForbidden, err)
		}
	}
	return err
}
