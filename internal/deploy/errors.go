package deploy

import (
	"errors"
	"fmt"

	"github.com/edvin/webdeploy/internal/backup"
	"github.com/edvin/webdeploy/internal/remote"
)

// Kind classifies an operation failure. Every failure is terminal for the
// current operation; the kind plus the step tells the operator whether to
// re-deploy, roll back, or go look at the host.
type Kind string

const (
	KindLocalArtifactMissing Kind = "LocalArtifactMissing"
	KindConnection           Kind = "ConnectionError"
	KindAuth                 Kind = "AuthError"
	KindTransfer             Kind = "TransferError"
	KindStore                Kind = "StoreError"
	KindNotFound             Kind = "NotFoundError"
	KindInstall              Kind = "InstallError"
	KindVerification         Kind = "VerificationError"
)

// Error carries the failure kind plus which step and host it happened on.
type Error struct {
	Kind Kind
	Step string
	Host string
	Err  error
}

func (e *Error) Error() string {
	if e.Host == "" {
		return fmt.Sprintf("%s at %s: %v", e.Kind, e.Step, e.Err)
	}
	return fmt.Sprintf("%s at %s on %s: %v", e.Kind, e.Step, e.Host, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the failure kind, or "" for errors that did not come out
// of a controller.
func KindOf(err error) Kind {
	var opErr *Error
	if errors.As(err, &opErr) {
		return opErr.Kind
	}
	return ""
}

// classify maps lower-layer sentinel errors onto the taxonomy, falling
// back to the step's own kind when the cause carries no signal of its own.
// A timed-out remote call classifies as a connection failure: the outcome
// is unknown and the operator must re-probe before retrying anything.
func classify(err error, fallback Kind) Kind {
	switch {
	case errors.Is(err, remote.ErrAuth):
		return KindAuth
	case errors.Is(err, remote.ErrConnect), errors.Is(err, remote.ErrTimedOut):
		return KindConnection
	case errors.Is(err, remote.ErrTransfer):
		return KindTransfer
	case errors.Is(err, backup.ErrNotFound):
		return KindNotFound
	case errors.Is(err, backup.ErrStore):
		return KindStore
	}
	return fallback
}

func opError(step, host string, err error, fallback Kind) *Error {
	return &Error{Kind: classify(err, fallback), Step: step, Host: host, Err: err}
}
