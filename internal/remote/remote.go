package remote

import (
	"context"
	"errors"

	"github.com/edvin/webdeploy/internal/model"
)

// Sentinel errors callers classify with errors.Is. Every returned error
// wraps one of these plus the underlying cause.
var (
	// ErrConnect means the host was unreachable within the dial timeout.
	ErrConnect = errors.New("connection failed")
	// ErrAuth means the host was reachable but rejected our credentials.
	ErrAuth = errors.New("authentication rejected")
	// ErrTransfer means a file upload failed partway; the remote temp file
	// must not be trusted.
	ErrTransfer = errors.New("transfer failed")
	// ErrTimedOut means the remote command may or may not have run to
	// completion. Callers must re-probe before retrying any mutation.
	ErrTimedOut = errors.New("remote call timed out, outcome unknown")
)

// Result captures one remote command invocation. ExitCode is -1 when the
// command never ran (connection or session failure).
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Executor runs a command on a managed host. The command body may span
// multiple lines; it runs as a single remote shell invocation so the caller
// sees exactly one exit code for it.
type Executor interface {
	Execute(ctx context.Context, host model.Host, command string) (*Result, error)
}

// Transfer copies a local file to a path on the managed host. The remote
// file is fully written and size-verified before Upload returns nil;
// partial writes surface as ErrTransfer.
type Transfer interface {
	Upload(ctx context.Context, host model.Host, localPath, remotePath string) error
}
