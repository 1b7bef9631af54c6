package deploy

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/edvin/webdeploy/internal/model"
	"github.com/edvin/webdeploy/internal/remote"
)

// ProbeResult is one liveness probe observation.
type ProbeResult struct {
	StatusCode int
	Body       string
}

// HostOps is the fixed set of idempotent host-side operations the
// controllers sequence. Each call is a single remote invocation with its
// own exit code, so orchestration logic and host-side logic stay separately
// testable.
type HostOps interface {
	// Ping verifies the host is reachable and our credentials work.
	Ping(ctx context.Context, host model.Host) error
	// Install atomically moves the staged file over the live path.
	Install(ctx context.Context, host model.Host, stagedPath, livePath string) error
	// SetOwnership reapplies the web server's ownership and mode.
	SetOwnership(ctx context.Context, host model.Host, path string) error
	// ReloadService reloads (or restarts) the serving process.
	ReloadService(ctx context.Context, host model.Host) error
	// ServiceActive confirms the serving process reports active.
	ServiceActive(ctx context.Context, host model.Host) error
	// Probe issues an HTTP GET against the host's loopback endpoint.
	Probe(ctx context.Context, host model.Host) (*ProbeResult, error)
}

// OpsConfig carries the host-side paths and identities the operations need.
type OpsConfig struct {
	// Owner is the chown spec for the live artifact, e.g. "www-data:www-data".
	Owner string
	// Mode is the chmod spec, e.g. "0644".
	Mode string
	// Service is the systemd unit serving the artifact, e.g. "nginx".
	Service string
	// ProbeURL is the loopback endpoint, e.g. "http://127.0.0.1/".
	ProbeURL string
}

// SSHOps implements HostOps over a remote executor.
type SSHOps struct {
	exec   remote.Executor
	cfg    OpsConfig
	logger zerolog.Logger
}

// NewSSHOps creates host operations running through exec.
func NewSSHOps(exec remote.Executor, cfg OpsConfig, logger zerolog.Logger) *SSHOps {
	return &SSHOps{
		exec:   exec,
		cfg:    cfg,
		logger: logger.With().Str("component", "host-ops").Logger(),
	}
}

// run executes a command and folds a nonzero exit into the error, since
// every operation here is expected to exit 0.
func (o *SSHOps) run(ctx context.Context, host model.Host, what, cmd string) error {
	res, err := o.exec.Execute(ctx, host, cmd)
	if err != nil {
		return fmt.Errorf("%s on %s: %w", what, host.Address, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%s on %s: exit %d: %s", what, host.Address, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}

func (o *SSHOps) Ping(ctx context.Context, host model.Host) error {
	return o.run(ctx, host, "ping", "true")
}

func (o *SSHOps) Install(ctx context.Context, host model.Host, stagedPath, livePath string) error {
	return o.run(ctx, host, "install artifact",
		fmt.Sprintf("sudo mv -f %q %q", stagedPath, livePath))
}

func (o *SSHOps) SetOwnership(ctx context.Context, host model.Host, path string) error {
	return o.run(ctx, host, "set ownership",
		fmt.Sprintf("sudo chown %s %q && sudo chmod %s %q", o.cfg.Owner, path, o.cfg.Mode, path))
}

func (o *SSHOps) ReloadService(ctx context.Context, host model.Host) error {
	return o.run(ctx, host, "reload "+o.cfg.Service,
		fmt.Sprintf("sudo systemctl reload-or-restart %s", o.cfg.Service))
}

func (o *SSHOps) ServiceActive(ctx context.Context, host model.Host) error {
	return o.run(ctx, host, o.cfg.Service+" active check",
		fmt.Sprintf("systemctl is-active --quiet %s", o.cfg.Service))
}

// Probe fetches the loopback endpoint with curl, which runs on the host
// itself: the check is "is this host serving", not "can my laptop reach
// port 80". The status code rides on the last output line so body and code
// come back from one invocation.
func (o *SSHOps) Probe(ctx context.Context, host model.Host) (*ProbeResult, error) {
	cmd := fmt.Sprintf("curl -sS --max-time 10 -w '\\n%%{http_code}' %q", o.cfg.ProbeURL)
	res, err := o.exec.Execute(ctx, host, cmd)
	if err != nil {
		return nil, fmt.Errorf("probe %s on %s: %w", o.cfg.ProbeURL, host.Address, err)
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("probe %s on %s: exit %d: %s",
			o.cfg.ProbeURL, host.Address, res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	out := strings.TrimRight(res.Stdout, "\n")
	i := strings.LastIndex(out, "\n")
	if i < 0 {
		return nil, fmt.Errorf("probe %s on %s: malformed output %q", o.cfg.ProbeURL, host.Address, out)
	}
	code, err := strconv.Atoi(strings.TrimSpace(out[i+1:]))
	if err != nil {
		return nil, fmt.Errorf("probe %s on %s: bad status line %q", o.cfg.ProbeURL, host.Address, out[i+1:])
	}

	return &ProbeResult{StatusCode: code, Body: out[:i]}, nil
}
