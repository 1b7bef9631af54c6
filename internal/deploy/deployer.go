package deploy

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/edvin/webdeploy/internal/model"
	"github.com/edvin/webdeploy/internal/remote"
)

// HostResolver resolves a host tag to a concrete address. Resolution
// happens per operation, never cached.
type HostResolver interface {
	Resolve(ctx context.Context, tag string) (model.Host, error)
}

// SnapshotStore is the slice of the backup store the controllers use. They
// only ever add snapshots and read them back; nothing here can remove or
// reorder the chain.
type SnapshotStore interface {
	ListSnapshots(ctx context.Context, host model.Host) ([]model.SnapshotRef, error)
	Get(ctx context.Context, host model.Host, name string) (model.SnapshotRef, error)
	CreateSnapshot(ctx context.Context, host model.Host, currentPath, label string) (*model.SnapshotRef, error)
	RestoreSnapshot(ctx context.Context, host model.Host, ref model.SnapshotRef, targetPath string) error
}

// Archiver mirrors a snapshot off-host. Best-effort; never fails an
// operation.
type Archiver interface {
	Archive(ctx context.Context, host model.Host, ref model.SnapshotRef) error
}

// Config carries the per-host paths and verification expectations shared by
// deploy and rollback.
type Config struct {
	HostTag string
	// LivePath is the well-known path of the live artifact.
	LivePath string
	// StagingPath receives uploads before the atomic move to LivePath.
	StagingPath string
	// ExpectSubstring, when non-empty, must appear in the probe body for
	// verification to pass.
	ExpectSubstring string
}

// Deployer drives one deploy attempt through the state machine
// Idle → PreflightChecked → Connected → BackedUp → Uploaded → Installed →
// Verified, failing terminally at the first error. The backup-before-install
// ordering is the invariant everything else leans on: the live artifact is
// never touched until its current content is preserved in the store.
type Deployer struct {
	resolver HostResolver
	transfer remote.Transfer
	store    SnapshotStore
	ops      HostOps
	archiver Archiver // nil disables archival
	cfg      Config
	logger   zerolog.Logger
}

// NewDeployer wires a deploy controller. archiver may be nil.
func NewDeployer(resolver HostResolver, transfer remote.Transfer, store SnapshotStore, ops HostOps, archiver Archiver, cfg Config, logger zerolog.Logger) *Deployer {
	return &Deployer{
		resolver: resolver,
		transfer: transfer,
		store:    store,
		ops:      ops,
		archiver: archiver,
		cfg:      cfg,
		logger:   logger.With().Str("component", "deployer").Logger(),
	}
}

// Deploy pushes the local artifact to the managed host. On failure the
// returned result carries how far the attempt got; the error is an *Error
// with the taxonomy kind. Nothing is retried and nothing is rolled back
// automatically; that is the operator's call.
func (d *Deployer) Deploy(ctx context.Context, artifactPath string) (*model.DeploymentResult, error) {
	res := &model.DeploymentResult{
		OperationID: uuid.NewString(),
		State:       model.StateIdle,
	}
	logger := d.logger.With().Str("operation_id", res.OperationID).Logger()

	fail := func(err *Error) (*model.DeploymentResult, error) {
		res.State = model.StateFailed
		res.Reason = err.Error()
		logger.Error().Err(err).Str("step", err.Step).Msg("deploy failed")
		return res, err
	}

	// Preflight runs before any network call so a typo'd path fails in
	// milliseconds, not after a connect.
	if _, err := os.Stat(artifactPath); err != nil {
		return fail(&Error{Kind: KindLocalArtifactMissing, Step: "preflight", Err: fmt.Errorf("local artifact %s: %w", artifactPath, err)})
	}
	res.State = model.StatePreflightChecked

	host, err := d.resolver.Resolve(ctx, d.cfg.HostTag)
	if err != nil {
		return fail(opError("resolve", "", err, KindConnection))
	}
	res.Host = host
	if err := d.ops.Ping(ctx, host); err != nil {
		return fail(opError("connect", host.Address, err, KindConnection))
	}
	res.State = model.StateConnected
	logger.Info().Str("host", host.Address).Str("instance_id", host.InstanceID).Msg("connected")

	// Backup before anything touches the live path. If this fails we stop
	// here: a deploy must never destroy the only known-good copy.
	snap, err := d.store.CreateSnapshot(ctx, host, d.cfg.LivePath, "")
	if err != nil {
		return fail(opError("backup", host.Address, err, KindStore))
	}
	res.Snapshot = snap
	res.State = model.StateBackedUp

	if err := d.transfer.Upload(ctx, host, artifactPath, d.cfg.StagingPath); err != nil {
		return fail(opError("upload", host.Address, err, KindTransfer))
	}
	res.State = model.StateUploaded

	if err := d.ops.Install(ctx, host, d.cfg.StagingPath, d.cfg.LivePath); err != nil {
		return fail(opError("install", host.Address, err, KindInstall))
	}
	if err := d.ops.SetOwnership(ctx, host, d.cfg.LivePath); err != nil {
		return fail(opError("install", host.Address, err, KindInstall))
	}
	if err := d.ops.ReloadService(ctx, host); err != nil {
		return fail(opError("install", host.Address, err, KindInstall))
	}
	if err := d.ops.ServiceActive(ctx, host); err != nil {
		return fail(opError("install", host.Address, err, KindInstall))
	}
	res.State = model.StateInstalled

	if err := verifyLiveness(ctx, d.ops, host, d.cfg.ExpectSubstring); err != nil {
		return fail(opError("verify", host.Address, err, KindVerification))
	}
	res.State = model.StateVerified
	res.Success = true
	logger.Info().Str("host", host.Address).Msg("deploy verified")

	if d.archiver != nil && snap != nil {
		if err := d.archiver.Archive(ctx, host, *snap); err != nil {
			logger.Warn().Err(err).Str("snapshot", snap.Name).Msg("snapshot archive failed")
		}
	}

	return res, nil
}

// verifyLiveness probes the loopback endpoint and requires HTTP 200 plus
// the expected substring when one is configured.
func verifyLiveness(ctx context.Context, ops HostOps, host model.Host, expect string) error {
	probe, err := ops.Probe(ctx, host)
	if err != nil {
		return err
	}
	if probe.StatusCode != 200 {
		return fmt.Errorf("liveness probe returned status %d", probe.StatusCode)
	}
	if expect != "" && !strings.Contains(probe.Body, expect) {
		return fmt.Errorf("liveness probe body missing expected content %q", expect)
	}
	return nil
}
