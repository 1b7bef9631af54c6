package deploy

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/edvin/webdeploy/internal/model"
)

// Rollbacker restores a prior snapshot as the live artifact. The snapshot
// to restore is always an explicit caller choice; nothing here guesses
// "latest".
type Rollbacker struct {
	resolver HostResolver
	store    SnapshotStore
	ops      HostOps
	archiver Archiver // nil disables archival
	cfg      Config
	logger   zerolog.Logger
}

// NewRollbacker wires a rollback controller. archiver may be nil.
func NewRollbacker(resolver HostResolver, store SnapshotStore, ops HostOps, archiver Archiver, cfg Config, logger zerolog.Logger) *Rollbacker {
	return &Rollbacker{
		resolver: resolver,
		store:    store,
		ops:      ops,
		archiver: archiver,
		cfg:      cfg,
		logger:   logger.With().Str("component", "rollbacker").Logger(),
	}
}

// Rollback restores the named snapshot to the live path. Before restoring
// it snapshots the current live artifact under the pre-rollback label, so a
// rollback is itself always undoable. A failure after the restore leaves
// the host partially rolled back; that state is reported, never silently
// corrected. The operator re-runs rollback or deploys explicitly.
func (r *Rollbacker) Rollback(ctx context.Context, snapshotName string) (*model.RollbackResult, error) {
	res := &model.RollbackResult{OperationID: uuid.NewString()}
	logger := r.logger.With().Str("operation_id", res.OperationID).Logger()

	fail := func(err *Error) (*model.RollbackResult, error) {
		res.Reason = err.Error()
		logger.Error().Err(err).Str("step", err.Step).Msg("rollback failed")
		return res, err
	}

	if snapshotName == "" {
		return fail(&Error{Kind: KindNotFound, Step: "select", Err: fmt.Errorf("no snapshot reference given; list backups and pick one")})
	}

	host, err := r.resolver.Resolve(ctx, r.cfg.HostTag)
	if err != nil {
		return fail(opError("resolve", "", err, KindConnection))
	}
	res.Host = host
	if err := r.ops.Ping(ctx, host); err != nil {
		return fail(opError("connect", host.Address, err, KindConnection))
	}

	// Re-check existence against a fresh listing: the snapshot may have
	// been deleted out-of-band since the caller picked it.
	ref, err := r.store.Get(ctx, host, snapshotName)
	if err != nil {
		return fail(opError("select", host.Address, err, KindNotFound))
	}
	res.Restored = &ref

	pre, err := r.store.CreateSnapshot(ctx, host, r.cfg.LivePath, model.LabelPreRollback)
	if err != nil {
		return fail(opError("pre-rollback backup", host.Address, err, KindStore))
	}
	res.PreRollback = pre

	if err := r.store.RestoreSnapshot(ctx, host, ref, r.cfg.LivePath); err != nil {
		return fail(opError("restore", host.Address, err, KindStore))
	}
	if err := r.ops.SetOwnership(ctx, host, r.cfg.LivePath); err != nil {
		return fail(opError("install", host.Address, err, KindInstall))
	}
	if err := r.ops.ReloadService(ctx, host); err != nil {
		return fail(opError("install", host.Address, err, KindInstall))
	}
	if err := r.ops.ServiceActive(ctx, host); err != nil {
		return fail(opError("install", host.Address, err, KindInstall))
	}

	if err := verifyLiveness(ctx, r.ops, host, r.cfg.ExpectSubstring); err != nil {
		return fail(opError("verify", host.Address, err, KindVerification))
	}
	res.Success = true
	logger.Info().Str("host", host.Address).Str("snapshot", ref.Name).Msg("rollback verified")

	if r.archiver != nil && pre != nil {
		if err := r.archiver.Archive(ctx, host, *pre); err != nil {
			logger.Warn().Err(err).Str("snapshot", pre.Name).Msg("snapshot archive failed")
		}
	}

	return res, nil
}
