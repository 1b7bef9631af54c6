package deploy

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/webdeploy/internal/backup"
	"github.com/edvin/webdeploy/internal/model"
)

func newTestRollbacker(resolver *mockResolver, store *mockStore, ops *mockOps) *Rollbacker {
	return NewRollbacker(resolver, store, ops, nil, testCfg, zerolog.Nop())
}

func TestRollbacker_Rollback_Success(t *testing.T) {
	resolver, store, ops := &mockResolver{}, &mockStore{}, &mockOps{}
	r := newTestRollbacker(resolver, store, ops)
	ctx := context.Background()

	ref := model.SnapshotRef{Name: "index.html.20260829-090000-01"}
	pre := &model.SnapshotRef{Name: "index.html.pre-rollback.20260830-101530-02", Label: model.LabelPreRollback}

	resolver.On("Resolve", ctx, "web-prod").Return(testHost, nil)
	ops.On("Ping", ctx, testHost).Return(nil)
	store.On("Get", ctx, testHost, ref.Name).Return(ref, nil)
	store.On("CreateSnapshot", ctx, testHost, testCfg.LivePath, model.LabelPreRollback).Return(pre, nil)
	store.On("RestoreSnapshot", ctx, testHost, ref, testCfg.LivePath).Return(nil)
	ops.On("SetOwnership", ctx, testHost, testCfg.LivePath).Return(nil)
	ops.On("ReloadService", ctx, testHost).Return(nil)
	ops.On("ServiceActive", ctx, testHost).Return(nil)
	ops.On("Probe", ctx, testHost).Return(&ProbeResult{StatusCode: 200, Body: "v1"}, nil)

	res, err := r.Rollback(ctx, ref.Name)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, ref.Name, res.Restored.Name)
	require.NotNil(t, res.PreRollback)
	assert.Equal(t, pre.Name, res.PreRollback.Name)
	store.AssertExpectations(t)
	ops.AssertExpectations(t)
}

func TestRollbacker_Rollback_RequiresExplicitSnapshot(t *testing.T) {
	resolver, store, ops := &mockResolver{}, &mockStore{}, &mockOps{}
	r := newTestRollbacker(resolver, store, ops)

	res, err := r.Rollback(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.False(t, res.Success)
	resolver.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
}

func TestRollbacker_Rollback_SnapshotGone(t *testing.T) {
	resolver, store, ops := &mockResolver{}, &mockStore{}, &mockOps{}
	r := newTestRollbacker(resolver, store, ops)
	ctx := context.Background()

	resolver.On("Resolve", ctx, "web-prod").Return(testHost, nil)
	ops.On("Ping", ctx, testHost).Return(nil)
	store.On("Get", ctx, testHost, "index.html.20260829-090000-01").
		Return(model.SnapshotRef{}, backup.ErrNotFound)

	res, err := r.Rollback(ctx, "index.html.20260829-090000-01")
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.False(t, res.Success)
	store.AssertNotCalled(t, "CreateSnapshot", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRollbacker_Rollback_PreRollbackBackupFailureAborts(t *testing.T) {
	resolver, store, ops := &mockResolver{}, &mockStore{}, &mockOps{}
	r := newTestRollbacker(resolver, store, ops)
	ctx := context.Background()

	ref := model.SnapshotRef{Name: "index.html.20260829-090000-01"}

	resolver.On("Resolve", ctx, "web-prod").Return(testHost, nil)
	ops.On("Ping", ctx, testHost).Return(nil)
	store.On("Get", ctx, testHost, ref.Name).Return(ref, nil)
	store.On("CreateSnapshot", ctx, testHost, testCfg.LivePath, model.LabelPreRollback).
		Return(nil, backup.ErrStore)

	_, err := r.Rollback(ctx, ref.Name)
	require.Error(t, err)
	assert.Equal(t, KindStore, KindOf(err))
	store.AssertNotCalled(t, "RestoreSnapshot", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRollbacker_Rollback_FailureAfterRestoreIsReportedNotCorrected(t *testing.T) {
	resolver, store, ops := &mockResolver{}, &mockStore{}, &mockOps{}
	r := newTestRollbacker(resolver, store, ops)
	ctx := context.Background()

	ref := model.SnapshotRef{Name: "index.html.20260829-090000-01"}
	pre := &model.SnapshotRef{Name: "index.html.pre-rollback.20260830-101530-02"}

	resolver.On("Resolve", ctx, "web-prod").Return(testHost, nil)
	ops.On("Ping", ctx, testHost).Return(nil)
	store.On("Get", ctx, testHost, ref.Name).Return(ref, nil)
	store.On("CreateSnapshot", ctx, testHost, testCfg.LivePath, model.LabelPreRollback).Return(pre, nil)
	store.On("RestoreSnapshot", ctx, testHost, ref, testCfg.LivePath).Return(nil)
	ops.On("SetOwnership", ctx, testHost, testCfg.LivePath).Return(nil)
	ops.On("ReloadService", ctx, testHost).Return(assert.AnError)

	res, err := r.Rollback(ctx, ref.Name)
	require.Error(t, err)
	assert.Equal(t, KindInstall, KindOf(err))
	assert.False(t, res.Success)
	// The partially-restored state is left alone; re-running is the
	// operator's decision.
	store.AssertNumberOfCalls(t, "RestoreSnapshot", 1)
}
