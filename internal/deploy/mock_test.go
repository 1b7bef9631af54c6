package deploy

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/edvin/webdeploy/internal/model"
	"github.com/edvin/webdeploy/internal/remote"
)

// ---------- Mock resolver ----------

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Resolve(ctx context.Context, tag string) (model.Host, error) {
	args := m.Called(ctx, tag)
	return args.Get(0).(model.Host), args.Error(1)
}

// ---------- Mock transfer ----------

type mockTransfer struct {
	mock.Mock
}

func (m *mockTransfer) Upload(ctx context.Context, host model.Host, localPath, remotePath string) error {
	args := m.Called(ctx, host, localPath, remotePath)
	return args.Error(0)
}

// ---------- Mock store ----------

type mockStore struct {
	mock.Mock
}

func (m *mockStore) ListSnapshots(ctx context.Context, host model.Host) ([]model.SnapshotRef, error) {
	args := m.Called(ctx, host)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.SnapshotRef), args.Error(1)
}

func (m *mockStore) Get(ctx context.Context, host model.Host, name string) (model.SnapshotRef, error) {
	args := m.Called(ctx, host, name)
	return args.Get(0).(model.SnapshotRef), args.Error(1)
}

func (m *mockStore) CreateSnapshot(ctx context.Context, host model.Host, currentPath, label string) (*model.SnapshotRef, error) {
	args := m.Called(ctx, host, currentPath, label)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SnapshotRef), args.Error(1)
}

func (m *mockStore) RestoreSnapshot(ctx context.Context, host model.Host, ref model.SnapshotRef, targetPath string) error {
	args := m.Called(ctx, host, ref, targetPath)
	return args.Error(0)
}

// ---------- Mock host ops ----------

type mockOps struct {
	mock.Mock
}

func (m *mockOps) Ping(ctx context.Context, host model.Host) error {
	return m.Called(ctx, host).Error(0)
}

func (m *mockOps) Install(ctx context.Context, host model.Host, stagedPath, livePath string) error {
	return m.Called(ctx, host, stagedPath, livePath).Error(0)
}

func (m *mockOps) SetOwnership(ctx context.Context, host model.Host, path string) error {
	return m.Called(ctx, host, path).Error(0)
}

func (m *mockOps) ReloadService(ctx context.Context, host model.Host) error {
	return m.Called(ctx, host).Error(0)
}

func (m *mockOps) ServiceActive(ctx context.Context, host model.Host) error {
	return m.Called(ctx, host).Error(0)
}

func (m *mockOps) Probe(ctx context.Context, host model.Host) (*ProbeResult, error) {
	args := m.Called(ctx, host)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ProbeResult), args.Error(1)
}

// ---------- Mock archiver ----------

type mockArchiver struct {
	mock.Mock
}

func (m *mockArchiver) Archive(ctx context.Context, host model.Host, ref model.SnapshotRef) error {
	return m.Called(ctx, host, ref).Error(0)
}

// ---------- Mock executor (for SSHOps tests) ----------

type mockExecutor struct {
	mock.Mock
}

func (m *mockExecutor) Execute(ctx context.Context, host model.Host, command string) (*remote.Result, error) {
	args := m.Called(ctx, host, command)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*remote.Result), args.Error(1)
}
