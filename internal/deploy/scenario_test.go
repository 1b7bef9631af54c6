package deploy

import (
	"context"
	"fmt"
	"os"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/webdeploy/internal/model"
)

// fakeWorld simulates the managed host's filesystem: the live artifact, the
// staging path and the backup directory. It backs end-to-end content
// scenarios that the per-step mocks cannot express.
type fakeWorld struct {
	live      *string
	staging   *string
	snapshots map[string]string
	clock     time.Time
	seq       int
}

func newFakeWorld() *fakeWorld {
	return &fakeWorld{
		snapshots: make(map[string]string),
		clock:     time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
	}
}

func (w *fakeWorld) Resolve(ctx context.Context, tag string) (model.Host, error) {
	return testHost, nil
}

func (w *fakeWorld) Upload(ctx context.Context, host model.Host, localPath, remotePath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	content := string(data)
	w.staging = &content
	return nil
}

func (w *fakeWorld) ListSnapshots(ctx context.Context, host model.Host) ([]model.SnapshotRef, error) {
	var refs []model.SnapshotRef
	for name := range w.snapshots {
		if ref, ok := model.ParseSnapshotName("index.html", name); ok {
			refs = append(refs, ref)
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[j].Before(refs[i]) })
	return refs, nil
}

func (w *fakeWorld) Get(ctx context.Context, host model.Host, name string) (model.SnapshotRef, error) {
	if _, ok := w.snapshots[name]; !ok {
		return model.SnapshotRef{}, fmt.Errorf("snapshot %s not found", name)
	}
	ref, _ := model.ParseSnapshotName("index.html", name)
	return ref, nil
}

func (w *fakeWorld) CreateSnapshot(ctx context.Context, host model.Host, currentPath, label string) (*model.SnapshotRef, error) {
	if w.live == nil {
		return nil, nil
	}
	w.seq++
	w.clock = w.clock.Add(time.Second)
	ref := model.SnapshotRef{Label: label, Timestamp: w.clock, Seq: w.seq}
	ref.Name = model.SnapshotName("index.html", label, w.clock, w.seq)
	w.snapshots[ref.Name] = *w.live
	return &ref, nil
}

func (w *fakeWorld) RestoreSnapshot(ctx context.Context, host model.Host, ref model.SnapshotRef, targetPath string) error {
	content, ok := w.snapshots[ref.Name]
	if !ok {
		return fmt.Errorf("snapshot %s not found", ref.Name)
	}
	w.live = &content
	return nil
}

func (w *fakeWorld) Ping(ctx context.Context, host model.Host) error { return nil }

func (w *fakeWorld) Install(ctx context.Context, host model.Host, stagedPath, livePath string) error {
	w.live = w.staging
	w.staging = nil
	return nil
}

func (w *fakeWorld) SetOwnership(ctx context.Context, host model.Host, path string) error { return nil }
func (w *fakeWorld) ReloadService(ctx context.Context, host model.Host) error             { return nil }
func (w *fakeWorld) ServiceActive(ctx context.Context, host model.Host) error             { return nil }

func (w *fakeWorld) Probe(ctx context.Context, host model.Host) (*ProbeResult, error) {
	if w.live == nil {
		return &ProbeResult{StatusCode: 404}, nil
	}
	return &ProbeResult{StatusCode: 200, Body: *w.live}, nil
}

// TestDeployRollbackLifecycle walks the full chain: first deploy, second
// deploy over it, rollback, and a repeated rollback, checking content and
// snapshot counts at every step.
func TestDeployRollbackLifecycle(t *testing.T) {
	world := newFakeWorld()
	ctx := context.Background()

	d := NewDeployer(world, world, world, world, nil, testCfg, zerolog.Nop())
	r := NewRollbacker(world, world, world, nil, testCfg, zerolog.Nop())

	// First deploy: nothing live yet, so no snapshot is created.
	res, err := d.Deploy(ctx, writeArtifact(t, "v1"))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Nil(t, res.Snapshot)
	require.NotNil(t, world.live)
	assert.Equal(t, "v1", *world.live)
	assert.Empty(t, world.snapshots)

	// Second deploy preserves v1 before v2 goes live.
	res, err = d.Deploy(ctx, writeArtifact(t, "v2"))
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.NotNil(t, res.Snapshot)
	assert.Equal(t, "v2", *world.live)
	require.Len(t, world.snapshots, 1)
	assert.Equal(t, "v1", world.snapshots[res.Snapshot.Name])

	// Rollback restores v1 and preserves v2 under the pre-rollback label.
	v1Snap := res.Snapshot.Name
	rres, err := r.Rollback(ctx, v1Snap)
	require.NoError(t, err)
	assert.True(t, rres.Success)
	assert.Equal(t, "v1", *world.live)
	require.NotNil(t, rres.PreRollback)
	assert.Equal(t, model.LabelPreRollback, rres.PreRollback.Label)
	assert.Equal(t, "v2", world.snapshots[rres.PreRollback.Name])
	assert.Len(t, world.snapshots, 2)

	// Rolling back to the same snapshot again is idempotent: same live
	// content, and the new pre-rollback snapshot equals what the first
	// rollback restored.
	rres2, err := r.Rollback(ctx, v1Snap)
	require.NoError(t, err)
	assert.True(t, rres2.Success)
	assert.Equal(t, "v1", *world.live)
	require.NotNil(t, rres2.PreRollback)
	assert.Equal(t, "v1", world.snapshots[rres2.PreRollback.Name])
	assert.Len(t, world.snapshots, 3)
}
