package backup

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/webdeploy/internal/model"
	"github.com/edvin/webdeploy/internal/remote"
)

var (
	// ErrNotFound means the referenced snapshot no longer exists, e.g. it
	// was deleted out-of-band between list and restore. Callers treat this
	// as a benign race, not corruption.
	ErrNotFound = errors.New("snapshot not found")
	// ErrStore means the backup directory could not be written (disk full,
	// permissions). A failed backup must abort the operation that asked
	// for it.
	ErrStore = errors.New("backup store error")
)

// Store manages the ordered, append-only snapshot collection in a fixed
// directory on the managed host. The directory listing is the source of
// truth; there is no manifest. Snapshots are only ever added, never removed
// or mutated; retention is the operator's problem.
type Store struct {
	exec     remote.Executor
	logger   zerolog.Logger
	dir      string
	artifact string

	now func() time.Time
}

// NewStore creates a Store over the given backup directory. artifact is the
// bare filename of the deployable (e.g. "index.html"); only files matching
// its naming scheme are treated as snapshots.
func NewStore(exec remote.Executor, logger zerolog.Logger, dir, artifact string) *Store {
	return &Store{
		exec:     exec,
		logger:   logger.With().Str("component", "backup-store").Logger(),
		dir:      dir,
		artifact: artifact,
		now:      time.Now,
	}
}

// ListSnapshots returns all snapshots for the host, newest first. A missing
// backup directory means no snapshots yet and is not an error.
func (s *Store) ListSnapshots(ctx context.Context, host model.Host) ([]model.SnapshotRef, error) {
	cmd := fmt.Sprintf("[ -d %q ] && find %q -maxdepth 1 -type f -printf '%%f %%s\\n' || true", s.dir, s.dir)
	res, err := s.exec.Execute(ctx, host, cmd)
	if err != nil {
		return nil, fmt.Errorf("list snapshots on %s: %w", host.Address, err)
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("list snapshots on %s: %w: %s", host.Address, ErrStore, strings.TrimSpace(res.Stderr))
	}

	var refs []model.SnapshotRef
	for _, line := range strings.Split(res.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, sizeStr, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		ref, ok := model.ParseSnapshotName(s.artifact, name)
		if !ok {
			continue
		}
		if size, err := strconv.ParseInt(sizeStr, 10, 64); err == nil {
			ref.SizeBytes = size
		}
		refs = append(refs, ref)
	}

	sort.Slice(refs, func(i, j int) bool { return refs[j].Before(refs[i]) })
	return refs, nil
}

// Get resolves a snapshot name against the current listing.
func (s *Store) Get(ctx context.Context, host model.Host, name string) (model.SnapshotRef, error) {
	refs, err := s.ListSnapshots(ctx, host)
	if err != nil {
		return model.SnapshotRef{}, err
	}
	ref, err := SelectSnapshot(refs, name)
	if err != nil {
		return model.SnapshotRef{}, fmt.Errorf("on %s: %w", host.Address, err)
	}
	return ref, nil
}

// CreateSnapshot copies the current live artifact into the backup
// directory. If nothing is live yet it returns (nil, nil): a first deploy
// has nothing worth preserving. label distinguishes pre-rollback snapshots
// from ordinary pre-deploy ones.
//
// The snapshot name embeds the creation timestamp plus a sequence number
// one above the highest already in the store, so two snapshots within the
// same second can never collide.
func (s *Store) CreateSnapshot(ctx context.Context, host model.Host, currentPath, label string) (*model.SnapshotRef, error) {
	res, err := s.exec.Execute(ctx, host, fmt.Sprintf("test -f %q", currentPath))
	if err != nil {
		return nil, fmt.Errorf("check live artifact on %s: %w", host.Address, err)
	}
	if res.ExitCode != 0 {
		s.logger.Info().Str("host", host.Address).Str("path", currentPath).Msg("nothing live yet, skipping snapshot")
		return nil, nil
	}

	refs, err := s.ListSnapshots(ctx, host)
	if err != nil {
		return nil, err
	}
	seq := 1
	for _, ref := range refs {
		if ref.Seq >= seq {
			seq = ref.Seq + 1
		}
	}

	ref := model.SnapshotRef{
		Label:     label,
		Timestamp: s.now().UTC().Truncate(time.Second),
		Seq:       seq,
	}
	ref.Name = model.SnapshotName(s.artifact, label, ref.Timestamp, ref.Seq)

	dst := path.Join(s.dir, ref.Name)
	res, err = s.exec.Execute(ctx, host, fmt.Sprintf("sudo mkdir -p %q && sudo cp -p %q %q", s.dir, currentPath, dst))
	if err != nil {
		return nil, fmt.Errorf("snapshot %s on %s: %w", ref.Name, host.Address, err)
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("snapshot %s on %s: %w: %s", ref.Name, host.Address, ErrStore, strings.TrimSpace(res.Stderr))
	}

	s.logger.Info().Str("host", host.Address).Str("snapshot", ref.Name).Msg("snapshot created")
	return &ref, nil
}

// RestoreSnapshot copies the referenced snapshot over targetPath. The copy
// goes through a staging file and an atomic rename so a crash mid-restore
// never leaves a half-written live artifact.
func (s *Store) RestoreSnapshot(ctx context.Context, host model.Host, ref model.SnapshotRef, targetPath string) error {
	src := path.Join(s.dir, ref.Name)

	res, err := s.exec.Execute(ctx, host, fmt.Sprintf("test -f %q", src))
	if err != nil {
		return fmt.Errorf("check snapshot %s on %s: %w", ref.Name, host.Address, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("snapshot %s on %s: %w", ref.Name, host.Address, ErrNotFound)
	}

	staging := targetPath + ".restore"
	res, err = s.exec.Execute(ctx, host, fmt.Sprintf("sudo cp -p %q %q && sudo mv -f %q %q", src, staging, staging, targetPath))
	if err != nil {
		return fmt.Errorf("restore %s on %s: %w", ref.Name, host.Address, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("restore %s on %s: %w: %s", ref.Name, host.Address, ErrStore, strings.TrimSpace(res.Stderr))
	}

	s.logger.Info().Str("host", host.Address).Str("snapshot", ref.Name).Str("target", targetPath).Msg("snapshot restored")
	return nil
}

// ReadSnapshot returns the snapshot's content, for off-host archival.
func (s *Store) ReadSnapshot(ctx context.Context, host model.Host, ref model.SnapshotRef) ([]byte, error) {
	src := path.Join(s.dir, ref.Name)
	res, err := s.exec.Execute(ctx, host, fmt.Sprintf("cat %q", src))
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s on %s: %w", ref.Name, host.Address, err)
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("read snapshot %s on %s: %w", ref.Name, host.Address, ErrNotFound)
	}
	return []byte(res.Stdout), nil
}
