package backup

import (
	"fmt"

	"github.com/edvin/webdeploy/internal/model"
)

// SelectSnapshot resolves a caller-chosen snapshot name against a listing.
// It never guesses: an empty name is an error even when only one snapshot
// exists, because rolling back to an unintended version is worse than
// making the operator type a name. Pure function so selection stays
// testable without terminal I/O.
func SelectSnapshot(snapshots []model.SnapshotRef, name string) (model.SnapshotRef, error) {
	if len(snapshots) == 0 {
		return model.SnapshotRef{}, fmt.Errorf("no snapshots available: %w", ErrNotFound)
	}
	if name == "" {
		return model.SnapshotRef{}, fmt.Errorf("no snapshot selected; pick one of %d available", len(snapshots))
	}
	for _, ref := range snapshots {
		if ref.Name == name {
			return ref, nil
		}
	}
	return model.SnapshotRef{}, fmt.Errorf("snapshot %s: %w", name, ErrNotFound)
}
