package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// LabelPreRollback marks snapshots taken of the live artifact just
	// before a rollback overwrites it.
	LabelPreRollback = "pre-rollback"

	snapshotTimeLayout = "20060102-150405"
)

// SnapshotRef identifies one immutable backup copy of the artifact in the
// backup directory. Name is the on-disk filename and the only identity that
// matters; the remaining fields are parsed out of it (plus Size from the
// directory listing).
type SnapshotRef struct {
	Name      string    `json:"name"`
	Label     string    `json:"label,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Seq       int       `json:"seq"`
	SizeBytes int64     `json:"size_bytes,omitempty"`
}

// SnapshotName builds the backup filename for an artifact. The timestamp is
// UTC at one-second resolution; seq disambiguates snapshots created within
// the same second, so names never collide regardless of call rate.
//
//	index.html.20260830-101530-01
//	index.html.pre-rollback.20260830-101530-02
func SnapshotName(artifact, label string, ts time.Time, seq int) string {
	if label != "" {
		return fmt.Sprintf("%s.%s.%s-%02d", artifact, label, ts.UTC().Format(snapshotTimeLayout), seq)
	}
	return fmt.Sprintf("%s.%s-%02d", artifact, ts.UTC().Format(snapshotTimeLayout), seq)
}

// ParseSnapshotName parses a backup filename produced by SnapshotName.
// Returns false for files that do not belong to the given artifact or do
// not follow the naming scheme (operators drop stray files in backup
// directories; those are ignored, not errors).
func ParseSnapshotName(artifact, name string) (SnapshotRef, bool) {
	rest, ok := strings.CutPrefix(name, artifact+".")
	if !ok {
		return SnapshotRef{}, false
	}

	label := ""
	if r, ok := strings.CutPrefix(rest, LabelPreRollback+"."); ok {
		label = LabelPreRollback
		rest = r
	}

	// rest is now "<ts>-<seq>" where ts itself contains one dash.
	i := strings.LastIndex(rest, "-")
	if i < 0 {
		return SnapshotRef{}, false
	}
	seq, err := strconv.Atoi(rest[i+1:])
	if err != nil {
		return SnapshotRef{}, false
	}
	ts, err := time.Parse(snapshotTimeLayout, rest[:i])
	if err != nil {
		return SnapshotRef{}, false
	}

	return SnapshotRef{
		Name:      name,
		Label:     label,
		Timestamp: ts,
		Seq:       seq,
	}, true
}

// Before reports whether s was created before other, ordering by timestamp
// and then by sequence number for snapshots within the same second.
func (s SnapshotRef) Before(other SnapshotRef) bool {
	if !s.Timestamp.Equal(other.Timestamp) {
		return s.Timestamp.Before(other.Timestamp)
	}
	return s.Seq < other.Seq
}
