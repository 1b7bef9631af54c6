package model

// DeployState tracks how far a deployment got before succeeding or failing.
type DeployState string

const (
	StateIdle             DeployState = "idle"
	StatePreflightChecked DeployState = "preflight_checked"
	StateConnected        DeployState = "connected"
	StateBackedUp         DeployState = "backed_up"
	StateUploaded         DeployState = "uploaded"
	StateInstalled        DeployState = "installed"
	StateVerified         DeployState = "verified"
	StateFailed           DeployState = "failed"
)

// DeploymentResult is the transient outcome of one deploy attempt. It is
// returned to the caller and never persisted.
type DeploymentResult struct {
	OperationID string       `json:"operation_id"`
	Success     bool         `json:"success"`
	Host        Host         `json:"host"`
	Snapshot    *SnapshotRef `json:"snapshot,omitempty"`
	State       DeployState  `json:"state"`
	Reason      string       `json:"reason,omitempty"`
}

// RollbackResult is the transient outcome of one rollback attempt.
type RollbackResult struct {
	OperationID string       `json:"operation_id"`
	Success     bool         `json:"success"`
	Host        Host         `json:"host"`
	Restored    *SnapshotRef `json:"restored,omitempty"`
	// PreRollback is the snapshot of whatever was live before the restore.
	PreRollback *SnapshotRef `json:"pre_rollback,omitempty"`
	Reason      string       `json:"reason,omitempty"`
}
