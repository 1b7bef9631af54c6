package model

// Host describes the managed host an operation acts on. It is resolved
// fresh from the cloud provider before every operation; addresses are
// never cached between invocations.
type Host struct {
	// Tag is the stable Name tag used to look the instance up.
	Tag        string `json:"tag"`
	InstanceID string `json:"instance_id"`
	Address    string `json:"address"`
	State      string `json:"state"`
	// User and KeyPath come from configuration, not from the provider.
	User    string `json:"user"`
	KeyPath string `json:"key_path,omitempty"`
}
