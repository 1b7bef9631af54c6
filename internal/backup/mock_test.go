package backup

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/edvin/webdeploy/internal/model"
	"github.com/edvin/webdeploy/internal/remote"
)

// mockExecutor implements remote.Executor for testing.
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

func ok(stdout string) *remote.Result {
	return &remote.Result{Stdout: stdout, ExitCode: 0}
}

func exit(code int, stderr string) *remote.Result {
	return &remote.Result{Stderr: stderr, ExitCode: code}
}
