package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/webdeploy/internal/deploy"
	"github.com/edvin/webdeploy/internal/model"
)

type stubResolver struct {
	host model.Host
	err  error
}

func (s *stubResolver) Resolve(ctx context.Context, tag string) (model.Host, error) {
	return s.host, s.err
}

type stubProber struct {
	res *deploy.ProbeResult
	err error
}

func (s *stubProber) Probe(ctx context.Context, host model.Host) (*deploy.ProbeResult, error) {
	return s.res, s.err
}

type stubPublisher struct {
	published []bool
	err       error
}

func (s *stubPublisher) PublishHealth(ctx context.Context, tag string, healthy bool) error {
	s.published = append(s.published, healthy)
	return s.err
}

// The prometheus collectors register globally, so one watcher serves all
// subtests.
func TestWatcher_Check(t *testing.T) {
	resolver := &stubResolver{host: model.Host{Tag: "web-prod", Address: "203.0.113.10"}}
	prober := &stubProber{}
	publisher := &stubPublisher{}

	w := NewWatcher(zerolog.Nop(), resolver, prober, publisher, "web-prod", "Welcome", time.Minute)
	ctx := context.Background()

	t.Run("healthy", func(t *testing.T) {
		prober.res, prober.err = &deploy.ProbeResult{StatusCode: 200, Body: "<h1>Welcome</h1>"}, nil
		w.check(ctx)
		require.Len(t, publisher.published, 1)
		assert.True(t, publisher.published[0])
	})

	t.Run("non-200 status", func(t *testing.T) {
		prober.res, prober.err = &deploy.ProbeResult{StatusCode: 500}, nil
		w.check(ctx)
		assert.False(t, publisher.published[1])
	})

	t.Run("probe failure", func(t *testing.T) {
		prober.res, prober.err = nil, errors.New("connection refused")
		w.check(ctx)
		assert.False(t, publisher.published[2])
	})

	t.Run("missing expected content", func(t *testing.T) {
		prober.res, prober.err = &deploy.ProbeResult{StatusCode: 200, Body: "maintenance page"}, nil
		w.check(ctx)
		assert.False(t, publisher.published[3])
	})

	t.Run("resolver failure", func(t *testing.T) {
		prober.res, prober.err = &deploy.ProbeResult{StatusCode: 200, Body: "Welcome"}, nil
		resolver.err = errors.New("no running instance")
		w.check(ctx)
		assert.False(t, publisher.published[4])
		resolver.err = nil
	})

	t.Run("publish failure only logs", func(t *testing.T) {
		publisher.err = errors.New("throttled")
		w.check(ctx)
		assert.True(t, publisher.published[5])
	})
}
