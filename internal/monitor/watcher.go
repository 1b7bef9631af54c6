package monitor

import (
	"context"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/edvin/webdeploy/internal/deploy"
	"github.com/edvin/webdeploy/internal/model"
)

// Prober issues one liveness probe against a host.
type Prober interface {
	Probe(ctx context.Context, host model.Host) (*deploy.ProbeResult, error)
}

// HealthPublisher receives the binary health signal.
type HealthPublisher interface {
	PublishHealth(ctx context.Context, tag string, healthy bool) error
}

// HostResolver resolves the host fresh before each check, same as the
// controllers do.
type HostResolver interface {
	Resolve(ctx context.Context, tag string) (model.Host, error)
}

// Watcher probes the site on a fixed interval and publishes the result to
// CloudWatch and local Prometheus gauges. It only observes; it never
// deploys, restarts, or rolls anything back.
type Watcher struct {
	logger    zerolog.Logger
	resolver  HostResolver
	prober    Prober
	publisher HealthPublisher
	tag       string
	expect    string
	interval  time.Duration

	healthStatus prometheus.Gauge
	checksTotal  *prometheus.CounterVec
}

// NewWatcher creates a watcher for the given host tag. expect, when
// non-empty, must appear in the probe body for the site to count as
// healthy.
func NewWatcher(logger zerolog.Logger, resolver HostResolver, prober Prober, publisher HealthPublisher, tag, expect string, interval time.Duration) *Watcher {
	return &Watcher{
		logger:    logger.With().Str("component", "watcher").Logger(),
		resolver:  resolver,
		prober:    prober,
		publisher: publisher,
		tag:       tag,
		expect:    expect,
		interval:  interval,
		healthStatus: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "webdeploy_site_health",
			Help: "Current site health (1=serving, 0=not)",
		}),
		checksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "webdeploy_health_checks_total",
			Help: "Total health checks performed",
		}, []string{"result"}),
	}
}

// RunLoop checks immediately and then on every interval tick until the
// context is cancelled.
func (w *Watcher) RunLoop(ctx context.Context) {
	w.check(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.check(ctx)
		}
	}
}

func (w *Watcher) check(ctx context.Context) {
	healthy := w.probeOnce(ctx)

	if healthy {
		w.healthStatus.Set(1)
		w.checksTotal.WithLabelValues("healthy").Inc()
	} else {
		w.healthStatus.Set(0)
		w.checksTotal.WithLabelValues("unhealthy").Inc()
	}

	if err := w.publisher.PublishHealth(ctx, w.tag, healthy); err != nil {
		w.logger.Warn().Err(err).Msg("failed to publish health metric")
	}
}

func (w *Watcher) probeOnce(ctx context.Context) bool {
	host, err := w.resolver.Resolve(ctx, w.tag)
	if err != nil {
		w.logger.Warn().Err(err).Msg("host resolution failed")
		return false
	}

	probe, err := w.prober.Probe(ctx, host)
	if err != nil {
		w.logger.Warn().Err(err).Str("host", host.Address).Msg("probe failed")
		return false
	}
	if probe.StatusCode != 200 {
		w.logger.Warn().Int("status", probe.StatusCode).Str("host", host.Address).Msg("probe returned non-200")
		return false
	}
	if w.expect != "" && !strings.Contains(probe.Body, w.expect) {
		w.logger.Warn().Str("host", host.Address).Msg("probe body missing expected content")
		return false
	}

	w.logger.Debug().Str("host", host.Address).Msg("site healthy")
	return true
}
