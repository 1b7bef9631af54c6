package main

import (
	"context"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/edvin/webdeploy/internal/backup"
	"github.com/edvin/webdeploy/internal/cloud"
	"github.com/edvin/webdeploy/internal/config"
	"github.com/edvin/webdeploy/internal/deploy"
	"github.com/edvin/webdeploy/internal/logging"
	"github.com/edvin/webdeploy/internal/model"
	"github.com/edvin/webdeploy/internal/monitor"
	"github.com/edvin/webdeploy/internal/remote"
)

// app wires the components for one CLI invocation.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	ssh      *remote.SSHClient
	resolver *credResolver
	store    *backup.Store
	ops      *deploy.SSHOps
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := logging.NewLogger(cfg)

	ec2api, err := cloud.NewEC2Client(ctx, cfg.AWSRegion)
	if err != nil {
		return nil, err
	}

	ssh := remote.NewSSHClient(logger, cfg.SSHTimeout)
	resolver := &credResolver{
		inner:   cloud.NewResolver(ec2api, logger),
		user:    cfg.SSHUser,
		keyPath: cfg.SSHKeyPath,
	}
	store := backup.NewStore(ssh, logger, cfg.BackupDir, cfg.ArtifactName())
	ops := deploy.NewSSHOps(ssh, deploy.OpsConfig{
		Owner:    cfg.WebOwner,
		Mode:     cfg.WebMode,
		Service:  cfg.ServiceName,
		ProbeURL: cfg.ProbeURL,
	}, logger)

	return &app{
		cfg:      cfg,
		logger:   logger,
		ssh:      ssh,
		resolver: resolver,
		store:    store,
		ops:      ops,
	}, nil
}

func (a *app) deployConfig() deploy.Config {
	return deploy.Config{
		HostTag:         a.cfg.HostTag,
		LivePath:        a.cfg.LivePath,
		StagingPath:     a.cfg.StagingPath,
		ExpectSubstring: a.cfg.ProbeSubstring,
	}
}

func (a *app) archiver(ctx context.Context) (deploy.Archiver, error) {
	if a.cfg.ArchiveBucket == "" {
		return nil, nil
	}
	var opts []func(*awsconfig.LoadOptions) error
	if a.cfg.AWSRegion != "" {
		opts = append(opts, awsconfig.WithRegion(a.cfg.AWSRegion))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return backup.NewArchiver(s3.NewFromConfig(awsCfg), a.store, a.logger, a.cfg.ArchiveBucket), nil
}

func (a *app) deployer() *deploy.Deployer {
	archiver, err := a.archiver(context.Background())
	if err != nil {
		a.logger.Warn().Err(err).Msg("snapshot archival disabled")
		archiver = nil
	}
	return deploy.NewDeployer(a.resolver, a.ssh, a.store, a.ops, archiver, a.deployConfig(), a.logger)
}

func (a *app) rollbacker() *deploy.Rollbacker {
	archiver, err := a.archiver(context.Background())
	if err != nil {
		a.logger.Warn().Err(err).Msg("snapshot archival disabled")
		archiver = nil
	}
	return deploy.NewRollbacker(a.resolver, a.store, a.ops, archiver, a.deployConfig(), a.logger)
}

func (a *app) provider(ctx context.Context) (*monitor.Provider, error) {
	cw, err := monitor.NewCloudWatchClient(ctx, a.cfg.AWSRegion)
	if err != nil {
		return nil, err
	}
	return monitor.NewProvider(cw, a.logger, a.cfg.MetricNamespace, a.cfg.AWSRegion), nil
}

func (a *app) setupMonitoring(ctx context.Context) error {
	host, err := a.resolver.Resolve(ctx, a.cfg.HostTag)
	if err != nil {
		return err
	}
	provider, err := a.provider(ctx)
	if err != nil {
		return err
	}
	if err := provider.EnsureAlarms(ctx, a.cfg.HostTag, host.InstanceID, a.cfg.AlarmActions); err != nil {
		return err
	}
	return provider.PutDashboard(ctx, a.cfg.HostTag, host.InstanceID)
}

func (a *app) watcher(ctx context.Context) (*monitor.Watcher, error) {
	provider, err := a.provider(ctx)
	if err != nil {
		return nil, err
	}
	return monitor.NewWatcher(a.logger, a.resolver, a.ops, provider,
		a.cfg.HostTag, a.cfg.ProbeSubstring, a.cfg.WatchInterval), nil
}

func (a *app) printSnapshots(ctx context.Context) error {
	host, err := a.resolver.Resolve(ctx, a.cfg.HostTag)
	if err != nil {
		return err
	}
	refs, err := a.store.ListSnapshots(ctx, host)
	if err != nil {
		return err
	}
	if len(refs) == 0 {
		fmt.Printf("No snapshots for %s\n", a.cfg.HostTag)
		return nil
	}
	fmt.Printf("Snapshots for %s (newest first):\n", a.cfg.HostTag)
	for _, ref := range refs {
		label := ""
		if ref.Label != "" {
			label = "  [" + ref.Label + "]"
		}
		fmt.Printf("  %s  %s  %d bytes%s\n",
			ref.Name, ref.Timestamp.Format(time.RFC3339), ref.SizeBytes, label)
	}
	return nil
}

func (a *app) printStatus(ctx context.Context) error {
	host, err := a.resolver.Resolve(ctx, a.cfg.HostTag)
	if err != nil {
		return err
	}
	fmt.Printf("Host:     %s (%s, %s)\n", host.Tag, host.InstanceID, host.Address)

	probe, err := a.ops.Probe(ctx, host)
	if err != nil {
		fmt.Printf("Site:     unreachable (%v)\n", err)
	} else {
		fmt.Printf("Site:     HTTP %d\n", probe.StatusCode)
	}

	refs, err := a.store.ListSnapshots(ctx, host)
	if err != nil {
		return err
	}
	if len(refs) == 0 {
		fmt.Println("Backups:  none")
	} else {
		fmt.Printf("Backups:  %d, latest %s\n", len(refs), refs[0].Name)
	}
	return nil
}

// credResolver decorates the EC2 resolver with the SSH identity from
// config; the cloud provider knows addresses, never login credentials.
type credResolver struct {
	inner   *cloud.Resolver
	user    string
	keyPath string
}

func (r *credResolver) Resolve(ctx context.Context, tag string) (model.Host, error) {
	host, err := r.inner.Resolve(ctx, tag)
	if err != nil {
		return model.Host{}, err
	}
	host.User = r.user
	host.KeyPath = r.keyPath
	return host, nil
}
