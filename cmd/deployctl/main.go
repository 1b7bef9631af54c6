package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/edvin/webdeploy/internal/hostlock"
	"github.com/edvin/webdeploy/internal/metrics"
	"golang.org/x/sync/errgroup"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "deploy":
		cmdDeploy(os.Args[2:])
	case "rollback":
		cmdRollback(os.Args[2:])
	case "list-backups":
		cmdListBackups(os.Args[2:])
	case "monitor":
		cmdMonitor(os.Args[2:])
	case "watch":
		cmdWatch(os.Args[2:])
	case "status":
		cmdStatus(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func cmdDeploy(args []string) {
	fs := flag.NewFlagSet("deploy", flag.ExitOnError)
	configPath := fs.String("c", "", "Path to YAML config file (optional)")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: deployctl deploy [-c config.yaml] <artifact-path>")
		os.Exit(1)
	}

	ctx := context.Background()
	app, err := newApp(ctx, *configPath)
	if err != nil {
		fatal(err)
	}

	lock, err := hostlock.Acquire(app.cfg.LockDir, app.cfg.HostTag)
	if err != nil {
		fatal(err)
	}
	defer lock.Release()

	res, err := app.deployer().Deploy(ctx, fs.Arg(0))
	if err != nil {
		fatal(err)
	}
	fmt.Printf("Deployed %s to %s (%s)\n", fs.Arg(0), res.Host.Tag, res.Host.Address)
	if res.Snapshot != nil {
		fmt.Printf("Previous version preserved as %s\n", res.Snapshot.Name)
	}
}

func cmdRollback(args []string) {
	fs := flag.NewFlagSet("rollback", flag.ExitOnError)
	configPath := fs.String("c", "", "Path to YAML config file (optional)")
	fs.Parse(args)

	ctx := context.Background()
	app, err := newApp(ctx, *configPath)
	if err != nil {
		fatal(err)
	}

	// No snapshot named: list what's available and make the operator pick.
	// Guessing "latest" here turns a typo into the wrong version going live.
	if fs.NArg() < 1 {
		if err := app.printSnapshots(ctx); err != nil {
			fatal(err)
		}
		fmt.Fprintln(os.Stderr, "\nRe-run with an explicit snapshot: deployctl rollback <snapshot-id>")
		os.Exit(1)
	}

	lock, err := hostlock.Acquire(app.cfg.LockDir, app.cfg.HostTag)
	if err != nil {
		fatal(err)
	}
	defer lock.Release()

	res, err := app.rollbacker().Rollback(ctx, fs.Arg(0))
	if err != nil {
		fatal(err)
	}
	fmt.Printf("Rolled back %s to %s\n", res.Host.Tag, res.Restored.Name)
	if res.PreRollback != nil {
		fmt.Printf("Pre-rollback version preserved as %s\n", res.PreRollback.Name)
	}
}

func cmdListBackups(args []string) {
	fs := flag.NewFlagSet("list-backups", flag.ExitOnError)
	configPath := fs.String("c", "", "Path to YAML config file (optional)")
	fs.Parse(args)

	ctx := context.Background()
	app, err := newApp(ctx, *configPath)
	if err != nil {
		fatal(err)
	}
	if err := app.printSnapshots(ctx); err != nil {
		fatal(err)
	}
}

func cmdMonitor(args []string) {
	if len(args) < 1 || args[0] != "setup" {
		fmt.Fprintln(os.Stderr, "Usage: deployctl monitor setup [-c config.yaml]")
		os.Exit(1)
	}
	fs := flag.NewFlagSet("monitor setup", flag.ExitOnError)
	configPath := fs.String("c", "", "Path to YAML config file (optional)")
	fs.Parse(args[1:])

	ctx := context.Background()
	app, err := newApp(ctx, *configPath)
	if err != nil {
		fatal(err)
	}
	if err := app.setupMonitoring(ctx); err != nil {
		fatal(err)
	}
	fmt.Printf("Alarms and dashboard configured for %s\n", app.cfg.HostTag)
}

func cmdWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("c", "", "Path to YAML config file (optional)")
	fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, *configPath)
	if err != nil {
		fatal(err)
	}
	watcher, err := app.watcher(ctx)
	if err != nil {
		fatal(err)
	}

	srv := metrics.NewServer(app.cfg.MetricsListenAddr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		watcher.RunLoop(gctx)
		return nil
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return srv.Shutdown(context.Background())
	})

	app.logger.Info().Str("addr", app.cfg.MetricsListenAddr).Msg("watching site health")
	if err := g.Wait(); err != nil {
		fatal(err)
	}
}

func cmdStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("c", "", "Path to YAML config file (optional)")
	fs.Parse(args)

	ctx := context.Background()
	app, err := newApp(ctx, *configPath)
	if err != nil {
		fatal(err)
	}
	if err := app.printStatus(ctx); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage:
  deployctl deploy [-c config.yaml] <artifact-path>
  deployctl rollback [-c config.yaml] [snapshot-id]
  deployctl list-backups [-c config.yaml]
  deployctl monitor setup [-c config.yaml]
  deployctl watch [-c config.yaml]
  deployctl status [-c config.yaml]

Commands:
  deploy        Back up the live page, upload the artifact and verify it serves
  rollback      Restore a snapshot as the live page (lists snapshots when none given)
  list-backups  Show the snapshot chain, newest first
  monitor setup Create/update CloudWatch alarms and the dashboard
  watch         Probe site health on an interval, publish to CloudWatch and /metrics
  status        One-shot host resolution, probe and latest-snapshot summary

Flags:
  -c string  Path to YAML config file; environment variables override it`)
}
