package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zoe-analytics/zoe/pkg/api"
	"github.com/zoe-analytics/zoe/pkg/config"
	"github.com/zoe-analytics/zoe/pkg/events"
	"github.com/zoe-analytics/zoe/pkg/facade"
	"github.com/zoe-analytics/zoe/pkg/log"
	"github.com/zoe-analytics/zoe/pkg/manager"
	"github.com/zoe-analytics/zoe/pkg/metrics"
	"github.com/zoe-analytics/zoe/pkg/runtime"
	"github.com/zoe-analytics/zoe/pkg/scheduler"
	"github.com/zoe-analytics/zoe/pkg/stats"
	"github.com/zoe-analytics/zoe/pkg/types"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "run a control plane node",
	RunE:  runServer,
}

func init() {
	serverCmd.Flags().String("config", "", "path to a YAML config file")
	serverCmd.Flags().String("node-id", "", "this node's Raft ID (defaults to hostname)")
	serverCmd.Flags().Bool("bootstrap", false, "bootstrap a new single-node cluster")
	serverCmd.Flags().String("join-addr", "", "an existing leader's API base URL (e.g. http://host:8080) to join")
	serverCmd.Flags().String("join-token", "", "join token presented to --join-addr")
	serverCmd.Flags().String("containerd-socket", "", "containerd socket path; empty uses the in-memory fake driver")
	serverCmd.Flags().String("bootstrap-admin-password", "", "if set, creates an initial admin account with this password on bootstrap")
}

func runServer(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	nodeID, _ := cmd.Flags().GetString("node-id")
	if nodeID == "" {
		nodeID, _ = os.Hostname()
	}
	if cfg.SessionSigningKey == "" {
		cfg.SessionSigningKey, err = randomKey()
		if err != nil {
			return err
		}
		log.Warn("no session_signing_key configured, generated a random one; sessions will not survive a restart")
	}

	mgr, err := manager.NewManager(&manager.Config{
		NodeID:   nodeID,
		BindAddr: cfg.BindAddr,
		DataDir:  cfg.DataDir,
	})
	if err != nil {
		return fmt.Errorf("create manager: %w", err)
	}

	bootstrap, _ := cmd.Flags().GetBool("bootstrap")
	joinAddr, _ := cmd.Flags().GetString("join-addr")
	joinToken, _ := cmd.Flags().GetString("join-token")
	switch {
	case bootstrap:
		if err := mgr.Bootstrap(); err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
	case joinAddr != "":
		if err := mgr.Join(joinAddr, joinToken); err != nil {
			return fmt.Errorf("join %s: %w", joinAddr, err)
		}
	default:
		return errors.New("one of --bootstrap or --join-addr is required")
	}

	if bootstrap {
		if adminPassword, _ := cmd.Flags().GetString("bootstrap-admin-password"); adminPassword != "" {
			if err := createBootstrapAdmin(mgr, adminPassword); err != nil {
				return err
			}
		}
	}

	driver, err := newDriver(cmd, cfg)
	if err != nil {
		return err
	}

	statsProvider := stats.NewProvider(driver, cfg.StatsPollInterval)
	statsProvider.Start()

	sched := scheduler.New(mgr, driver, statsProvider, cfg.SchedulerTickInterval)
	sched.Start()

	f := facade.New(mgr, sched, facade.Config{
		ServiceLogsBasePath:     cfg.ServiceLogsBasePath,
		DeploymentName:          cfg.DeploymentName,
		GuestQuotaMaxExecutions: cfg.GuestQuotaMaxExecutions,
	})

	srv := api.NewServer(f, mgr, api.Config{
		SessionSigningKey:  cfg.SessionSigningKey,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})
	if cfg.ObserverSharedSecret != "" {
		srv.SetEventIngest(events.NewIngest(events.IngestConfig{
			Prefix:       cfg.ContainerNamePrefix,
			SharedSecret: cfg.ObserverSharedSecret,
		}, sched, mgr.GetEventBroker()))
	}

	collector := metrics.NewCollector(mgr)
	collector.Start()

	httpSrv := &http.Server{Addr: cfg.BindAddr, Handler: srv.Router()}
	serveErrCh := make(chan error, 1)
	go func() {
		log.Info("zoe server listening on " + cfg.BindAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
	}()

	if bootstrap {
		if token, err := mgr.GenerateJoinToken("manager"); err == nil {
			log.Info("manager join token: " + token.Token)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received " + sig.String() + ", shutting down")
	case err := <-serveErrCh:
		log.Errorf("api server", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	sched.Stop()
	statsProvider.Stop()
	collector.Stop()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Errorf("http server shutdown", err)
	}
	if err := mgr.Shutdown(); err != nil {
		log.Errorf("manager shutdown", err)
	}
	return nil
}

func newDriver(cmd *cobra.Command, cfg config.Config) (runtime.Driver, error) {
	socket, _ := cmd.Flags().GetString("containerd-socket")
	if socket == "" {
		log.Warn("no --containerd-socket set, using the in-memory fake driver")
		return runtime.NewFakeDriver(cfg.ContainerNamePrefix), nil
	}
	driver, err := runtime.NewContainerdDriver(socket, cfg.ContainerNamePrefix)
	if err != nil {
		return nil, fmt.Errorf("connect to containerd at %s: %w", socket, err)
	}
	return driver, nil
}

func createBootstrapAdmin(mgr *manager.Manager, password string) error {
	hash, err := api.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash bootstrap admin password: %w", err)
	}
	return mgr.CreateUser(&types.User{
		ID:           "admin",
		Name:         "admin",
		Role:         types.RoleAdmin,
		PasswordHash: hash,
	})
}

func randomKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session signing key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
