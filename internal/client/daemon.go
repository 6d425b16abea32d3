package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openmined/kbsync/internal/client/config"
	"github.com/openmined/kbsync/internal/client/controlplane"
	"github.com/openmined/kbsync/internal/client/handlers"
	"github.com/openmined/kbsync/internal/client/kbsync"
	"github.com/openmined/kbsync/internal/client/sync"
	"github.com/openmined/kbsync/internal/client/workspace"
	"github.com/openmined/kbsync/internal/kbstore"
	"github.com/openmined/kbsync/internal/syncsdk"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// ClientDaemon owns the local knowledge base, the sync scheduler and the
// control plane of one account.
type ClientDaemon struct {
	config  *config.Config
	ws      *workspace.Workspace
	primary *kbstore.Primary
	sdk     *syncsdk.SDK
	hub     *sync.EventHub
	sched   *sync.Scheduler
	cps     *ControlPlaneServer
}

func NewClientDaemon(cfg *config.Config) (*ClientDaemon, error) {
	ws, err := workspace.NewWorkspace(cfg.DataDir, cfg.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	if err := ws.Setup(); err != nil {
		return nil, fmt.Errorf("failed to setup workspace: %w", err)
	}

	d := &ClientDaemon{config: cfg, ws: ws}
	if err := d.wire(); err != nil {
		d.close()
		return nil, err
	}
	return d, nil
}

func (d *ClientDaemon) wire() error {
	cfg := d.config

	primary, err := kbstore.OpenPrimary(d.ws.Root, cfg.Email)
	if err != nil {
		return fmt.Errorf("failed to open knowledge base: %w", err)
	}
	d.primary = primary

	sdk, err := syncsdk.New(cfg.ServerURL)
	if err != nil {
		return fmt.Errorf("failed to create sdk: %w", err)
	}
	d.sdk = sdk

	sessions, err := syncsdk.NewSessionManager(sdk, cfg.Email, cfg.RefreshToken)
	if err != nil {
		return fmt.Errorf("failed to create session manager: %w", err)
	}
	sessions.OnRefreshToken = d.saveRefreshToken

	endpoints := syncsdk.NewEndpointResolver(sdk)
	syncer := kbsync.NewSyncer(sdk, endpoints)
	primaryDB := kbsync.NewPrimaryDB(primary)
	d.hub = sync.NewEventHub()

	d.sched, err = sync.NewScheduler(sync.Collaborators{
		Primary:     primaryDB,
		Credentials: kbsync.NewCredentials(sessions),
		Full:        syncer,
		Quick:       syncer,
		Messages:    syncer,
		Groups:      primaryDB,
		Endpoints:   endpoints,
		Certs:       syncer,
		Events:      &loggingSink{EventHub: d.hub},
	},
		sync.WithFullSyncInterval(time.Duration(cfg.FullSyncInterval)*time.Minute),
		sync.WithDebugMode(cfg.Debug),
	)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	clientURL := cfg.ClientURL
	if clientURL == "" {
		clientURL = config.DefaultClientURL
	}
	cpConfig, err := controlplane.FromClientURL(clientURL, cfg.ClientToken)
	if err != nil {
		return err
	}
	cpConfig.LogFile = cfg.LogFile

	d.cps, err = NewControlPlaneServer(cpConfig, &RouteDeps{
		Scheduler: d.sched,
		Events:    d.hub,
		Records:   kbsync.NewRecords(primaryDB),
		Messages:  primaryDB,
		Info: &handlers.ClientInfo{
			Email:     cfg.Email,
			DataDir:   d.ws.Root,
			ServerURL: cfg.ServerURL,
			StartedAt: time.Now().UTC().Format(time.RFC3339),
		},
	})
	return err
}

func (d *ClientDaemon) saveRefreshToken(token string) {
	d.config.RefreshToken = token
	if err := d.config.Save(); err != nil {
		slog.Error("save rotated refresh token", "error", err)
	}
}

func (d *ClientDaemon) Start(ctx context.Context) error {
	slog.Info("client daemon start", "email", d.config.Email, "datadir", d.ws.Root, "server", d.config.ServerURL)

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		if err := d.sched.Start(egCtx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		d.sched.SyncAfterStart()
		return nil
	})

	eg.Go(func() error {
		if err := d.cps.Start(egCtx); err != nil {
			return fmt.Errorf("failed to start control plane: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egCtx.Done()
		slog.Info("received interrupt signal, stopping daemon")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return d.Stop(shutdownCtx)
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("client daemon failure", "error", err)
		return err
	}

	slog.Info("client daemon stopped")
	return nil
}

// Stop waits for the running sync operation, then shuts everything down.
func (d *ClientDaemon) Stop(ctx context.Context) error {
	var errs []error
	if err := d.sched.StopAndWait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
	}
	if err := d.cps.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop control plane: %w", err))
	}
	if err := d.close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (d *ClientDaemon) close() error {
	var errs []error
	if d.sdk != nil {
		d.sdk.Close()
	}
	if d.primary != nil {
		if err := d.primary.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close knowledge base: %w", err))
		}
	}
	if err := d.ws.Unlock(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
