package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/roman-kulish/survey-transfer/internal/device"
	"github.com/roman-kulish/survey-transfer/internal/flightlog"
	"github.com/roman-kulish/survey-transfer/internal/route"
	"github.com/roman-kulish/survey-transfer/internal/storage"
	"github.com/roman-kulish/survey-transfer/internal/transfer"
)

// Options are the command line switches of a run
type Options struct {
	Batch    bool
	Wipe     bool
	Snapshot string
}

func Run(ctx context.Context, config *Config, opts Options, logger *slog.Logger) error {
	stores, closeStores, err := createStores(ctx, config, logger)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer closeStores()

	if n := stores.Pending.Len(); n > 0 {
		logger.Warn("pending log holds flights from an unfinished run", slog.Int("entries", n))
	}

	options := []func(*transfer.Session){
		transfer.WithLogger(logger),
		transfer.WithWorkers(config.Transfer.Workers),
		transfer.WithPhantomRoute(config.Transfer.PhantomRoute),
	}
	if opts.Batch {
		options = append(options, transfer.WithBatchMode())
	}
	if opts.Snapshot != "" {
		options = append(options, transfer.WithSnapshot(opts.Snapshot))
	}
	session := transfer.NewSession(config.Paths.OutputRoot, stores, options...)

	resumed, err := session.Restore()
	if err != nil {
		return fmt.Errorf("failed to resume session: %w", err)
	}
	if !resumed {
		roots, err := findDevices(&config.Devices)
		if err != nil {
			return fmt.Errorf("failed to find devices: %w", err)
		}
		if len(roots) == 0 {
			logger.Info("no devices with a DCIM folder found")
			return nil
		}
		if err = session.Start(roots...); err != nil {
			return err
		}
	}

	var operator transfer.Operator
	if opts.Batch {
		operator = &batchOperator{wipe: opts.Wipe, logger: logger}
	} else {
		operator = newTerminalOperator(os.Stdin, os.Stdout)
	}

	return transfer.Drive(ctx, session, operator, logger)
}

func createStores(ctx context.Context, config *Config, logger *slog.Logger) (transfer.Stores, func(), error) {
	var stores transfer.Stores
	var backend route.Backend
	closeStores := func() {}

	switch config.Storage.Backend {
	case BackendSqlite:
		store := storage.NewSqliteStore(config.Storage.Database, storage.WithLogger(logger))
		closeStores = func() {
			if err := store.Close(); err != nil {
				logger.Error(fmt.Sprintf("closing database: %s", err.Error()))
			}
		}
		backend = store
		stores.Ledger = store

	default:
		backend = route.NewCSVBackend(config.Paths.RouteCatalog)
		stores.Ledger = flightlog.NewCSVLedger(config.Paths.FlightLog, flightlog.WithLedgerLogger(logger))
	}

	stores.Catalog = route.NewCatalog(backend, route.WithLogger(logger))
	if err := stores.Catalog.Load(ctx); err != nil {
		closeStores()
		return stores, nil, err
	}

	pending, err := flightlog.OpenPendingLog(config.Paths.PendingLog, flightlog.WithLogger(logger))
	if err != nil {
		closeStores()
		return stores, nil, err
	}
	stores.Pending = pending

	return stores, closeStores, nil
}

func findDevices(config *DevicesConfig) ([]string, error) {
	scanner := device.NewScanner(
		device.WithDCIMFolder(config.DCIMFolder),
		device.WithMountPoints(config.MountPoints...),
	)

	var devices []device.Device
	var err error
	if len(config.Roots) > 0 {
		devices, err = scanner.FromRoots(config.Roots...)
	} else {
		devices, err = scanner.Scan()
	}
	if err != nil {
		return nil, err
	}

	roots := make([]string, len(devices))
	for i, d := range devices {
		roots[i] = d.DCIM
	}
	return roots, nil
}
