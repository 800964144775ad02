package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vk/mdsweep/internal/ctxlog"
	"github.com/vk/mdsweep/internal/dataset"
	"github.com/vk/mdsweep/internal/dataset/objstore"
	"github.com/vk/mdsweep/internal/events"
	"github.com/vk/mdsweep/internal/ledger"
	"github.com/vk/mdsweep/internal/scheduler"
	"github.com/vk/mdsweep/internal/workflow"
)

// Run executes the sweep described by the loaded configuration.
func (a *App) Run(ctx context.Context, appConfig *Config) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	store, err := a.objectStore(ctx, appConfig)
	if err != nil {
		return err
	}

	input, err := a.loadInput(ctx, appConfig, store)
	if err != nil {
		return err
	}

	workers := appConfig.WorkerCount
	if workers <= 0 && a.model.Sweep != nil {
		workers = a.model.Sweep.Workers
	}
	if workers <= 0 {
		workers = 4
	}

	emitter, closeEmitter := a.emitter(ctx)
	defer closeEmitter()

	wf, err := workflow.New(a.template, a.registry,
		workflow.WithWorkers(workers),
		workflow.WithEmitter(emitter),
	)
	if err != nil {
		return err
	}

	a.logger.Info("Starting sweep.", "leaves", wf.LeafCount(), "workers", workers)
	started := time.Now()
	stream, err := wf.Run(ctx, input)
	if err != nil {
		return err
	}

	for r := range stream {
		if r.Failed() {
			a.logger.Warn("Leaf failed.", "leaf", r.LeafIndex, "nodeID", r.NodeID, "error", r.Err)
			continue
		}
		a.logger.Info("Leaf completed.", "leaf", r.LeafIndex, "assignment", r.Pipeline.Assignment())
	}
	runErr := wf.Wait()
	finished := time.Now()

	results := wf.Results()
	if results != nil {
		a.report(ctx, appConfig, wf.RunID(), started, finished, results, store)
	}

	if runErr != nil {
		return fmt.Errorf("sweep failed: %w", runErr)
	}
	a.logger.Info("Sweep finished.", "elapsed", finished.Sub(started).Round(time.Millisecond))
	return nil
}

// loadInput assembles the initial dataset from the object store, an explicit
// manifest, or the manifest named in the sweep block.
func (a *App) loadInput(ctx context.Context, appConfig *Config, store *objstore.Store) (dataset.Handle, error) {
	if appConfig.DatasetKey != "" {
		if store == nil {
			return nil, fmt.Errorf("dataset key %q given but object store is not configured", appConfig.DatasetKey)
		}
		return store.GetFrames(ctx, appConfig.DatasetKey)
	}

	manifestPath := appConfig.DatasetPath
	if manifestPath == "" && a.model.Sweep != nil && a.model.Sweep.Dataset != "" {
		// Relative manifests in the sweep block resolve against the sweep file.
		manifestPath = a.model.Sweep.Dataset
		if !filepath.IsAbs(manifestPath) {
			manifestPath = filepath.Join(filepath.Dir(appConfig.SweepPath), manifestPath)
		}
	}
	if manifestPath == "" {
		return nil, fmt.Errorf("no input dataset: provide a manifest path or an object store key")
	}

	manifest, err := dataset.LoadManifest(manifestPath)
	if err != nil {
		return nil, err
	}
	return manifest.Load(ctx, filepath.Dir(manifestPath))
}

// emitter wires the kafka event bus when brokers are configured.
func (a *App) emitter(ctx context.Context) (events.Emitter, func()) {
	brokers := kafkaBrokers()
	if len(brokers) == 0 {
		return events.Null{}, func() {}
	}
	topic := os.Getenv(envKafkaTopic)
	if topic == "" {
		topic = "mdsweep.runs"
	}
	emitter := events.NewKafkaEmitter(brokers, topic)
	a.logger.Info("Run events will be published.", "brokers", brokers, "topic", topic)
	return emitter, func() {
		if err := emitter.Close(); err != nil {
			a.logger.Warn("Failed to close event emitter.", "error", err)
		}
	}
}

// objectStore wires the minio-backed dataset store when configured.
func (a *App) objectStore(ctx context.Context, appConfig *Config) (*objstore.Store, error) {
	endpoint := os.Getenv(envMinioEndpoint)
	if endpoint == "" {
		if appConfig.DatasetKey != "" || appConfig.PersistLeafs {
			return nil, fmt.Errorf("object store requested but %s is not set", envMinioEndpoint)
		}
		return nil, nil
	}
	store, err := objstore.New(objstore.Config{
		Endpoint:  endpoint,
		AccessKey: os.Getenv(envMinioAccessKey),
		SecretKey: os.Getenv(envMinioSecretKey),
		UseSSL:    os.Getenv(envMinioUseSSL) == "true",
		Bucket:    os.Getenv(envMinioBucket),
	})
	if err != nil {
		return nil, err
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// report persists run outcomes to the configured integrations: leaf rows to
// the ledger, leaf output datasets to the object store. Reporting failures
// are logged, not fatal; the computation itself succeeded.
func (a *App) report(ctx context.Context, appConfig *Config, runID string, started, finished time.Time, results []scheduler.LeafResult, store *objstore.Store) {
	if dsn := os.Getenv(envDatabaseURL); dsn != "" {
		sweepName := ""
		if a.model.Sweep != nil {
			sweepName = a.model.Sweep.Name
		}
		l, err := ledger.Open(ctx, dsn)
		if err != nil {
			a.logger.Warn("Ledger unavailable, run not recorded.", "error", err)
		} else {
			defer l.Close()
			rec := ledger.RunRecord{RunID: runID, SweepName: sweepName, StartedAt: started, FinishedAt: finished}
			if err := l.Record(ctx, rec, results); err != nil {
				a.logger.Warn("Failed to record run in ledger.", "error", err)
			}
		}
	}

	if appConfig.PersistLeafs && store != nil {
		for _, r := range results {
			if r.Failed() {
				continue
			}
			frames, err := dataset.AsFrames(r.Output)
			if err != nil {
				a.logger.Warn("Leaf output is not storable.", "leaf", r.LeafIndex, "error", err)
				continue
			}
			key := fmt.Sprintf("%s/leaf-%04d", runID, r.LeafIndex)
			if err := store.PutFrames(ctx, key, frames); err != nil {
				a.logger.Warn("Failed to store leaf output.", "leaf", r.LeafIndex, "error", err)
			}
		}
	}
}
