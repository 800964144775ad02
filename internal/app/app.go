// Package app is the composition root: it wires configuration, logging, the
// stage registry, and the optional integrations into a runnable sweep.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/mdsweep/internal/config"
	"github.com/vk/mdsweep/internal/ctxlog"
	"github.com/vk/mdsweep/internal/hclcfg"
	"github.com/vk/mdsweep/internal/stage"
	"github.com/vk/mdsweep/internal/tree"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	registry *stage.Registry
	model    *config.Model
	template tree.Template
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger and registry. A
// failure to load or validate the sweep declaration is a fatal startup error
// and panics; the CLI entrypoint recovers it into a clean exit.
func NewApp(outW io.Writer, appConfig *Config, mods ...stage.Module) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	loadEnv(logger)

	reg := stage.NewRegistry()
	if len(mods) == 0 {
		mods = coreModules
	}
	for _, mod := range mods {
		mod.Register(reg)
	}
	logger.Debug("Stage modules registered.", "types", reg.Types())

	model, err := hclcfg.Load(ctx, appConfig.SweepPath)
	if err != nil {
		panic(fmt.Errorf("failed to load sweep configuration: %w", err))
	}
	template, err := model.Template()
	if err != nil {
		panic(err)
	}
	// Surface unknown stage types and malformed branches before any work.
	if _, err := tree.Build(ctx, template, reg); err != nil {
		panic(err)
	}
	logger.Debug("Sweep configuration loaded and validated.", "entries", len(template))

	return &App{
		outW:     outW,
		logger:   logger,
		registry: reg,
		model:    model,
		template: template,
	}
}

// Registry returns the application's stage registry. Primarily for testing.
func (a *App) Registry() *stage.Registry {
	return a.registry
}

// Template returns the validated sweep template. Primarily for testing.
func (a *App) Template() tree.Template {
	return a.template
}
