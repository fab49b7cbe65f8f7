package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/SiliconJelly/DubAI/internal/config"
	"github.com/SiliconJelly/DubAI/internal/gpu"
	"github.com/SiliconJelly/DubAI/internal/services/model_registry"
	"github.com/SiliconJelly/DubAI/internal/tts"
	"github.com/SiliconJelly/DubAI/pkg/logger"
)

type App struct {
	config     *config.Config
	ctx        context.Context
	cancelFunc context.CancelFunc

	registry *model_registry.Manager
	backend  tts.Backend
	prober   gpu.Prober

	Logger *zap.Logger
}

// Option funcs used to initialize the App struct
type OptionFunc func(app *App) error

func WithLogger(logger *zap.Logger) OptionFunc {
	return func(app *App) error {
		app.Logger = logger
		return nil
	}
}

func WithRegistry() OptionFunc {
	return func(app *App) error {
		app.registry = model_registry.NewManager(app.config, app.Logger)
		return nil
	}
}

// WithBackend wires the synthesis backend named by config ("sherpa" or
// "mock"); mockOverride forces the mock regardless of config. The sherpa
// backend pulls models through the registry, so this option creates one
// if WithRegistry did not run first.
func WithBackend(mockOverride bool) OptionFunc {
	return func(app *App) error {
		name := app.config.Backend
		if mockOverride {
			name = config.BackendMock
		}

		switch name {
		case config.BackendMock:
			app.prober = gpu.Static(false)
			app.backend = tts.NewManager(tts.NewMockEngine(), app.prober, app.config, app.Logger)
		case config.BackendSherpa, "":
			if app.registry == nil {
				app.registry = model_registry.NewManager(app.config, app.Logger)
			}
			app.prober = gpu.CUDA{}
			engine := tts.NewSherpaEngine(app.config, app.registry, app.Logger)
			app.backend = tts.NewManager(engine, app.prober, app.config, app.Logger)
		default:
			return fmt.Errorf("unknown backend: %s", name)
		}

		return nil
	}
}

func NewApp(config *config.Config, options ...OptionFunc) (*App, error) {
	logger, err := logger.InitLogger(config)
	if err != nil {
		return nil, err
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())

	app := &App{
		ctx:        ctx,
		config:     config,
		Logger:     logger,
		cancelFunc: cancel,
	}

	for _, opt := range options {
		if err := opt(app); err != nil {
			cancel()
			return nil, err
		}
	}

	return app, nil
}

func (app *App) Close() {
	app.cancelFunc()

	if app.backend != nil {
		if err := app.backend.Close(); err != nil {
			app.Logger.Error("failed to close backend", zap.Error(err))
		}
	}
}

func (app *App) Config() *config.Config {
	return app.config
}

func (app *App) Context() context.Context {
	return app.ctx
}

func (app *App) Registry() *model_registry.Manager {
	return app.registry
}

func (app *App) Backend() tts.Backend {
	return app.backend
}
