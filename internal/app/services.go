package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/TPO-2024-2025/DynamicScenes/internal/api"
	"github.com/TPO-2024-2025/DynamicScenes/internal/attr"
	"github.com/TPO-2024-2025/DynamicScenes/internal/config"
	"github.com/TPO-2024-2025/DynamicScenes/internal/coordinator"
	"github.com/TPO-2024-2025/DynamicScenes/internal/eventbus"
	"github.com/TPO-2024-2025/DynamicScenes/internal/hass"
	"github.com/TPO-2024-2025/DynamicScenes/internal/scene"
	"github.com/TPO-2024-2025/DynamicScenes/internal/storage"
	"github.com/TPO-2024-2025/DynamicScenes/internal/update"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	Store     *storage.Store
	Bus       *eventbus.Bus
	Registry  *attr.Registry
	Library   *scene.Library
	Scheduler *update.Scheduler

	// High-level services
	Hass        *hass.Client
	Coordinator *coordinator.Coordinator
	API         *api.Server
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	store, err := storage.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.Store = store

	s.Registry = attr.NewRegistry()
	if err := attr.RegisterDefaults(s.Registry); err != nil {
		s.Close()
		return nil, err
	}

	s.Library, err = scene.Load(cfg.Scenes.Path, s.Registry)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.Bus = eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())
	s.Scheduler = update.NewScheduler()

	s.Hass = hass.NewClient(hass.Config{
		URL:           cfg.Hass.URL,
		Token:         cfg.Hass.Token,
		CallTimeout:   cfg.Hass.CallTimeout.Duration(),
		MinBackoff:    cfg.Hass.MinRetryBackoff.Duration(),
		MaxBackoff:    cfg.Hass.MaxRetryBackoff.Duration(),
		Multiplier:    cfg.Hass.RetryMultiplier,
		MaxReconnects: cfg.Hass.MaxReconnects,
		RateLimitRPS:  cfg.Hass.RateLimitRPS,
	}, s.Bus)

	s.Coordinator = coordinator.New(
		coordinator.Config{
			DefaultDelay:    cfg.Updater.DefaultDelay.Duration(),
			RefreshInterval: cfg.Updater.RefreshInterval.Duration(),
		},
		s.Bus, s.Store, s.Library, s.Hass, s.Hass, s.Scheduler,
	)

	if cfg.API.Enabled {
		s.API = api.NewServer(cfg.API.Host, cfg.API.Port, s.Coordinator, s.Hass.Connected)
	}

	return s, nil
}

// Start starts all services in the correct order.
// The onFatalError callback is called when a fatal error occurs (e.g., max reconnects exceeded).
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	go func() {
		if err := s.Hass.Run(ctx); err != nil {
			onFatalError(err)
		}
	}()

	log.Info().Msg("Waiting for Home Assistant connection")
	if err := s.Hass.WaitReady(ctx); err != nil {
		return err
	}

	if err := s.Coordinator.Init(ctx); err != nil {
		return err
	}

	go func() {
		if err := s.Coordinator.Run(ctx); err != nil {
			onFatalError(err)
		}
	}()

	if s.API != nil {
		go func() {
			if err := s.API.Run(ctx, s.cfg.ShutdownTimeout.Duration()); err != nil {
				onFatalError(err)
			}
		}()
	}

	return nil
}

// ClearSettings clears all persisted entity settings.
func (s *Services) ClearSettings() error {
	return s.Store.Clear()
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Coordinator != nil {
		s.Coordinator.Stop()
	}
	if s.Scheduler != nil {
		s.Scheduler.Stop()
	}
	if s.Bus != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		s.Bus.Close(shutdownCtx)
		cancel()
	}
	if s.Store != nil {
		s.Store.Close()
	}
}
