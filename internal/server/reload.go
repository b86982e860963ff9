package server

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/leslieo2/go-probe-toggle/internal/config"
)

// Name identifies the server to the hot reload coordinator.
func (s *Server) Name() string {
	return "server"
}

// Reload re-reads the configuration source and applies the settings that can
// change without restarting listeners: the log level and the API key set.
// Probe state is never touched.
func (s *Server) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cfg, err := config.LoadConfig(s.configFile, s.cliFlags)
	if err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}

	if err := s.logger.SetLevel(cfg.Observability.Logging.Level); err != nil {
		return fmt.Errorf("failed to apply log level: %w", err)
	}
	s.authManager.Reload(cfg.Security.Auth)

	if cfg.Server != s.config.Server {
		s.logger.Warn("Server settings changed; restart to apply them")
	}

	s.logger.Info("Configuration reloaded",
		zap.String("config_file", s.configFile),
		zap.String("log_level", s.logger.Level().String()),
		zap.Bool("auth_enabled", s.authManager.Enabled()),
		zap.Int("api_keys", s.authManager.KeyCount()),
	)
	return nil
}
