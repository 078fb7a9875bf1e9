// Package app provides the entry point shared by the mailing commands:
// configuration resolution, component wiring and the run loop.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/newspaper/mailing/internal/config"
	"github.com/newspaper/mailing/internal/logging"
)

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called automatically.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides the default persistent data directory.
	DataDir string

	// LogLevel overrides log.level from the configuration when set.
	LogLevel string

	// LogOutput receives the process log. Defaults to os.Stderr.
	LogOutput io.Writer
}

// Run loads configuration, starts all components, and blocks until SIGINT or
// SIGTERM is received.
func Run(params RunParams) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return RunContext(ctx, params)
}

// RunContext is Run with the lifetime bound to ctx instead of signals.
func RunContext(ctx context.Context, params RunParams) error {
	cfg, cfgPath, err := LoadConfig(params.ConfigPath, params.DataDir)
	if err != nil {
		return err
	}
	if params.LogLevel != "" {
		cfg.Log.Level = params.LogLevel
	}

	out := params.LogOutput
	if out == nil {
		out = os.Stderr
	}
	redactor := newRedactor(cfg)
	logger, err := logging.New(out, cfg.Log, redactor)
	if err != nil {
		return err
	}
	logger.Info("mailing starting",
		"version", params.Version,
		"commit", params.Commit,
		"config", cfgPath,
		"timezone", cfg.Location().String(),
	)

	rt, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	return rt.app.Run(ctx)
}

// LoadConfig resolves, loads, completes and validates the configuration. It
// returns the path actually used.
func LoadConfig(path, dataDir string) (*config.Config, string, error) {
	if path == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return nil, "", err
		}
		path = resolved
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, err
	}
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}
	cfg.Defaults(dataDir)
	if err := config.Validate(cfg); err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// newRedactor registers every configured secret so it never reaches the log.
func newRedactor(cfg *config.Config) *logging.Redactor {
	r := logging.NewRedactor()
	r.AddLiteral(cfg.Mail.Password)
	r.AddLiteral(cfg.Gateway.Auth.BearerToken)
	r.AddLiteral(cfg.Gateway.Auth.BasicPass)
	return r
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/mailing/mailing.yaml → ~/.config/mailing/mailing.yaml → ./mailing.yaml
func ResolveConfigPath() (string, error) {
	candidates := configCandidates()
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

// DefaultConfigPath is where `config init` writes when no path is given: the
// first search location of ResolveConfigPath.
func DefaultConfigPath() string {
	return configCandidates()[0]
}

func configCandidates() []string {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok && xdg != "" {
		candidates = append(candidates, filepath.Join(xdg, "mailing", "mailing.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "mailing", "mailing.yaml"))
	}

	return append(candidates, "mailing.yaml")
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/mailing if set, otherwise ~/.local/share/mailing per the XDG spec.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok && dir != "" {
		return filepath.Join(dir, "mailing")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "mailing")
}
