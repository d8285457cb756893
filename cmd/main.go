package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tcat.dev/transit"
	"tcat.dev/transit/config"
	"tcat.dev/transit/downloader"
	"tcat.dev/transit/logging"
	"tcat.dev/transit/storage"
)

var rootCmd = &cobra.Command{
	Use:          "transit",
	Short:        "Bus route planning tool",
	Long:         "Requests bus routes, follows their delays and manages the stop catalog",
	SilenceUsage: true,
}

var (
	configPath string
	logLevel   string
	headers    []string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".env", "Env file to read configuration from")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "", "", "Log level (overrides TRANSIT_LOG_LEVEL)")
	rootCmd.PersistentFlags().StringSliceVarP(
		&headers,
		"header",
		"",
		[]string{},
		"HTTP header sent upstream, on form <key>:<value>",
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func parseHeaders(headers []string) (map[string]string, error) {
	parsed := map[string]string{}
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("'%s' is not on form <key>:<value>", header)
		}
		parsed[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return parsed, nil
}

// Sets up a Manager from configuration. The returned function releases
// everything it holds.
func loadManager(ctx context.Context) (*transit.Manager, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	cfg.Upstream.ExtraHeaders, err = parseHeaders(headers)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid header: %w", err)
	}

	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	logger, err := logging.New(level)
	if err != nil {
		return nil, nil, fmt.Errorf("creating logger: %w", err)
	}

	s, err := openStorage(cfg.Storage)
	if err != nil {
		logger.Sync()
		return nil, nil, err
	}

	closers := []func() error{s.Close}

	m := transit.NewManager(s, cfg.Upstream)
	m.Logger = logger

	switch cfg.Cache.Backend {
	case "filesystem":
		fs, err := downloader.NewFilesystem(cfg.Cache.FilesystemPath, logger)
		if err != nil {
			s.Close()
			return nil, nil, fmt.Errorf("creating cache: %w", err)
		}
		if _, err := fs.Prune(); err != nil {
			logger.Warn("pruning cache", zap.Error(err))
		}
		m.Downloader = fs
	case "redis":
		r, err := downloader.DialRedis(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB, logger)
		if err != nil {
			s.Close()
			return nil, nil, err
		}
		m.Downloader = r
		closers = append(closers, r.Close)
	default:
		d := downloader.NewMemory()
		d.Logger = logger
		m.Downloader = d
	}

	cleanup := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Warn("closing", zap.Error(err))
			}
		}
		logger.Sync()
	}

	return m, cleanup, nil
}

func openStorage(cfg config.Storage) (storage.Storage, error) {
	switch cfg.Backend {
	case "sqlite":
		return storage.NewSQLiteStorage(storage.SQLiteConfig{OnDisk: true, Directory: cfg.SQLiteDir})
	case "postgres":
		return storage.NewPSQLStorage(cfg.PostgresDSN, false)
	case "memory":
		return storage.NewMemoryStorage(), nil
	}
	return nil, fmt.Errorf("unknown storage backend '%s'", cfg.Backend)
}
