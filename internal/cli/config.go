package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/ChuLiYu/geotile/internal/coordinator"
	"github.com/ChuLiYu/geotile/internal/metrics"
	"github.com/ChuLiYu/geotile/internal/pipeline"
	"github.com/ChuLiYu/geotile/internal/prune"
	"github.com/ChuLiYu/geotile/internal/render"
)

// Config represents the complete system configuration structure
// Maps config file fields through YAML tags
type Config struct {
	Jobs struct {
		LedgerFile       string        `yaml:"ledger_file"`
		LockFile         string        `yaml:"lock_file"`
		SourcePattern    string        `yaml:"source_pattern"`
		LockTimeout      time.Duration `yaml:"lock_timeout"`
		LockPollInterval time.Duration `yaml:"lock_poll_interval"`
		LeaseTTL         time.Duration `yaml:"lease_ttl"`
		IdleWait         time.Duration `yaml:"idle_wait"`
	} `yaml:"jobs"`

	Tiles struct {
		ZoomMin       int    `yaml:"zoom_min"`
		ZoomMax       int    `yaml:"zoom_max"`
		TileSize      int    `yaml:"tile_size"`
		Format        string `yaml:"format"`
		RenderWorkers int    `yaml:"render_workers"`
	} `yaml:"tiles"`

	Prune struct {
		SizeThresholdBytes int64 `yaml:"size_threshold_bytes"`
		WorkerMultiplier   int   `yaml:"worker_multiplier"`
		MaxWorkers         int   `yaml:"max_workers"`
		BatchSize          int   `yaml:"batch_size"`
	} `yaml:"prune"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // json | console
	} `yaml:"log"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`

	Health struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"health"`
}

// defaultConfig 回傳內建預設值
func defaultConfig() *Config {
	var cfg Config
	cfg.Jobs.LedgerFile = coordinator.DefaultLedgerFile
	cfg.Jobs.LockFile = coordinator.DefaultLockFile
	cfg.Jobs.SourcePattern = coordinator.DefaultSourcePattern
	cfg.Jobs.LockTimeout = coordinator.DefaultLockTimeout
	cfg.Jobs.LockPollInterval = coordinator.DefaultPollInterval
	cfg.Jobs.IdleWait = pipeline.DefaultIdleWait

	cfg.Tiles.ZoomMin = pipeline.DefaultZoomMin
	cfg.Tiles.ZoomMax = pipeline.DefaultZoomMax
	cfg.Tiles.TileSize = pipeline.DefaultTileSize
	cfg.Tiles.Format = pipeline.DefaultFormat

	cfg.Prune.SizeThresholdBytes = prune.DefaultSizeThreshold
	cfg.Prune.WorkerMultiplier = prune.DefaultMultiplier
	cfg.Prune.MaxWorkers = prune.DefaultMaxWorkers
	cfg.Prune.BatchSize = prune.DefaultBatchSize

	cfg.Log.Level = "info"
	cfg.Log.Format = "json"

	cfg.Metrics.Port = 9090
	cfg.Health.Port = 50051
	return &cfg
}

// loadConfig 讀取 YAML 設定；檔案不存在時使用預設值
//
// 檔案中未出現的欄位保留預設值。
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 檢查設定值
func (c *Config) Validate() error {
	switch {
	case c.Tiles.ZoomMin < 0 || c.Tiles.ZoomMax < 0:
		return fmt.Errorf("config: zoom levels must be non-negative")
	case c.Tiles.ZoomMin > c.Tiles.ZoomMax:
		return fmt.Errorf("config: zoom_min %d > zoom_max %d", c.Tiles.ZoomMin, c.Tiles.ZoomMax)
	case c.Tiles.TileSize <= 0:
		return fmt.Errorf("config: tile_size must be positive")
	case c.Prune.BatchSize <= 0:
		return fmt.Errorf("config: prune batch_size must be positive")
	case c.Jobs.LockTimeout <= 0:
		return fmt.Errorf("config: lock_timeout must be positive")
	case c.Jobs.LockPollInterval <= 0:
		return fmt.Errorf("config: lock_poll_interval must be positive")
	case c.Jobs.IdleWait <= 0:
		return fmt.Errorf("config: idle_wait must be positive")
	case c.Jobs.LeaseTTL < 0:
		return fmt.Errorf("config: lease_ttl must not be negative")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	return nil
}

// jobsConfig 轉換為 coordinator.Config
func (c *Config) jobsConfig(log *zap.SugaredLogger, m *metrics.Collector) coordinator.Config {
	return coordinator.Config{
		LedgerFile:    c.Jobs.LedgerFile,
		LockFile:      c.Jobs.LockFile,
		SourcePattern: c.Jobs.SourcePattern,
		LockTimeout:   c.Jobs.LockTimeout,
		PollInterval:  c.Jobs.LockPollInterval,
		LeaseTTL:      c.Jobs.LeaseTTL,
		Logger:        log,
		Metrics:       m,
	}
}

// pruneConfig 轉換為 prune.Config
func (c *Config) pruneConfig(log *zap.SugaredLogger, m *metrics.Collector) prune.Config {
	pc := prune.DefaultConfig()
	pc.SizeThreshold = c.Prune.SizeThresholdBytes
	pc.Multiplier = c.Prune.WorkerMultiplier
	pc.MaxWorkers = c.Prune.MaxWorkers
	pc.BatchSize = c.Prune.BatchSize
	pc.Logger = log
	pc.Metrics = m
	return pc
}

// pipelineConfig 轉換為 pipeline.Config
func (c *Config) pipelineConfig(folder string, log *zap.SugaredLogger, m *metrics.Collector) pipeline.Config {
	return pipeline.Config{
		Folder:   folder,
		Jobs:     c.jobsConfig(log, m),
		ZoomMin:  c.Tiles.ZoomMin,
		ZoomMax:  c.Tiles.ZoomMax,
		TileSize: c.Tiles.TileSize,
		Format:   c.Tiles.Format,
		IdleWait: c.Jobs.IdleWait,
		Prune:    c.pruneConfig(log, m),
		Renderer: &render.SoftwareRenderer{Workers: c.Tiles.RenderWorkers},
		Logger:   log,
		Metrics:  m,
	}
}

// newLogger 依設定建立 zap logger
func newLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var zc zap.Config
	switch format {
	case "console":
		zc = zap.NewDevelopmentConfig()
	case "json", "":
		zc = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	zc.Level = lvl
	return zc.Build()
}
