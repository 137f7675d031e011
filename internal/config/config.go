package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

type ServerConfig struct {
	Addr          string   `toml:"addr" validate:"required"`
	ReplyCacheTTL Duration `toml:"reply_cache_ttl"`
	PublishQueue  int      `toml:"publish_queue" validate:"gte=1"`
}

type WorldModelConfig struct {
	RootID               string   `toml:"root_id" validate:"required,uuid"`
	AutoMountRemoteRoots bool     `toml:"auto_mount_remote_roots"`
	MaxHistoryDuration   Duration `toml:"max_history_duration"`
	LockStripes          int      `toml:"lock_stripes" validate:"gte=1,lte=65536"`
}

type MonitorConfig struct {
	QueueSize int `toml:"queue_size" validate:"gte=1"`
}

type MemgraphConfig struct {
	Enabled   bool   `toml:"enabled"`
	URI       string `toml:"uri" validate:"required_if=Enabled true"`
	User      string `toml:"user"`
	Password  string `toml:"password"`
	QueueSize int    `toml:"queue_size" validate:"gte=1"`
}

type SceneConfig struct {
	File string `toml:"file"`
}

type LogConfig struct {
	Level  string `toml:"level" validate:"oneof=debug info warn error"`
	Format string `toml:"format" validate:"oneof=text json"`
}

type Config struct {
	Server     ServerConfig     `toml:"server"`
	WorldModel WorldModelConfig `toml:"world_model"`
	Monitor    MonitorConfig    `toml:"monitor"`
	Memgraph   MemgraphConfig   `toml:"memgraph"`
	Scene      SceneConfig      `toml:"scene"`
	Log        LogConfig        `toml:"log"`
}

// Duration reads TOML strings such as "30s" or "5m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:          ":8080",
			ReplyCacheTTL: Duration{time.Minute},
			PublishQueue:  1024,
		},
		WorldModel: WorldModelConfig{
			RootID:      "e379121f-06c6-4e21-ae9d-ae78ec1986a1",
			LockStripes: 64,
		},
		Monitor: MonitorConfig{QueueSize: 256},
		Memgraph: MemgraphConfig{
			URI:       "bolt://localhost:7687",
			QueueSize: 4096,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads the TOML file at path on top of the defaults. An empty path
// skips the file. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	texts := map[string]*string{
		"RSG_ADDR":              &c.Server.Addr,
		"RSG_ROOT_ID":           &c.WorldModel.RootID,
		"RSG_SCENE_FILE":        &c.Scene.File,
		"RSG_LOG_LEVEL":         &c.Log.Level,
		"RSG_LOG_FORMAT":        &c.Log.Format,
		"RSG_MEMGRAPH_URI":      &c.Memgraph.URI,
		"RSG_MEMGRAPH_USER":     &c.Memgraph.User,
		"RSG_MEMGRAPH_PASSWORD": &c.Memgraph.Password,
	}
	for key, dst := range texts {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"RSG_MEMGRAPH_ENABLED":        &c.Memgraph.Enabled,
		"RSG_AUTO_MOUNT_REMOTE_ROOTS": &c.WorldModel.AutoMountRemoteRoots,
	}
	for key, dst := range bools {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("failed to parse %s: %w", key, err)
			}
			*dst = b
		}
	}

	ints := map[string]*int{
		"RSG_MONITOR_QUEUE_SIZE": &c.Monitor.QueueSize,
		"RSG_LOCK_STRIPES":       &c.WorldModel.LockStripes,
	}
	for key, dst := range ints {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("failed to parse %s: %w", key, err)
			}
			*dst = n
		}
	}

	durations := map[string]*Duration{
		"RSG_REPLY_CACHE_TTL":      &c.Server.ReplyCacheTTL,
		"RSG_MAX_HISTORY_DURATION": &c.WorldModel.MaxHistoryDuration,
	}
	for key, dst := range durations {
		if v, ok := lookup(key); ok && v != "" {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				return fmt.Errorf("failed to parse %s: %w", key, err)
			}
		}
	}

	// PORT is what most hosting platforms set.
	if port, ok := lookup("PORT"); ok && port != "" {
		if _, set := lookup("RSG_ADDR"); !set {
			c.Server.Addr = ":" + port
		}
	}
	return nil
}
