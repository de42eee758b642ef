package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete dashboard daemon configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Push    PushConfig    `yaml:"push"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Poll    PollConfig    `yaml:"poll"`
	Series  SeriesConfig  `yaml:"series"`
	Notify  NotifyConfig  `yaml:"notify"`
	Dedup   DedupConfig   `yaml:"dedup"`
	Alerts  AlertsConfig  `yaml:"alerts"`
	UI      UIConfig      `yaml:"ui"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains general instance settings
type ServerConfig struct {
	Name string `yaml:"name"`
}

// PushConfig contains websocket push-channel settings
type PushConfig struct {
	Enabled            bool   `yaml:"enabled"`
	URL                string `yaml:"url"`
	Backoff            string `yaml:"backoff"` // "fixed" or "exponential"
	RetryDelaySeconds  int    `yaml:"retry_delay_seconds"`
	MaxDelaySeconds    int    `yaml:"max_delay_seconds"`
	ReadTimeoutSeconds int    `yaml:"read_timeout_seconds"`
}

// MQTTConfig contains broker push-source settings
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	Port     int    `yaml:"port"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
}

// PollConfig contains snapshot polling settings
type PollConfig struct {
	Enabled         bool   `yaml:"enabled"`
	URL             string `yaml:"url"`
	IntervalSeconds int    `yaml:"interval_seconds"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
}

// SeriesConfig contains chart series window settings
type SeriesConfig struct {
	Window int `yaml:"window"`
}

// NotifyConfig contains notification queue settings
type NotifyConfig struct {
	Max       int `yaml:"max"`
	TTLMillis int `yaml:"ttl_ms"`
}

// DedupConfig contains event deduplication settings
type DedupConfig struct {
	Enabled       bool `yaml:"enabled"`
	WindowSeconds int  `yaml:"window_seconds"`
}

// AlertsConfig contains thresholds for event-derived notifications
type AlertsConfig struct {
	LowStockThreshold int `yaml:"low_stock_threshold"`
}

// UIConfig contains terminal dashboard settings
type UIConfig struct {
	Enabled   bool `yaml:"enabled"`
	FrameRate int  `yaml:"frame_rate"`
}

// MetricsConfig contains prometheus exposition settings
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Dir           string `yaml:"dir"`
	RetentionDays int    `yaml:"retention_days"`
}

// Default returns a configuration with every tunable at its default value.
// Load starts from this, so a sparse YAML file only overrides what it names.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Name: "opsdash"},
		Push: PushConfig{
			Enabled:            true,
			Backoff:            "fixed",
			RetryDelaySeconds:  5,
			MaxDelaySeconds:    60,
			ReadTimeoutSeconds: 300,
		},
		MQTT: MQTTConfig{Port: 1883, Topic: "opsdash/events"},
		Poll: PollConfig{
			Enabled:         true,
			IntervalSeconds: 30,
			TimeoutSeconds:  10,
		},
		Series:  SeriesConfig{Window: 20},
		Notify:  NotifyConfig{Max: 10, TTLMillis: 5000},
		Dedup:   DedupConfig{Enabled: true, WindowSeconds: 60},
		Alerts:  AlertsConfig{LowStockThreshold: 5},
		UI:      UIConfig{Enabled: true, FrameRate: 10},
		Metrics: MetricsConfig{Addr: ":9109"},
		Logging: LoggingConfig{RetentionDays: 14},
	}
}

// Load loads configuration from a YAML file, applying defaults for
// anything the file leaves unset.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Push.Enabled && c.Push.URL == "" {
		return fmt.Errorf("push.url is required when push is enabled")
	}
	if c.Poll.Enabled && c.Poll.URL == "" {
		return fmt.Errorf("poll.url is required when polling is enabled")
	}
	switch c.Push.Backoff {
	case "fixed", "exponential":
	default:
		return fmt.Errorf("push.backoff must be \"fixed\" or \"exponential\", got %q", c.Push.Backoff)
	}
	if c.Series.Window < 1 {
		return fmt.Errorf("series.window must be at least 1, got %d", c.Series.Window)
	}
	if c.Notify.Max < 1 {
		return fmt.Errorf("notify.max must be at least 1, got %d", c.Notify.Max)
	}
	return nil
}

// PollInterval returns the polling cadence as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Poll.IntervalSeconds) * time.Second
}

// NotifyTTL returns the notification lifetime as a duration.
func (c *Config) NotifyTTL() time.Duration {
	return time.Duration(c.Notify.TTLMillis) * time.Millisecond
}

// Print displays the configuration
func (c *Config) Print() {
	fmt.Printf("Instance: %s\n", c.Server.Name)
	if c.Push.Enabled {
		fmt.Printf("Push: %s (backoff=%s, retry=%ds)\n", c.Push.URL, c.Push.Backoff, c.Push.RetryDelaySeconds)
	}
	if c.MQTT.Enabled {
		fmt.Printf("MQTT: %s:%d (topic: %s)\n", c.MQTT.Broker, c.MQTT.Port, c.MQTT.Topic)
	}
	if c.Poll.Enabled {
		fmt.Printf("Poll: %s every %ds\n", c.Poll.URL, c.Poll.IntervalSeconds)
	}
	fmt.Printf("Series window: %d points, notifications: max %d ttl %dms\n",
		c.Series.Window, c.Notify.Max, c.Notify.TTLMillis)
	if c.Dedup.Enabled {
		fmt.Printf("Dedup: window=%ds\n", c.Dedup.WindowSeconds)
	}
	if c.Metrics.Enabled {
		fmt.Printf("Metrics: %s\n", c.Metrics.Addr)
	}
}
