package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/knoxav/chamctl/internal/scheduler"
	"github.com/knoxav/chamctl/internal/transport"
)

// Duration wraps time.Duration so config files can write "3s" instead of raw
// nanoseconds; the TOML decoder only hands strings to a TextUnmarshaler.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the plain time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

type DeviceConfig struct {
	Host          string   `toml:"host"`
	Port          int      `toml:"port"`
	Timeout       Duration `toml:"timeout"`
	MaxRetries    int      `toml:"max_retries"`
	DrainDelay    Duration `toml:"drain_delay"`
	ReadInterval  Duration `toml:"read_interval"`
	TrailingDelay Duration `toml:"trailing_delay"`
	QuietPeriod   Duration `toml:"quiet_period"`
	SettleDelay   Duration `toml:"settle_delay"`
	RetryDelay    Duration `toml:"retry_delay"`
	MaxRetryDelay Duration `toml:"max_retry_delay"`
}

type SchedulerConfig struct {
	QueueCap         int      `toml:"queue_cap"`
	FailureThreshold int      `toml:"failure_threshold"`
	RecoveryDelay    Duration `toml:"recovery_delay"`
	MaxRecoveryDelay Duration `toml:"max_recovery_delay"`
}

type RefreshConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval Duration `toml:"interval"`
	Zones    []int    `toml:"zones"`
	// SkipWhenBusy makes the refresh loop sit out a cycle whenever a HIGH
	// request is already waiting. The scheduler preempts correctly either
	// way; this just avoids piling on queries nobody is waiting for.
	SkipWhenBusy bool `toml:"skip_when_busy"`
}

type ServerConfig struct {
	Addr        string   `toml:"addr"`
	CorsOrigins []string `toml:"cors_origins"`
}

type Config struct {
	Device    DeviceConfig    `toml:"device"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Refresh   RefreshConfig   `toml:"refresh"`
	Server    ServerConfig    `toml:"server"`

	// VolumeFallbackCap bounds the substituted volume for zones the device
	// reports as unconfigured. Negative disables substitution.
	VolumeFallbackCap int `toml:"volume_fallback_cap"`
}

func Default() Config {
	t := transport.DefaultConfig()
	b := scheduler.DefaultBreakerConfig()
	return Config{
		Device: DeviceConfig{
			Port:          t.Port,
			Timeout:       Duration(t.Timeout),
			MaxRetries:    t.MaxRetries,
			DrainDelay:    Duration(t.DrainDelay),
			ReadInterval:  Duration(t.ReadInterval),
			TrailingDelay: Duration(t.TrailingDelay),
			QuietPeriod:   Duration(t.QuietPeriod),
			SettleDelay:   Duration(t.SettleDelay),
			RetryDelay:    Duration(t.Retry.InitialDelay),
			MaxRetryDelay: Duration(t.Retry.MaxDelay),
		},
		Scheduler: SchedulerConfig{
			QueueCap:         scheduler.DefaultQueueCap,
			FailureThreshold: b.FailureThreshold,
			RecoveryDelay:    Duration(b.RecoveryDelay),
			MaxRecoveryDelay: Duration(b.MaxRecoveryDelay),
		},
		Refresh: RefreshConfig{
			Enabled:      true,
			Interval:     Duration(30 * time.Second),
			SkipWhenBusy: true,
		},
		Server: ServerConfig{
			Addr: ":9000",
		},
		VolumeFallbackCap: 40,
	}
}

// Load reads a TOML file over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Device.Host) == "" {
		return fmt.Errorf("config missing device host")
	}
	if c.Device.Port <= 0 || c.Device.Port > 65535 {
		return fmt.Errorf("config invalid device port %d", c.Device.Port)
	}
	if c.Device.Timeout <= 0 {
		return fmt.Errorf("config device timeout must be positive")
	}
	if c.Device.MaxRetries < 1 {
		return fmt.Errorf("config device max_retries must be at least 1")
	}
	if c.Refresh.Enabled && c.Refresh.Interval <= 0 {
		return fmt.Errorf("config refresh interval must be positive")
	}
	for i, zone := range c.Refresh.Zones {
		if zone < 1 || zone > 64 {
			return fmt.Errorf("config refresh zone[%d] out of range: %d", i, zone)
		}
	}
	return nil
}

// TransportConfig maps the device section onto the executor configuration.
func (c Config) TransportConfig() transport.Config {
	return transport.Config{
		Host:          c.Device.Host,
		Port:          c.Device.Port,
		Timeout:       c.Device.Timeout.Std(),
		MaxRetries:    c.Device.MaxRetries,
		DrainDelay:    c.Device.DrainDelay.Std(),
		ReadInterval:  c.Device.ReadInterval.Std(),
		TrailingDelay: c.Device.TrailingDelay.Std(),
		QuietPeriod:   c.Device.QuietPeriod.Std(),
		SettleDelay:   c.Device.SettleDelay.Std(),
		Retry: transport.BackoffConfig{
			InitialDelay: c.Device.RetryDelay.Std(),
			MaxDelay:     c.Device.MaxRetryDelay.Std(),
		},
	}
}

// SchedulerConfig maps the scheduler section onto the worker configuration.
func (c Config) SchedulerConfig() scheduler.Config {
	return scheduler.Config{
		QueueCap: c.Scheduler.QueueCap,
		Breaker: scheduler.BreakerConfig{
			FailureThreshold: c.Scheduler.FailureThreshold,
			RecoveryDelay:    c.Scheduler.RecoveryDelay.Std(),
			MaxRecoveryDelay: c.Scheduler.MaxRecoveryDelay.Std(),
		},
	}
}
