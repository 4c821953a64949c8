package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// DunningConfig controls how the charge scheduler treats subscriptions that
// keep failing. Cancellation policy is operator tunable at runtime, so it
// lives here rather than as a constant.
type DunningConfig struct {
	// MaxFailedCycles is how many consecutive failed charge attempts a
	// past_due subscription survives before the scheduler cancels it.
	MaxFailedCycles int `mapstructure:"maxFailedCycles"`

	// RetryPastDue re-attempts past_due subscriptions on later sweeps when
	// true; when false only active subscriptions are charged.
	RetryPastDue bool `mapstructure:"retryPastDue"`
}

func DefaultDunningConfig() DunningConfig {
	return DunningConfig{
		MaxFailedCycles: 3,
		RetryPastDue:    true,
	}
}

type DunningConfigHolder struct {
	current atomic.Value // holds DunningConfig
}

func NewDunningConfigHolder() (*DunningConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("dunning")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/meridian/config")
	v.AddConfigPath("/etc/meridian")
	v.AddConfigPath(".")

	v.SetEnvPrefix("MERIDIAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultDunningConfig()
		v.SetDefault("dunning.maxFailedCycles", defaults.MaxFailedCycles)
		v.SetDefault("dunning.retryPastDue", defaults.RetryPastDue)
	}

	var cfg DunningConfig
	if err := v.UnmarshalKey("dunning", &cfg); err != nil {
		return nil, err
	}
	if err := validateDunningConfig(cfg); err != nil {
		return nil, err
	}

	holder := &DunningConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated DunningConfig
		if err := v.UnmarshalKey("dunning", &updated); err != nil {
			log.Printf("[dunning-config] reload failed: %v", err)
			return
		}
		if err := validateDunningConfig(updated); err != nil {
			log.Printf("[dunning-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[dunning-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticDunningConfigHolder wraps a fixed policy, used by tests.
func NewStaticDunningConfigHolder(cfg DunningConfig) *DunningConfigHolder {
	holder := &DunningConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *DunningConfigHolder) Get() DunningConfig {
	return h.current.Load().(DunningConfig)
}

func validateDunningConfig(cfg DunningConfig) error {
	if cfg.MaxFailedCycles < 1 {
		return errors.New("dunning.maxFailedCycles must be at least 1")
	}
	return nil
}
