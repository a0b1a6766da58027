package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// OrdersConfig tunes the order engine. Batch size applies to sessions
// started after a reload; the rest takes effect immediately.
type OrdersConfig struct {
	BatchSize      int           `mapstructure:"batchSize"`
	CacheTTL       time.Duration `mapstructure:"cacheTTL"`
	SearchDebounce time.Duration `mapstructure:"searchDebounce"`
}

func DefaultOrdersConfig() OrdersConfig {
	return OrdersConfig{
		BatchSize:      10,
		CacheTTL:       84 * time.Hour,
		SearchDebounce: 300 * time.Millisecond,
	}
}

type OrdersConfigHolder struct {
	current atomic.Value // holds OrdersConfig
}

// NewStaticOrdersConfigHolder pins cfg without watching any file.
func NewStaticOrdersConfigHolder(cfg OrdersConfig) *OrdersConfigHolder {
	holder := &OrdersConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewOrdersConfigHolder(appCfg Config, log *zap.Logger) (*OrdersConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.orders")

	v := viper.New()
	if path := strings.TrimSpace(appCfg.OrdersConfigPath); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("orders")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/orderfeed")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("ORDERFEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultOrdersConfig()
	v.SetDefault("orders.batchSize", defaults.BatchSize)
	v.SetDefault("orders.cacheTTL", defaults.CacheTTL)
	v.SetDefault("orders.searchDebounce", defaults.SearchDebounce)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg OrdersConfig
	if err := v.UnmarshalKey("orders", &cfg); err != nil {
		return nil, err
	}
	if err := validateOrdersConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticOrdersConfigHolder(cfg)
	if !fileLoaded {
		return holder, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		var updated OrdersConfig
		if err := v.UnmarshalKey("orders", &updated); err != nil {
			log.Warn("orders config reload failed", zap.Error(err))
			return
		}
		if err := validateOrdersConfig(updated); err != nil {
			log.Warn("invalid orders config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("orders config reloaded", zap.String("file", e.Name))
	})
	v.WatchConfig()

	return holder, nil
}

func (h *OrdersConfigHolder) Get() OrdersConfig {
	return h.current.Load().(OrdersConfig)
}

func validateOrdersConfig(cfg OrdersConfig) error {
	if cfg.BatchSize <= 0 || cfg.BatchSize > 10 {
		return errors.New("orders.batchSize must be between 1 and 10")
	}
	if cfg.CacheTTL <= 0 {
		return errors.New("orders.cacheTTL must be positive")
	}
	if cfg.SearchDebounce < 0 {
		return errors.New("orders.searchDebounce cannot be negative")
	}
	return nil
}
