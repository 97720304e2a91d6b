package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// DisplayConfig controls how invoice data is presented.
type DisplayConfig struct {
	DateLayout string `mapstructure:"date_layout"`
	Currency   string `mapstructure:"currency"`
	BusyLabel  string `mapstructure:"busy_label"`
}

func DefaultDisplayConfig() DisplayConfig {
	return DisplayConfig{
		DateLayout: "Jan 2, 2006",
		Currency:   "USD",
		BusyLabel:  "Downloading...",
	}
}

type DisplayConfigHolder struct {
	current atomic.Value // holds DisplayConfig
}

// NewStaticDisplayConfigHolder returns a holder that never reloads.
func NewStaticDisplayConfigHolder(cfg DisplayConfig) *DisplayConfigHolder {
	holder := &DisplayConfigHolder{}
	holder.current.Store(withDefaults(cfg))
	return holder
}

// NewDisplayConfigHolder reads portal.yml (if any) and keeps it hot-reloaded.
func NewDisplayConfigHolder(cfg Config, log *zap.Logger) (*DisplayConfigHolder, error) {
	v := viper.New()

	if cfg.DisplayConfigPath != "" {
		v.SetConfigFile(cfg.DisplayConfigPath)
	} else {
		v.SetConfigName("portal")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/billingportal")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PORTAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultDisplayConfig()
	v.SetDefault("display.date_layout", defaults.DateLayout)
	v.SetDefault("display.currency", defaults.Currency)
	v.SetDefault("display.busy_label", defaults.BusyLabel)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		// An explicit path must exist; the search path is optional.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	var display DisplayConfig
	if err := v.UnmarshalKey("display", &display); err != nil {
		return nil, err
	}
	if err := validateDisplayConfig(display); err != nil {
		return nil, err
	}

	holder := &DisplayConfigHolder{}
	holder.current.Store(withDefaults(display))

	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated DisplayConfig
		if err := v.UnmarshalKey("display", &updated); err != nil {
			log.Warn("display config reload failed", zap.Error(err))
			return
		}
		if err := validateDisplayConfig(updated); err != nil {
			log.Warn("invalid display config ignored", zap.Error(err))
			return
		}
		holder.current.Store(withDefaults(updated))
		log.Info("display config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *DisplayConfigHolder) Get() DisplayConfig {
	if h == nil {
		return DefaultDisplayConfig()
	}
	cfg, ok := h.current.Load().(DisplayConfig)
	if !ok {
		return DefaultDisplayConfig()
	}
	return cfg
}

func validateDisplayConfig(cfg DisplayConfig) error {
	if cur := strings.TrimSpace(cfg.Currency); cur != "" && len(cur) != 3 {
		return errors.New("display.currency must be a 3-letter ISO code")
	}
	return nil
}

func withDefaults(cfg DisplayConfig) DisplayConfig {
	defaults := DefaultDisplayConfig()
	if strings.TrimSpace(cfg.DateLayout) == "" {
		cfg.DateLayout = defaults.DateLayout
	}
	if strings.TrimSpace(cfg.Currency) == "" {
		cfg.Currency = defaults.Currency
	}
	cfg.Currency = strings.ToUpper(strings.TrimSpace(cfg.Currency))
	if strings.TrimSpace(cfg.BusyLabel) == "" {
		cfg.BusyLabel = defaults.BusyLabel
	}
	return cfg
}
