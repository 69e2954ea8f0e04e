// Package config loads application settings and selector profiles.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/manthysbr/firewerk/internal/core/domain"
)

const envPrefix = "FIREWERK"

// Load reads settings from path, or from firewerk.yaml in the working
// directory or ~/.firewerk when path is empty. Environment variables such as
// FIREWERK_ENGINE_MAX_RETRIES override file values; missing keys keep their
// defaults.
func Load(path string) (*domain.AppConfig, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, domain.DefaultConfig())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("firewerk")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.firewerk")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &domain.AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so env overrides apply even when the file
// omits them.
func setDefaults(v *viper.Viper, d *domain.AppConfig) {
	e := d.Engine
	v.SetDefault("engine.base_delay", e.BaseDelay)
	v.SetDefault("engine.jitter", e.Jitter)
	v.SetDefault("engine.max_retries", e.MaxRetries)
	v.SetDefault("engine.pace_delay", e.PaceDelay)
	v.SetDefault("engine.pace_jitter", e.PaceJitter)
	v.SetDefault("engine.timeout", e.Timeout)
	v.SetDefault("engine.verify_timeout", e.VerifyTimeout)
	v.SetDefault("engine.entry_timeout", e.EntryTimeout)
	v.SetDefault("engine.listen_cap", e.ListenCap)
	v.SetDefault("engine.settle", e.Settle)
	v.SetDefault("engine.poll_interval", e.PollInterval)
	v.SetDefault("engine.dedupe_size", e.DedupeSize)

	v.SetDefault("browser.mode", d.Browser.Mode)
	v.SetDefault("browser.exec_path", d.Browser.ExecPath)
	v.SetDefault("browser.headless", d.Browser.Headless)
	v.SetDefault("browser.user_data_dir", d.Browser.UserDataDir)
	v.SetDefault("browser.cdp_url", d.Browser.CDPURL)
	v.SetDefault("browser.docker_image", d.Browser.DockerImage)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)

	v.SetDefault("storage.output_dir", d.Storage.OutputDir)
	v.SetDefault("storage.prompts_dir", d.Storage.PromptsDir)
	v.SetDefault("storage.db_path", d.Storage.DBPath)
	v.SetDefault("storage.retain_for", d.Storage.RetainFor)

	v.SetDefault("scheduler.max_concurrent_jobs", d.Scheduler.MaxConcurrentJobs)
	v.SetDefault("scheduler.queue_size", d.Scheduler.QueueSize)

	v.SetDefault("profiles_dir", d.ProfilesDir)
}

func validate(cfg *domain.AppConfig) error {
	switch {
	case cfg.Engine.MaxRetries < 0:
		return fmt.Errorf("engine.max_retries must not be negative")
	case cfg.Engine.Timeout <= 0:
		return fmt.Errorf("engine.timeout must be positive")
	case cfg.Scheduler.MaxConcurrentJobs < 1:
		return fmt.Errorf("scheduler.max_concurrent_jobs must be at least 1")
	}
	return nil
}
