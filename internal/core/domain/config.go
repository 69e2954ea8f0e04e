package domain

import "time"

// EngineConfig holds timing and retry settings for the action/capture engine.
type EngineConfig struct {
	BaseDelay     time.Duration `mapstructure:"base_delay" json:"base_delay"`
	Jitter        time.Duration `mapstructure:"jitter" json:"jitter"`
	MaxRetries    int           `mapstructure:"max_retries" json:"max_retries"`
	PaceDelay     time.Duration `mapstructure:"pace_delay" json:"pace_delay"`
	PaceJitter    time.Duration `mapstructure:"pace_jitter" json:"pace_jitter"`
	Timeout       time.Duration `mapstructure:"timeout" json:"timeout"`
	VerifyTimeout time.Duration `mapstructure:"verify_timeout" json:"verify_timeout"`
	EntryTimeout  time.Duration `mapstructure:"entry_timeout" json:"entry_timeout"`
	ListenCap     time.Duration `mapstructure:"listen_cap" json:"listen_cap"`
	Settle        time.Duration `mapstructure:"settle" json:"settle"`
	PollInterval  time.Duration `mapstructure:"poll_interval" json:"poll_interval"`
	DedupeSize    int           `mapstructure:"dedupe_size" json:"dedupe_size"`
}

// ListenTimeout is how long a network capture window waits for candidates.
func (c EngineConfig) ListenTimeout() time.Duration {
	if c.ListenCap > 0 && c.ListenCap < c.Timeout {
		return c.ListenCap
	}
	return c.Timeout
}

// BrowserConfig selects how sessions are provisioned.
type BrowserConfig struct {
	Mode        string `mapstructure:"mode" json:"mode"` // "local", "remote" or "docker"
	ExecPath    string `mapstructure:"exec_path" json:"exec_path"`
	Headless    bool   `mapstructure:"headless" json:"headless"`
	UserDataDir string `mapstructure:"user_data_dir" json:"user_data_dir"`
	CDPURL      string `mapstructure:"cdp_url" json:"cdp_url"`
	DockerImage string `mapstructure:"docker_image" json:"docker_image"`
}

type ServerConfig struct {
	Addr           string   `mapstructure:"addr" json:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins" json:"allowed_origins"`
}

type StorageConfig struct {
	OutputDir  string        `mapstructure:"output_dir" json:"output_dir"`
	PromptsDir string        `mapstructure:"prompts_dir" json:"prompts_dir"`
	DBPath     string        `mapstructure:"db_path" json:"db_path"`
	RetainFor  time.Duration `mapstructure:"retain_for" json:"retain_for"`
}

type SchedulerConfig struct {
	MaxConcurrentJobs int64 `mapstructure:"max_concurrent_jobs" json:"max_concurrent_jobs"`
	QueueSize         int   `mapstructure:"queue_size" json:"queue_size"`
}

// AppConfig is the main application configuration
type AppConfig struct {
	Engine      EngineConfig    `mapstructure:"engine" json:"engine"`
	Browser     BrowserConfig   `mapstructure:"browser" json:"browser"`
	Server      ServerConfig    `mapstructure:"server" json:"server"`
	Storage     StorageConfig   `mapstructure:"storage" json:"storage"`
	Scheduler   SchedulerConfig `mapstructure:"scheduler" json:"scheduler"`
	ProfilesDir string          `mapstructure:"profiles_dir" json:"profiles_dir"`
}

// DefaultConfig returns safe defaults
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Engine: DefaultEngineConfig(),
		Browser: BrowserConfig{
			Mode:        "local",
			Headless:    true,
			DockerImage: "chromedp/headless-shell:latest",
		},
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		},
		Storage: StorageConfig{
			OutputDir:  "output",
			PromptsDir: "prompts",
			DBPath:     "firewerk.duckdb",
			RetainFor:  time.Hour,
		},
		Scheduler: SchedulerConfig{
			MaxConcurrentJobs: 2,
			QueueSize:         100,
		},
	}
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		BaseDelay:     1500 * time.Millisecond,
		Jitter:        800 * time.Millisecond,
		MaxRetries:    2,
		PaceDelay:     1500 * time.Millisecond,
		PaceJitter:    800 * time.Millisecond,
		Timeout:       60 * time.Second,
		VerifyTimeout: 9 * time.Second,
		EntryTimeout:  30 * time.Second,
		ListenCap:     20 * time.Second,
		Settle:        3 * time.Second,
		PollInterval:  250 * time.Millisecond,
		DedupeSize:    256,
	}
}
