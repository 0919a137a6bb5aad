package commands

import (
	"time"
	"visionsync-backend/lib/configutil"
	configlibsql "visionsync-backend/lib/configutil/libsql"
	"visionsync-backend/lib/restyutil"
	"visionsync-backend/lib/scrapers/visionplus"
	"visionsync-backend/services/appointments/db"
	"visionsync-backend/services/escalation"
	"visionsync-backend/services/vpsync"
)

type VisionPlusConfig struct {
	BaseUrl  string `json:"base_url" env:"VISIONPLUS_BASE_URL"`
	Username string `json:"username" env:"VISIONPLUS_USERNAME"`
	Password string `json:"password" env:"VISIONPLUS_PASSWORD"`

	Practice visionplus.Practice `json:"practice"`
	Paths    visionplus.Paths    `json:"paths"`
	Fields   visionplus.Fields   `json:"fields"`

	TimeoutSeconds    int     `json:"timeout_seconds"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	CloudflareBypass  bool    `json:"cloudflare_bypass"`
	// raw HTTP exchanges are dumped here when set
	DebugOutputDir string `json:"debug_output_dir"`
}

type QueueConfig struct {
	BatchSize  int `json:"batch_size"`
	MaxRetries int `json:"max_retries"`
	// nil means the default of a second, 0 disables the pause
	DelayMs *int `json:"delay_ms"`
	// cron expression in Harare time, empty disables the scheduled run
	Schedule string `json:"schedule"`
}

func (c QueueConfig) Delay() time.Duration {
	if c.DelayMs == nil {
		return time.Second
	}
	return time.Duration(*c.DelayMs) * time.Millisecond
}

type HttpConfig struct {
	Port int `json:"port" env:"PORT"`
}

type Config struct {
	VisionPlus VisionPlusConfig    `json:"visionplus"`
	Database   configlibsql.Struct `json:"database"`
	Queue      QueueConfig         `json:"queue"`
	Escalation escalation.Options  `json:"escalation"`
	Http       HttpConfig          `json:"http"`
}

func readConfig(path string) (Config, error) {
	cfg, err := configutil.ReadWithEnv[Config](path)
	if err != nil {
		return Config{}, err
	}
	if cfg.Database.File == "" && cfg.Database.Url == "" {
		cfg.Database.File = "<dev_state>/visionsync.db"
	}
	if cfg.Queue.BatchSize <= 0 {
		cfg.Queue.BatchSize = vpsync.DefaultBatchSize
	}
	if cfg.Queue.MaxRetries <= 0 {
		cfg.Queue.MaxRetries = 5
	}
	if cfg.Http.Port == 0 {
		cfg.Http.Port = 8000
	}
	return cfg, nil
}

func (c VisionPlusConfig) Options() visionplus.Options {
	return visionplus.Options{
		BaseUrl:           c.BaseUrl,
		Username:          c.Username,
		Password:          c.Password,
		Practice:          c.Practice,
		Paths:             c.Paths,
		Fields:            c.Fields,
		Timeout:           time.Duration(c.TimeoutSeconds) * time.Second,
		RequestsPerSecond: c.RequestsPerSecond,
		CloudflareBypass:  c.CloudflareBypass,
	}
}

type app struct {
	cfg     Config
	store   *db.Queries
	service vpsync.Service
	close   func() error
}

func openApp(path string) (app, error) {
	cfg, err := readConfig(path)
	if err != nil {
		return app{}, err
	}

	if cfg.VisionPlus.DebugOutputDir != "" {
		out, err := restyutil.NewFilesystemOutput(cfg.VisionPlus.DebugOutputDir)
		if err != nil {
			return app{}, err
		}
		visionplus.SetRestyInstrumentOutput(out)
	}

	database, err := cfg.Database.OpenDB(db.Schema)
	if err != nil {
		return app{}, err
	}
	store := db.New(database)

	options := vpsync.Options{
		Remote:     cfg.VisionPlus.Options(),
		QueueDelay: cfg.Queue.Delay(),
	}
	mailer := escalation.NewMailer(cfg.Escalation)
	if mailer.Enabled() {
		options.Escalator = mailer
	}

	return app{
		cfg:     cfg,
		store:   store,
		service: vpsync.NewService(store, options),
		close:   database.Close,
	}, nil
}
