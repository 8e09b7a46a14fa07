package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/dgallion1/synapse/internal/chunker"
	"github.com/dgallion1/synapse/internal/connections"
	"github.com/dgallion1/synapse/internal/library"
	"github.com/dgallion1/synapse/internal/readctx"
	"github.com/dgallion1/synapse/internal/session"
	"github.com/dgallion1/synapse/internal/stream"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Library LibraryConfig `mapstructure:"library"`
	Reading ReadingConfig `mapstructure:"reading"`
	Backend BackendConfig `mapstructure:"backend"`
	Viewer  ViewerConfig  `mapstructure:"viewer"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Session SessionConfig `mapstructure:"session"`
	Stream  StreamConfig  `mapstructure:"stream"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LibraryConfig controls document parsing.
type LibraryConfig struct {
	Workers              int           `mapstructure:"workers"`
	QueueSize            int           `mapstructure:"queue_size"`
	MaxUploadBytes       int64         `mapstructure:"max_upload_bytes"`
	FailedTTL            time.Duration `mapstructure:"failed_ttl"`
	PDFFallbackPdftotext bool          `mapstructure:"pdf_fallback_pdftotext"`
	PageChars            int           `mapstructure:"page_chars"`
	MinPage              int           `mapstructure:"min_page"`
}

// ReadingConfig tunes context detection.
type ReadingConfig struct {
	SelectionMinChars  int           `mapstructure:"selection_min_chars"`
	ReadingMinChars    int           `mapstructure:"reading_min_chars"`
	SegmentMinChars    int           `mapstructure:"segment_min_chars"`
	MaxSegments        int           `mapstructure:"max_segments"`
	ExcerptChars       int           `mapstructure:"excerpt_chars"`
	PositionCooldown   time.Duration `mapstructure:"position_cooldown"`
	ScrollQuiet        time.Duration `mapstructure:"scroll_quiet"`
	BackstopPoll       time.Duration `mapstructure:"backstop_poll"`
	ViewerCallTimeout  time.Duration `mapstructure:"viewer_call_timeout"`
	TemplateFallback   bool          `mapstructure:"template_fallback"`
	SyntheticSelection bool          `mapstructure:"synthetic_selection"`
}

// BackendConfig points at the search and insights service.
type BackendConfig struct {
	URL                 string        `mapstructure:"url"`
	Timeout             time.Duration `mapstructure:"timeout"`
	Attempts            uint          `mapstructure:"attempts"`
	RetryDelay          time.Duration `mapstructure:"retry_delay"`
	RatePerSecond       float64       `mapstructure:"rate_per_second"`
	Burst               int           `mapstructure:"burst"`
	StatsWindow         time.Duration `mapstructure:"stats_window"`
	TopK                int           `mapstructure:"top_k"`
	SimilarityThreshold float64       `mapstructure:"similarity_threshold"`
	Insights            bool          `mapstructure:"insights"`
	LookupTimeout       time.Duration `mapstructure:"lookup_timeout"`
}

// ViewerConfig holds front-end settings. An empty ClientID is fetched from
// the backend.
type ViewerConfig struct {
	ClientID string `mapstructure:"client_id"`
}

// RedisConfig enables the Redis stream bus when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

type SessionConfig struct {
	IdleTTL         time.Duration `mapstructure:"idle_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type StreamConfig struct {
	Heartbeat time.Duration `mapstructure:"heartbeat"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	reading := readctx.DefaultConfig()
	pages := chunker.DefaultConfig()
	return Config{
		Server: ServerConfig{
			Port:            "8090",
			ShutdownTimeout: 30 * time.Second,
		},
		Library: LibraryConfig{
			Workers:              4,
			QueueSize:            100,
			MaxUploadBytes:       52428800, // 50MB
			FailedTTL:            time.Hour,
			PDFFallbackPdftotext: true,
			PageChars:            pages.PageChars,
			MinPage:              pages.MinPage,
		},
		Reading: ReadingConfig{
			SelectionMinChars:  reading.SelectionMinChars,
			ReadingMinChars:    reading.ReadingMinChars,
			SegmentMinChars:    reading.SegmentMinChars,
			MaxSegments:        reading.MaxSegments,
			ExcerptChars:       reading.ExcerptChars,
			PositionCooldown:   reading.PositionCooldown,
			ScrollQuiet:        reading.ScrollQuiet,
			BackstopPoll:       reading.BackstopPoll,
			ViewerCallTimeout:  reading.ViewerCallTimeout,
			TemplateFallback:   reading.TemplateFallback,
			SyntheticSelection: reading.SyntheticSelection,
		},
		Backend: BackendConfig{
			URL:                 "http://localhost:8000",
			Timeout:             30 * time.Second,
			Attempts:            3,
			RetryDelay:          500 * time.Millisecond,
			RatePerSecond:       5,
			Burst:               5,
			StatsWindow:         15 * time.Minute,
			TopK:                connections.DefaultTopK,
			SimilarityThreshold: connections.DefaultSimilarityThreshold,
			Insights:            true,
			LookupTimeout:       20 * time.Second,
		},
		Redis: RedisConfig{
			Channel: "synapse:stream",
		},
		Session: SessionConfig{
			IdleTTL:         30 * time.Minute,
			CleanupInterval: time.Minute,
		},
		Stream: StreamConfig{
			Heartbeat: 15 * time.Second,
		},
	}
}

// setDefaults registers every key so SYNAPSE_ environment overrides apply
// even when no config file mentions them.
func setDefaults(v *viper.Viper) {
	d := Default()
	defaults := map[string]any{
		"server.port":             d.Server.Port,
		"server.shutdown_timeout": d.Server.ShutdownTimeout,

		"library.workers":                d.Library.Workers,
		"library.queue_size":             d.Library.QueueSize,
		"library.max_upload_bytes":       d.Library.MaxUploadBytes,
		"library.failed_ttl":             d.Library.FailedTTL,
		"library.pdf_fallback_pdftotext": d.Library.PDFFallbackPdftotext,
		"library.page_chars":             d.Library.PageChars,
		"library.min_page":               d.Library.MinPage,

		"reading.selection_min_chars": d.Reading.SelectionMinChars,
		"reading.reading_min_chars":   d.Reading.ReadingMinChars,
		"reading.segment_min_chars":   d.Reading.SegmentMinChars,
		"reading.max_segments":        d.Reading.MaxSegments,
		"reading.excerpt_chars":       d.Reading.ExcerptChars,
		"reading.position_cooldown":   d.Reading.PositionCooldown,
		"reading.scroll_quiet":        d.Reading.ScrollQuiet,
		"reading.backstop_poll":       d.Reading.BackstopPoll,
		"reading.viewer_call_timeout": d.Reading.ViewerCallTimeout,
		"reading.template_fallback":   d.Reading.TemplateFallback,
		"reading.synthetic_selection": d.Reading.SyntheticSelection,

		"backend.url":                  d.Backend.URL,
		"backend.timeout":              d.Backend.Timeout,
		"backend.attempts":             d.Backend.Attempts,
		"backend.retry_delay":          d.Backend.RetryDelay,
		"backend.rate_per_second":      d.Backend.RatePerSecond,
		"backend.burst":                d.Backend.Burst,
		"backend.stats_window":         d.Backend.StatsWindow,
		"backend.top_k":                d.Backend.TopK,
		"backend.similarity_threshold": d.Backend.SimilarityThreshold,
		"backend.insights":             d.Backend.Insights,
		"backend.lookup_timeout":       d.Backend.LookupTimeout,

		"viewer.client_id": d.Viewer.ClientID,

		"redis.addr":     d.Redis.Addr,
		"redis.password": d.Redis.Password,
		"redis.db":       d.Redis.DB,
		"redis.channel":  d.Redis.Channel,

		"session.idle_ttl":         d.Session.IdleTTL,
		"session.cleanup_interval": d.Session.CleanupInterval,

		"stream.heartbeat": d.Stream.Heartbeat,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// Manager loads configuration and hot-reloads it when the file changes.
type Manager struct {
	v *viper.Viper

	mu        sync.RWMutex
	config    Config
	callbacks []func(Config)
}

// NewManager reads defaults, the optional config file and SYNAPSE_*
// environment variables. With an empty cfgFile, config.yaml is looked up in
// the working directory and $HOME/.synapse.
func NewManager(cfgFile string) (*Manager, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SYNAPSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.synapse")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	m := &Manager{v: v}
	cfg, err := m.load()
	if err != nil {
		return nil, err
	}
	m.config = cfg
	return m, nil
}

// Load is a shorthand for NewManager(cfgFile).Get().
func Load(cfgFile string) (Config, error) {
	m, err := NewManager(cfgFile)
	if err != nil {
		return Config{}, err
	}
	return m.Get(), nil
}

func (m *Manager) load() (Config, error) {
	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Get returns the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// File returns the config file in use, or "" when running on defaults.
func (m *Manager) File() string {
	return m.v.ConfigFileUsed()
}

// OnChange registers a callback run after every successful reload.
func (m *Manager) OnChange(fn func(Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, fn)
}

// Watch enables hot reload. Invalid files are reported to onError and the
// previous configuration stays in effect.
func (m *Manager) Watch(onError func(error)) {
	m.v.OnConfigChange(func(e fsnotify.Event) {
		m.reload(onError)
	})
	m.v.WatchConfig()
}

func (m *Manager) reload(onError func(error)) {
	cfg, err := m.load()
	if err != nil {
		if onError != nil {
			onError(err)
		}
		return
	}

	m.mu.Lock()
	m.config = cfg
	callbacks := make([]func(Config), len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.mu.Unlock()

	for _, fn := range callbacks {
		fn(cfg)
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Server.Port) == "" {
		return fmt.Errorf("server.port is required")
	}
	u, err := url.Parse(c.Backend.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("backend.url %q is not an absolute URL", c.Backend.URL)
	}
	if c.Library.MaxUploadBytes <= 0 {
		return fmt.Errorf("library.max_upload_bytes must be positive")
	}
	if c.Backend.SimilarityThreshold < 0 || c.Backend.SimilarityThreshold > 1 {
		return fmt.Errorf("backend.similarity_threshold must be within [0,1], got %v", c.Backend.SimilarityThreshold)
	}
	if c.Reading.SelectionMinChars > c.Reading.ExcerptChars && c.Reading.ExcerptChars > 0 {
		return fmt.Errorf("reading.selection_min_chars exceeds reading.excerpt_chars")
	}
	return nil
}

func (c Config) ReadingConfig() readctx.Config {
	r := c.Reading
	return readctx.Config{
		SelectionMinChars:  r.SelectionMinChars,
		ReadingMinChars:    r.ReadingMinChars,
		SegmentMinChars:    r.SegmentMinChars,
		MaxSegments:        r.MaxSegments,
		ExcerptChars:       r.ExcerptChars,
		PositionCooldown:   r.PositionCooldown,
		ScrollQuiet:        r.ScrollQuiet,
		BackstopPoll:       r.BackstopPoll,
		ViewerCallTimeout:  r.ViewerCallTimeout,
		TemplateFallback:   r.TemplateFallback,
		SyntheticSelection: r.SyntheticSelection,
	}
}

func (c Config) LibraryConfig() library.Config {
	l := c.Library
	return library.Config{
		Workers:              l.Workers,
		QueueSize:            l.QueueSize,
		MaxUploadBytes:       l.MaxUploadBytes,
		FailedTTL:            l.FailedTTL,
		PDFFallbackPdftotext: l.PDFFallbackPdftotext,
		Pages:                chunker.Config{PageChars: l.PageChars, MinPage: l.MinPage},
	}
}

func (c Config) BackendConfig() connections.Config {
	b := c.Backend
	return connections.Config{
		BaseURL:       b.URL,
		Timeout:       b.Timeout,
		Attempts:      b.Attempts,
		RetryDelay:    b.RetryDelay,
		RatePerSecond: b.RatePerSecond,
		Burst:         b.Burst,
		StatsWindow:   b.StatsWindow,
	}
}

func (c Config) SessionConfig() session.Config {
	return session.Config{
		Reading:             c.ReadingConfig(),
		TopK:                c.Backend.TopK,
		SimilarityThreshold: c.Backend.SimilarityThreshold,
		LookupTimeout:       c.Backend.LookupTimeout,
		Insights:            c.Backend.Insights,
	}
}

func (c Config) RedisConfig() stream.RedisConfig {
	return stream.RedisConfig{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		Channel:  c.Redis.Channel,
	}
}
