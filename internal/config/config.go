package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Source kinds understood by the source adapter.
const (
	KindRSS     = "rss"
	KindReddit  = "reddit"
	KindSearXNG = "searxng"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Cluster  ClusterConfig  `yaml:"cluster"`
	Synth    SynthConfig    `yaml:"synth"`
	LLM      LLMConfig      `yaml:"llm"`
	Telegram TelegramConfig `yaml:"telegram"`
	NATS     NATSConfig     `yaml:"nats"`
	Log      LogConfig      `yaml:"log"`
	Store    StoreConfig    `yaml:"store"`
	Sources  []Source       `yaml:"sources"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
	// Cache-Control directives for intermediaries. Keep CacheMaxAge aligned
	// with Pipeline.FreshnessWindow.
	CacheMaxAge          time.Duration `yaml:"cache_max_age"`
	StaleWhileRevalidate time.Duration `yaml:"stale_while_revalidate"`
}

type PipelineConfig struct {
	FreshnessWindow   time.Duration `yaml:"freshness_window"`
	BuildTimeout      time.Duration `yaml:"build_timeout"`
	SourceTimeout     time.Duration `yaml:"source_timeout"`
	SynthesisTimeout  time.Duration `yaml:"synthesis_timeout"`
	MaxConcurrency    int           `yaml:"max_concurrency"`
	MaxItemsPerSource int           `yaml:"max_items_per_source"`
	MaxThemes         int           `yaml:"max_themes"`
	RefreshSchedule   string        `yaml:"refresh_schedule"`
	EnrichExcerpts    bool          `yaml:"enrich_excerpts"`
}

type ClusterConfig struct {
	Threshold   float64 `yaml:"threshold"`
	MinMembers  int     `yaml:"min_members"`
	MaxKeywords int     `yaml:"max_keywords"`
}

type SynthConfig struct {
	Platforms []string `yaml:"platforms"`
	// Provider pacing: requests per minute and burst.
	RPM   int `yaml:"rpm"`
	Burst int `yaml:"burst"`
}

type LLMConfig struct {
	// Provider is "ollama" (OpenAI-compatible chat endpoint) or "openai" (eino ChatModel).
	Provider string `yaml:"provider"`
	Address  string `yaml:"address"`
	Model    string `yaml:"model"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	APIKey   string `yaml:"api_key"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

// Source describes one external content source.
type Source struct {
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind"`
	Endpoint string `yaml:"endpoint"`
	// Query is the search string for searxng sources.
	Query string `yaml:"query"`
	// Priority breaks dedup ties; lower wins. Defaults to list position.
	Priority int  `yaml:"priority"`
	Limit    int  `yaml:"limit"`
	Auth     Auth `yaml:"auth"`
}

// Auth is optional per-source credentials: either a header token or basic auth.
type Auth struct {
	Header   string `yaml:"header"`
	Token    string `yaml:"token"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:                 ":8080",
			CacheMaxAge:          10 * time.Minute,
			StaleWhileRevalidate: 5 * time.Minute,
		},
		Pipeline: PipelineConfig{
			FreshnessWindow:   10 * time.Minute,
			BuildTimeout:      3 * time.Minute,
			SourceTimeout:     15 * time.Second,
			SynthesisTimeout:  60 * time.Second,
			MaxConcurrency:    8,
			MaxItemsPerSource: 25,
			MaxThemes:         6,
			RefreshSchedule:   "*/10 * * * *",
		},
		Cluster: ClusterConfig{
			Threshold:   0.3,
			MinMembers:  2,
			MaxKeywords: 8,
		},
		Synth: SynthConfig{
			Platforms: []string{"instagram", "pinterest", "tiktok", "linkedin"},
			RPM:       30,
			Burst:     2,
		},
		LLM: LLMConfig{
			Provider: "ollama",
			Address:  "http://localhost:11434",
			Model:    "gemma3:4b",
		},
		NATS:  NATSConfig{Subject: "trends.report"},
		Log:   LogConfig{Level: "info"},
		Store: StoreConfig{Path: "data/trendbot.db"},
		Sources: []Source{
			{Name: "Dezeen Interiors", Kind: KindRSS, Endpoint: "https://www.dezeen.com/interiors/feed/"},
			{Name: "Apartment Therapy", Kind: KindRSS, Endpoint: "https://www.apartmenttherapy.com/main.rss"},
			{Name: "Design Milk", Kind: KindRSS, Endpoint: "https://design-milk.com/category/interior-design/feed/"},
			{Name: "r/InteriorDesign", Kind: KindReddit, Endpoint: "https://www.reddit.com/r/InteriorDesign/top.json?t=week"},
			{Name: "r/malelivingspace", Kind: KindReddit, Endpoint: "https://www.reddit.com/r/malelivingspace/top.json?t=week"},
		},
	}
}

// Load reads .env, then the YAML file at path (optional), then environment
// overrides. Env vars take precedence over YAML values.
func Load(path string) (*Config, error) {
	// Missing .env is fine; existing process env wins over the file.
	_ = godotenv.Load(".env")

	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return nil, err
	}

	applyEnv(cfg)
	cfg.fillSourceDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("TRENDBOT_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("OLLAMA_ADDRESS"); v != "" {
		cfg.LLM.Address = v
	}
	if v := os.Getenv("OLLAMA_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("OLLAMA_USERNAME"); v != "" {
		cfg.LLM.Username = v
	}
	if v := os.Getenv("OLLAMA_PASSWORD"); v != "" {
		cfg.LLM.Password = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("TG_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TG_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// fillSourceDefaults gives sources without an explicit priority their list
// position, so the configured order is the tie-break order.
func (c *Config) fillSourceDefaults() {
	for i := range c.Sources {
		if c.Sources[i].Priority == 0 {
			c.Sources[i].Priority = i + 1
		}
		c.Sources[i].Kind = strings.ToLower(strings.TrimSpace(c.Sources[i].Kind))
	}
}

// Validate checks the values the pipeline cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Sources) == 0 {
		errs = append(errs, errors.New("no sources configured"))
	}
	seen := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("source #%d: name is required", i+1))
		} else if seen[s.Name] {
			errs = append(errs, fmt.Errorf("source %q: duplicate name", s.Name))
		}
		seen[s.Name] = true
		switch s.Kind {
		case KindRSS, KindReddit, KindSearXNG:
		default:
			errs = append(errs, fmt.Errorf("source %q: unknown kind %q", s.Name, s.Kind))
		}
		if s.Endpoint == "" {
			errs = append(errs, fmt.Errorf("source %q: endpoint is required", s.Name))
		}
		if s.Kind == KindSearXNG && s.Query == "" {
			errs = append(errs, fmt.Errorf("source %q: searxng sources need a query", s.Name))
		}
	}
	if c.Pipeline.FreshnessWindow <= 0 {
		errs = append(errs, errors.New("pipeline.freshness_window must be positive"))
	}
	if c.Pipeline.SourceTimeout <= 0 || c.Pipeline.SynthesisTimeout <= 0 {
		errs = append(errs, errors.New("pipeline timeouts must be positive"))
	}
	if c.Pipeline.BuildTimeout > 0 && c.Pipeline.SynthesisTimeout >= c.Pipeline.BuildTimeout {
		errs = append(errs, fmt.Errorf("pipeline.synthesis_timeout %v must be below build_timeout %v",
			c.Pipeline.SynthesisTimeout, c.Pipeline.BuildTimeout))
	}
	if c.Cluster.Threshold <= 0 || c.Cluster.Threshold > 1 {
		errs = append(errs, fmt.Errorf("cluster.threshold %v must be in (0, 1]", c.Cluster.Threshold))
	}
	if c.Cluster.MinMembers < 1 {
		errs = append(errs, errors.New("cluster.min_members must be at least 1"))
	}
	if len(c.Synth.Platforms) == 0 {
		errs = append(errs, errors.New("synth.platforms must not be empty"))
	}
	return errors.Join(errs...)
}
