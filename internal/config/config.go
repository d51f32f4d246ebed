package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Variant names select which demographic questions are asked and how the
// prompt sequence is sampled.
const (
	VariantStandard = "standard"
	VariantClinical = "clinical"
)

// Config holds all runtime configuration for the KasaBot server.
// Precedence: CLI flags > env vars > defaults.
type Config struct {
	DataDir           string
	HTTPPort          int
	BotToken          string // Telegram Bot API token
	PublicURL         string // public base URL the webhook is registered under
	Variant           string // "standard" or "clinical"
	PromptCount       int    // prompts per session (standard variant)
	PlainCount        int    // plain prompts per session (clinical variant)
	CodeSwitchedCount int    // code-switched prompts per session (clinical variant)
	LocalCount        int    // local-language prompts per session (clinical variant)
	CORSOrigins       string // comma-separated origins allowed on the dataset API
	LogLevel          string
	LogFormat         string // "text" or "json"
}

// defaults
const (
	defaultDataDir           = "./data"
	defaultHTTPPort          = 8080
	defaultVariant           = VariantStandard
	defaultPromptCount       = 5
	defaultPlainCount        = 3
	defaultCodeSwitchedCount = 3
	defaultLocalCount        = 2
	defaultLogLevel          = "info"
	defaultLogFormat         = "text"
)

// envPrefix is the prefix for all KasaBot environment variables.
const envPrefix = "KASABOT_"

// Load parses configuration from CLI flags and environment variables.
// A .env file in the working directory is loaded first, if present, so
// deployments can keep the bot token out of the process table.
// Precedence: CLI flags > env vars > defaults.
func Load() (*Config, error) {
	// Best effort; a missing .env file is the normal case.
	_ = godotenv.Load()

	cfg := &Config{}

	fs := flag.NewFlagSet("kasabot", flag.ContinueOnError)

	fs.StringVar(&cfg.DataDir, "data-dir", defaultDataDir, "data directory for audio, metadata and the recording index")
	fs.IntVar(&cfg.HTTPPort, "http-port", defaultHTTPPort, "HTTP server listen port")
	fs.StringVar(&cfg.BotToken, "bot-token", "", "Telegram Bot API token")
	fs.StringVar(&cfg.PublicURL, "public-url", "", "public base URL for webhook registration (e.g. https://bot.example.com)")
	fs.StringVar(&cfg.Variant, "variant", defaultVariant, "collection variant (standard, clinical)")
	fs.IntVar(&cfg.PromptCount, "prompt-count", defaultPromptCount, "prompts per session in the standard variant")
	fs.IntVar(&cfg.PlainCount, "plain-count", defaultPlainCount, "plain prompts per session in the clinical variant")
	fs.IntVar(&cfg.CodeSwitchedCount, "codeswitched-count", defaultCodeSwitchedCount, "code-switched prompts per session in the clinical variant")
	fs.IntVar(&cfg.LocalCount, "local-count", defaultLocalCount, "local-language prompts per session in the clinical variant")
	fs.StringVar(&cfg.CORSOrigins, "cors-origins", "", "comma-separated origins allowed on the dataset API (empty disables CORS)")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	// Apply env var overrides for any flags not explicitly set on the
	// command line. CLI flags take precedence over env vars.
	applyEnvOverrides(fs, cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides checks environment variables for any flag that was not
// explicitly provided on the command line. This preserves the precedence:
// CLI flags > env vars > defaults.
func applyEnvOverrides(fs *flag.FlagSet, cfg *Config) {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	envMap := map[string]string{
		"data-dir":           envPrefix + "DATA_DIR",
		"http-port":          envPrefix + "HTTP_PORT",
		"bot-token":          envPrefix + "BOT_TOKEN",
		"public-url":         envPrefix + "PUBLIC_URL",
		"variant":            envPrefix + "VARIANT",
		"prompt-count":       envPrefix + "PROMPT_COUNT",
		"plain-count":        envPrefix + "PLAIN_COUNT",
		"codeswitched-count": envPrefix + "CODESWITCHED_COUNT",
		"local-count":        envPrefix + "LOCAL_COUNT",
		"cors-origins":       envPrefix + "CORS_ORIGINS",
		"log-level":          envPrefix + "LOG_LEVEL",
		"log-format":         envPrefix + "LOG_FORMAT",
	}

	for flagName, envVar := range envMap {
		if set[flagName] {
			continue
		}
		val, ok := os.LookupEnv(envVar)
		if !ok || val == "" {
			continue
		}
		switch flagName {
		case "data-dir":
			cfg.DataDir = val
		case "http-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.HTTPPort = v
			}
		case "bot-token":
			cfg.BotToken = val
		case "public-url":
			cfg.PublicURL = val
		case "variant":
			cfg.Variant = val
		case "prompt-count":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.PromptCount = v
			}
		case "plain-count":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.PlainCount = v
			}
		case "codeswitched-count":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.CodeSwitchedCount = v
			}
		case "local-count":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.LocalCount = v
			}
		case "cors-origins":
			cfg.CORSOrigins = val
		case "log-level":
			cfg.LogLevel = val
		case "log-format":
			cfg.LogFormat = val
		}
	}
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http-port must be between 1 and 65535, got %d", c.HTTPPort)
	}
	if c.BotToken == "" {
		return fmt.Errorf("bot-token is required (set %sBOT_TOKEN or -bot-token)", envPrefix)
	}

	c.Variant = strings.ToLower(c.Variant)
	if c.Variant != VariantStandard && c.Variant != VariantClinical {
		return fmt.Errorf("variant must be %q or %q, got %q", VariantStandard, VariantClinical, c.Variant)
	}

	switch c.Variant {
	case VariantStandard:
		if c.PromptCount < 1 {
			return fmt.Errorf("prompt-count must be at least 1, got %d", c.PromptCount)
		}
	case VariantClinical:
		if c.PlainCount < 0 || c.CodeSwitchedCount < 0 || c.LocalCount < 0 {
			return fmt.Errorf("per-category prompt counts must not be negative")
		}
		if c.PlainCount+c.CodeSwitchedCount+c.LocalCount < 1 {
			return fmt.Errorf("clinical variant needs at least one prompt per session")
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	if c.PublicURL != "" && !strings.HasPrefix(c.PublicURL, "https://") {
		return fmt.Errorf("public-url must be an https:// URL, got %q", c.PublicURL)
	}
	c.PublicURL = strings.TrimRight(c.PublicURL, "/")

	return nil
}

// WebhookPath returns the local HTTP path the Telegram webhook posts to.
// The bot token doubles as the path secret, matching Telegram's own
// recommendation: nobody but Telegram can know the full path.
func (c *Config) WebhookPath() string {
	return "/webhook/" + c.BotToken
}

// WebhookURL returns the full public callback URL to register with
// Telegram, or "" when no public URL is configured (long-poll style
// deployments behind a tunnel register the webhook themselves).
func (c *Config) WebhookURL() string {
	if c.PublicURL == "" {
		return ""
	}
	return c.PublicURL + c.WebhookPath()
}

// SlogHandler returns a slog.Handler configured with the appropriate format
// (text or json) and log level.
func (c *Config) SlogHandler(w *os.File) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SlogLevel returns the slog.Level corresponding to the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
