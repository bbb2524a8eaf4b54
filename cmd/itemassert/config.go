package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all itemassert configuration.
// Priority: flags > env vars > settings.json > defaults.
type Config struct {
	LogLevel       string `json:"log_level"`
	LogFormat      string `json:"log_format"`
	Concurrency    int    `json:"concurrency"`
	ContinueOnFail bool   `json:"continue_on_fail"`

	DocsBaseURL   string   `json:"docs_base_url"`
	DocsToken     string   `json:"docs_token"`
	DocsRateLimit float64  `json:"docs_rate_limit"`
	DocsBurst     int      `json:"docs_burst"`
	DocsTimeout   duration `json:"docs_timeout"`
}

// duration decodes from a Go duration string ("30s") or a number of seconds.
type duration time.Duration

func (d *duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = duration(parsed)
		return nil
	}
	var secs float64
	if err := json.Unmarshal(data, &secs); err != nil {
		return err
	}
	*d = duration(time.Duration(secs * float64(time.Second)))
	return nil
}

func (d duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func defaultConfig() Config {
	return Config{
		LogLevel:      "info",
		LogFormat:     "text",
		Concurrency:   1,
		DocsRateLimit: 5,
		DocsBurst:     10,
		DocsTimeout:   duration(30 * time.Second),
	}
}

func itemassertDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".itemassert"
	}
	return filepath.Join(home, ".itemassert")
}

func settingsPath() string {
	return filepath.Join(itemassertDir(), "settings.json")
}

func loadConfig() Config {
	return loadConfigFrom(settingsPath(), os.Getenv)
}

func loadConfigFrom(path string, getenv func(string) string) Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := getenv("ITEMASSERT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := getenv("ITEMASSERT_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := getenv("ITEMASSERT_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Concurrency = n
		}
	}
	if v := getenv("ITEMASSERT_CONTINUE_ON_FAIL"); v != "" {
		cfg.ContinueOnFail = v == "true" || v == "1"
	}
	if v := getenv("ITEMASSERT_DOCS_BASE_URL"); v != "" {
		cfg.DocsBaseURL = v
	}
	if v := getenv("ITEMASSERT_DOCS_TOKEN"); v != "" {
		cfg.DocsToken = v
	}
	if v := getenv("ITEMASSERT_DOCS_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.DocsRateLimit = f
		}
	}
	if v := getenv("ITEMASSERT_DOCS_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DocsBurst = n
		}
	}
	if v := getenv("ITEMASSERT_DOCS_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.DocsTimeout = duration(d)
		}
	}

	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return cfg
}
