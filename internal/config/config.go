package config

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Assistant AssistantConfig `yaml:"assistant"`
	History   HistoryConfig   `yaml:"history"`
	Logs      LogsConfig      `yaml:"logs"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Vision    VisionConfig    `yaml:"vision"`
	Extract   ExtractConfig   `yaml:"extract"`
	LLM       LLMConfig       `yaml:"llm"`
}

// TelegramConfig holds bot transport settings. The bot token is never stored
// in the config file; it comes from the TELEGRAM_BOT_TOKEN environment variable.
type TelegramConfig struct {
	AllowedUserIDs []int64 `yaml:"allowed_user_ids"`
	PollTimeout    int     `yaml:"poll_timeout_seconds"`
}

// AssistantConfig holds settings for the Claude CLI subprocess.
type AssistantConfig struct {
	CLIPath        string `yaml:"cli_path"`
	WorkingDir     string `yaml:"working_dir"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	AllowDangerous bool   `yaml:"allow_dangerous"`
	MaxOutputChars int    `yaml:"max_output_chars"`
}

// HistoryConfig holds conversation history settings.
type HistoryConfig struct {
	MaxRounds int `yaml:"max_rounds"`
}

// LogsConfig holds log file settings.
type LogsConfig struct {
	RetentionDays int `yaml:"retention_days"`
}

// FetchConfig holds URL fetching settings.
type FetchConfig struct {
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	UserAgent      string `yaml:"user_agent"`
}

// VisionConfig holds image analysis settings.
type VisionConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Model          string `yaml:"model"`
	MaxImages      int    `yaml:"max_images_per_message"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// ExtractConfig holds structured extraction settings.
type ExtractConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`
}

// LLMConfig holds the shared LLM API settings used by vision and extraction.
// The API key comes from the LLM_API_KEY environment variable.
type LLMConfig struct {
	BaseURL string `yaml:"base_url"`
}

// Capabilities records which optional features are usable. It is built once in
// main from config and environment probes and passed into constructors, so no
// component reads ambient state to decide whether to degrade.
type Capabilities struct {
	Vision  bool
	Extract bool
	YtDlp   bool
}

// Defaults returns a Config with sensible defaults.
func Defaults() Config {
	return Config{
		Telegram: TelegramConfig{
			PollTimeout: 30,
		},
		Assistant: AssistantConfig{
			CLIPath:        "claude",
			TimeoutSeconds: 300,
			MaxOutputChars: 3500,
		},
		History: HistoryConfig{
			MaxRounds: 10,
		},
		Logs: LogsConfig{
			RetentionDays: 14,
		},
		Fetch: FetchConfig{
			TimeoutSeconds: 15,
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		},
		Vision: VisionConfig{
			Enabled:        true,
			Model:          "gemini-2.0-flash",
			MaxImages:      5,
			TimeoutSeconds: 30,
		},
		Extract: ExtractConfig{
			Enabled: true,
			Model:   "gemini-2.0-flash",
		},
		LLM: LLMConfig{
			BaseURL: "https://generativelanguage.googleapis.com/v1beta/openai/",
		},
	}
}

// Load reads the config from disk and applies environment overrides. If the
// file doesn't exist, returns defaults.
func Load() (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(ConfigFile())
	if err != nil {
		if os.IsNotExist(err) {
			return applyEnv(cfg), nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Defaults(), err
	}

	return applyEnv(cfg), nil
}

// Save writes the config to disk.
func Save(cfg Config) error {
	if err := os.MkdirAll(Dir(), 0o755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(ConfigFile(), data, 0o644)
}

// IsFirstRun returns true if the config file does not exist yet.
func IsFirstRun() bool {
	_, err := os.Stat(ConfigFile())
	return os.IsNotExist(err)
}

// applyEnv overrides config values from environment variables.
func applyEnv(cfg Config) Config {
	if ids := os.Getenv("ALLOWED_USER_ID"); ids != "" {
		cfg.Telegram.AllowedUserIDs = ParseUserIDs(ids)
	}
	if p := os.Getenv("CLAUDE_CLI_PATH"); p != "" {
		cfg.Assistant.CLIPath = p
	}
	if d := os.Getenv("WORKING_DIR"); d != "" {
		cfg.Assistant.WorkingDir = d
	}
	if t := os.Getenv("TIMEOUT"); t != "" {
		if n, err := strconv.Atoi(t); err == nil {
			cfg.Assistant.TimeoutSeconds = n
		}
	}
	if v := os.Getenv("ALLOW_DANGEROUS"); v != "" {
		cfg.Assistant.AllowDangerous = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("IMAGE_ANALYSIS_ENABLED"); v != "" {
		cfg.Vision.Enabled = strings.EqualFold(v, "true")
	}
	return cfg
}

// ParseUserIDs parses a comma-separated list of numeric user IDs. Entries that
// are not valid integers are skipped.
func ParseUserIDs(raw string) []int64 {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
