package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/stellarlinkco/tgvault/internal/category"
)

const (
	DefaultOpenAIModel = "gpt-4o-mini"
	DefaultClaudeModel = "claude-3-haiku-20240307"
	DefaultGeminiModel = "gemini-1.5-flash"

	DefaultRetryAttempts = 3
	DefaultRetryDelayMs  = 1000
	DefaultTimeoutMs     = 30000
	DefaultTemperature   = 0.7
	DefaultMaxTokens     = 2000
	DefaultBufSize       = 100

	DefaultDigestSchedule = "0 0 21 * * *"
)

type Config struct {
	Vault      VaultConfig      `json:"vault"`
	Telegram   TelegramConfig   `json:"telegram"`
	AI         AIConfig         `json:"ai"`
	Categories CategoriesConfig `json:"categories"`
	Notes      NotesConfig      `json:"notes"`
	Digest     DigestConfig     `json:"digest"`
	LogLevel   string           `json:"logLevel,omitempty"`
}

type VaultConfig struct {
	Root string `json:"root"`
}

type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allowFrom"`
	Proxy     string   `json:"proxy,omitempty"`
}

// ProviderSettings holds per-vendor credentials and generation parameters.
type ProviderSettings struct {
	APIKey        string   `json:"apiKey"`
	Model         string   `json:"model,omitempty"`
	BaseURL       string   `json:"baseUrl,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty"`
	MaxTokens     int      `json:"maxTokens,omitempty"`
	VisionEnabled bool     `json:"visionEnabled,omitempty"`
}

type AIConfig struct {
	Enabled       bool             `json:"enabled"`
	Provider      string           `json:"provider"` // openai | claude | gemini
	OpenAI        ProviderSettings `json:"openai"`
	Claude        ProviderSettings `json:"claude"`
	Gemini        ProviderSettings `json:"gemini"`
	RetryAttempts int              `json:"retryAttempts"`
	RetryDelayMs  int              `json:"retryDelayMs"`
	TimeoutMs     int              `json:"timeoutMs"`
	Prompts       PromptsConfig    `json:"prompts"`
	Process       ProcessConfig    `json:"process"`
	// CustomParameters maps a template parameter name ({{ai:name}}) to the
	// instruction used to generate its value.
	CustomParameters map[string]string `json:"customParameters,omitempty"`
}

type PromptsConfig struct {
	Text       string `json:"text,omitempty"`
	AudioVideo string `json:"audioVideo,omitempty"`
	Photo      string `json:"photo,omitempty"`
	Document   string `json:"document,omitempty"`
	General    string `json:"general,omitempty"`
}

type ProcessConfig struct {
	Text     bool `json:"text"`
	Voice    bool `json:"voice"`
	Photo    bool `json:"photo"`
	Video    bool `json:"video"`
	Audio    bool `json:"audio"`
	Document bool `json:"document"`
}

type CategoriesConfig struct {
	Enabled           bool                `json:"enabled"`
	AIClassification  bool                `json:"aiClassification"`
	TagsEnabled       bool                `json:"tagsEnabled"`
	FoldersEnabled    bool                `json:"foldersEnabled"`
	DefaultCategoryID string              `json:"defaultCategoryId,omitempty"`
	Categories        []category.Category `json:"categories"`
	Rules             []category.Rule     `json:"rules"`
}

type NotesConfig struct {
	NotePathTemplate string `json:"notePathTemplate"`
	FilePathTemplate string `json:"filePathTemplate"`
	Delimiter        bool   `json:"delimiter"`
}

type DigestConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"`
}

func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Vault: VaultConfig{
			Root: filepath.Join(home, ".tgvault", "vault"),
		},
		Telegram: TelegramConfig{},
		AI: AIConfig{
			Provider:      "openai",
			RetryAttempts: DefaultRetryAttempts,
			RetryDelayMs:  DefaultRetryDelayMs,
			TimeoutMs:     DefaultTimeoutMs,
			Process: ProcessConfig{
				Text:     true,
				Voice:    true,
				Photo:    true,
				Video:    true,
				Audio:    true,
				Document: true,
			},
		},
		Categories: CategoriesConfig{
			TagsEnabled:    true,
			FoldersEnabled: true,
		},
		Notes: NotesConfig{
			NotePathTemplate: "Telegram/{{date:YYYY-MM-DD}}.md",
			FilePathTemplate: "Telegram/files/{{file:name}}",
			Delimiter:        true,
		},
		Digest: DigestConfig{
			Schedule: DefaultDigestSchedule,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".tgvault")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func LoadConfig() (*Config, error) {
	return LoadConfigFrom(ConfigPath())
}

func LoadConfigFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if cfg.Vault.Root == "" {
		cfg.Vault.Root = DefaultConfig().Vault.Root
	}
	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "openai"
	}
	if cfg.AI.RetryAttempts <= 0 {
		cfg.AI.RetryAttempts = DefaultRetryAttempts
	}
	if cfg.AI.RetryDelayMs <= 0 {
		cfg.AI.RetryDelayMs = DefaultRetryDelayMs
	}
	if cfg.AI.TimeoutMs <= 0 {
		cfg.AI.TimeoutMs = DefaultTimeoutMs
	}
	if cfg.Digest.Schedule == "" {
		cfg.Digest.Schedule = DefaultDigestSchedule
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if token := os.Getenv("TGVAULT_TELEGRAM_TOKEN"); token != "" {
		cfg.Telegram.Token = token
	}
	if root := os.Getenv("TGVAULT_VAULT_ROOT"); root != "" {
		cfg.Vault.Root = root
	}
	if provider := os.Getenv("TGVAULT_AI_PROVIDER"); provider != "" {
		cfg.AI.Provider = provider
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.AI.OpenAI.APIKey == "" {
		cfg.AI.OpenAI.APIKey = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && cfg.AI.Claude.APIKey == "" {
		cfg.AI.Claude.APIKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && cfg.AI.Gemini.APIKey == "" {
		cfg.AI.Gemini.APIKey = key
	}
	if enabled := os.Getenv("TGVAULT_AI_ENABLED"); enabled != "" {
		if parsed, err := strconv.ParseBool(enabled); err == nil {
			cfg.AI.Enabled = parsed
		}
	}
	if level := os.Getenv("TGVAULT_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
}

func SaveConfig(cfg *Config) error {
	return SaveConfigTo(ConfigPath(), cfg)
}

func SaveConfigTo(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// ProviderFor returns the settings block for the named provider.
func (c *AIConfig) ProviderFor(name string) ProviderSettings {
	switch name {
	case "claude":
		return c.Claude
	case "gemini":
		return c.Gemini
	default:
		return c.OpenAI
	}
}

// Enabled reports whether AI processing is enabled for the content type tag.
// Unknown tags are never processed.
func (p ProcessConfig) Enabled(contentType string) bool {
	switch contentType {
	case "text":
		return p.Text
	case "voice":
		return p.Voice
	case "photo":
		return p.Photo
	case "video":
		return p.Video
	case "audio":
		return p.Audio
	case "document":
		return p.Document
	default:
		return false
	}
}
