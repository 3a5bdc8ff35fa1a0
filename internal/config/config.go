package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v6"
)

type LLMProvider string

const (
	ProviderOpenAI LLMProvider = "openai"
	ProviderYandex LLMProvider = "yandex"
)

type Config struct {
	TelegramBotToken string  `env:"TELEGRAM_BOT_TOKEN,required"`
	AdminUserID      int64   `env:"ADMIN_USER"`
	AllowedUsers     []int64 `env:"ALLOWED_USERS" envSeparator:":"`
	RestrictHosts    bool    `env:"RESTRICT_HOSTS" envDefault:"false"`

	// Game chats: questions and results go to the game chat, the human
	// respondent answers in the reply chat.
	GameChatID  int64 `env:"GAME_CHAT_ID,required"`
	ReplyChatID int64 `env:"REPLY_CHAT_ID,required"`

	// LLM settings
	LLMProvider      LLMProvider `env:"LLM_PROVIDER" envDefault:"openai"`
	OpenAIAPIKey     string      `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string      `env:"OPENAI_BASE_URL"`
	OpenAIModel      string      `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	YandexOAuthToken string      `env:"YANDEX_OAUTH_TOKEN"`
	YandexFolderID   string      `env:"YANDEX_FOLDER_ID"`

	// OpenRouter (optional)
	OpenRouterReferrer string `env:"OPENROUTER_REFERRER"`
	OpenRouterTitle    string `env:"OPENROUTER_TITLE"`

	// Persona override; the built-in prompt is used when empty.
	SystemPromptPath string `env:"SYSTEM_PROMPT_PATH"`

	// Timing
	HumanReplyTimeout time.Duration `env:"HUMAN_REPLY_TIMEOUT" envDefault:"180s"`
	AIRequestTimeout  time.Duration `env:"AI_REQUEST_TIMEOUT" envDefault:"60s"`
	GameIdleTimeout   time.Duration `env:"GAME_IDLE_TIMEOUT" envDefault:"30m"`
	SweepSchedule     string        `env:"SWEEP_SCHEDULE" envDefault:"@every 1m"`
	ReportSchedule    string        `env:"REPORT_SCHEDULE" envDefault:"0 21 * * *"`

	// Storage
	LogFilePath       string `env:"LOG_FILE_PATH" envDefault:"logs/games.jsonl"`
	DatabaseURL       string `env:"DATABASE_URL"`
	AllowlistFilePath string `env:"ALLOWLIST_FILE_PATH" envDefault:"data/allowlist.json"`

	// Status API; empty disables it.
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	// Formatting
	MessageParseMode string `env:"MESSAGE_PARSE_MODE" envDefault:"HTML"`
}

func New() *Config {
	cfg, err := Parse()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	return cfg
}

// Parse reads the configuration from the environment without exiting on error.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
