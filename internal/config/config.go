package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Analysis AnalysisConfig
	Speech   SpeechConfig
	Telegram TelegramConfig
	Report   ReportConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string
	Port int
}

// LogConfig holds logger configuration
type LogConfig struct {
	Env   string
	Level string
}

// AnalysisConfig holds the summarization and diagnosis endpoints.
type AnalysisConfig struct {
	SummarizeURL     string
	DiagnoseURL      string
	DiagnosisEnabled bool
	Timeout          time.Duration
	ClientTimeout    time.Duration
}

// SpeechConfig holds transcription and text-to-speech settings.
type SpeechConfig struct {
	TranscribeURL    string
	ElevenLabsAPIKey string
	VoiceID          string
}

// TelegramConfig holds the doctor handoff channel.
type TelegramConfig struct {
	Token        string
	DoctorChatID int64
}

// ReportConfig holds PDF report settings
type ReportConfig struct {
	FontPath string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvAsInt("PORT", 8080),
		},
		Log: LogConfig{
			Env:   getEnv("APP_ENV", "production"),
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Analysis: AnalysisConfig{
			SummarizeURL:     getEnv("SUMMARIZE_URL", "http://localhost:3000/api/summarize"),
			DiagnoseURL:      getEnv("DIAGNOSE_URL", "http://localhost:3000/api/diagnose"),
			DiagnosisEnabled: getEnvAsBool("DIAGNOSIS_ENABLED", true),
			Timeout:          getEnvAsDuration("ANALYSIS_TIMEOUT", 60*time.Second),
			ClientTimeout:    getEnvAsDuration("HTTP_CLIENT_TIMEOUT", 30*time.Second),
		},
		Speech: SpeechConfig{
			TranscribeURL:    getEnv("TRANSCRIBE_URL", "http://localhost:3000/api/transcribe"),
			ElevenLabsAPIKey: getEnv("ELEVENLABS_API_KEY", ""),
			VoiceID:          getEnv("ELEVENLABS_VOICE_ID", ""),
		},
		Telegram: TelegramConfig{
			Token:        getEnv("TELEGRAM_BOT_TOKEN", ""),
			DoctorChatID: getEnvAsInt64("DOCTOR_CHAT_ID", 0),
		},
		Report: ReportConfig{
			FontPath: getEnv("REPORT_FONT_PATH", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	for name, raw := range map[string]string{
		"SUMMARIZE_URL":  c.Analysis.SummarizeURL,
		"DIAGNOSE_URL":   c.Analysis.DiagnoseURL,
		"TRANSCRIBE_URL": c.Speech.TranscribeURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
		}
	}
	if c.Analysis.Timeout <= 0 {
		return errors.New("ANALYSIS_TIMEOUT must be positive")
	}
	return nil
}

// Addr returns the listen address
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// HandoffEnabled reports whether completed intakes can be sent to a doctor.
func (c *TelegramConfig) HandoffEnabled() bool {
	return c.Token != "" && c.DoctorChatID != 0
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
