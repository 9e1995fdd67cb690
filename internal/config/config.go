package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port        int
	NatsURL     string
	NatsToken   string
	DatabaseURL string
	LogLevel    string
	APIToken    string

	GroqAPIKey   string
	GroqModel    string
	WhisperModel string
	TTSModel     string
	TTSVoice     string

	CalComAPIKey      string
	CalComEventTypeID int
	SchedulingLink    string
}

func Load() Config {
	return Config{
		Port:        envInt("JANE_PORT", 8760),
		NatsURL:     envStr("NATS_URL", "nats://localhost:4222"),
		NatsToken:   envStr("NATS_TOKEN", ""),
		DatabaseURL: envStr("DATABASE_URL", ""),
		LogLevel:    envStr("LOG_LEVEL", "info"),
		APIToken:    envStr("JANE_API_TOKEN", ""),

		GroqAPIKey:   envStr("GROQ_API_KEY", ""),
		GroqModel:    envStr("JANE_MODEL", "llama-3.3-70b-versatile"),
		WhisperModel: envStr("JANE_WHISPER_MODEL", "whisper-large-v3-turbo"),
		TTSModel:     envStr("JANE_TTS_MODEL", "playai-tts"),
		TTSVoice:     envStr("JANE_TTS_VOICE", "Fritz-PlayAI"),

		CalComAPIKey:      envStr("CALCOM_API_KEY", ""),
		CalComEventTypeID: envInt("CALCOM_EVENT_TYPE_ID", 0),
		SchedulingLink:    envStr("SCHEDULING_LINK", "https://cal.com/willow-ai/intro"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
