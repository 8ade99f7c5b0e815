package main

import (
	"log"
	"os"
	"time"
)

// Config holds everything the server reads from the environment.
// Values come from the process environment, with a .env file loaded by
// godotenv/autoload in main.go.
type Config struct {
	Port        string
	ContentFile string
	DBPath      string

	SMTPHost       string
	SMTPPort       string
	SMTPUser       string
	SMTPPass       string
	ToEmail        string
	ContactTimeout time.Duration

	ChatSessionTTL time.Duration

	AdminUsername string
	AdminPassword string

	OTLPEndpoint string
	ServiceName  string
}

func loadConfig() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		ContentFile: getEnv("CONTENT_FILE", ""),
		DBPath:      getEnv("DATABASE_PATH", "portfolio.db"),

		SMTPHost:       getEnv("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:       getEnv("SMTP_PORT", "587"),
		SMTPUser:       getEnv("SMTP_USER", ""),
		SMTPPass:       getEnv("SMTP_PASS", ""),
		ToEmail:        getEnv("TO_EMAIL", ""),
		ContactTimeout: getDuration("CONTACT_TIMEOUT", 15*time.Second),

		ChatSessionTTL: getDuration("CHAT_SESSION_TTL", 2*time.Hour),

		AdminUsername: getEnv("ADMIN_USERNAME", ""),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:  getEnv("OTEL_SERVICE_NAME", "portfolio"),
	}
}

// getEnv returns the value of key, or defaultVal when it is unset or empty.
func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		log.Printf("Warning: invalid %s=%q, using %s", key, raw, defaultVal)
		return defaultVal
	}
	return d
}
