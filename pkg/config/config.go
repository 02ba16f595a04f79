package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort      string
	Environment     string
	ChatBackend     string // "firestore" or "postgres"
	FirebaseProject string
	StorageBucket   string
	PostgresDSN     string
	RedisAddr       string
	RedisPassword   string
	FetchTimeout    int64 // seconds, historical fetch and summary queries
	SendTimeout     int64 // seconds, media upload plus durable insert
}

func Load() (*Config, error) {
	godotenv.Load()

	config := &Config{
		ServerPort:      getEnv("SERVER_PORT", "8080"),
		Environment:     getEnv("ENVIRONMENT", "development"),
		ChatBackend:     getEnv("CHAT_BACKEND", "firestore"),
		FirebaseProject: getEnv("FIREBASE_PROJECT_ID", ""),
		StorageBucket:   getEnv("STORAGE_BUCKET", ""),
		PostgresDSN:     getEnv("POSTGRES_DSN", "postgres://localhost:5432/talentos?sslmode=disable"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		FetchTimeout:    getEnvAsInt64("FETCH_TIMEOUT_SECONDS", 15),
		SendTimeout:     getEnvAsInt64("SEND_TIMEOUT_SECONDS", 30),
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return intValue
		}
	}
	return defaultValue
}
