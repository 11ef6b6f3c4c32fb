package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort         string
	Environment        string
	FirebaseProject    string
	ServiceAccountJSON string
	ServiceAccountPath string
	StoreBackend       string
	StorageBucket      string
	NotifyChefURL      string
	NotifyManagerURL   string
	NotifyTimeout      time.Duration
	MessageWindowLimit int
	SendRatePerMinute  int
	AllowedOrigins     []string
	ServiceAPIKey      string
}

func Load() (*Config, error) {
	godotenv.Load()

	config := &Config{
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		Environment:        getEnv("ENVIRONMENT", "development"),
		FirebaseProject:    getEnv("FIREBASE_PROJECT_ID", ""),
		ServiceAccountJSON: getEnv("FIREBASE_SERVICE_ACCOUNT_JSON", ""),
		ServiceAccountPath: getEnv("FIREBASE_SERVICE_ACCOUNT_PATH", "./firebase-service-account.json"),
		StoreBackend:       getEnv("STORE_BACKEND", "firestore"),
		StorageBucket:      getEnv("STORAGE_BUCKET", ""),
		NotifyChefURL:      getEnv("NOTIFY_CHEF_URL", "http://localhost:3000/api/chat/notify-chef"),
		NotifyManagerURL:   getEnv("NOTIFY_MANAGER_URL", "http://localhost:3000/api/chat/notify-manager"),
		NotifyTimeout:      time.Duration(getEnvAsInt64("NOTIFY_TIMEOUT_SECONDS", 5)) * time.Second,
		MessageWindowLimit: int(getEnvAsInt64("MESSAGE_WINDOW_LIMIT", 50)),
		SendRatePerMinute:  int(getEnvAsInt64("SEND_RATE_PER_MINUTE", 30)),
		AllowedOrigins:     getEnvAsList("ALLOWED_ORIGINS"),
		ServiceAPIKey:      getEnv("SERVICE_API_KEY", ""),
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

func getEnvAsList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
