package database

import "os"

// Config holds MongoDB connection settings.
type Config struct {
	URL      string
	Database string
}

// LoadConfigFromEnv loads MongoDB configuration from environment variables.
func LoadConfigFromEnv() Config {
	return Config{
		URL:      getEnvOrDefault("MONGO_URL", "mongodb://mongo:27017"),
		Database: getEnvOrDefault("MONGO_DB", "taletwo"),
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
