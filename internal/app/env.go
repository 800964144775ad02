package app

import (
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// loadEnv pulls a .env file into the process environment when one exists.
// Integration credentials (database, kafka, object store) come in this way
// rather than through flags.
func loadEnv(logger *slog.Logger) {
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, assuming environment variables are set directly.")
	}
}

// Environment variables for the optional integrations.
const (
	envDatabaseURL    = "MDSWEEP_DB_URL"
	envKafkaBrokers   = "MDSWEEP_KAFKA_BROKERS"
	envKafkaTopic     = "MDSWEEP_KAFKA_TOPIC"
	envMinioEndpoint  = "MDSWEEP_MINIO_ENDPOINT"
	envMinioAccessKey = "MDSWEEP_MINIO_ACCESS_KEY"
	envMinioSecretKey = "MDSWEEP_MINIO_SECRET_KEY"
	envMinioBucket    = "MDSWEEP_MINIO_BUCKET"
	envMinioUseSSL    = "MDSWEEP_MINIO_USE_SSL"
)

func kafkaBrokers() []string {
	raw := os.Getenv(envKafkaBrokers)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}
