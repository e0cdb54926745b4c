package config

import (
	"os"
	"strconv"
	"time"
)

// parseEnv overlays LOADGATE_* environment variables. Secrets are usually
// delivered this way rather than on the command line. Malformed numeric or
// boolean values are ignored.
func parseEnv(config *Config) {
	envString(&config.HTTPAddr, "LOADGATE_HTTP_ADDR")
	envString(&config.GRPCHealthAddr, "LOADGATE_GRPC_HEALTH_ADDR")
	envString(&config.DatabaseDSN, "LOADGATE_DATABASE_DSN")
	envString(&config.SecretKey, "LOADGATE_SECRET_KEY")
	envDuration(&config.TokenValidityDuration, "LOADGATE_TOKEN_VALIDITY")
	envString(&config.ExecutorBaseURL, "LOADGATE_EXECUTOR_URL")
	envString(&config.ExecutorAPIKey, "LOADGATE_EXECUTOR_API_KEY")
	envDuration(&config.ExecutorTimeout, "LOADGATE_EXECUTOR_TIMEOUT")
	envString(&config.AdminToken, "LOADGATE_ADMIN_TOKEN")
	envBool(&config.AllowLegacyIdentityHeader, "LOADGATE_ALLOW_LEGACY_IDENTITY_HEADER")
	envString(&config.S3AccessKey, "LOADGATE_S3_ACCESS_KEY")
	envString(&config.S3SecretKey, "LOADGATE_S3_SECRET_KEY")
	envString(&config.S3Bucket, "LOADGATE_S3_BUCKET")
	envString(&config.S3Region, "LOADGATE_S3_REGION")
	envString(&config.S3BaseEndpoint, "LOADGATE_S3_ENDPOINT")
	envString(&config.LogLevel, "LOADGATE_LOG_LEVEL")
}

func envString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func envDuration(dst *time.Duration, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func envBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
