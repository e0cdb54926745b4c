package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/loadgate/internal/flagx"
	"github.com/dmitrijs2005/loadgate/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Pointer fields tell
// "absent" apart from zero values so a partial file only overrides what it
// names.
type JsonConfig struct {
	HTTPAddr                  *string         `json:"http_addr"`
	GRPCHealthAddr            *string         `json:"grpc_health_addr"`
	DatabaseDSN               *string         `json:"database_dsn"`
	SecretKey                 *string         `json:"secret_key"`
	TokenValidityDuration     *timex.Duration `json:"token_validity_duration"`
	ExecutorBaseURL           *string         `json:"executor_base_url"`
	ExecutorAPIKey            *string         `json:"executor_api_key"`
	ExecutorTimeout           *timex.Duration `json:"executor_timeout"`
	AdminToken                *string         `json:"admin_token"`
	AllowLegacyIdentityHeader *bool           `json:"allow_legacy_identity_header"`
	S3AccessKey               *string         `json:"s3_access_key"`
	S3SecretKey               *string         `json:"s3_secret_key"`
	S3Bucket                  *string         `json:"s3_bucket"`
	S3Region                  *string         `json:"s3_region"`
	S3BaseEndpoint            *string         `json:"s3_base_endpoint"`
	LogLevel                  *string         `json:"log_level"`
	ThrottleWindow            *timex.Duration `json:"throttle_window"`
	ThrottleLimit             *int            `json:"throttle_limit"`
	PasswordMinLength         *int            `json:"password_min_length"`
	ReconcileInterval         *timex.Duration `json:"reconcile_interval"`
}

// parseJson overlays values from the file named by -c / -config. Nothing
// happens when the flag is absent; an unreadable or invalid file panics.
func parseJson(config *Config) {
	path := flagx.ConfigFileFlag()
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.GRPCHealthAddr, c.GRPCHealthAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.TokenValidityDuration, c.TokenValidityDuration)
	setString(&config.ExecutorBaseURL, c.ExecutorBaseURL)
	setString(&config.ExecutorAPIKey, c.ExecutorAPIKey)
	setDuration(&config.ExecutorTimeout, c.ExecutorTimeout)
	setString(&config.AdminToken, c.AdminToken)
	if c.AllowLegacyIdentityHeader != nil {
		config.AllowLegacyIdentityHeader = *c.AllowLegacyIdentityHeader
	}
	setString(&config.S3AccessKey, c.S3AccessKey)
	setString(&config.S3SecretKey, c.S3SecretKey)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.LogLevel, c.LogLevel)
	setDuration(&config.ThrottleWindow, c.ThrottleWindow)
	setInt(&config.ThrottleLimit, c.ThrottleLimit)
	setInt(&config.PasswordMinLength, c.PasswordMinLength)
	setDuration(&config.ReconcileInterval, c.ReconcileInterval)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
