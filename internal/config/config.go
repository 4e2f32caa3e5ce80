package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultIMTDURL         = "https://imfs-prd1-thresholds-api.azurewebsites.net"
	defaultFWISURL         = "https://prdfws-agw.prd.defra.cloud/fwis.json"
	defaultFGSURL          = "https://api.ffc-environment-agency.fgs.metoffice.gov.uk/api/public/v1/statements/latest"
	defaultHTTPTimeout     = 30 * time.Second
	defaultIMTDBatchSize   = 500
	defaultIMTDConcurrency = 16
	defaultRLOIConcurrency = 3
	defaultTrackerTable    = "rloi-import-tracker"
)

// ErrMissingDatabaseURL is returned by RequireDatabase when no connection string is set.
var ErrMissingDatabaseURL = errors.New("LFW_DATA_DB_CONNECTION is required")

// Config holds runtime configuration shared by the lambdas and the API.
type Config struct {
	DatabaseURL     string
	Bucket          string
	IMTDURL         string
	IMTDBatchSize   int
	IMTDConcurrency int
	RLOIConcurrency int
	HTTPTimeout     time.Duration
	FWISURL         string
	FWISAPIKey      string
	FGSURL          string
	TrackerTable    string
	SNSTopicName    string
	StateMachineARN string
	PushgatewayURL  string
	LogLevel        string
	Port            string
}

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	_ = godotenv.Load(".env")

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("IMTD_API_URL", defaultIMTDURL)
	v.SetDefault("IMTD_BATCH_SIZE", defaultIMTDBatchSize)
	v.SetDefault("IMTD_CONCURRENCY", defaultIMTDConcurrency)
	v.SetDefault("RLOI_CONCURRENCY", defaultRLOIConcurrency)
	v.SetDefault("HTTP_TIMEOUT", defaultHTTPTimeout.String())
	v.SetDefault("FWIS_API_URL", defaultFWISURL)
	v.SetDefault("FGS_API_URL", defaultFGSURL)
	v.SetDefault("IMPORT_TRACKER_TABLE", defaultTrackerTable)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("PORT", "8080")

	cfg := Config{
		DatabaseURL:     strings.TrimSpace(v.GetString("LFW_DATA_DB_CONNECTION")),
		Bucket:          strings.TrimSpace(v.GetString("LFW_DATA_SLS_BUCKET")),
		IMTDURL:         strings.TrimRight(strings.TrimSpace(v.GetString("IMTD_API_URL")), "/"),
		IMTDBatchSize:   v.GetInt("IMTD_BATCH_SIZE"),
		IMTDConcurrency: v.GetInt("IMTD_CONCURRENCY"),
		RLOIConcurrency: v.GetInt("RLOI_CONCURRENCY"),
		FWISURL:         strings.TrimSpace(v.GetString("FWIS_API_URL")),
		FWISAPIKey:      strings.TrimSpace(v.GetString("LFW_FWIS_API_KEY")),
		FGSURL:          strings.TrimSpace(v.GetString("FGS_API_URL")),
		TrackerTable:    strings.TrimSpace(v.GetString("IMPORT_TRACKER_TABLE")),
		SNSTopicName:    strings.TrimSpace(v.GetString("SNS_TOPIC_NAME")),
		StateMachineARN: strings.TrimSpace(v.GetString("STATE_MACHINE_ARN")),
		PushgatewayURL:  strings.TrimSpace(v.GetString("PUSHGATEWAY_URL")),
		LogLevel:        strings.TrimSpace(v.GetString("LOG_LEVEL")),
		Port:            strings.TrimSpace(v.GetString("PORT")),
	}

	timeout, err := time.ParseDuration(strings.TrimSpace(v.GetString("HTTP_TIMEOUT")))
	if err != nil {
		return cfg, fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
	}
	cfg.HTTPTimeout = timeout

	if cfg.IMTDBatchSize < 0 {
		return cfg, fmt.Errorf("invalid IMTD_BATCH_SIZE: %d", cfg.IMTDBatchSize)
	}
	if cfg.IMTDConcurrency <= 0 {
		cfg.IMTDConcurrency = defaultIMTDConcurrency
	}
	if cfg.RLOIConcurrency <= 0 {
		cfg.RLOIConcurrency = defaultRLOIConcurrency
	}

	return cfg, nil
}

// RequireDatabase reports ErrMissingDatabaseURL for handlers that need the pool.
func (c Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	return nil
}
