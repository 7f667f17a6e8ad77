/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT                = "5011"
	DEFAULT_DATA_SOURCE         = "canopy.db"
	DEFAULT_ATTENTION_THRESHOLD = 5
	DEFAULT_ADDRESS_TTL_HOURS   = 24
	DEFAULT_ADDRESS_PRECISION   = 4
	DEFAULT_DYNAMICS_ENTITY     = "new_treeinspections"
	DEFAULT_DYNAMICS_API        = "9.2"
	DEFAULT_MAPBOX_URL          = "https://api.mapbox.com"
	DEFAULT_IMAGE_BUCKET        = "tree-inspection-images"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	Secure    bool   `json:"secure" envconfig:"CANOPY_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"CANOPY_SERVER_SECRET_KEY"`
	Host      string `json:"host" envconfig:"CANOPY_SERVER_HOST"`
	Port      string `json:"port" envconfig:"CANOPY_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"CANOPY_DATA_SOURCE_DNS"`
}

// RedisConfig is optional. When set it backs the address memo cache, the
// cross-process sync lock and the webhook queue.
type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"CANOPY_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"CANOPY_REDIS_SKIP_TLS_VERIFY"`
}

type SyncConfig struct {
	AttentionThreshold  int    `json:"attention_threshold" envconfig:"CANOPY_SYNC_ATTENTION_THRESHOLD"`
	ProbeURL            string `json:"probe_url" envconfig:"CANOPY_SYNC_PROBE_URL"`
	ProbeIntervalSec    int    `json:"probe_interval_sec" envconfig:"CANOPY_SYNC_PROBE_INTERVAL_SEC"`
	ProbeTimeoutSec     int    `json:"probe_timeout_sec" envconfig:"CANOPY_SYNC_PROBE_TIMEOUT_SEC"`
	RetryMinIntervalSec int    `json:"retry_min_interval_sec" envconfig:"CANOPY_SYNC_RETRY_MIN_INTERVAL_SEC"`
	RetryMaxIntervalSec int    `json:"retry_max_interval_sec" envconfig:"CANOPY_SYNC_RETRY_MAX_INTERVAL_SEC"`
	LockTTLSec          int    `json:"lock_ttl_sec" envconfig:"CANOPY_SYNC_LOCK_TTL_SEC"`
	StartOffline        bool   `json:"start_offline" envconfig:"CANOPY_SYNC_START_OFFLINE"`
}

type AddressConfig struct {
	TTLHours  int `json:"ttl_hours" envconfig:"CANOPY_ADDRESS_TTL_HOURS"`
	Precision int `json:"precision" envconfig:"CANOPY_ADDRESS_PRECISION"`
	MemoSize  int `json:"memo_size" envconfig:"CANOPY_ADDRESS_MEMO_SIZE"`
}

type DynamicsConfig struct {
	Url          string `json:"url" envconfig:"CANOPY_DYNAMICS_URL"`
	ApiVersion   string `json:"api_version" envconfig:"CANOPY_DYNAMICS_API_VERSION"`
	EntityName   string `json:"entity_name" envconfig:"CANOPY_DYNAMICS_ENTITY_NAME"`
	TenantID     string `json:"tenant_id" envconfig:"CANOPY_DYNAMICS_TENANT_ID"`
	ClientID     string `json:"client_id" envconfig:"CANOPY_DYNAMICS_CLIENT_ID"`
	ClientSecret string `json:"client_secret" envconfig:"CANOPY_DYNAMICS_CLIENT_SECRET"`
	TokenURL     string `json:"token_url" envconfig:"CANOPY_DYNAMICS_TOKEN_URL"`
	TimeoutSec   int    `json:"timeout_sec" envconfig:"CANOPY_DYNAMICS_TIMEOUT_SEC"`
}

type GeocodingConfig struct {
	MapboxToken string `json:"mapbox_token" envconfig:"CANOPY_MAPBOX_TOKEN"`
	BaseURL     string `json:"base_url" envconfig:"CANOPY_GEOCODING_BASE_URL"`
	TimeoutSec  int    `json:"timeout_sec" envconfig:"CANOPY_GEOCODING_TIMEOUT_SEC"`
}

type StorageConfig struct {
	AccessKeyId     string `json:"access_key_id" envconfig:"CANOPY_STORAGE_ACCESS_KEY_ID"`
	SecretAccessKey string `json:"secret_access_key" envconfig:"CANOPY_STORAGE_SECRET_ACCESS_KEY"`
	Endpoint        string `json:"endpoint" envconfig:"CANOPY_STORAGE_ENDPOINT"`
	Region          string `json:"region" envconfig:"CANOPY_STORAGE_REGION"`
	Bucket          string `json:"bucket" envconfig:"CANOPY_STORAGE_BUCKET"`
	PublicBaseURL   string `json:"public_base_url" envconfig:"CANOPY_STORAGE_PUBLIC_BASE_URL"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"CANOPY_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"CANOPY_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"CANOPY_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"CANOPY_SLACK_WEBHOOK_URL"`
}

type Notification struct {
	Slack   SlackWebhook `json:"slack"`
	Webhook struct {
		Url     string            `json:"url" envconfig:"CANOPY_WEBHOOK_URL"`
		Headers map[string]string `json:"headers"`
	} `json:"webhook"`
}

type TelemetryConfig struct {
	Enabled  bool   `json:"enabled" envconfig:"CANOPY_TELEMETRY_ENABLED"`
	Endpoint string `json:"endpoint" envconfig:"CANOPY_TELEMETRY_ENDPOINT"`
	Insecure bool   `json:"insecure" envconfig:"CANOPY_TELEMETRY_INSECURE"`
}

type Configuration struct {
	ProjectName  string           `json:"project_name" envconfig:"CANOPY_PROJECT_NAME"`
	Server       ServerConfig     `json:"server"`
	DataSource   DataSourceConfig `json:"data_source"`
	Redis        RedisConfig      `json:"redis"`
	Sync         SyncConfig       `json:"sync"`
	Address      AddressConfig    `json:"address"`
	Dynamics     DynamicsConfig   `json:"dynamics"`
	Geocoding    GeocodingConfig  `json:"geocoding"`
	Storage      StorageConfig    `json:"storage"`
	Notification Notification     `json:"notification"`
	RateLimit    RateLimitConfig  `json:"rate_limit"`
	Telemetry    TelemetryConfig  `json:"telemetry"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("canopy", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called canopy.json with your config")
	}
	return c, nil
}

// RemoteConfigured reports whether enough Dynamics settings are present to
// build the remote adapter.
func (cnf *Configuration) RemoteConfigured() bool {
	return cnf.Dynamics.Url != ""
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		cnf.ProjectName = "Canopy"
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)
	cnf.Dynamics.Url = strings.TrimRight(strings.TrimSpace(cnf.Dynamics.Url), "/")

	if cnf.DataSource.Dns == "" {
		log.Printf("Warning: data source not specified. Using local file %s", DEFAULT_DATA_SOURCE)
		cnf.DataSource.Dns = DEFAULT_DATA_SOURCE
	}

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}
	if cnf.Server.Host == "" {
		cnf.Server.Host = "127.0.0.1"
	}
	if cnf.Server.Secure && cnf.Server.SecretKey == "" {
		return errors.New("secret key is required when server.secure is enabled")
	}

	cnf.setSyncDefaults()
	cnf.setAddressDefaults()

	if cnf.Dynamics.Url != "" {
		if cnf.Dynamics.ApiVersion == "" {
			cnf.Dynamics.ApiVersion = DEFAULT_DYNAMICS_API
		}
		if cnf.Dynamics.EntityName == "" {
			cnf.Dynamics.EntityName = DEFAULT_DYNAMICS_ENTITY
		}
		if cnf.Dynamics.TimeoutSec == 0 {
			cnf.Dynamics.TimeoutSec = 30
		}
		if cnf.Dynamics.TokenURL == "" && cnf.Dynamics.TenantID != "" {
			cnf.Dynamics.TokenURL = "https://login.microsoftonline.com/" + cnf.Dynamics.TenantID + "/oauth2/v2.0/token"
		}
	}

	if cnf.Geocoding.BaseURL == "" {
		cnf.Geocoding.BaseURL = DEFAULT_MAPBOX_URL
	}
	if cnf.Geocoding.TimeoutSec == 0 {
		cnf.Geocoding.TimeoutSec = 10
	}

	if cnf.Storage.Bucket == "" {
		cnf.Storage.Bucket = DEFAULT_IMAGE_BUCKET
	}
	if cnf.Storage.Region == "" {
		cnf.Storage.Region = "us-east-1"
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

func (cnf *Configuration) setSyncDefaults() {
	if cnf.Sync.AttentionThreshold <= 0 {
		cnf.Sync.AttentionThreshold = DEFAULT_ATTENTION_THRESHOLD
	}
	if cnf.Sync.ProbeIntervalSec <= 0 {
		cnf.Sync.ProbeIntervalSec = 15
	}
	if cnf.Sync.ProbeTimeoutSec <= 0 {
		cnf.Sync.ProbeTimeoutSec = 5
	}
	if cnf.Sync.RetryMinIntervalSec <= 0 {
		cnf.Sync.RetryMinIntervalSec = 30
	}
	if cnf.Sync.RetryMaxIntervalSec < cnf.Sync.RetryMinIntervalSec {
		cnf.Sync.RetryMaxIntervalSec = 30 * 60
		if cnf.Sync.RetryMaxIntervalSec < cnf.Sync.RetryMinIntervalSec {
			cnf.Sync.RetryMaxIntervalSec = cnf.Sync.RetryMinIntervalSec
		}
	}
	if cnf.Sync.LockTTLSec <= 0 {
		cnf.Sync.LockTTLSec = 10 * 60
	}
}

func (cnf *Configuration) setAddressDefaults() {
	if cnf.Address.TTLHours <= 0 {
		cnf.Address.TTLHours = DEFAULT_ADDRESS_TTL_HOURS
	}
	if cnf.Address.Precision <= 0 {
		cnf.Address.Precision = DEFAULT_ADDRESS_PRECISION
	}
	if cnf.Address.MemoSize <= 0 {
		cnf.Address.MemoSize = 10000
	}
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
