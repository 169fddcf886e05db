package config

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	BlobBackendLocal = "local"
	BlobBackendGCS   = "gcs"

	DefaultAPIURL      = "http://127.0.0.1:7380"
	DefaultDBFileName  = ".sitrep.db"
	DefaultBlobDirName = ".sitrep-blobs"
	DefaultLogLevel    = "info"
	DefaultBlobBackend = BlobBackendLocal
	DefaultPolicy      = "relaxed"
	DefaultGracePeriod = "1h"

	DefaultMaxImageBytes      int64 = 10 << 20
	DefaultMultipartMaxMemory int64 = 8 << 20

	configFileName      = ".sitrep.toml"
	minMultipartMemory  = 1 << 20
	maxAllowedImageSize = 100 << 20

	configDirEnvKey          = "SITREP_CONFIG_DIR"
	trustProjectConfigEnvKey = "SITREP_TRUST_PROJECT_CONFIG"
)

// UploadConfig bounds accepted images.
type UploadConfig struct {
	MaxImageBytes      int64    `toml:"max_image_bytes"`
	MultipartMaxMemory int64    `toml:"multipart_max_memory"`
	AllowedMediaTypes  []string `toml:"allowed_media_types"`
}

// BlobConfig selects and configures the image backend.
type BlobConfig struct {
	Backend   string `toml:"backend"`
	Root      string `toml:"root"`
	GCSBucket string `toml:"gcs_bucket"`
}

// WorkflowConfig selects the status transition policy.
type WorkflowConfig struct {
	Policy string `toml:"policy"`
}

// AuthConfig holds the admin token hash guarding mutating routes.
type AuthConfig struct {
	AdminTokenHash string `toml:"admin_token_hash"`
}

// SweepConfig tunes the orphan image sweeper.
type SweepConfig struct {
	GracePeriod string `toml:"grace_period"`
}

// Config defines runtime configuration for sitrep.
type Config struct {
	APIURL                   string         `toml:"api_url"`
	DBPath                   string         `toml:"db_path"`
	LogLevel                 string         `toml:"log_level"`
	PublicBaseURL            string         `toml:"public_base_url"`
	Uploads                  UploadConfig   `toml:"uploads"`
	Blobs                    BlobConfig     `toml:"blobs"`
	Workflow                 WorkflowConfig `toml:"workflow"`
	Auth                     AuthConfig     `toml:"auth"`
	Sweep                    SweepConfig    `toml:"sweep"`
	TrustedProjectConfigPath string         `toml:"-"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		APIURL:   DefaultAPIURL,
		DBPath:   "",
		LogLevel: DefaultLogLevel,
		Uploads: UploadConfig{
			MaxImageBytes:      DefaultMaxImageBytes,
			MultipartMaxMemory: DefaultMultipartMaxMemory,
		},
		Blobs:    BlobConfig{Backend: DefaultBlobBackend},
		Workflow: WorkflowConfig{Policy: DefaultPolicy},
		Sweep:    SweepConfig{GracePeriod: DefaultGracePeriod},
	}
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

func overrideConfigPath() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	if dir == "" {
		return "", false
	}
	return filepath.Join(dir, configFileName), true
}

func trustProjectConfig() bool {
	raw := strings.TrimSpace(os.Getenv(trustProjectConfigEnvKey))
	if raw == "" {
		return false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return value
}

var allowedKeys = []string{
	"api_url",
	"db_path",
	"log_level",
	"public_base_url",
	"uploads.max_image_bytes",
	"uploads.multipart_max_memory",
	"uploads.allowed_media_types",
	"blobs.backend",
	"blobs.root",
	"blobs.gcs_bucket",
	"workflow.policy",
	"auth.admin_token_hash",
	"sweep.grace_period",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "api_url":
		return c.APIURL, nil
	case "db_path":
		return c.DBPath, nil
	case "log_level":
		return c.LogLevel, nil
	case "public_base_url":
		return c.PublicBaseURL, nil
	case "uploads.max_image_bytes":
		return strconv.FormatInt(c.Uploads.MaxImageBytes, 10), nil
	case "uploads.multipart_max_memory":
		return strconv.FormatInt(c.Uploads.MultipartMaxMemory, 10), nil
	case "uploads.allowed_media_types":
		return strings.Join(c.Uploads.AllowedMediaTypes, ","), nil
	case "blobs.backend":
		return c.Blobs.Backend, nil
	case "blobs.root":
		return c.Blobs.Root, nil
	case "blobs.gcs_bucket":
		return c.Blobs.GCSBucket, nil
	case "workflow.policy":
		return c.Workflow.Policy, nil
	case "auth.admin_token_hash":
		return c.Auth.AdminTokenHash, nil
	case "sweep.grace_period":
		return c.Sweep.GracePeriod, nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// SweepGracePeriod parses sweep.grace_period.
func (c *Config) SweepGracePeriod() (time.Duration, error) {
	raw := strings.TrimSpace(c.Sweep.GracePeriod)
	if raw == "" {
		raw = DefaultGracePeriod
	}
	grace, err := time.ParseDuration(raw)
	if err != nil || grace <= 0 {
		return 0, fmt.Errorf("sweep.grace_period must be a positive duration, got %q", c.Sweep.GracePeriod)
	}
	return grace, nil
}

// BaseURL returns the public origin image URLs are built from.
func (c *Config) BaseURL() string {
	if value := strings.TrimSpace(c.PublicBaseURL); value != "" {
		return value
	}
	return c.APIURL
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	switch c.Blobs.Backend {
	case BlobBackendLocal:
		if strings.TrimSpace(c.Blobs.Root) == "" {
			return fmt.Errorf("blobs.root is required for the local backend")
		}
	case BlobBackendGCS:
		if strings.TrimSpace(c.Blobs.GCSBucket) == "" {
			return fmt.Errorf("blobs.gcs_bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("blobs.backend must be %s or %s, got %q", BlobBackendLocal, BlobBackendGCS, c.Blobs.Backend)
	}
	if c.Uploads.MaxImageBytes > maxAllowedImageSize {
		return fmt.Errorf("uploads.max_image_bytes must not exceed %d", maxAllowedImageSize)
	}
	if _, err := c.SweepGracePeriod(); err != nil {
		return err
	}
	return nil
}

// GlobalPath returns the path to the global config file.
func GlobalPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configFileName), nil
}

// ProjectPath returns the path to the project config file.
func ProjectPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, configFileName), nil
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

// Load reads config from trusted files and applies env overrides.
func Load() (*Config, error) {
	cfg := Default()

	if overridePath, ok := overrideConfigPath(); ok {
		if err := loadFile(overridePath, &cfg); err != nil {
			return nil, err
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			if err := loadFile(filepath.Join(home, configFileName), &cfg); err != nil {
				return nil, err
			}
		}

		if trustProjectConfig() {
			if cwd, err := os.Getwd(); err == nil {
				projectPath := filepath.Join(cwd, configFileName)
				info, statErr := os.Stat(projectPath)
				switch {
				case statErr == nil && !info.IsDir():
					if err := loadFile(projectPath, &cfg); err != nil {
						return nil, err
					}
					cfg.TrustedProjectConfigPath = projectPath
				case statErr != nil && !os.IsNotExist(statErr):
					return nil, statErr
				}
			}
		}
	}

	if apiURL := os.Getenv("SITREP_API_URL"); apiURL != "" {
		cfg.APIURL = apiURL
	}
	if dbPath := os.Getenv("SITREP_DB"); dbPath != "" {
		cfg.DBPath = dbPath
	}
	if root := os.Getenv("SITREP_BLOB_ROOT"); root != "" {
		cfg.Blobs.Root = root
	}
	if bucket := os.Getenv("SITREP_GCS_BUCKET"); bucket != "" {
		cfg.Blobs.GCSBucket = bucket
		if strings.TrimSpace(os.Getenv("SITREP_BLOB_BACKEND")) == "" {
			cfg.Blobs.Backend = BlobBackendGCS
		}
	}
	if backend := os.Getenv("SITREP_BLOB_BACKEND"); backend != "" {
		cfg.Blobs.Backend = backend
	}
	if policy := os.Getenv("SITREP_WORKFLOW_POLICY"); policy != "" {
		cfg.Workflow.Policy = policy
	}

	if cfg.DBPath == "" {
		if cwd, err := os.Getwd(); err == nil {
			cfg.DBPath = filepath.Join(cwd, DefaultDBFileName)
		}
	}

	cfg.normalizeDefaults()

	return &cfg, nil
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "uploads.max_image_bytes", "uploads.multipart_max_memory":
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "uploads.allowed_media_types":
		return splitCSV(value), nil
	case "blobs.backend":
		if value != BlobBackendLocal && value != BlobBackendGCS {
			return nil, fmt.Errorf("%s must be %s or %s", key, BlobBackendLocal, BlobBackendGCS)
		}
		return value, nil
	case "workflow.policy":
		if value != "relaxed" && value != "forward_only" {
			return nil, fmt.Errorf("%s must be relaxed or forward_only", key)
		}
		return value, nil
	case "sweep.grace_period":
		grace, err := time.ParseDuration(value)
		if err != nil || grace <= 0 {
			return nil, fmt.Errorf("%s must be a positive duration", key)
		}
		return value, nil
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}

func splitCSV(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func (c *Config) normalizeDefaults() {
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Uploads.MaxImageBytes <= 0 {
		c.Uploads.MaxImageBytes = DefaultMaxImageBytes
	}
	if c.Uploads.MultipartMaxMemory < minMultipartMemory {
		c.Uploads.MultipartMaxMemory = DefaultMultipartMaxMemory
	}
	c.Uploads.AllowedMediaTypes = normalizeConfiguredMediaTypes(c.Uploads.AllowedMediaTypes)

	c.Blobs.Backend = strings.ToLower(strings.TrimSpace(c.Blobs.Backend))
	if c.Blobs.Backend == "" {
		c.Blobs.Backend = DefaultBlobBackend
	}
	if strings.TrimSpace(c.Blobs.Root) == "" && c.DBPath != "" {
		c.Blobs.Root = filepath.Join(filepath.Dir(c.DBPath), DefaultBlobDirName)
	}
	if strings.TrimSpace(c.Workflow.Policy) == "" {
		c.Workflow.Policy = DefaultPolicy
	}
	if strings.TrimSpace(c.Sweep.GracePeriod) == "" {
		c.Sweep.GracePeriod = DefaultGracePeriod
	}
}

func normalizeConfiguredMediaTypes(rawValues []string) []string {
	if len(rawValues) == 0 {
		return nil
	}
	out := make([]string, 0, len(rawValues))
	seen := map[string]struct{}{}
	for _, raw := range rawValues {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parsed, _, err := mime.ParseMediaType(raw)
		if err != nil {
			continue
		}
		normalized := strings.ToLower(strings.TrimSpace(parsed))
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil
	}
	return out
}
