// Package projectconfig provides the ProjectConfig struct and loader for
// .promptbench.yaml project-level configuration files.
package projectconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spboyer/promptbench/internal/utils"
	"gopkg.in/yaml.v3"
)

// FileName is the project configuration file looked up by Load.
const FileName = ".promptbench.yaml"

// Default values for project configuration. New() references them and no
// other code should duplicate them.
const (
	DefaultBackend        = BackendOpenAI
	DefaultBaseURL        = "https://openrouter.ai/api/v1"
	DefaultAPIKeyEnv      = "OPENROUTER_API_KEY"
	DefaultTitle          = "promptbench"
	DefaultBackendTimeout = 120

	DefaultTemperature    = 0.7
	DefaultMaxTokens      = 4096
	DefaultValidatorModel = "anthropic/claude-haiku-4-5-20251001"

	DefaultStore    = StoreMemory
	DefaultStoreDir = ".promptbench/runs"
	DefaultMongoURI = "mongodb://localhost:27017"
	DefaultDatabase = "promptbench"

	DefaultServerHost = "127.0.0.1"
	DefaultServerPort = 3001

	DefaultDoneGraceMs = 5000
	DefaultListLimit   = 50

	DefaultCatalogTTLMinutes = 60
)

// Backend types.
const (
	BackendOpenAI  = "openai"
	BackendCopilot = "copilot"
	BackendMock    = "mock"
)

// Store types.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreMongo  = "mongo"
)

// BackendConfig selects and configures the model backend.
type BackendConfig struct {
	Type      string `yaml:"type,omitempty"`
	BaseURL   string `yaml:"base_url,omitempty"`
	APIKeyEnv string `yaml:"api_key_env,omitempty"`
	Referer   string `yaml:"referer,omitempty"`
	Title     string `yaml:"title,omitempty"`
	// Timeout is the per-request timeout in seconds.
	Timeout int `yaml:"timeout,omitempty"`
}

// DefaultsConfig holds invocation defaults for model specs that leave them
// unset.
type DefaultsConfig struct {
	Temperature    *float64 `yaml:"temperature,omitempty"`
	MaxTokens      int      `yaml:"max_tokens,omitempty"`
	ValidatorModel string   `yaml:"validator_model,omitempty"`
}

// StoreConfig selects where runs are persisted.
type StoreConfig struct {
	Type     string `yaml:"type,omitempty"`
	Dir      string `yaml:"dir,omitempty"`
	MongoURI string `yaml:"mongo_uri,omitempty"`
	Database string `yaml:"database,omitempty"`
}

// ServerConfig holds API server settings.
type ServerConfig struct {
	Host           string   `yaml:"host,omitempty"`
	Port           int      `yaml:"port,omitempty"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
}

// RunsConfig holds run orchestration settings.
type RunsConfig struct {
	DoneGraceMs *int `yaml:"done_grace_ms,omitempty"`
	ListLimit   int  `yaml:"list_limit,omitempty"`
}

// CatalogConfig holds model catalog settings. Models, when set, replaces
// the backend's own listing.
type CatalogConfig struct {
	TTLMinutes int      `yaml:"ttl_minutes,omitempty"`
	CacheDir   string   `yaml:"cache_dir,omitempty"`
	Models     []string `yaml:"models,omitempty"`
}

// ProjectConfig is the top-level configuration loaded from .promptbench.yaml.
type ProjectConfig struct {
	Backend  BackendConfig  `yaml:"backend,omitempty"`
	Defaults DefaultsConfig `yaml:"defaults,omitempty"`
	Store    StoreConfig    `yaml:"store,omitempty"`
	Server   ServerConfig   `yaml:"server,omitempty"`
	Runs     RunsConfig     `yaml:"runs,omitempty"`
	Catalog  CatalogConfig  `yaml:"catalog,omitempty"`

	// Dir is the directory relative paths are resolved against: the
	// directory holding the config file, or the start directory.
	Dir string `yaml:"-"`
}

// New returns a ProjectConfig with all hard-coded defaults populated.
func New() *ProjectConfig {
	return &ProjectConfig{
		Backend: BackendConfig{
			Type:      DefaultBackend,
			BaseURL:   DefaultBaseURL,
			APIKeyEnv: DefaultAPIKeyEnv,
			Title:     DefaultTitle,
			Timeout:   DefaultBackendTimeout,
		},
		Defaults: DefaultsConfig{
			Temperature:    utils.Ptr(DefaultTemperature),
			MaxTokens:      DefaultMaxTokens,
			ValidatorModel: DefaultValidatorModel,
		},
		Store: StoreConfig{
			Type:     DefaultStore,
			Dir:      DefaultStoreDir,
			MongoURI: DefaultMongoURI,
			Database: DefaultDatabase,
		},
		Server: ServerConfig{
			Host: DefaultServerHost,
			Port: DefaultServerPort,
		},
		Runs: RunsConfig{
			DoneGraceMs: utils.Ptr(DefaultDoneGraceMs),
			ListLimit:   DefaultListLimit,
		},
		Catalog: CatalogConfig{
			TTLMinutes: DefaultCatalogTTLMinutes,
		},
	}
}

// LoadEnv loads dir/.env into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadEnv(dir string) error {
	p := filepath.Join(dir, ".env")
	if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(p); err != nil {
		return fmt.Errorf("loading %s: %w", p, err)
	}
	return nil
}

// Load finds .promptbench.yaml by walking up from startDir (max 10 levels),
// unmarshals it, and fills in missing fields with defaults. The PORT and
// MONGODB_URI environment variables override the file. If no config file is
// found, returns defaults with a nil error. Real I/O errors (e.g. permission
// denied) are returned to the caller.
func Load(startDir string) (*ProjectConfig, error) {
	absStart, err := filepath.Abs(startDir)
	if err != nil {
		return nil, fmt.Errorf("resolving path %q: %w", startDir, err)
	}

	cfg := New()
	cfg.Dir = absStart

	path, data, err := findConfigFile(absStart)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// no file found → defaults
	case err != nil:
		return nil, fmt.Errorf("loading %s: %w", FileName, err)
	default:
		var fileCfg ProjectConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		mergeConfig(cfg, &fileCfg)
		cfg.Dir = filepath.Dir(path)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	cfg.Store.Dir = utils.ResolvePath(cfg.Store.Dir, cfg.Dir)
	cfg.Catalog.CacheDir = utils.ResolvePath(cfg.Catalog.CacheDir, cfg.Dir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated and bounded fields.
func (c *ProjectConfig) Validate() error {
	if !slices.Contains([]string{BackendOpenAI, BackendCopilot, BackendMock}, c.Backend.Type) {
		return fmt.Errorf("backend.type %q must be one of %s, %s, %s", c.Backend.Type, BackendOpenAI, BackendCopilot, BackendMock)
	}
	if !slices.Contains([]string{StoreMemory, StoreFile, StoreMongo}, c.Store.Type) {
		return fmt.Errorf("store.type %q must be one of %s, %s, %s", c.Store.Type, StoreMemory, StoreFile, StoreMongo)
	}
	if t := c.Defaults.Temperature; t != nil && (*t < 0 || *t > 2) {
		return fmt.Errorf("defaults.temperature must be between 0 and 2, got %g", *t)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	return nil
}

// APIKey returns the backend API key from the configured environment variable.
func (c *ProjectConfig) APIKey() string {
	return os.Getenv(c.Backend.APIKeyEnv)
}

func (c *ProjectConfig) BackendTimeout() time.Duration {
	return time.Duration(c.Backend.Timeout) * time.Second
}

func (c *ProjectConfig) DoneGrace() time.Duration {
	if c.Runs.DoneGraceMs == nil {
		return DefaultDoneGraceMs * time.Millisecond
	}
	return time.Duration(*c.Runs.DoneGraceMs) * time.Millisecond
}

func (c *ProjectConfig) CatalogTTL() time.Duration {
	return time.Duration(c.Catalog.TTLMinutes) * time.Minute
}

// findConfigFile walks up from dir looking for FileName (max 10 levels).
// Returns os.ErrNotExist if no config file is found. Propagates real I/O
// errors (e.g. permission denied) instead of silently swallowing them.
func findConfigFile(dir string) (string, []byte, error) {
	for range 10 {
		p := filepath.Join(dir, FileName)
		data, err := os.ReadFile(p)
		if err == nil {
			return p, data, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", nil, fmt.Errorf("reading %q: %w", p, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break // reached filesystem root
		}
		dir = parent
	}
	return "", nil, os.ErrNotExist
}

func applyEnv(cfg *ProjectConfig) error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT %q is not a number", v)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("MONGODB_URI"); v != "" {
		cfg.Store.MongoURI = v
	}
	return nil
}

// mergeConfig overlays non-zero values from src onto dst.
func mergeConfig(dst, src *ProjectConfig) {
	// Backend
	setString(&dst.Backend.Type, src.Backend.Type)
	setString(&dst.Backend.BaseURL, src.Backend.BaseURL)
	setString(&dst.Backend.APIKeyEnv, src.Backend.APIKeyEnv)
	setString(&dst.Backend.Referer, src.Backend.Referer)
	setString(&dst.Backend.Title, src.Backend.Title)
	setInt(&dst.Backend.Timeout, src.Backend.Timeout)

	// Defaults
	if src.Defaults.Temperature != nil {
		dst.Defaults.Temperature = src.Defaults.Temperature
	}
	setInt(&dst.Defaults.MaxTokens, src.Defaults.MaxTokens)
	setString(&dst.Defaults.ValidatorModel, src.Defaults.ValidatorModel)

	// Store
	setString(&dst.Store.Type, src.Store.Type)
	setString(&dst.Store.Dir, src.Store.Dir)
	setString(&dst.Store.MongoURI, src.Store.MongoURI)
	setString(&dst.Store.Database, src.Store.Database)

	// Server
	setString(&dst.Server.Host, src.Server.Host)
	setInt(&dst.Server.Port, src.Server.Port)
	if src.Server.AllowedOrigins != nil {
		dst.Server.AllowedOrigins = src.Server.AllowedOrigins
	}

	// Runs
	if src.Runs.DoneGraceMs != nil {
		dst.Runs.DoneGraceMs = src.Runs.DoneGraceMs
	}
	setInt(&dst.Runs.ListLimit, src.Runs.ListLimit)

	// Catalog
	setInt(&dst.Catalog.TTLMinutes, src.Catalog.TTLMinutes)
	setString(&dst.Catalog.CacheDir, src.Catalog.CacheDir)
	if src.Catalog.Models != nil {
		dst.Catalog.Models = src.Catalog.Models
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}
