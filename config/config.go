// Package config loads the application configuration from a YAML file with
// environment-variable overrides.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

const defaultPath = "."

// Deployment environments. The environment selects the deep-link scheme used
// as the auth redirect target.
const (
	EnvDev     = "dev"
	EnvPreview = "preview"
	EnvProd    = "prod"
)

type Config struct {
	Env struct {
		Env         string `json:"env" yaml:"env" validate:"required,oneof=dev preview prod"`
		ServiceName string `json:"serviceName" yaml:"serviceName"`
		Debug       bool   `json:"debug" yaml:"debug"`
		Log         Log    `json:"log" yaml:"log"`
	} `json:"env" yaml:"env"`

	HTTP struct {
		Port     int `json:"port" yaml:"port"`
		Timeouts struct {
			ReadTimeout       time.Duration `json:"readTimeout" yaml:"readTimeout"`
			ReadHeaderTimeout time.Duration `json:"readHeaderTimeout" yaml:"readHeaderTimeout"`
			WriteTimeout      time.Duration `json:"writeTimeout" yaml:"writeTimeout"`
			IdleTimeout       time.Duration `json:"idleTimeout" yaml:"idleTimeout"`
		} `json:"timeouts" yaml:"timeouts"`
	} `json:"http" yaml:"http"`

	Supabase SupabaseConfig `json:"supabase" yaml:"supabase"`

	Auth AuthConfig `json:"auth" yaml:"auth"`

	ProfileSync ProfileSyncConfig `json:"profileSync" yaml:"profileSync"`

	// Firebase configuration for reminder push scheduling. Optional; nil
	// disables reminder pushes.
	Firebase *FirebaseConfig `json:"firebase" yaml:"firebase"`
}

// SupabaseConfig points at the hosted auth/database backend.
type SupabaseConfig struct {
	URL     string `json:"url" yaml:"url" validate:"required,url"`
	AnonKey string `json:"anonKey" yaml:"anonKey" validate:"required"`
}

// AuthConfig defines authentication-related configuration.
type AuthConfig struct {
	// MagicLinkCooldown is the minimum interval between magic-link sends.
	MagicLinkCooldown time.Duration `json:"magicLinkCooldown" yaml:"magicLinkCooldown"`

	// ShouldCreateUser lets the provider create accounts on first sign-in.
	ShouldCreateUser bool `json:"shouldCreateUser" yaml:"shouldCreateUser"`

	// RequestsPerMinute paces all outbound auth requests; 0 disables pacing.
	RequestsPerMinute int `json:"requestsPerMinute" yaml:"requestsPerMinute"`
}

// ProfileSyncConfig tunes the profile cache/sync store.
type ProfileSyncConfig struct {
	MaxRetries int           `json:"maxRetries" yaml:"maxRetries"`
	RetryDelay time.Duration `json:"retryDelay" yaml:"retryDelay"`
	CachePath  string        `json:"cachePath" yaml:"cachePath"`
}

// FirebaseConfig defines Firebase configuration for reminder pushes.
type FirebaseConfig struct {
	ProjectID       string `json:"projectId" yaml:"projectId"`
	CredentialsPath string `json:"credentialsPath" yaml:"credentialsPath"`
}

type Log struct {
	Pretty bool   `json:"pretty" yaml:"pretty"`
	Level  string `json:"level" yaml:"level"`
}

// LoadWithEnv loads .yaml files through koanf and overlays environment
// variables on top.
func LoadWithEnv[T any](currEnv string, configPath ...string) (*T, error) {
	cfg := new(T)
	koanfInstance := koanf.New(".")

	// Build list of paths to search for config file
	searchPaths := []string{defaultPath}
	if len(configPath) != 0 {
		pwd, err := os.Getwd()
		if err != nil {
			return nil, errors.Wrap(err, "os.Getwd")
		}
		for _, path := range configPath {
			searchPaths = append(searchPaths, filepath.Join(pwd, path))
		}
	}

	var configFile string
	var found bool
	for _, path := range searchPaths {
		candidate := filepath.Join(path, currEnv+".yaml")
		if _, err := os.Stat(candidate); err == nil {
			configFile = candidate
			found = true

			break
		}
	}

	// A missing file is not an error; environment variables alone can carry
	// the full configuration.
	if found {
		if err := koanfInstance.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "read %s config failed", currEnv)
		}
	}

	existingConfigMap := koanfInstance.Raw()

	// Load environment variables
	if err := koanfInstance.Load(env.Provider(".", env.Opt{
		TransformFunc: func(k, v string) (string, any) {
			// Convert ENV_VAR_NAME to path and align each segment with existing
			// YAML keys. Example: SUPABASE_ANONKEY -> supabase.anonKey
			return canonicalizeEnvKey(k, existingConfigMap), v
		},
	}), nil); err != nil {
		return nil, errors.Wrap(err, "load env variables failed")
	}

	if err := koanfInstance.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           cfg,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
			MatchName: func(mapKey, fieldName string) bool {
				// Case-insensitive matching for env var overrides
				return strings.EqualFold(mapKey, fieldName)
			},
		},
	}); err != nil {
		return nil, errors.Wrapf(err, "unmarshal %s config failed", currEnv)
	}

	return cfg, nil
}

func New() (*Config, error) {
	cfg, err := LoadWithEnv[Config]("config", "config", "../config", "../../config")
	if err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := validator.New().Struct(cfg); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Auth.MagicLinkCooldown <= 0 {
		cfg.Auth.MagicLinkCooldown = 60 * time.Second
	}
	if cfg.ProfileSync.MaxRetries <= 0 {
		cfg.ProfileSync.MaxRetries = 2
	}
	if cfg.ProfileSync.RetryDelay <= 0 {
		cfg.ProfileSync.RetryDelay = 1500 * time.Millisecond
	}
	if strings.TrimSpace(cfg.ProfileSync.CachePath) == "" {
		cfg.ProfileSync.CachePath = "gratia-profile.db"
	}
	if strings.TrimSpace(cfg.Env.Env) == "" {
		cfg.Env.Env = EnvDev
	}
}

func canonicalizeEnvKey(rawKey string, existing map[string]any) string {
	segments := strings.Split(strings.ToLower(rawKey), "_")
	canonical := make([]string, 0, len(segments))
	current := existing

	for _, segment := range segments {
		if segment == "" {
			continue
		}

		if matched, next, ok := findExistingSegment(current, segment); ok {
			canonical = append(canonical, matched)
			current = next
		} else {
			canonical = append(canonical, segment)
			current = nil
		}
	}

	return strings.Join(canonical, ".")
}

func findExistingSegment(current map[string]any, segment string) (matched string, next map[string]any, ok bool) {
	if len(current) == 0 {
		return "", nil, false
	}

	needle := normalizeToken(segment)
	for key, value := range current {
		if normalizeToken(key) != needle {
			continue
		}

		child, _ := value.(map[string]any)

		return key, child, true
	}

	return "", nil, false
}

func normalizeToken(s string) string {
	var normalized strings.Builder
	normalized.Grow(len(s))

	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		normalized.WriteRune(unicode.ToLower(r))
	}

	return normalized.String()
}
