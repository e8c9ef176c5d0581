package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvMapping ties an environment variable to its koanf path.
type EnvMapping struct {
	EnvVar     string
	ConfigPath string
}

// EnvMappings lists every environment variable the loader reads, derived from
// the env tags on Config.
func EnvMappings() []EnvMapping {
	return extractMappings(reflect.TypeOf(Config{}), "")
}

func extractMappings(t reflect.Type, prefix string) []EnvMapping {
	var mappings []EnvMapping
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		key := field.Tag.Get("koanf")
		if key == "" || key == "-" {
			continue
		}
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if envVar := field.Tag.Get("env"); envVar != "" && envVar != "-" {
			mappings = append(mappings, EnvMapping{EnvVar: envVar, ConfigPath: path})
		}
		if field.Type.Kind() == reflect.Struct && field.Type.PkgPath() != "time" {
			mappings = append(mappings, extractMappings(field.Type, path)...)
		}
	}
	return mappings
}

// Loader resolves configuration from defaults, the environment (including an
// optional .env file) and explicit overrides, in increasing precedence.
type Loader struct {
	envFiles []string
	environ  func() []string
}

type Option func(*Loader)

// WithEnvFiles reads additional variables from dotenv files. Variables already
// present in the process environment win. Missing files are ignored.
func WithEnvFiles(files ...string) Option {
	return func(l *Loader) { l.envFiles = files }
}

// WithEnviron replaces os.Environ as the environment source.
func WithEnviron(fn func() []string) Option {
	return func(l *Loader) { l.environ = fn }
}

func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		envFiles: []string{".env"},
		environ:  os.Environ,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load builds the configuration. overrides maps koanf paths such as
// "chunker.chunk_size" to explicit values, typically CLI flags the user set.
func (l *Loader) Load(overrides map[string]any) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	environ, err := l.environment()
	if err != nil {
		return nil, err
	}
	envToPath := make(map[string]string)
	for _, m := range EnvMappings() {
		envToPath[m.EnvVar] = m.ConfigPath
	}
	if err := k.Load(env.Provider(".", env.Opt{
		EnvironFunc: func() []string { return environ },
		TransformFunc: func(key, value string) (string, any) {
			path, ok := envToPath[key]
			if !ok || strings.TrimSpace(value) == "" {
				return "", nil
			}
			return path, value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	for key, value := range overrides {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("failed to set %s: %w", key, err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &cfg,
			TagName:          "koanf",
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// environment merges dotenv variables under the process environment.
func (l *Loader) environment() ([]string, error) {
	base := l.environ()
	if len(l.envFiles) == 0 {
		return base, nil
	}
	seen := make(map[string]struct{}, len(base))
	for _, kv := range base {
		if name, _, ok := strings.Cut(kv, "="); ok {
			seen[name] = struct{}{}
		}
	}
	out := append([]string(nil), base...)
	for _, file := range l.envFiles {
		vars, err := godotenv.Read(file)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("failed to read env file %s: %w", file, err)
		}
		for name, value := range vars {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name+"="+value)
		}
	}
	return out, nil
}

// Load is a shorthand for NewLoader().Load(overrides).
func Load(overrides map[string]any) (*Config, error) {
	return NewLoader().Load(overrides)
}

var validate = validator.New()

// Validate checks the struct tags on cfg.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration cannot be nil")
	}
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}
