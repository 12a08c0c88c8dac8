// Package config loads foxmirror settings from a file, the environment and
// command-line flags, in increasing order of precedence.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

//go:embed schema.cue
var schemaCUE string

// EnvPrefix prefixes every environment variable, e.g. FOXMIRROR_BATCH_SIZE.
const EnvPrefix = "FOXMIRROR"

// Config is the merged configuration.
type Config struct {
	Origin      string `mapstructure:"origin" json:"origin,omitempty"`
	ProfilesDir string `mapstructure:"profiles_dir" json:"profiles_dir,omitempty"`
	Criterion   string `mapstructure:"criterion" json:"criterion"`
	Mirror      string `mapstructure:"mirror" json:"mirror,omitempty"`

	BatchSize     int  `mapstructure:"batch_size" json:"batch_size"`
	WriteFrecency bool `mapstructure:"write_frecency" json:"write_frecency"`
	ReadOnly      bool `mapstructure:"read_only" json:"read_only"`
	Duplicate     bool `mapstructure:"duplicate" json:"duplicate"`

	BusyTimeout time.Duration `mapstructure:"busy_timeout" json:"busy_timeout"`

	Format  string `mapstructure:"format" json:"format"`
	Verbose bool   `mapstructure:"verbose" json:"verbose"`

	// LogFile, when set, sends logs to a rotating file instead of stderr.
	LogFile       string `mapstructure:"log_file" json:"log_file,omitempty"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb" json:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups" json:"log_max_backups"`
	LogMaxAge     int    `mapstructure:"log_max_age" json:"log_max_age"`
}

// defaults are applied below every other source.
var defaults = map[string]any{
	"origin":          "",
	"profiles_dir":    "",
	"criterion":       "latest",
	"mirror":          "",
	"batch_size":      100,
	"write_frecency":  false,
	"read_only":       false,
	"duplicate":       false,
	"busy_timeout":    time.Duration(0),
	"format":          "text",
	"verbose":         false,
	"log_file":        "",
	"log_max_size_mb": 10,
	"log_max_backups": 3,
	"log_max_age":     28,
}

// Load merges defaults, the config file, FOXMIRROR_* variables and flags.
//
// An explicit path must exist. With no path, $HOME/.config/foxmirror/config.yaml
// is read when present. Flags are bound by name with dashes mapped to
// underscores, so --batch-size sets batch_size.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME/.config/foxmirror")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if _, known := defaults[key]; !known {
				return
			}
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = fmt.Errorf("bind flag --%s: %w", f.Name, err)
			}
		})
		if bindErr != nil {
			return nil, bindErr
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Criterion = strings.ToLower(cfg.Criterion)
	cfg.Format = strings.ToLower(cfg.Format)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cfg against the embedded CUE schema.
func Validate(cfg *Config) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Config"))
	value := ctx.Encode(cfg)
	if err := value.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := def.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %s", strings.TrimSpace(cueerrors.Details(err, nil)))
	}
	return nil
}
