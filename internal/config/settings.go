package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/liamcoop/labparser/labparser"
)

// ParseSettings tunes rule compilation and batch parsing.
type ParseSettings struct {
	Workers            int           `mapstructure:"workers"`
	RecordTimeout      time.Duration `mapstructure:"record_timeout"`
	MatchTimeout       time.Duration `mapstructure:"match_timeout"`
	BoundaryKeywords   []string      `mapstructure:"boundary_keywords"`
	Prefilter          bool          `mapstructure:"prefilter"`
	PrefilterMinLength int           `mapstructure:"prefilter_min_length"`
}

// Settings application settings
type Settings struct {
	DatabaseURL string        `mapstructure:"database_url"`
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	RulesPath   string        `mapstructure:"rules_path"`
	Parse       ParseSettings `mapstructure:"parse"`
}

// RegisterFlags adds the settings flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("database-url", "", "PostgreSQL connection URL (empty runs with in-memory storage)")
	fs.String("host", "0.0.0.0", "Address to listen on")
	fs.Int("port", 8080, "Port to listen on")
	fs.String("rules", "", "YAML rule file or directory seeding the in-memory lab")
	fs.Int("parse-workers", 0, "Records parsed in parallel (0 = GOMAXPROCS)")
	fs.Duration("parse-record-timeout", 0, "Time budget per record (0 = unlimited)")
	fs.Duration("parse-match-timeout", 0, "Time budget per regular-expression search (0 = unlimited)")
	fs.StringSlice("parse-boundary-keywords", nil, "Words that start the next statement in a report line")
	fs.Bool("parse-prefilter", true, "Skip definitions whose literal text does not occur in a record")
}

// LoadSettings loads settings from environment variables and optional .env file
func LoadSettings() (*Settings, error) {
	return LoadSettingsWithFlags(nil)
}

// LoadSettingsWithFlags loads settings with optional CLI flag overrides.
// Priority: CLI flags > environment variables > .env file > defaults.
// DATABASE_URL and PORT are honoured when the prefixed variables are unset.
func LoadSettingsWithFlags(flags *pflag.FlagSet) (*Settings, error) {
	v := viper.New()

	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)
	v.SetDefault("parse.workers", 0)
	v.SetDefault("parse.record_timeout", time.Duration(0))
	v.SetDefault("parse.match_timeout", time.Duration(0))
	v.SetDefault("parse.prefilter", true)
	v.SetDefault("parse.prefilter_min_length", labparser.DefaultPrefilterConfig().MinPatternLength)

	v.SetEnvPrefix("LABPARSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("database_url", "LABPARSE_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("port", "LABPARSE_PORT", "PORT")
	_ = v.BindEnv("host", "LABPARSE_HOST")
	_ = v.BindEnv("rules_path", "LABPARSE_RULES_PATH")
	_ = v.BindEnv("parse.workers", "LABPARSE_PARSE_WORKERS")
	_ = v.BindEnv("parse.record_timeout", "LABPARSE_PARSE_RECORD_TIMEOUT")
	_ = v.BindEnv("parse.match_timeout", "LABPARSE_PARSE_MATCH_TIMEOUT")
	_ = v.BindEnv("parse.boundary_keywords", "LABPARSE_PARSE_BOUNDARY_KEYWORDS")
	_ = v.BindEnv("parse.prefilter", "LABPARSE_PARSE_PREFILTER")
	_ = v.BindEnv("parse.prefilter_min_length", "LABPARSE_PARSE_PREFILTER_MIN_LENGTH")

	if flags != nil {
		bindFlag(v, flags, "database_url", "database-url")
		bindFlag(v, flags, "host", "host")
		bindFlag(v, flags, "port", "port")
		bindFlag(v, flags, "rules_path", "rules")
		bindFlag(v, flags, "parse.workers", "parse-workers")
		bindFlag(v, flags, "parse.record_timeout", "parse-record-timeout")
		bindFlag(v, flags, "parse.match_timeout", "parse-match-timeout")
		bindFlag(v, flags, "parse.boundary_keywords", "parse-boundary-keywords")
		bindFlag(v, flags, "parse.prefilter", "parse-prefilter")
	}

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // Ignore error if .env doesn't exist

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, err
	}

	// A comma-separated env var arrives as a single element.
	if env := os.Getenv("LABPARSE_PARSE_BOUNDARY_KEYWORDS"); env != "" {
		if len(settings.Parse.BoundaryKeywords) <= 1 {
			settings.Parse.BoundaryKeywords = strings.Split(env, ",")
		}
	}
	settings.Parse.BoundaryKeywords = trimNonEmpty(settings.Parse.BoundaryKeywords)

	return &settings, nil
}

// bindFlag binds a flag only when it exists, so commands can register a
// subset of the flags.
func bindFlag(v *viper.Viper, flags *pflag.FlagSet, key, name string) {
	if f := flags.Lookup(name); f != nil {
		_ = v.BindPFlag(key, f)
	}
}

func trimNonEmpty(s []string) []string {
	var out []string
	for _, str := range s {
		if str = strings.TrimSpace(str); str != "" {
			out = append(out, str)
		}
	}
	return out
}

// ValidateSettings rejects settings the server cannot run with.
func ValidateSettings(s *Settings) error {
	if s.Port <= 0 || s.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}
	if s.Parse.Workers < 0 {
		return errors.New("parse-workers cannot be negative")
	}
	if s.Parse.RecordTimeout < 0 || s.Parse.MatchTimeout < 0 {
		return errors.New("parse timeouts cannot be negative")
	}
	if s.Parse.PrefilterMinLength < 1 {
		return errors.New("parse prefilter_min_length must be positive")
	}
	return nil
}

// CompilerOptions translates the parse settings into compiler options.
func (s *Settings) CompilerOptions() []labparser.CompilerOption {
	prefilter := labparser.PrefilterConfig{
		Enabled:          s.Parse.Prefilter,
		MinPatternLength: s.Parse.PrefilterMinLength,
	}
	opts := []labparser.CompilerOption{labparser.WithPrefilter(prefilter)}
	if s.Parse.MatchTimeout > 0 {
		opts = append(opts, labparser.WithMatchTimeout(s.Parse.MatchTimeout))
	}
	if len(s.Parse.BoundaryKeywords) > 0 {
		opts = append(opts, labparser.WithBoundaryKeywords(s.Parse.BoundaryKeywords...))
	}
	return opts
}

// BatchOptions translates the parse settings into batch options.
func (s *Settings) BatchOptions() []labparser.BatchOption {
	var opts []labparser.BatchOption
	if s.Parse.Workers > 0 {
		opts = append(opts, labparser.WithWorkers(s.Parse.Workers))
	}
	if s.Parse.RecordTimeout > 0 {
		opts = append(opts, labparser.WithRecordTimeout(s.Parse.RecordTimeout))
	}
	return opts
}
