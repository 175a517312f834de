package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"DATABASE_URL", "PORT",
		"LABPARSE_DATABASE_URL", "LABPARSE_PORT", "LABPARSE_HOST", "LABPARSE_RULES_PATH",
		"LABPARSE_PARSE_WORKERS", "LABPARSE_PARSE_RECORD_TIMEOUT", "LABPARSE_PARSE_MATCH_TIMEOUT",
		"LABPARSE_PARSE_BOUNDARY_KEYWORDS", "LABPARSE_PARSE_PREFILTER", "LABPARSE_PARSE_PREFILTER_MIN_LENGTH",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadSettings_Defaults(t *testing.T) {
	clearEnv(t)

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	if settings.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", settings.Port)
	}
	if settings.Host != "0.0.0.0" {
		t.Errorf("Expected default host '0.0.0.0', got '%s'", settings.Host)
	}
	if settings.DatabaseURL != "" {
		t.Errorf("Expected no database URL, got '%s'", settings.DatabaseURL)
	}
	if !settings.Parse.Prefilter || settings.Parse.PrefilterMinLength != 2 {
		t.Errorf("Expected prefilter on with min length 2, got %+v", settings.Parse)
	}
	if err := ValidateSettings(settings); err != nil {
		t.Errorf("Defaults should validate: %v", err)
	}
}

func TestLoadSettings_EnvVars(t *testing.T) {
	clearEnv(t)
	t.Setenv("LABPARSE_PORT", "9090")
	t.Setenv("LABPARSE_PARSE_WORKERS", "4")
	t.Setenv("LABPARSE_PARSE_RECORD_TIMEOUT", "250ms")
	t.Setenv("LABPARSE_PARSE_BOUNDARY_KEYWORDS", "Определение, Анализ,")
	t.Setenv("LABPARSE_PARSE_PREFILTER", "false")

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	if settings.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", settings.Port)
	}
	if settings.Parse.Workers != 4 {
		t.Errorf("Expected 4 workers, got %d", settings.Parse.Workers)
	}
	if settings.Parse.RecordTimeout != 250*time.Millisecond {
		t.Errorf("Expected 250ms record timeout, got %v", settings.Parse.RecordTimeout)
	}
	if strings.Join(settings.Parse.BoundaryKeywords, "|") != "Определение|Анализ" {
		t.Errorf("Unexpected keywords %q", settings.Parse.BoundaryKeywords)
	}
	if settings.Parse.Prefilter {
		t.Error("Expected prefilter disabled")
	}
}

func TestLoadSettings_UnprefixedFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://u:p@db/lab")
	t.Setenv("PORT", "7000")

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}
	if settings.DatabaseURL != "postgres://u:p@db/lab" || settings.Port != 7000 {
		t.Errorf("Expected DATABASE_URL and PORT to be honoured, got %+v", settings)
	}

	t.Setenv("LABPARSE_PORT", "7001")
	settings, _ = LoadSettings()
	if settings.Port != 7001 {
		t.Errorf("Expected prefixed variable to win, got %d", settings.Port)
	}
}

func TestLoadSettings_FlagsOverrideEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("LABPARSE_PORT", "9090")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	if err := fs.Parse([]string{"--port", "6000", "--parse-match-timeout", "2s", "--rules", "rules.yaml"}); err != nil {
		t.Fatalf("Failed to parse flags: %v", err)
	}

	settings, err := LoadSettingsWithFlags(fs)
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}
	if settings.Port != 6000 {
		t.Errorf("Expected flag port 6000, got %d", settings.Port)
	}
	if settings.Parse.MatchTimeout != 2*time.Second {
		t.Errorf("Expected 2s match timeout, got %v", settings.Parse.MatchTimeout)
	}
	if settings.RulesPath != "rules.yaml" {
		t.Errorf("Expected rules path, got %q", settings.RulesPath)
	}
}

func TestValidateSettings(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(s *Settings)
		wantErr bool
	}{
		{name: "valid", mutate: func(s *Settings) {}},
		{name: "port zero", mutate: func(s *Settings) { s.Port = 0 }, wantErr: true},
		{name: "negative workers", mutate: func(s *Settings) { s.Parse.Workers = -1 }, wantErr: true},
		{name: "negative timeout", mutate: func(s *Settings) { s.Parse.RecordTimeout = -time.Second }, wantErr: true},
		{name: "zero min length", mutate: func(s *Settings) { s.Parse.PrefilterMinLength = 0 }, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := &Settings{Port: 8080, Parse: ParseSettings{Prefilter: true, PrefilterMinLength: 2}}
			tc.mutate(s)
			err := ValidateSettings(s)
			if (err != nil) != tc.wantErr {
				t.Errorf("ValidateSettings() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestOptionTranslation(t *testing.T) {
	s := &Settings{Parse: ParseSettings{Prefilter: true, PrefilterMinLength: 2}}
	if n := len(s.CompilerOptions()); n != 1 {
		t.Errorf("Expected only the prefilter option, got %d", n)
	}
	if n := len(s.BatchOptions()); n != 0 {
		t.Errorf("Expected no batch options, got %d", n)
	}

	s.Parse.MatchTimeout = time.Second
	s.Parse.BoundaryKeywords = []string{"Анализ"}
	s.Parse.Workers = 2
	s.Parse.RecordTimeout = time.Second
	if n := len(s.CompilerOptions()); n != 3 {
		t.Errorf("Expected 3 compiler options, got %d", n)
	}
	if n := len(s.BatchOptions()); n != 2 {
		t.Errorf("Expected 2 batch options, got %d", n)
	}
}

func TestSettingsLogValueMasksPassword(t *testing.T) {
	s := Settings{DatabaseURL: "postgres://lab:secret@db:5432/lab?sslmode=disable", Port: 8080}

	got := s.LogValue().String()
	if strings.Contains(got, "secret") {
		t.Errorf("Password leaked into log value: %s", got)
	}
	if !strings.Contains(got, "postgres") {
		t.Errorf("Expected storage kind in log value: %s", got)
	}
	if MaskDatabaseURL("") != "" {
		t.Error("Empty URL should stay empty")
	}

	var _ slog.LogValuer = s
}
