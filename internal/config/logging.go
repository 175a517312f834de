package config

import (
	"log/slog"
	"net/url"
)

// MaskDatabaseURL hides the password of a connection URL.
func MaskDatabaseURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "****")
	}
	return u.String()
}

// LogValue implements slog.LogValuer with the database password masked.
func (s Settings) LogValue() slog.Value {
	storage := "memory"
	if s.DatabaseURL != "" {
		storage = "postgres"
	}
	return slog.GroupValue(
		slog.String("storage", storage),
		slog.String("database_url", MaskDatabaseURL(s.DatabaseURL)),
		slog.String("host", s.Host),
		slog.Int("port", s.Port),
		slog.String("rules_path", s.RulesPath),
		slog.Group("parse",
			slog.Int("workers", s.Parse.Workers),
			slog.Duration("record_timeout", s.Parse.RecordTimeout),
			slog.Duration("match_timeout", s.Parse.MatchTimeout),
			slog.Any("boundary_keywords", s.Parse.BoundaryKeywords),
			slog.Bool("prefilter", s.Parse.Prefilter),
		),
	)
}
