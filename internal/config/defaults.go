package config

import "time"

// Defaults applied when the corresponding key is absent.
const (
	DefaultPageSize      = 100
	DefaultTimeout       = 60 * time.Second
	DefaultConcurrency   = 1
	DefaultRateLimit     = 10.0
	DefaultRateBurst     = 5
	DefaultRemote        = "origin"
	DefaultAuthorName    = "tabbackup"
	DefaultAuthorEmail   = "tabbackup@localhost"
	DefaultSecretService = "TableauBackup"
	DefaultScheduleEvery = time.Hour
	DefaultMetricsPath   = "/metrics"
	DefaultLogMaxSizeMB  = 50
	DefaultLogMaxBackups = 5
	DefaultLogMaxAgeDays = 30
	DefaultRetryMax      = 2
	DefaultRetryInitial  = time.Second
	DefaultRetryMaxDelay = 30 * time.Second
)

func applyDefaults(cfg *Config) {
	s := &cfg.TableauServer
	if s.PageSize <= 0 {
		s.PageSize = DefaultPageSize
	}
	if s.Timeout <= 0 {
		s.Timeout = DefaultTimeout
	}
	if s.Concurrency <= 0 {
		s.Concurrency = DefaultConcurrency
	}
	if s.RateLimit <= 0 {
		s.RateLimit = DefaultRateLimit
	}
	if s.RateBurst <= 0 {
		s.RateBurst = DefaultRateBurst
	}

	g := &cfg.Git
	if g.Remote == "" {
		g.Remote = DefaultRemote
	}
	if g.AuthorName == "" {
		g.AuthorName = DefaultAuthorName
	}
	if g.AuthorEmail == "" {
		g.AuthorEmail = DefaultAuthorEmail
	}

	r := &cfg.Retry
	if r.Backoff == "" {
		r.Backoff = RetryBackoffExponential
	} else {
		r.Backoff = NormalizeRetryBackoff(string(r.Backoff))
	}
	switch {
	case r.MaxRetries == 0:
		r.MaxRetries = DefaultRetryMax
	case r.MaxRetries < 0: // explicit opt-out
		r.MaxRetries = 0
	}
	if r.InitialDelay <= 0 {
		r.InitialDelay = DefaultRetryInitial
	}
	if r.MaxDelay <= 0 {
		r.MaxDelay = DefaultRetryMaxDelay
	}

	l := &cfg.Logging
	l.Level = NormalizeLogLevel(string(l.Level))
	if l.MaxSizeMB <= 0 {
		l.MaxSizeMB = DefaultLogMaxSizeMB
	}
	if l.MaxBackups <= 0 {
		l.MaxBackups = DefaultLogMaxBackups
	}
	if l.MaxAgeDays <= 0 {
		l.MaxAgeDays = DefaultLogMaxAgeDays
	}

	if cfg.Schedule.Every <= 0 {
		cfg.Schedule.Every = DefaultScheduleEvery
	}
	if cfg.Schedule.Hours <= 0 {
		cfg.Schedule.Hours = HoursCovering(cfg.Schedule.Every)
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Credentials.Service == "" {
		cfg.Credentials.Service = DefaultSecretService
	}
}

// HoursCovering rounds d up to whole hours so consecutive scheduled runs overlap
// rather than leave gaps.
func HoursCovering(d time.Duration) int {
	h := int(d / time.Hour)
	if d%time.Hour != 0 {
		h++
	}
	if h < 1 {
		h = 1
	}
	return h
}
