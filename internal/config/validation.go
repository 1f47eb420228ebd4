package config

import (
	"net/url"
	"strings"

	"git.home.luguber.info/inful/tabbackup/internal/foundation/errors"
)

// Validate checks required keys and value ranges. All failures are fatal
// configuration errors raised before any network call.
func Validate(cfg *Config) error {
	if err := validateURL("tableauServer.url", cfg.TableauServer.URL); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.TableauServer.User) == "" {
		return missing("tableauServer.user")
	}
	if err := validateURL("git.url", cfg.Git.URL); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.Git.Login) == "" {
		return missing("git.login")
	}
	if strings.TrimSpace(cfg.Git.ProjectName) == "" {
		return missing("git.projectName")
	}
	if cfg.Retry.Backoff == "" {
		return errors.ConfigError("invalid retry backoff mode").
			WithContext("key", "retry.backoff").
			Build()
	}
	return nil
}

func missing(key string) error {
	return errors.ConfigError("required configuration key missing").
		WithContext("key", key).
		Build()
}

func validateURL(key, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return missing(key)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return errors.ConfigError("invalid URL").WithCause(err).WithContext("key", key).Build()
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.ConfigError("URL must use http or https").
			WithContext("key", key).
			WithContext("scheme", u.Scheme).
			Build()
	}
	if u.Host == "" {
		return errors.ConfigError("URL has no host").WithContext("key", key).Build()
	}
	return nil
}
