package config

import (
	"time"

	"github.com/panelkit/simple-admin/pkg/session"
)

// SessionConfig holds session cookie settings. Session validity is an
// absolute wall-clock expiry fixed at creation, not renewed by activity.
type SessionConfig struct {
	CookieName     string        `env:"SESSION_COOKIE_NAME" env-default:"admin_session"`
	Duration       time.Duration `env:"SESSION_DURATION" env-default:"168h"`
	CookieHttpOnly bool          `env:"SESSION_COOKIE_HTTP_ONLY" env-default:"true"`
	CookieSecure   bool          `env:"SESSION_COOKIE_SECURE" env-default:"false"`
}

// ToSessionConfig converts the config to a session.Config
func (s SessionConfig) ToSessionConfig() session.Config {
	return session.Config{
		CookieName: s.CookieName,
		TTL:        s.Duration,
		HttpOnly:   s.CookieHttpOnly,
		Secure:     s.CookieSecure,
	}
}

// SiteConfig holds panel-wide settings used in links and redirects.
type SiteConfig struct {
	BaseURL   string `env:"BASE_URL" env-default:"http://localhost:8080"`
	LoginPath string `env:"LOGIN_PATH" env-default:"/login"`
}
