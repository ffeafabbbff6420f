package internal

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/githighlight/internal/cache"
	"github.com/starford/githighlight/internal/history"
	"github.com/starford/githighlight/internal/session"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Project ProjectConfig     `yaml:"project"`
	History HistoryConfig     `yaml:"history"`
	Auth    AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Project.Validate(); err != nil {
		return err
	}
	if err := c.History.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// SessionConfig maps the configuration onto a session.
func (c *Config) SessionConfig() session.Config {
	return session.Config{
		StartDir:    c.Project.Root,
		Git:         c.History.GitBinary,
		Timeout:     c.History.Timeout,
		Concurrency: c.History.Concurrency,
		Settings:    c.History.Settings(),
	}
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
	// EventThrottle is the minimum interval between highlights.invalidate events.
	EventThrottle time.Duration `yaml:"event_throttle"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.EventThrottle, validation.Min(time.Duration(0))),
	); err != nil {
		return err
	}
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// ProjectConfig locates the project whose repository is tracked.
type ProjectConfig struct {
	// Root is where repository discovery starts; the repository may be an
	// ancestor of it.
	Root string `yaml:"root"`
}

// Validate validates the project configuration.
func (c *ProjectConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
	)
}

// HistoryConfig controls how the commit window is read.
type HistoryConfig struct {
	// Commits is the window size.
	Commits int `yaml:"commits"`
	// Extensions restricts tracked files; empty tracks every file.
	Extensions  []string      `yaml:"extensions"`
	GitBinary   string        `yaml:"git_binary"`
	Timeout     time.Duration `yaml:"timeout"`
	Concurrency int           `yaml:"concurrency"`
}

// Validate validates the history configuration.
func (c *HistoryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Commits, validation.Required, validation.Min(1)),
		validation.Field(&c.Extensions, validation.Each(validation.By(validExtension))),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.Concurrency, validation.Min(0), validation.Max(64)),
	)
}

// Settings returns the cache settings for this configuration.
func (c *HistoryConfig) Settings() cache.Settings {
	return cache.Settings{Window: c.Commits, Extensions: c.Extensions}
}

func validExtension(v any) error {
	ext, _ := v.(string)
	ext = strings.TrimSpace(strings.TrimPrefix(ext, "."))
	if ext == "" {
		return fmt.Errorf("must not be empty")
	}
	if strings.ContainsAny(ext, `/\`) {
		return fmt.Errorf("must not contain path separators")
	}
	return nil
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for a local daemon.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Host: "127.0.0.1",
				Port: 7345,
			},
			EventThrottle: 500 * time.Millisecond,
		},
		Project: ProjectConfig{
			Root: ".",
		},
		History: HistoryConfig{
			Commits:     cache.DefaultWindow,
			GitBinary:   "git",
			Concurrency: history.DefaultConcurrency,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
