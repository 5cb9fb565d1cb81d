package config

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultListenAddr   = ":8080"
	DefaultTargetURL    = "https://app.qilowatt.it"
	DefaultLoginPath    = "/api/user/login"
	DefaultLoginTimeout = 15 * time.Second
	DefaultMaxLoginBody = 1 << 20  // 1 MiB
	DefaultMaxFormBody  = 64 << 10 // 64 KiB
	DefaultDiagMaxSize  = 10 << 20 // 10 MiB
	DefaultDiagFileName = "proxy-debug.log"

	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
)

// Duration is a time.Duration that reads and writes as a string ("15s").
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = v
	return nil
}

// Config is the proxy configuration loaded from a TOML file
type Config struct {
	Listen      string      `toml:"listen"`
	StaticDir   string      `toml:"static_dir"`
	Upstream    Upstream    `toml:"upstream"`
	Routing     Routing     `toml:"routing"`
	Server      Server      `toml:"server"`
	Diagnostics Diagnostics `toml:"diagnostics"`
}

// Upstream describes the remote API being proxied
type Upstream struct {
	Target       string   `toml:"target"`
	LoginPath    string   `toml:"login_path"`
	LoginTimeout Duration `toml:"login_timeout"`
	MaxLoginBody int64    `toml:"max_login_body"`
	MaxFormBody  int64    `toml:"max_form_body"`
}

// Routing controls which inbound paths are forwarded and which of them
// carry the client's Authorization header upstream.
type Routing struct {
	Mounts            []string `toml:"mounts"`
	ProtectedPrefixes []string `toml:"protected_prefixes"`
}

// Server holds the inbound connection timeouts. A zero read or write
// timeout leaves forwarded streams unbounded; logins are bounded by
// login_timeout regardless.
type Server struct {
	ReadHeaderTimeout Duration `toml:"read_header_timeout"`
	ReadTimeout       Duration `toml:"read_timeout"`
	WriteTimeout      Duration `toml:"write_timeout"`
	IdleTimeout       Duration `toml:"idle_timeout"`
}

// Diagnostics configures the best-effort request log
type Diagnostics struct {
	LogPath string `toml:"log_path"`
	MaxSize int64  `toml:"max_size"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Listen:    DefaultListenAddr,
		StaticDir: ".",
		Upstream: Upstream{
			Target:       DefaultTargetURL,
			LoginPath:    DefaultLoginPath,
			LoginTimeout: Duration{DefaultLoginTimeout},
			MaxLoginBody: DefaultMaxLoginBody,
			MaxFormBody:  DefaultMaxFormBody,
		},
		Routing: Routing{
			Mounts:            []string{"/api", "/devices"},
			ProtectedPrefixes: []string{"/api/"},
		},
		Server: Server{
			ReadHeaderTimeout: Duration{DefaultReadHeaderTimeout},
			IdleTimeout:       Duration{DefaultIdleTimeout},
		},
		Diagnostics: Diagnostics{
			LogPath: filepath.Join(os.TempDir(), DefaultDiagFileName),
			MaxSize: DefaultDiagMaxSize,
		},
	}
}

// Validate checks that the Config is valid.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}

	if err := c.Upstream.Validate(); err != nil {
		return fmt.Errorf("upstream: %w", err)
	}

	if len(c.Routing.Mounts) == 0 {
		return fmt.Errorf("routing: at least one mount is required")
	}
	for _, m := range c.Routing.Mounts {
		if err := validatePrefix(m); err != nil {
			return fmt.Errorf("routing: mount: %w", err)
		}
		if m != "/" && strings.HasSuffix(m, "/") {
			return fmt.Errorf("routing: mount %q must not end with a slash", m)
		}
	}
	for _, p := range c.Routing.ProtectedPrefixes {
		if err := validatePrefix(p); err != nil {
			return fmt.Errorf("routing: protected prefix: %w", err)
		}
	}

	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}

	if c.Diagnostics.LogPath != "" && c.Diagnostics.MaxSize < 0 {
		return fmt.Errorf("diagnostics: max_size must not be negative")
	}

	return nil
}

// Validate checks that the Upstream section is valid.
func (u *Upstream) Validate() error {
	target, err := url.Parse(u.Target)
	if err != nil {
		return fmt.Errorf("invalid target URL: %w", err)
	}
	// Login is issued over HTTP/2 with TLS; plaintext targets cannot serve it.
	if target.Scheme != "https" || target.Host == "" {
		return fmt.Errorf("target must be an absolute https URL (got %q)", u.Target)
	}
	if err := validatePrefix(u.LoginPath); err != nil {
		return fmt.Errorf("login_path: %w", err)
	}
	if u.LoginTimeout.Duration <= 0 {
		return fmt.Errorf("login_timeout must be positive (got %s)", u.LoginTimeout)
	}
	if u.MaxLoginBody <= 0 {
		return fmt.Errorf("max_login_body must be positive (got %d)", u.MaxLoginBody)
	}
	if u.MaxFormBody <= 0 {
		return fmt.Errorf("max_form_body must be positive (got %d)", u.MaxFormBody)
	}
	return nil
}

// Validate checks that no timeout is negative.
func (sv *Server) Validate() error {
	timeouts := []struct {
		name string
		d    Duration
	}{
		{"read_header_timeout", sv.ReadHeaderTimeout},
		{"read_timeout", sv.ReadTimeout},
		{"write_timeout", sv.WriteTimeout},
		{"idle_timeout", sv.IdleTimeout},
	}
	for _, t := range timeouts {
		if t.d.Duration < 0 {
			return fmt.Errorf("%s must not be negative (got %s)", t.name, t.d)
		}
	}
	return nil
}

func validatePrefix(p string) error {
	if !strings.HasPrefix(p, "/") {
		return fmt.Errorf("path %q must start with a slash", p)
	}
	return nil
}

// Load reads a TOML configuration file layered over the defaults.
// An empty path returns the defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown config keys in %s: %s", path, strings.Join(keys, ", "))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Write encodes the configuration as TOML
func (c *Config) Write(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}
