package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/tanelvakker/qwtimers/internal/config"
	"github.com/tanelvakker/qwtimers/internal/errors"
)

// runRoot executes the root command with args and returns its stdout.
func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() {
		configPath = ""
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
	})

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "qwtimers.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestConfigCommand_Defaults(t *testing.T) {
	out, err := runRoot(t, "config")
	if err != nil {
		t.Fatalf("config failed: %v", err)
	}

	var cfg config.Config
	if _, err := toml.Decode(out, &cfg); err != nil {
		t.Fatalf("output is not valid TOML: %v\n%s", err, out)
	}
	if cfg.Upstream.Target != config.DefaultTargetURL {
		t.Errorf("expected target %q, got %q", config.DefaultTargetURL, cfg.Upstream.Target)
	}
	if cfg.Upstream.LoginTimeout.Duration != config.DefaultLoginTimeout {
		t.Errorf("expected login timeout %v, got %v", config.DefaultLoginTimeout, cfg.Upstream.LoginTimeout.Duration)
	}
}

func TestConfigCommand_File(t *testing.T) {
	path := writeConfig(t, `
listen = "127.0.0.1:9090"

[upstream]
login_timeout = "20s"
`)

	out, err := runRoot(t, "config", "--config", path)
	if err != nil {
		t.Fatalf("config failed: %v", err)
	}
	if !strings.Contains(out, `listen = "127.0.0.1:9090"`) {
		t.Errorf("expected listen override in output:\n%s", out)
	}
	if !strings.Contains(out, `login_timeout = "20s"`) {
		t.Errorf("expected login_timeout override in output:\n%s", out)
	}
}

func TestConfigCommand_InvalidFile(t *testing.T) {
	path := writeConfig(t, "[upstream]\ntargte = \"https://app.qilowatt.it\"\n")

	_, err := runRoot(t, "config", "--config", path)
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
	if code := errors.GetExitCode(err); code != errors.ExitConfigError {
		t.Errorf("expected exit code %d, got %d", errors.ExitConfigError, code)
	}
}

func TestLoadConfig_FlagOverrides(t *testing.T) {
	t.Cleanup(func() {
		serveCmd.Flags().Set("listen", config.DefaultListenAddr)
		serveCmd.Flags().Set("login-timeout", config.DefaultLoginTimeout.String())
		serveCmd.Flags().Lookup("listen").Changed = false
		serveCmd.Flags().Lookup("login-timeout").Changed = false
	})

	flags := serveCmd.Flags()
	if err := flags.Set("listen", "127.0.0.1:7070"); err != nil {
		t.Fatal(err)
	}
	if err := flags.Set("login-timeout", "3s"); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(flags, serveOverrides()...)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != "127.0.0.1:7070" {
		t.Errorf("expected listen override, got %q", cfg.Listen)
	}
	if cfg.Upstream.LoginTimeout.Duration != 3*time.Second {
		t.Errorf("expected 3s login timeout, got %v", cfg.Upstream.LoginTimeout.Duration)
	}
	// Unset flags leave the file/default values alone.
	if cfg.Upstream.Target != config.DefaultTargetURL {
		t.Errorf("expected default target, got %q", cfg.Upstream.Target)
	}
}

func TestLoadConfig_InvalidOverride(t *testing.T) {
	t.Cleanup(func() {
		serveCmd.Flags().Set("target", config.DefaultTargetURL)
		serveCmd.Flags().Lookup("target").Changed = false
	})

	flags := serveCmd.Flags()
	if err := flags.Set("target", "http://app.qilowatt.it"); err != nil {
		t.Fatal(err)
	}

	_, err := loadConfig(flags, serveOverrides()...)
	if err == nil {
		t.Fatal("expected error for a non-https target")
	}
	if code := errors.GetExitCode(err); code != errors.ExitConfigError {
		t.Errorf("expected exit code %d, got %d", errors.ExitConfigError, code)
	}
}
