package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/michalvitousek/miot/internal/agent"
	"github.com/michalvitousek/miot/internal/infrastructure/config"
)

// isolate runs the test in an empty directory so no .env or
// configs/config.yaml is picked up, and points the control file there.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv(configEnv, "")
	t.Setenv("MIOT_LIFECYCLE_CONTROL_FILE", filepath.Join(dir, "controlFile.cf"))
	return dir
}

// closedPort returns a local port with nothing listening on it.
func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close() //nolint:errcheck // Test cleanup
	return port
}

// silentBroker accepts TCP connections but never answers CONNECT.
func silentBroker(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() }) //nolint:errcheck // Test cleanup
	return ln.Addr().(*net.TCPAddr).Port
}

func applyFlags(t *testing.T, args ...string) *config.Config {
	t.Helper()
	fl, err := parseFlags(args, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags(%v) error = %v", args, err)
	}
	cfg := config.Default()
	for _, opt := range fl.options() {
		opt(cfg)
	}
	return cfg
}

func TestParseFlags_OriginalLetters(t *testing.T) {
	cfg := applyFlags(t,
		"-t", "home/relay", "-s", "1", "-b", "broker.local", "-p", "8883",
		"-i", "relay-1", "-c", "false", "-u", "user", "-z", "secret",
		"-v", "true", "-r", "/etc/ca.pem", "-j", "GPIO17", "-x", "-q",
	)

	if cfg.MQTT.Topic != "home/relay" || cfg.MQTT.QoS != 1 {
		t.Errorf("topic/qos = %q/%d", cfg.MQTT.Topic, cfg.MQTT.QoS)
	}
	if cfg.MQTT.Broker.Host != "broker.local" || cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("broker = %s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Broker.ClientID != "relay-1" || cfg.MQTT.CleanSession {
		t.Errorf("client id/clean = %q/%v", cfg.MQTT.Broker.ClientID, cfg.MQTT.CleanSession)
	}
	if cfg.MQTT.Auth.Username != "user" || cfg.MQTT.Auth.Password != "secret" {
		t.Errorf("auth = %+v", cfg.MQTT.Auth)
	}
	if !cfg.MQTT.Broker.TLS || cfg.MQTT.Broker.CAFile != "/etc/ca.pem" {
		t.Errorf("tls = %v ca = %q", cfg.MQTT.Broker.TLS, cfg.MQTT.Broker.CAFile)
	}
	if cfg.Relay.Pin != "GPIO17" || cfg.Relay.Mode != "gpio" {
		t.Errorf("relay = %+v", cfg.Relay)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("log level = %q, want warn", cfg.Logging.Level)
	}
}

func TestParseFlags_OnlyGivenFlagsOverride(t *testing.T) {
	cfg := applyFlags(t, "-t", "home/relay")

	def := config.Default()
	if cfg.MQTT.Broker.Host != def.MQTT.Broker.Host || cfg.MQTT.CleanSession != def.MQTT.CleanSession {
		t.Error("flags that were not given changed the configuration")
	}
	if cfg.Relay.Mode != def.Relay.Mode {
		t.Errorf("mode = %q, want default", cfg.Relay.Mode)
	}
}

func TestParseFlags_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bad qos", []string{"-s", "high"}},
		{"bad port", []string{"-p", "x"}},
		{"bad bool", []string{"-c", "maybe"}},
		{"unknown flag", []string{"-k", "keystore.jks"}},
		{"positional", []string{"-t", "a", "extra"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseFlags(tt.args, io.Discard)
			if !errors.Is(err, config.ErrInvalidConfig) {
				t.Errorf("parseFlags(%v) error = %v, want ErrInvalidConfig", tt.args, err)
			}
		})
	}
}

func TestRun_Help(t *testing.T) {
	isolate(t)
	err := run(context.Background(), []string{"-h"}, io.Discard)
	if !errors.Is(err, flag.ErrHelp) {
		t.Errorf("run(-h) error = %v, want flag.ErrHelp", err)
	}
}

func TestConfigPath(t *testing.T) {
	dir := isolate(t)

	if got := configPath("explicit.yaml"); got != "explicit.yaml" {
		t.Errorf("configPath(flag) = %q", got)
	}
	if got := configPath(""); got != "" {
		t.Errorf("configPath() = %q, want empty without a default file", got)
	}

	if err := os.MkdirAll(filepath.Join(dir, "configs"), 0750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, defaultConfigPath), []byte("{}"), 0600); err != nil {
		t.Fatal(err)
	}
	if got := configPath(""); got != defaultConfigPath {
		t.Errorf("configPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv(configEnv, "/etc/miot/config.yaml")
	if got := configPath(""); got != "/etc/miot/config.yaml" {
		t.Errorf("configPath() = %q, want env value", got)
	}
}

func TestRun_InvalidQoSNeverConnects(t *testing.T) {
	dir := isolate(t)

	err := run(context.Background(), []string{"-t", "home/relay", "-s", "5", "-j", "17"}, io.Discard)

	if !errors.Is(err, config.ErrInvalidConfig) {
		t.Fatalf("run() error = %v, want ErrInvalidConfig", err)
	}
	if agent.ExitCode(err) != 2 {
		t.Errorf("ExitCode() = %d, want 2", agent.ExitCode(err))
	}
	if _, statErr := os.Stat(filepath.Join(dir, "controlFile.cf")); !os.IsNotExist(statErr) {
		t.Error("control file created before configuration was valid")
	}
}

func TestRun_MissingConfigFile(t *testing.T) {
	isolate(t)
	err := run(context.Background(), []string{"-config", "/nonexistent/path/config.yaml"}, io.Discard)
	if err == nil {
		t.Fatal("run() should fail with a missing config file")
	}
	if agent.ExitCode(err) != 1 {
		t.Errorf("ExitCode() = %d, want 1", agent.ExitCode(err))
	}
}

func TestRun_MalformedConfigFileIsConfigError(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("mqtt: [broken"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	err := run(context.Background(), []string{"-config", path}, io.Discard)

	if !errors.Is(err, config.ErrInvalidConfig) {
		t.Fatalf("run() error = %v, want ErrInvalidConfig", err)
	}
	if agent.ExitCode(err) != 2 {
		t.Errorf("ExitCode() = %d, want 2", agent.ExitCode(err))
	}
}

func TestRun_ConnectFailureExitsNonZero(t *testing.T) {
	dir := isolate(t)
	t.Setenv("MIOT_LOG_OUTPUT", "stderr")
	t.Setenv("MIOT_LOG_LEVEL", "error")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := run(ctx, []string{
		"-t", "home/relay", "-j", "17",
		"-b", "127.0.0.1", "-p", strconv.Itoa(closedPort(t)),
	}, io.Discard)

	if !errors.Is(err, agent.ErrConnect) {
		t.Fatalf("run() error = %v, want agent.ErrConnect", err)
	}
	if agent.ExitCode(err) != 1 {
		t.Errorf("ExitCode() = %d, want 1", agent.ExitCode(err))
	}
	if _, statErr := os.Stat(filepath.Join(dir, "controlFile.cf")); statErr != nil {
		t.Errorf("control file not created: %v", statErr)
	}
}

func TestRun_ControlFileRemovalStops(t *testing.T) {
	dir := isolate(t)
	t.Setenv("MIOT_LOG_LEVEL", "error")
	t.Setenv("MIOT_LIFECYCLE_POLL_INTERVAL", "1")

	// The broker never completes the handshake, so the stop arrives while connecting.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	port := strconv.Itoa(silentBroker(t))
	cf := filepath.Join(dir, "controlFile.cf")
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, []string{"-t", "home/relay", "-j", "17", "-b", "127.0.0.1", "-p", port}, io.Discard)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Stat(cf); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("control file never created")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err := os.Remove(cf); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run() error = %v, want nil", err)
		}
	case <-ctx.Done():
		t.Fatal("run() did not stop after control file removal")
	}
}
