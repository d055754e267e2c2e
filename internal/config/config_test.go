package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

// inTempDir runs the test from an empty directory so no config file is found.
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestDefaults(t *testing.T) {
	inTempDir(t)
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.APIPort != 8080 || cfg.Server.RelayPort != 8081 {
		t.Fatalf("ports = %d/%d", cfg.Server.APIPort, cfg.Server.RelayPort)
	}
	if cfg.Server.SDPRateWindow != time.Minute || cfg.Server.PingPeriod != 54*time.Second {
		t.Fatalf("durations = %v/%v", cfg.Server.SDPRateWindow, cfg.Server.PingPeriod)
	}
	if cfg.Client.FrameRate != 60 || !cfg.Client.Visualizer || len(cfg.Client.ICEServers) != 1 {
		t.Fatalf("client = %+v", cfg.Client)
	}
}

func TestEnvAndFlagsOverride(t *testing.T) {
	inTempDir(t)
	t.Setenv("VOICEBRIDGE_SERVER_VOICE", "alloy")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	fs := pflag.NewFlagSet("client", pflag.ContinueOnError)
	ClientFlags(fs)
	if err := fs.Parse([]string{"--fps=30", "--api-url=http://api:9000", "--ice-server=stun:a:1", "--ice-server=stun:b:2"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(fs)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Voice != "alloy" {
		t.Fatalf("voice = %q", cfg.Server.Voice)
	}
	if cfg.Server.OpenAIAPIKey != "sk-test" {
		t.Fatalf("api key = %q", cfg.Server.OpenAIAPIKey)
	}
	if cfg.Client.FrameRate != 30 || cfg.Client.APIURL != "http://api:9000" {
		t.Fatalf("client = %+v", cfg.Client)
	}
	if len(cfg.Client.ICEServers) != 2 || cfg.Client.ICEServers[1] != "stun:b:2" {
		t.Fatalf("ice servers = %v", cfg.Client.ICEServers)
	}
	if cfg.Client.RelayURL != "ws://localhost:8081/" {
		t.Fatalf("unset flag overrode default: %q", cfg.Client.RelayURL)
	}
}

func TestFileIsRead(t *testing.T) {
	dir := inTempDir(t)
	if err := os.MkdirAll(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatal(err)
	}
	yaml := "server:\n  instructions: be brief\n  relay_port: 9999\n"
	if err := os.WriteFile(filepath.Join(dir, "config", "config.test.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_ENV", "test")

	l := NewLoader(nil)
	cfg, err := l.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Instructions != "be brief" || cfg.Server.RelayPort != 9999 {
		t.Fatalf("server = %+v", cfg.Server)
	}
	if l.Current() != cfg {
		t.Fatal("Current does not return the loaded config")
	}
}
