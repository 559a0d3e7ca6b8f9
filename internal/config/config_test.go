package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/devlongs/mev-inspect/pkg/types"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPC.RetryAttempts != 3 || cfg.RPC.RetryDelay != time.Second {
		t.Fatalf("unexpected rpc defaults %+v", cfg.RPC)
	}
	if cfg.Inspector.PollInterval != 12*time.Second || cfg.Inspector.BatchSize != 100 {
		t.Fatalf("unexpected inspector defaults %+v", cfg.Inspector)
	}
	if len(cfg.Inspector.Protocols) != 5 {
		t.Fatalf("expected every protocol enabled, got %v", cfg.Inspector.Protocols)
	}
	if cfg.Metrics.Listen != "" || cfg.Storage.PostgresDSN != "" {
		t.Fatalf("optional services enabled by default")
	}
}

func TestLoadFileEnvAndFlags(t *testing.T) {
	path := writeConfig(t, `
rpc:
  url: http://localhost:8545
  rate_limit: 25
inspector:
  chain_id: 137
  protocols: [UniswapV2, ERC20]
directory:
  factories:
    - chain_id: 137
      protocol: UniswapV2
      label: Dfyn
      address: "0xE7Fb3e833eFE5F9c441105EB65Ef8b261266423B"
logging:
  level: debug
`)
	t.Setenv("MEV_INSPECTOR_BATCH_SIZE", "7")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("logging.format", "console", "")
	if err := flags.Parse([]string{"--logging.format=json"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load(path, flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPC.URL != "http://localhost:8545" || cfg.RPC.RateLimit != 25 {
		t.Fatalf("file values not applied: %+v", cfg.RPC)
	}
	if cfg.Inspector.ChainID != types.ChainPolygon || cfg.Inspector.BatchSize != 7 {
		t.Fatalf("unexpected inspector config %+v", cfg.Inspector)
	}
	if len(cfg.Inspector.Protocols) != 2 || cfg.Inspector.Protocols[1] != types.ProtocolERC20 {
		t.Fatalf("protocols = %v", cfg.Inspector.Protocols)
	}
	if len(cfg.Directory.Factories) != 1 || cfg.Directory.Factories[0].Label != "Dfyn" || cfg.Directory.Factories[0].ChainID != 137 {
		t.Fatalf("factories = %+v", cfg.Directory.Factories)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown protocol", "inspector:\n  protocols: [CurveV9]\n"},
		{"bad factory address", "directory:\n  factories:\n    - {chain_id: 1, protocol: UniswapV2, label: x, address: nope}\n"},
		{"missing factory chain", "directory:\n  factories:\n    - {protocol: UniswapV2, label: x, address: \"0xE7Fb3e833eFE5F9c441105EB65Ef8b261266423B\"}\n"},
		{"zero batch", "inspector:\n  batch_size: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.body), nil); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
