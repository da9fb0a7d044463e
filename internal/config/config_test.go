package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/routerdeploy/internal/errors"
	"github.com/ggonzalez94/routerdeploy/internal/fees"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadPrecedenceFlagsOverEnvOverFile(t *testing.T) {
	path := writeConfig(t, "output: plain\nlog_level: debug\ntimeout: 1m\n")
	t.Setenv("ROUTERDEPLOY_OUTPUT", "json")
	t.Setenv("ROUTERDEPLOY_TIMEOUT", "2m")

	settings, err := Load(GlobalFlags{ConfigPath: path, Plain: true})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.OutputMode != "plain" {
		t.Fatalf("expected flag to win, got output=%s", settings.OutputMode)
	}
	if settings.Timeout != 2*time.Minute {
		t.Fatalf("expected env timeout, got %s", settings.Timeout)
	}
	if settings.LogLevel != "debug" {
		t.Fatalf("expected file log level, got %s", settings.LogLevel)
	}
}

func TestLoadMutuallyExclusiveOutputFlags(t *testing.T) {
	_, err := Load(GlobalFlags{ConfigPath: filepath.Join(t.TempDir(), "missing.yaml"), JSON: true, Plain: true})
	if !clierr.HasCode(err, clierr.CodeUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
}

func TestLoadFeesPerNetwork(t *testing.T) {
	t.Setenv("BASE_FEE_RECIPIENT", "0x464c7Bb0d5DA8189fD140f153535932d291F7f97")
	path := writeConfig(t, `
fees:
  base:
    recipient_env: BASE_FEE_RECIPIENT
    base_bps: 10000
    rates_bps:
      fast_trade: 2
      sniper: 5
      limit: 5
  "11155111":
    recipient: "0x464c7bb0d5da8189fd140f153535932d291f7f97"
    base_bps: 1000
    rates_bps: {fast_trade: 2, sniper: 5, limit: 5}
`)
	settings, err := Load(GlobalFlags{ConfigPath: path})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	base, err := settings.FeesFor(8453)
	if err != nil {
		t.Fatalf("FeesFor(8453): %v", err)
	}
	if base.BaseBps != 10_000 || base.RatesBps[fees.TradeFast] != 2 {
		t.Fatalf("unexpected base fees: %+v", base)
	}
	if base.Recipient != common.HexToAddress("0x464c7Bb0d5DA8189fD140f153535932d291F7f97") {
		t.Fatalf("unexpected recipient: %s", base.Recipient.Hex())
	}
	sepolia, _ := settings.FeesFor(11155111)
	if sepolia.BaseBps != 1_000 {
		t.Fatalf("expected sepolia to keep its own base, got %d", sepolia.BaseBps)
	}
	if _, err := settings.FeesFor(1); !clierr.HasCode(err, clierr.CodeConfig) {
		t.Fatalf("expected missing mainnet fees to be a config error, got %v", err)
	}

	base.RatesBps[fees.TradeFast] = 99
	again, _ := settings.FeesFor(8453)
	if again.RatesBps[fees.TradeFast] != 2 {
		t.Fatal("FeesFor must return an independent copy")
	}
}

func TestLoadRejectsBadFeeInput(t *testing.T) {
	path := writeConfig(t, `
fees:
  base:
    recipient: "0x464C7bb0d5da8189fd140f153535932d291f7f97"
    base_bps: 10000
    rates_bps: {fast_trade: 2, sniper: 5, limit: 5}
`)
	if _, err := Load(GlobalFlags{ConfigPath: path}); !clierr.HasCode(err, clierr.CodeConfig) {
		t.Fatalf("expected bad checksum to be a config error, got %v", err)
	}

	path = writeConfig(t, `
fees:
  base:
    recipient: "0x464c7Bb0d5DA8189fD140f153535932d291F7f97"
    base_bps: 1000
    rates_bps: {flat: 5}
`)
	if _, err := Load(GlobalFlags{ConfigPath: path}); !clierr.HasCode(err, clierr.CodeConfig) {
		t.Fatalf("expected unknown trade type to be a config error, got %v", err)
	}
}

func TestLoadNetworksAndRPC(t *testing.T) {
	t.Setenv("MY_BASE_RPC", "https://base.example.test")
	t.Setenv("ROUTERDEPLOY_RPC_31337", "http://127.0.0.1:9545")
	path := writeConfig(t, `
rpc:
  "1": https://eth.example.test
rpc_env:
  base: MY_BASE_RPC
networks:
  - network_id: 84532
    name: Base Sepolia
    slug: base-sepolia
    wrapped_native_token: "0x4200000000000000000000000000000000000006"
    v2_factory: "0x7ae58f10f7849ca6f5fb71b7f45cb416c9204b1e"
    v3_factory: "0x4752ba5dbc23f44d87826276bf6fd6b1c372ad24"
    v2_pair_init_code_hash: "0x96e8ac4277198ff8b6f785478aa9a39f403cb768dd02cbee326c3e7da348845f"
    v3_pool_init_code_hash: "0xe34f199b19b2b4f47f68442619d555527d244f78a3297ea89325f843f87b8b54"
execution:
  gas_multiplier: 1.5
  receipt_timeout: 90s
`)
	settings, err := Load(GlobalFlags{ConfigPath: path})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.RPCURLs[1] != "https://eth.example.test" || settings.RPCURLs[8453] != "https://base.example.test" || settings.RPCURLs[31337] != "http://127.0.0.1:9545" {
		t.Fatalf("unexpected rpc urls: %+v", settings.RPCURLs)
	}
	if len(settings.Networks) != 1 || settings.Networks[0].NetworkID != 84532 || settings.Networks[0].Slug != "base-sepolia" {
		t.Fatalf("unexpected networks: %+v", settings.Networks)
	}
	if settings.Execution.GasMultiplier != 1.5 || settings.Execution.ReceiptTimeout != 90*time.Second {
		t.Fatalf("unexpected execution settings: %+v", settings.Execution)
	}
}

func TestLoadNetworkMissingHash(t *testing.T) {
	path := writeConfig(t, `
networks:
  - network_id: 10
    wrapped_native_token: "0x4200000000000000000000000000000000000006"
    v2_factory: "0x0c3c1c532f1e39edf36be9fe0be1410313e074bf"
    v3_factory: "0x1F98431c8aD98523631AE4a59f267346ea31F984"
    v3_pool_init_code_hash: "0xe34f199b19b2b4f47f68442619d555527d244f78a3297ea89325f843f87b8b54"
`)
	_, err := Load(GlobalFlags{ConfigPath: path})
	typed, ok := clierr.As(err)
	if !ok || typed.Field != "networks[0].v2_pair_init_code_hash" {
		t.Fatalf("expected missing pair hash error, got %v", err)
	}
}

func TestLoadRejectsUnknownLogLevel(t *testing.T) {
	_, err := Load(GlobalFlags{ConfigPath: filepath.Join(t.TempDir(), "missing.yaml"), LogLevel: "verbose"})
	if !clierr.HasCode(err, clierr.CodeConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestLoadAllowlists(t *testing.T) {
	path := writeConfig(t, "enable_commands: [plan, \"networks list\"]\nallowed_networks: [local, \"8453\"]\n")
	settings, err := Load(GlobalFlags{ConfigPath: path})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(settings.EnableCommands) != 2 || settings.EnableCommands[1] != "networks list" {
		t.Fatalf("unexpected command allowlist: %#v", settings.EnableCommands)
	}
	if len(settings.AllowedNetworks) != 2 || settings.AllowedNetworks[0] != "local" {
		t.Fatalf("unexpected network allowlist: %#v", settings.AllowedNetworks)
	}

	t.Setenv("ROUTERDEPLOY_ALLOWED_NETWORKS", "sepolia, ")
	settings, err = Load(GlobalFlags{ConfigPath: path, EnableCommands: "deploy"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(settings.AllowedNetworks) != 1 || settings.AllowedNetworks[0] != "sepolia" {
		t.Fatalf("expected env network allowlist, got %#v", settings.AllowedNetworks)
	}
	if len(settings.EnableCommands) != 1 || settings.EnableCommands[0] != "deploy" {
		t.Fatalf("expected flag command allowlist, got %#v", settings.EnableCommands)
	}
}

func TestLoadRejectsTwoKeysForOneNetwork(t *testing.T) {
	rates := "    recipient: \"0x464c7Bb0d5DA8189fD140f153535932d291F7f97\"\n    rates_bps: {fast_trade: 2, sniper: 5, limit: 5}\n"
	path := writeConfig(t, "fees:\n  \"8453\":\n    base_bps: 10000\n"+rates+"  base:\n    base_bps: 1000\n"+rates)
	for i := 0; i < 20; i++ {
		_, err := Load(GlobalFlags{ConfigPath: path})
		typed, ok := clierr.As(err)
		if !ok || typed.Code != clierr.CodeConfig || typed.Field != "fees.base" {
			t.Fatalf("expected config error on fees.base, got %v", err)
		}
	}

	path = writeConfig(t, "rpc:\n  \"1\": https://one.example.test\n  ethereum: https://two.example.test\n")
	if _, err := Load(GlobalFlags{ConfigPath: path}); !clierr.HasCode(err, clierr.CodeConfig) {
		t.Fatalf("expected duplicate rpc key to be rejected, got %v", err)
	}
}

func TestLoadRPCEnvOverridesLiteralRPC(t *testing.T) {
	t.Setenv("BASE_RPC", "https://env.example.test")
	path := writeConfig(t, "rpc:\n  base: https://file.example.test\nrpc_env:\n  \"8453\": BASE_RPC\n")
	settings, err := Load(GlobalFlags{ConfigPath: path})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := settings.RPCURLs[8453]; got != "https://env.example.test" {
		t.Fatalf("expected rpc_env to win, got %q", got)
	}
}

func TestLoadRejectsFeeTagCaseCollision(t *testing.T) {
	path := writeConfig(t, `
fees:
  base:
    recipient: "0x464c7Bb0d5DA8189fD140f153535932d291F7f97"
    base_bps: 10000
    rates_bps:
      fast_trade: 2
      sniper: 5
      Sniper: 50
      limit: 5
`)
	_, err := Load(GlobalFlags{ConfigPath: path})
	typed, ok := clierr.As(err)
	if !ok || typed.Code != clierr.CodeConfig || typed.Field != "fees.8453.rates_bps.sniper" {
		t.Fatalf("expected tag collision config error, got %v", err)
	}
}
