package config

import (
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "SCAN_INTERVAL_SECONDS", "SIGNAL_TTL_MINUTES",
		"MIN_CONFIDENCE", "STOP_LOSS_PERCENT", "TAKE_PROFIT_PERCENT",
		"TRADE_LOCK_TTL_SECONDS", "SCAN_CONCURRENCY", "REDIS_ADDR",
	} {
		t.Setenv(key, "")
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %s, want 8080", cfg.Port)
	}
	if cfg.ScanInterval != 5*time.Second {
		t.Errorf("ScanInterval = %s, want 5s", cfg.ScanInterval)
	}
	if cfg.SignalTTL != 5*time.Minute {
		t.Errorf("SignalTTL = %s, want 5m", cfg.SignalTTL)
	}
	if cfg.MinConfidence != 75 {
		t.Errorf("MinConfidence = %d, want 75", cfg.MinConfidence)
	}
	if cfg.StopLossPct != 2 || cfg.TakeProfitPct != 5 {
		t.Errorf("exits = %v/%v, want 2/5", cfg.StopLossPct, cfg.TakeProfitPct)
	}
	if cfg.TradeLockTTL != time.Minute {
		t.Errorf("TradeLockTTL = %s, want 1m", cfg.TradeLockTTL)
	}
	if cfg.ScanConcurrency != 8 {
		t.Errorf("ScanConcurrency = %d, want 8", cfg.ScanConcurrency)
	}
	if cfg.RedisAddr != "" {
		t.Errorf("RedisAddr = %q, want empty", cfg.RedisAddr)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("SCAN_INTERVAL_SECONDS", "30")
	t.Setenv("MIN_CONFIDENCE", "85")
	t.Setenv("STOP_LOSS_PERCENT", "3.5")
	t.Setenv("MAX_PAIRS_PER_TICK", "10")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Port != "9999" {
		t.Errorf("Port = %s", cfg.Port)
	}
	if cfg.ScanInterval != 30*time.Second {
		t.Errorf("ScanInterval = %s", cfg.ScanInterval)
	}
	if cfg.MinConfidence != 85 {
		t.Errorf("MinConfidence = %d", cfg.MinConfidence)
	}
	if cfg.StopLossPct != 3.5 {
		t.Errorf("StopLossPct = %v", cfg.StopLossPct)
	}
	if cfg.MaxPairsPerTick != 10 {
		t.Errorf("MaxPairsPerTick = %d", cfg.MaxPairsPerTick)
	}
}

func TestLoadConfig_InvalidNumbersFallBack(t *testing.T) {
	t.Setenv("MIN_CONFIDENCE", "lots")
	t.Setenv("SCAN_INTERVAL_SECONDS", "soon")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.MinConfidence != 75 {
		t.Errorf("MinConfidence = %d, want default 75", cfg.MinConfidence)
	}
	if cfg.ScanInterval != 5*time.Second {
		t.Errorf("ScanInterval = %s, want default 5s", cfg.ScanInterval)
	}
}

func TestMaskHost(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"db", "***"},
		{"localhost", "loc***"},
		{"db.internal.example.com", "db.inter***xample.com"},
	}
	for _, tt := range tests {
		if got := maskHost(tt.host); got != tt.want {
			t.Errorf("maskHost(%q) = %q, want %q", tt.host, got, tt.want)
		}
	}
}
