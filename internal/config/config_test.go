package config

import (
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"HTTP_ADDRESS", "TTS_PROVIDER", "DEEPGRAM_API_KEY", "ELEVENLABS_API_KEY", "ELEVENLABS_VOICE_ID",
		"LLM_API_KEY", "OPENROUTER_KEY", "RECOGNITION_TIMEOUT", "GATEWAY_MAX_ATTEMPTS", "SESSION_RETENTION",
		"CONTRADICTION_KEYWORDS", "SUPABASE_BUCKET", "CASES_DIR",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg := Load()
	if cfg.HTTPAddress != ":8080" {
		t.Fatalf("expected default http address, got %q", cfg.HTTPAddress)
	}
	if cfg.TTSProvider != "silent" {
		t.Fatalf("expected silent tts without keys, got %q", cfg.TTSProvider)
	}
	if cfg.RecognitionTimeout != 15*time.Second || cfg.GatewayMaxAttempts != 3 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.SessionRetention != time.Hour {
		t.Fatalf("expected 1h retention, got %s", cfg.SessionRetention)
	}
	if cfg.CasesDir != "cases" || cfg.SupabaseBucket != "cases" {
		t.Fatalf("unexpected storage defaults: %q %q", cfg.CasesDir, cfg.SupabaseBucket)
	}
	if len(cfg.ContradictionKeywords) != 0 {
		t.Fatalf("expected no keywords, got %v", cfg.ContradictionKeywords)
	}
}

func TestLoad_Env(t *testing.T) {
	clearEnv(t)
	t.Setenv("DEEPGRAM_API_KEY", "dg")
	t.Setenv("OPENROUTER_KEY", "or")
	t.Setenv("RECOGNITION_TIMEOUT", "12")
	t.Setenv("GATEWAY_MAX_ATTEMPTS", "5")
	t.Setenv("CONTRADICTION_KEYWORDS", " actually , i meant,,")
	t.Setenv("SESSION_RETENTION", "10m")
	cfg := Load()
	if cfg.TTSProvider != "deepgram" {
		t.Fatalf("expected deepgram, got %q", cfg.TTSProvider)
	}
	if cfg.LLMKey != "or" {
		t.Fatalf("expected OPENROUTER_KEY fallback, got %q", cfg.LLMKey)
	}
	if cfg.RecognitionTimeout != 12*time.Second {
		t.Fatalf("expected 12s, got %s", cfg.RecognitionTimeout)
	}
	if cfg.SessionRetention != 10*time.Minute {
		t.Fatalf("expected 10m retention, got %s", cfg.SessionRetention)
	}
	if cfg.GatewayMaxAttempts != 5 {
		t.Fatalf("expected 5 attempts, got %d", cfg.GatewayMaxAttempts)
	}
	if len(cfg.ContradictionKeywords) != 2 || cfg.ContradictionKeywords[1] != "i meant" {
		t.Fatalf("unexpected keywords %v", cfg.ContradictionKeywords)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("RECOGNITION_TIMEOUT", "soon")
	t.Setenv("GATEWAY_MAX_ATTEMPTS", "many")
	t.Setenv("TTS_PROVIDER", "ElevenLabs")
	cfg := Load()
	if cfg.RecognitionTimeout != 15*time.Second || cfg.GatewayMaxAttempts != 3 {
		t.Fatalf("expected fallbacks, got %s %d", cfg.RecognitionTimeout, cfg.GatewayMaxAttempts)
	}
	if cfg.TTSProvider != "elevenlabs" {
		t.Fatalf("expected lowercased provider, got %q", cfg.TTSProvider)
	}
}
