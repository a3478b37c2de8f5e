package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/PROX-GOD/mockdeu/internal/config"
	"github.com/PROX-GOD/mockdeu/internal/speech"
)

func baseConfig(t *testing.T) config.Config {
	return config.Config{
		TTSProvider:    "silent",
		CasesDir:       t.TempDir(),
		SupabaseBucket: "cases",
	}
}

func TestBuild_Defaults(t *testing.T) {
	a, err := Build(baseConfig(t), nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer a.Interviews.Close()
	if len(a.Catalog.Embassies()) == 0 {
		t.Fatalf("expected built-in embassies")
	}
	w := httptest.NewRecorder()
	a.Server.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("healthz: %d", w.Code)
	}
	w = httptest.NewRecorder()
	a.Server.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("metrics: %d", w.Code)
	}
}

func TestBuild_BadCatalogPath(t *testing.T) {
	cfg := baseConfig(t)
	cfg.PersonaCatalog = "/does/not/exist.yaml"
	if _, err := Build(cfg, nil); err == nil {
		t.Fatalf("expected catalog error")
	}
}

func TestBuild_SupabaseNeedsKey(t *testing.T) {
	cfg := baseConfig(t)
	cfg.SupabaseURL = "https://example.supabase.co"
	if _, err := Build(cfg, nil); err == nil {
		t.Fatalf("expected storage error without service role key")
	}
}

func TestNewGateway_SilentWithoutKeys(t *testing.T) {
	cfg := baseConfig(t)
	cfg.TTSProvider = "deepgram"
	gw := NewGateway(cfg, nil)
	h, err := gw.Synthesize(context.Background(), "Good morning.", speech.VoiceProfile{})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if h.ContentType != "audio/wav" {
		t.Fatalf("expected silent wav, got %q", h.ContentType)
	}
	if _, err := gw.Transcribe(context.Background(), speech.AudioStream{Encoding: speech.EncodingPCM16, SampleRate: 16000, Frames: [][]byte{{0, 0}}}, 0); err == nil {
		t.Fatalf("expected recognition failure without a transcriber")
	}
}
