package app

import (
	"fmt"
	"log"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/PROX-GOD/mockdeu/internal/agent"
	"github.com/PROX-GOD/mockdeu/internal/config"
	"github.com/PROX-GOD/mockdeu/internal/dialogue"
	"github.com/PROX-GOD/mockdeu/internal/httpserver"
	"github.com/PROX-GOD/mockdeu/internal/infra/storage"
	"github.com/PROX-GOD/mockdeu/internal/llm"
	"github.com/PROX-GOD/mockdeu/internal/metrics"
	"github.com/PROX-GOD/mockdeu/internal/persona"
	"github.com/PROX-GOD/mockdeu/internal/scoring"
	"github.com/PROX-GOD/mockdeu/internal/speech"
	"github.com/PROX-GOD/mockdeu/internal/usecase"
)

// App is the wired engine: catalog, interview service and HTTP shell.
type App struct {
	Catalog    *persona.Catalog
	Interviews usecase.InterviewService
	Server     *httpserver.Server
	Metrics    *metrics.Metrics
}

// Build wires every component from cfg. reg receives the collectors and backs
// /metrics; nil uses a fresh registry.
func Build(cfg config.Config, reg *prometheus.Registry) (*App, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	catalog, err := loadCatalog(cfg.PersonaCatalog)
	if err != nil {
		return nil, err
	}
	m, err := metrics.New(reg)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	chat, err := newChat(cfg)
	if err != nil {
		return nil, err
	}

	policyOpts := []dialogue.Option{}
	scoringOpts := []scoring.Option{}
	if chat != nil {
		policyOpts = append(policyOpts, dialogue.WithPhraser(&dialogue.LLMPhraser{Model: chat, MaxWords: cfg.MaxQuestionWords, HistoryTurns: 4}))
		scoringOpts = append(scoringOpts, scoring.WithCoach(chat))
	}
	policy := dialogue.New(dialogue.Config{
		ContradictionKeywords: cfg.ContradictionKeywords,
		MaxQuestionWords:      cfg.MaxQuestionWords,
	}, policyOpts...)
	scorer := scoring.New(scoring.Config{
		ApprovalThreshold: cfg.ApprovalThreshold,
		APThreshold:       cfg.APThreshold,
	}, scoringOpts...)

	archive, err := newArchive(cfg)
	if err != nil {
		return nil, err
	}

	svc := usecase.NewInterviewService(usecase.Deps{
		Catalog: catalog,
		Policy:  policy,
		Gateway: NewGateway(cfg, m),
		Scorer:  scorer,
		Archive: archive,
		Metrics: m,
		Controller: agent.Options{
			RecognitionTimeout: cfg.RecognitionTimeout,
			SynthesisTimeout:   cfg.SynthesisTimeout,
		},
		ScoreTimeout: cfg.ScoreTimeout,
		Retention:    cfg.SessionRetention,
	})

	srv := httpserver.New(svc, httpserver.Options{APIToken: cfg.APIToken, Gatherer: reg, Catalog: catalog})
	return &App{Catalog: catalog, Interviews: svc, Server: srv, Metrics: m}, nil
}

func loadCatalog(path string) (*persona.Catalog, error) {
	if path == "" {
		return persona.Default()
	}
	c, err := persona.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("persona catalog %s: %w", path, err)
	}
	log.Printf("persona catalog loaded from %s", path)
	return c, nil
}

func newChat(cfg config.Config) (*llm.ChatClient, error) {
	if cfg.LLMKey == "" {
		return nil, nil
	}
	c, err := llm.NewChatClient(llm.Options{
		APIKey:      cfg.LLMKey,
		BaseURL:     cfg.LLMBaseURL,
		Model:       cfg.LLMModel,
		Temperature: cfg.LLMTemperature,
		MaxTokens:   cfg.LLMMaxTokens,
		Timeout:     cfg.LLMTimeout,
		CacheSize:   cfg.LLMCacheSize,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	return c, nil
}

// NewGateway picks speech providers from cfg and wraps them with retry and pacing.
func NewGateway(cfg config.Config, m *metrics.Metrics) speech.Gateway {
	var synth speech.Synthesizer
	switch cfg.TTSProvider {
	case "deepgram":
		if cfg.DeepgramKey != "" {
			synth = speech.NewDeepgram(cfg.DeepgramKey, cfg.DeepgramModel)
		}
	case "elevenlabs":
		if cfg.ElevenLabsKey != "" {
			synth = speech.NewElevenLabs(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID)
		}
	}
	if synth == nil && cfg.TTSProvider != "silent" {
		log.Printf("Warning: TTS provider %q has no API key, falling back to silent audio", cfg.TTSProvider)
	}

	var stt speech.Transcriber
	if cfg.AssemblyAIKey != "" {
		stt = speech.NewAssemblyAI(cfg.AssemblyAIKey)
	}

	policy := speech.DefaultRetryPolicy()
	if cfg.GatewayMaxAttempts > 0 {
		policy.MaxAttempts = cfg.GatewayMaxAttempts
	}
	if cfg.GatewayBaseDelay > 0 {
		policy.BaseDelay = cfg.GatewayBaseDelay
	}
	opts := []speech.ResilientOption{speech.WithRateLimit(cfg.GatewayRatePerSec, 2)}
	if m != nil {
		opts = append(opts, speech.WithObserver(m))
	}
	return speech.NewResilient(speech.NewComposite(synth, stt), policy, opts...)
}

func newArchive(cfg config.Config) (*storage.CaseArchive, error) {
	if cfg.SupabaseURL != "" || cfg.SupabaseServiceRoleKey != "" {
		store, err := storage.NewSupabaseStorage(storage.SupabaseConfig{
			URL:            cfg.SupabaseURL,
			ServiceRoleKey: cfg.SupabaseServiceRoleKey,
			Bucket:         cfg.SupabaseBucket,
		})
		if err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		log.Printf("archiving cases to supabase bucket %s", cfg.SupabaseBucket)
		return storage.NewCaseArchive(store), nil
	}
	log.Printf("archiving cases to %s", cfg.CasesDir)
	return storage.NewCaseArchive(storage.NewFilesystemStorage(cfg.CasesDir)), nil
}
