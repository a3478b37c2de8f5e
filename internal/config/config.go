package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress string
	APIToken    string

	AssemblyAIKey     string
	TTSProvider       string
	DeepgramKey       string
	DeepgramModel     string
	ElevenLabsKey     string
	ElevenLabsVoiceID string

	LLMKey         string
	LLMBaseURL     string
	LLMModel       string
	LLMTemperature float64
	LLMMaxTokens   int
	LLMTimeout     time.Duration
	LLMCacheSize   int

	RecognitionTimeout    time.Duration
	SynthesisTimeout      time.Duration
	ScoreTimeout          time.Duration
	SessionRetention      time.Duration
	ApprovalThreshold     int
	APThreshold           int
	MaxQuestionWords      int
	ContradictionKeywords []string

	GatewayMaxAttempts int
	GatewayBaseDelay   time.Duration
	GatewayRatePerSec  float64

	PersonaCatalog string
	CasesDir       string

	SupabaseURL            string
	SupabaseServiceRoleKey string
	SupabaseBucket         string
}

// Load reads environment variables (and .env when present) and returns Config
// with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file loaded, using process environment")
	}

	cfg := Config{
		HTTPAddress: envOr("HTTP_ADDRESS", ":8080"),
		APIToken:    os.Getenv("API_TOKEN"),

		AssemblyAIKey:     os.Getenv("ASSEMBLYAI_API_KEY"),
		DeepgramKey:       os.Getenv("DEEPGRAM_API_KEY"),
		DeepgramModel:     envOr("DEEPGRAM_MODEL", "aura-2-thalia-en"),
		ElevenLabsKey:     os.Getenv("ELEVENLABS_API_KEY"),
		ElevenLabsVoiceID: os.Getenv("ELEVENLABS_VOICE_ID"),

		LLMKey:         envOr("LLM_API_KEY", os.Getenv("OPENROUTER_KEY")),
		LLMBaseURL:     os.Getenv("LLM_BASE_URL"),
		LLMModel:       os.Getenv("LLM_MODEL"),
		LLMTemperature: envFloat("LLM_TEMPERATURE", 0.7),
		LLMMaxTokens:   envInt("LLM_MAX_TOKENS", 800),
		LLMTimeout:     envDuration("LLM_TIMEOUT", 30*time.Second),
		LLMCacheSize:   envInt("LLM_CACHE_SIZE", 100),

		RecognitionTimeout:    envDuration("RECOGNITION_TIMEOUT", 15*time.Second),
		SynthesisTimeout:      envDuration("SYNTHESIS_TIMEOUT", 15*time.Second),
		ScoreTimeout:          envDuration("SCORE_TIMEOUT", 90*time.Second),
		SessionRetention:      envDuration("SESSION_RETENTION", time.Hour),
		ApprovalThreshold:     envInt("APPROVAL_THRESHOLD", 70),
		APThreshold:           envInt("AP_THRESHOLD", 2),
		MaxQuestionWords:      envInt("MAX_QUESTION_WORDS", 15),
		ContradictionKeywords: envList("CONTRADICTION_KEYWORDS"),

		GatewayMaxAttempts: envInt("GATEWAY_MAX_ATTEMPTS", 3),
		GatewayBaseDelay:   envDuration("GATEWAY_BASE_DELAY", 250*time.Millisecond),
		GatewayRatePerSec:  envFloat("GATEWAY_RATE_PER_SEC", 5),

		PersonaCatalog: os.Getenv("PERSONA_CATALOG"),
		CasesDir:       envOr("CASES_DIR", "cases"),

		SupabaseURL:            os.Getenv("SUPABASE_URL"),
		SupabaseServiceRoleKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseBucket:         envOr("SUPABASE_BUCKET", "cases"),
	}

	cfg.TTSProvider = strings.ToLower(os.Getenv("TTS_PROVIDER"))
	if cfg.TTSProvider == "" {
		switch {
		case cfg.DeepgramKey != "":
			cfg.TTSProvider = "deepgram"
		case cfg.ElevenLabsKey != "" && cfg.ElevenLabsVoiceID != "":
			cfg.TTSProvider = "elevenlabs"
		default:
			cfg.TTSProvider = "silent"
		}
	}

	if cfg.AssemblyAIKey == "" {
		log.Println("Warning: ASSEMBLYAI_API_KEY not set - spoken answers will not be transcribed")
	}
	if cfg.TTSProvider == "silent" {
		log.Println("Warning: no TTS provider configured - officer audio will be silent")
	}
	if cfg.TTSProvider == "elevenlabs" && cfg.ElevenLabsVoiceID == "" {
		log.Println("Warning: ELEVENLABS_VOICE_ID not set - set a concrete voice ID from your ElevenLabs dashboard")
	}
	if cfg.LLMKey == "" {
		log.Println("Warning: LLM_API_KEY not set - questions stay scripted and reports have no coach feedback")
	}
	if cfg.APIToken == "" {
		log.Println("Warning: API_TOKEN not set - HTTP API is unauthenticated")
	}

	log.Printf("config: HTTP_ADDRESS=%s TTS_PROVIDER=%s", cfg.HTTPAddress, cfg.TTSProvider)
	return cfg
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Warning: %s=%q is not an integer, using %d", key, v, def)
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("Warning: %s=%q is not a number, using %g", key, v, def)
		return def
	}
	return f
}

// envDuration accepts Go durations ("30s") or plain seconds ("30").
func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	log.Printf("Warning: %s=%q is not a duration, using %s", key, v, def)
	return def
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
