package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadDefaultsWithPgvector(t *testing.T) {
	t.Setenv("EMA_PHONE_RETRIEVAL_BACKEND", BackendPGVector)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Addr != ":8080" || cfg.Session.Timeout != 5*time.Minute || cfg.Session.QueueCapacity != 10 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Retrieval.TopK != 3 {
		t.Fatalf("expected top 3 retrieval, got %d", cfg.Retrieval.TopK)
	}
}

func TestLoadDefaultPineconeNeedsHost(t *testing.T) {
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "pinecone_host") {
		t.Fatalf("expected missing pinecone host error, got %v", err)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9000"
session:
  timeout: 2m
  queue_capacity: 4
retrieval:
  backend: pinecone
  pinecone_host: https://knowledge.svc.pinecone.io
synthesis:
  backend: live
  voice: aura-2-apollo-en
`)
	t.Setenv("EMA_PHONE_QUEUE_CAPACITY", "6")
	t.Setenv("EMA_PHONE_TELEMETRY_STDOUT", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Addr != ":9000" || cfg.Session.Timeout != 2*time.Minute {
		t.Fatalf("expected file values, got %+v", cfg)
	}
	if cfg.Session.QueueCapacity != 6 || !cfg.Telemetry.Stdout {
		t.Fatalf("expected env overrides, got %+v", cfg)
	}
	if cfg.Synthesis.Backend != BackendLive || cfg.Synthesis.Voice != "aura-2-apollo-en" {
		t.Fatalf("unexpected synthesis config %+v", cfg.Synthesis)
	}
	if cfg.Session.WriteTimeout != 10*time.Second {
		t.Fatalf("expected default to survive partial file, got %s", cfg.Session.WriteTimeout)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "sesion:\n  timeout: 1m\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected unknown field to be rejected")
	}
}

func TestLoadRejectsInvalidEnv(t *testing.T) {
	t.Setenv("EMA_PHONE_RETRIEVAL_BACKEND", BackendPGVector)
	t.Setenv("EMA_PHONE_SESSION_TIMEOUT", "five minutes")

	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "EMA_PHONE_SESSION_TIMEOUT") {
		t.Fatalf("expected env parse error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Retrieval.Backend = BackendPGVector
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to be valid, got %v", err)
	}

	cfg.Session.Timeout = 0
	cfg.Transcription.Backend = "carrier-pigeon"
	cfg.Generation.URL = "not a url"
	cfg.Generation.Backend = "oracle"
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation errors")
	}
	for _, want := range []string{"session.timeout", "transcription.backend", "generation.url", "generation.backend"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestRequiredCredentialsFollowRetrievalBackend(t *testing.T) {
	cfg := Default()
	if got := cfg.RequiredCredentials(); !slices.Equal(got, []string{DeepgramAPIKey, OpenAIAPIKey, PineconeAPIKey}) {
		t.Fatalf("unexpected pinecone credentials %v", got)
	}

	cfg.Retrieval.Backend = BackendPGVector
	if got := cfg.RequiredCredentials(); !slices.Equal(got, []string{DeepgramAPIKey, OpenAIAPIKey, VectorDatabaseURL}) {
		t.Fatalf("unexpected pgvector credentials %v", got)
	}

	cfg.Generation.Backend = BackendGemini
	if got := cfg.RequiredCredentials(); !slices.Equal(got, []string{DeepgramAPIKey, OpenAIAPIKey, GeminiAPIKey, VectorDatabaseURL}) {
		t.Fatalf("unexpected gemini credentials %v", got)
	}
}

func TestMissingCredentials(t *testing.T) {
	t.Setenv(DeepgramAPIKey, "dg")
	t.Setenv(OpenAIAPIKey, "")
	t.Setenv(PineconeAPIKey, "  ")

	missing := Default().MissingCredentials(LookupCredentials())
	if !slices.Equal(missing, []string{OpenAIAPIKey, PineconeAPIKey}) {
		t.Fatalf("unexpected missing credentials %v", missing)
	}
}

func TestFrameLimitsFitLongUtterances(t *testing.T) {
	cfg := Default()
	// One minute of 8kHz mu-law, base64 encoded, plus the frame envelope.
	minuteFrame := (8000*60+2)/3*4 + 64
	if cfg.Session.MaxFrameSize < minuteFrame {
		t.Fatalf("expected max frame size to fit a minute of audio, got %d", cfg.Session.MaxFrameSize)
	}
	if int64(cfg.Session.MaxFrameSize) > cfg.Server.ReadLimit {
		t.Fatalf("expected frame size limit below the socket read limit")
	}

	cfg.Retrieval.Backend = BackendPGVector
	cfg.Session.MaxFrameSize = int(cfg.Server.ReadLimit) + 1
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "session.max_frame_size") {
		t.Fatalf("expected frame size above read limit to be rejected, got %v", err)
	}
}
