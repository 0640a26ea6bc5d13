package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pipeline.FreshnessWindow != 10*time.Minute {
		t.Errorf("freshness window = %v, want 10m", cfg.Pipeline.FreshnessWindow)
	}
	if len(cfg.Sources) == 0 {
		t.Fatal("expected default sources")
	}
	for i, s := range cfg.Sources {
		if s.Priority != i+1 {
			t.Errorf("source %q priority = %d, want %d", s.Name, s.Priority, i+1)
		}
	}
}

func TestLoad_YAMLAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trendbot.yaml")
	data := `
pipeline:
  freshness_window: 2m
  source_timeout: 3s
cluster:
  threshold: 0.5
  min_members: 3
llm:
  model: from-yaml
sources:
  - name: feed
    kind: RSS
    endpoint: https://example.com/feed
  - name: search
    kind: searxng
    endpoint: https://search.example.com
    query: boucle chair
    priority: 9
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("OLLAMA_MODEL", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pipeline.FreshnessWindow != 2*time.Minute {
		t.Errorf("freshness window = %v, want 2m", cfg.Pipeline.FreshnessWindow)
	}
	if cfg.Pipeline.SynthesisTimeout != 60*time.Second {
		t.Errorf("synthesis timeout default lost: %v", cfg.Pipeline.SynthesisTimeout)
	}
	if cfg.Cluster.MinMembers != 3 || cfg.Cluster.Threshold != 0.5 {
		t.Errorf("cluster config = %+v", cfg.Cluster)
	}
	if cfg.LLM.Model != "from-env" {
		t.Errorf("model = %q, want env override", cfg.LLM.Model)
	}
	if len(cfg.Sources) != 2 {
		t.Fatalf("sources = %d, want 2 (yaml replaces defaults)", len(cfg.Sources))
	}
	if cfg.Sources[0].Kind != KindRSS || cfg.Sources[0].Priority != 1 {
		t.Errorf("first source = %+v", cfg.Sources[0])
	}
	if cfg.Sources[1].Priority != 9 {
		t.Errorf("explicit priority lost: %+v", cfg.Sources[1])
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Sources = append(cfg.Sources,
		Source{Name: "bad", Kind: "gopher", Endpoint: "x"},
		Source{Name: "nosearch", Kind: KindSearXNG, Endpoint: "https://s"},
	)
	cfg.Cluster.Threshold = 1.5
	cfg.Pipeline.SynthesisTimeout = cfg.Pipeline.BuildTimeout

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{`unknown kind "gopher"`, "need a query", "cluster.threshold", "below build_timeout"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}

	if err := Default().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}
