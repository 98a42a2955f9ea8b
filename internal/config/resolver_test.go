package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestResolveConfigMissingFile(t *testing.T) {
	cfg, err := ResolveConfig(ResolveOptions{ConfigPath: filepath.Join(t.TempDir(), "nope.yaml")})
	if err != nil {
		t.Fatalf("missing config file should not error: %v", err)
	}
	if cfg.EmbedProvider.Value != "" {
		t.Errorf("expected empty embed provider, got %q", cfg.EmbedProvider.Value)
	}
}

func TestResolveConfigFromFile(t *testing.T) {
	path := writeConfig(t, `
db_path: /tmp/recall.db
embed:
  provider: ollama/nomic-embed-text
  endpoint: http://localhost:11434/v1/embeddings
llm:
  provider: openrouter/deepseek/deepseek-chat
`)
	cfg, err := ResolveConfig(ResolveOptions{ConfigPath: path})
	if err != nil {
		t.Fatalf("ResolveConfig: %v", err)
	}
	if cfg.DBPath.Value != "/tmp/recall.db" || cfg.DBPath.Source != SourceConfig {
		t.Errorf("db_path = %+v", cfg.DBPath)
	}
	if cfg.EmbedProvider.Value != "ollama/nomic-embed-text" {
		t.Errorf("embed provider = %+v", cfg.EmbedProvider)
	}
	if cfg.EmbedEndpoint.Value != "http://localhost:11434/v1/embeddings" {
		t.Errorf("embed endpoint = %+v", cfg.EmbedEndpoint)
	}
	if cfg.LLMProvider.Value != "openrouter/deepseek/deepseek-chat" {
		t.Errorf("llm provider = %+v", cfg.LLMProvider)
	}
}

func TestResolveConfigEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "embed:\n  provider: ollama/from-file\n")
	t.Setenv("RECALL_EMBED", "openai/from-env")
	cfg, err := ResolveConfig(ResolveOptions{ConfigPath: path})
	if err != nil {
		t.Fatalf("ResolveConfig: %v", err)
	}
	if cfg.EmbedProvider.Value != "openai/from-env" {
		t.Errorf("env should override file, got %q", cfg.EmbedProvider.Value)
	}
	if cfg.EmbedProvider.Source != SourceEnv || cfg.EmbedProvider.From != "RECALL_EMBED" {
		t.Errorf("wrong provenance: %+v", cfg.EmbedProvider)
	}
}

func TestResolveConfigCLIOverridesEnv(t *testing.T) {
	t.Setenv("RECALL_EMBED", "openai/from-env")
	t.Setenv("RECALL_DB", "/env/recall.db")
	cfg, err := ResolveConfig(ResolveOptions{
		ConfigPath: filepath.Join(t.TempDir(), "absent.yaml"),
		CLIEmbed:   "ollama/from-cli",
	})
	if err != nil {
		t.Fatalf("ResolveConfig: %v", err)
	}
	if cfg.EmbedProvider.Value != "ollama/from-cli" || cfg.EmbedProvider.Source != SourceCLI {
		t.Errorf("cli should override env: %+v", cfg.EmbedProvider)
	}
	if cfg.DBPath.Value != "/env/recall.db" || cfg.DBPath.Source != SourceEnv {
		t.Errorf("db should still come from env: %+v", cfg.DBPath)
	}
}

func TestResolveConfigMalformedFile(t *testing.T) {
	path := writeConfig(t, "db_path: [not: valid: yaml\n")
	if _, err := ResolveConfig(ResolveOptions{ConfigPath: path}); err == nil {
		t.Fatal("expected parse error for malformed yaml")
	}
}

func TestExpandUserPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	got := expandUserPath("~/recall.db")
	want := filepath.Join(home, "recall.db")
	if got != want {
		t.Errorf("expandUserPath = %q, want %q", got, want)
	}
	if expandUserPath("/abs/path.db") != "/abs/path.db" {
		t.Error("absolute path should be unchanged")
	}
}
