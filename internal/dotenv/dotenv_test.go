package dotenv

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFile_MissingFileIsNoop(t *testing.T) {
	t.Parallel()
	if err := LoadFile(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Fatalf("LoadFile missing file error: %v", err)
	}
}

func TestLoadFile_LoadsValuesAndPreservesExisting(t *testing.T) {
	tempDir := t.TempDir()
	envPath := filepath.Join(tempDir, ".env")
	content := "" +
		"# comment\n" +
		"GEMINI_TEST_FROM_FILE=loaded\n" +
		"GEMINI_TEST_QUOTED=\"hello world\"\n" +
		"export GEMINI_TEST_EXPORTED=ok\n" +
		"GEMINI_TEST_EXISTING=from_file\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	t.Setenv("GEMINI_TEST_EXISTING", "already_set")

	if err := LoadFile(envPath); err != nil {
		t.Fatalf("LoadFile error: %v", err)
	}

	if got := os.Getenv("GEMINI_TEST_FROM_FILE"); got != "loaded" {
		t.Fatalf("GEMINI_TEST_FROM_FILE=%q, want %q", got, "loaded")
	}
	if got := os.Getenv("GEMINI_TEST_QUOTED"); got != "hello world" {
		t.Fatalf("GEMINI_TEST_QUOTED=%q, want %q", got, "hello world")
	}
	if got := os.Getenv("GEMINI_TEST_EXPORTED"); got != "ok" {
		t.Fatalf("GEMINI_TEST_EXPORTED=%q, want %q", got, "ok")
	}
	if got := os.Getenv("GEMINI_TEST_EXISTING"); got != "already_set" {
		t.Fatalf("GEMINI_TEST_EXISTING=%q, want existing value preserved", got)
	}
}

func TestLoadFiles_EarlierFileWins(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, ".env.local")
	second := filepath.Join(dir, ".env")
	if err := os.WriteFile(first, []byte("VAI_MENTOR_DOTENV_ORDER=local\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(second, []byte("VAI_MENTOR_DOTENV_ORDER=base\nVAI_MENTOR_DOTENV_ONLY_BASE=yes\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("VAI_MENTOR_DOTENV_ORDER", "")
	os.Unsetenv("VAI_MENTOR_DOTENV_ORDER")
	t.Setenv("VAI_MENTOR_DOTENV_ONLY_BASE", "")
	os.Unsetenv("VAI_MENTOR_DOTENV_ONLY_BASE")

	if err := LoadFiles(first, filepath.Join(dir, "missing"), second); err != nil {
		t.Fatalf("LoadFiles: %v", err)
	}
	if got := os.Getenv("VAI_MENTOR_DOTENV_ORDER"); got != "local" {
		t.Fatalf("VAI_MENTOR_DOTENV_ORDER=%q, want local", got)
	}
	if got := os.Getenv("VAI_MENTOR_DOTENV_ONLY_BASE"); got != "yes" {
		t.Fatalf("VAI_MENTOR_DOTENV_ONLY_BASE=%q, want yes", got)
	}
}
