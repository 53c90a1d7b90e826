package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestExpandEnv(t *testing.T) {
	env := map[string]string{"KEY": "secret", "EMPTY": ""}
	getenv := func(k string) string { return env[k] }

	tests := []struct {
		in   string
		want string
	}{
		{"key: ${KEY}", "key: secret"},
		{"key: ${MISSING}", "key: "},
		{"key: ${MISSING:-fallback}", "key: fallback"},
		{"key: ${EMPTY:-fallback}", "key: fallback"},
		{"costs $100 and $KEY", "costs $100 and $KEY"},
		{"$include: base.yaml", "$include: base.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ExpandEnv(tt.in, getenv); got != tt.want {
				t.Errorf("ExpandEnv(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestLoadRawIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
logging:
  level: debug
  format: text
results:
  dir: base-results
`)
	path := writeFile(t, dir, "llmexp.yaml", `
$include: base.yaml
logging:
  level: warn
`)

	raw, err := LoadRaw(path)
	if err != nil {
		t.Fatalf("LoadRaw() error = %v", err)
	}
	logging := raw["logging"].(map[string]any)
	if logging["level"] != "warn" || logging["format"] != "text" {
		t.Errorf("logging = %v", logging)
	}
	if _, ok := raw[includeKey]; ok {
		t.Error("include key leaked into result")
	}
	if raw["results"].(map[string]any)["dir"] != "base-results" {
		t.Errorf("results = %v", raw["results"])
	}
}

func TestLoadRawIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "include: b.yaml\n")
	path := writeFile(t, dir, "b.yaml", "include: a.yaml\n")

	_, err := LoadRaw(path)
	if err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("LoadRaw() error = %v, want cycle", err)
	}
}

func TestLoadRawJSON5(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "llmexp.json5", `{
  // comments are allowed
  logging: {level: "error"},
}`)

	raw, err := LoadRaw(path)
	if err != nil {
		t.Fatalf("LoadRaw() error = %v", err)
	}
	if raw["logging"].(map[string]any)["level"] != "error" {
		t.Errorf("raw = %v", raw)
	}
}

func TestLoadRawErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		path string
	}{
		{"empty path", ""},
		{"missing file", filepath.Join(dir, "nope.yaml")},
		{"two documents", writeFile(t, dir, "multi.yaml", "a: 1\n---\nb: 2\n")},
		{"bad include", writeFile(t, dir, "inc.yaml", "include: 3\n")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadRaw(tt.path); err == nil {
				t.Error("LoadRaw() error = nil")
			}
		})
	}
}

func TestLoadRawEmptyFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "empty.yaml", "")
	raw, err := LoadRaw(path)
	if err != nil {
		t.Fatalf("LoadRaw() error = %v", err)
	}
	if len(raw) != 0 {
		t.Errorf("raw = %v, want empty", raw)
	}
}
