package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

// includeKey pulls other files into the one that names it. "include" is
// accepted as a spelling that needs no quoting in YAML.
const includeKey = "$include"

var includeKeys = []string{includeKey, "include"}

// envPattern matches ${VAR} and ${VAR:-default}. Bare $VAR is left alone so
// that prompts may mention prices and $include keeps its meaning.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv replaces ${VAR} and ${VAR:-default} references using getenv.
func ExpandEnv(s string, getenv func(string) string) string {
	if getenv == nil {
		getenv = os.Getenv
	}
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := envPattern.FindStringSubmatch(match)
		if value := getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// LoadRaw reads a definition or application config file into a generic map.
// Included files are loaded first and the including file's keys override
// theirs, merging nested mappings.
func LoadRaw(path string) (map[string]any, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("config path is required")
	}
	var l rawLoader
	return l.load(path)
}

// rawLoader tracks the chain of files currently being loaded.
type rawLoader struct {
	chain []string
}

func (l *rawLoader) load(path string) (map[string]any, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if slices.Contains(l.chain, abs) {
		return nil, fmt.Errorf("config include cycle: %s", strings.Join(append(l.chain, abs), " -> "))
	}
	l.chain = append(l.chain, abs)
	defer func() { l.chain = l.chain[:len(l.chain)-1] }()

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	doc, err := decodeDocument(abs, []byte(ExpandEnv(string(data), nil)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", abs, err)
	}
	includes, err := popIncludes(doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", abs, err)
	}

	base := map[string]any{}
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(abs), inc)
		}
		included, err := l.load(inc)
		if err != nil {
			return nil, err
		}
		base = mergeMaps(base, included)
	}
	return mergeMaps(base, doc), nil
}

// decodeDocument parses JSON/JSON5 by extension and YAML otherwise. An
// empty file decodes to an empty map; a YAML stream must hold at most one
// document.
func decodeDocument(path string, data []byte) (map[string]any, error) {
	doc := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".json5":
		if len(bytes.TrimSpace(data)) == 0 {
			return doc, nil
		}
		if err := json5.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		var extra any
		if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
			return nil, errors.New("expected a single YAML document")
		}
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

// popIncludes removes the include directive from doc and returns the named
// paths, skipping blank entries.
func popIncludes(doc map[string]any) ([]string, error) {
	var value any
	for _, key := range includeKeys {
		if v, ok := doc[key]; ok {
			value = v
			delete(doc, key)
			break
		}
	}

	var paths []string
	switch v := value.(type) {
	case nil:
	case string:
		paths = append(paths, v)
	case []any:
		for _, entry := range v {
			s, ok := entry.(string)
			if !ok {
				return nil, fmt.Errorf("include entry %v is not a path", entry)
			}
			paths = append(paths, s)
		}
	default:
		return nil, fmt.Errorf("include must be a path or a list of paths, got %T", value)
	}
	return slices.DeleteFunc(paths, func(p string) bool { return strings.TrimSpace(p) == "" }), nil
}

// mergeMaps overlays src onto dst. Mappings present on both sides merge key
// by key; anything else in src replaces what dst holds.
func mergeMaps(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for key, value := range src {
		sub, isMap := value.(map[string]any)
		existing, hasMap := dst[key].(map[string]any)
		if isMap && hasMap {
			dst[key] = mergeMaps(existing, sub)
			continue
		}
		dst[key] = value
	}
	return dst
}

// decodeRaw turns a generic map back into YAML and decodes it into out.
// Unknown keys are rejected when strict is set.
func decodeRaw(raw any, out any, strict bool) error {
	payload, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("serialize config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(payload))
	dec.KnownFields(strict)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
