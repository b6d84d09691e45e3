package prompts

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Loader resolves prompt packs by style, preferring YAML overrides from a
// directory over the compiled-in defaults.
type Loader struct {
	packs map[string]*Pack
	mu    sync.RWMutex
}

// NewLoader creates a loader seeded with the built-in packs, then overlays
// any *.yaml pack files found under rootDir. An empty rootDir loads defaults
// only.
func NewLoader(rootDir string) (*Loader, error) {
	l := &Loader{packs: make(map[string]*Pack)}

	for _, style := range []string{StyleStandard, StyleStrict} {
		pack, err := Default(style)
		if err != nil {
			return nil, err
		}
		l.packs[style] = pack
	}

	if rootDir != "" {
		if err := l.loadDir(rootDir); err != nil {
			return nil, fmt.Errorf("loading prompt packs: %w", err)
		}
	}

	slog.Info("prompt packs loaded", "styles", len(l.packs))
	return l, nil
}

// Pack returns the pack for a style.
func (l *Loader) Pack(style string) (*Pack, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.packs[style]
	return p, ok
}

func (l *Loader) loadDir(rootDir string) error {
	return filepath.Walk(rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".yaml") && !strings.HasSuffix(path, ".yml") {
			return nil
		}
		return l.loadPack(path)
	})
}

func (l *Loader) loadPack(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var pack Pack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		slog.Warn("skipping invalid prompt pack YAML", "path", path, "error", err)
		return nil
	}

	if pack.Style == "" {
		return nil // Not a pack file
	}

	l.mu.Lock()
	l.packs[pack.Style] = &pack
	l.mu.Unlock()

	return nil
}
