package model

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileLoader reads service models from a directory of YAML files, one file
// per namespace (<dir>/<namespace>.yaml). Models are parsed once and cached
// for the lifetime of the loader (one run).
type FileLoader struct {
	dir string

	mu    sync.Mutex
	cache map[string]*Service
}

// NewFileLoader creates a loader rooted at dir.
func NewFileLoader(dir string) *FileLoader {
	return &FileLoader{
		dir:   dir,
		cache: make(map[string]*Service),
	}
}

// Namespaces lists the namespaces present in the model directory, sorted.
func (l *FileLoader) Namespaces(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("reading model directory %s: %w", l.dir, err)
	}

	var namespaces []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := filepath.Ext(name)
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		namespaces = append(namespaces, strings.TrimSuffix(name, ext))
	}
	sort.Strings(namespaces)
	return namespaces, nil
}

// Load parses and returns the model for one namespace.
func (l *FileLoader) Load(ctx context.Context, namespace string) (*Service, error) {
	l.mu.Lock()
	if svc, ok := l.cache[namespace]; ok {
		l.mu.Unlock()
		return svc, nil
	}
	l.mu.Unlock()

	data, err := l.read(namespace)
	if err != nil {
		return nil, err
	}

	var svc Service
	if err := yaml.Unmarshal(data, &svc); err != nil {
		return nil, fmt.Errorf("parsing model for %s: %w", namespace, err)
	}
	if svc.Name == "" {
		svc.Name = namespace
	}
	if svc.Name != namespace {
		return nil, fmt.Errorf("model file for %s declares namespace %s", namespace, svc.Name)
	}

	l.mu.Lock()
	l.cache[namespace] = &svc
	l.mu.Unlock()

	return &svc, nil
}

func (l *FileLoader) read(namespace string) ([]byte, error) {
	for _, ext := range []string{".yaml", ".yml"} {
		path := filepath.Join(l.dir, namespace+ext)
		data, err := os.ReadFile(path)
		if err == nil {
			return data, nil
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading model for %s: %w", namespace, err)
		}
	}
	return nil, fmt.Errorf("no model file for namespace %s in %s", namespace, l.dir)
}
