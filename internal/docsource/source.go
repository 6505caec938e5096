package docsource

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"sync"
)

// Document is one raw file pulled from a source, before markdown extraction.
type Document struct {
	Key  string
	URL  string
	Body []byte
}

type Source interface {
	Type() string
	// Walk calls fn for every ingestible document. A non-nil error from fn
	// stops the walk.
	Walk(ctx context.Context, fn func(doc *Document) error) error
}

type Config struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type Factory func(args interface{}) (Source, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

var ingestExtensions = map[string]struct{}{
	".md":       {},
	".markdown": {},
	".mdx":      {},
	".txt":      {},
}

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

func New(cfg Config) (Source, error) {
	key := strings.ToLower(strings.TrimSpace(cfg.Type))
	if key == "" {
		return nil, fmt.Errorf("doc_source.type is required")
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported doc source type: %s", cfg.Type)
	}
	return factory(cfg.Data)
}

func isIngestible(key string) bool {
	_, ok := ingestExtensions[strings.ToLower(path.Ext(key))]
	return ok
}

func joinURL(base, key string) string {
	if base == "" {
		return ""
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(key, "/")
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("source config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode source config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode source config: %w", err)
	}
	return nil
}
