package docsource

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

type localConfig struct {
	Dir     string `json:"dir"`
	BaseURL string `json:"base_url"`
}

type localSource struct {
	dir     string
	baseURL string
}

func init() {
	Register("local", createLocalSource)
}

func createLocalSource(args interface{}) (Source, error) {
	config := &localConfig{}
	if err := decodeConfig(args, config); err != nil {
		return nil, err
	}
	if config.Dir == "" {
		return nil, fmt.Errorf("local source dir is required")
	}
	return NewLocalSource(config.Dir, config.BaseURL), nil
}

func NewLocalSource(dir, baseURL string) Source {
	return &localSource{dir: dir, baseURL: baseURL}
}

func (s *localSource) Type() string {
	return "local"
}

func (s *localSource) Walk(ctx context.Context, fn func(doc *Document) error) error {
	var keys []string
	err := filepath.WalkDir(s.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isIngestible(p) {
			return nil
		}
		rel, err := filepath.Rel(s.dir, p)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk %s: %w", s.dir, err)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		body, err := os.ReadFile(filepath.Join(s.dir, filepath.FromSlash(key)))
		if err != nil {
			return fmt.Errorf("read %s: %w", key, err)
		}
		if err := fn(&Document{Key: key, URL: joinURL(s.baseURL, key), Body: body}); err != nil {
			return err
		}
	}
	return nil
}
