// Package secrets resolves named secrets for the service.
//
// The default provider reads one file per secret from a configured directory
// (the layout used by container secret mounts) and falls back to the process
// environment when the file is absent. Components never read credentials from
// the environment directly; they go through a Provider so deployments can swap
// the source without code changes.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Provider yields named secrets on demand.
type Provider interface {
	// Get returns the secret value for key, or an error when the secret
	// is not available from any source.
	Get(key string) (string, error)
}

// FileEnvProvider reads secrets from <dir>/<key> files with an environment
// variable fallback. Values are cached after first read.
type FileEnvProvider struct {
	dir   string
	mu    sync.RWMutex
	cache map[string]string
}

// NewFileEnvProvider returns a provider rooted at dir. An empty dir skips the
// file lookup and resolves from the environment only.
func NewFileEnvProvider(dir string) *FileEnvProvider {
	return &FileEnvProvider{
		dir:   dir,
		cache: make(map[string]string),
	}
}

// Get resolves a secret by name.
func (p *FileEnvProvider) Get(key string) (string, error) {
	p.mu.RLock()
	if v, ok := p.cache[key]; ok {
		p.mu.RUnlock()
		return v, nil
	}
	p.mu.RUnlock()

	if p.dir != "" {
		data, err := os.ReadFile(filepath.Join(p.dir, key))
		if err == nil {
			value := strings.TrimSpace(string(data))
			if value != "" {
				p.put(key, value)
				return value, nil
			}
		}
	}

	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		p.put(key, value)
		return value, nil
	}

	return "", fmt.Errorf("secret %s not found", key)
}

func (p *FileEnvProvider) put(key, value string) {
	p.mu.Lock()
	p.cache[key] = value
	p.mu.Unlock()
}

// Static is a fixed-map provider for tests.
type Static map[string]string

// Get resolves a secret from the static map.
func (s Static) Get(key string) (string, error) {
	if v, ok := s[key]; ok && v != "" {
		return v, nil
	}
	return "", fmt.Errorf("secret %s not found", key)
}
