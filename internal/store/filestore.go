package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/KainCH/omniasylum-sub001/pkg/logging"
	"github.com/KainCH/omniasylum-sub001/pkg/models"
)

// FileStore mirrors the record layout onto the local filesystem: one
// directory per partition, one JSON file per row. Writes go through a temp
// file and rename so readers never observe a torn document.
type FileStore struct {
	root   string
	logger logging.Logger
	mu     sync.RWMutex
}

type fileDoc struct {
	Doc       json.RawMessage `json:"doc"`
	UpdatedAt string          `json:"updatedAt"`
}

// NewFileStore creates the root directory if needed.
func NewFileStore(root string, logger logging.Logger) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("file store root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", root, err)
	}
	return &FileStore{root: root, logger: logger}, nil
}

// encodeName makes a row or partition key filesystem-safe. Characters outside
// [A-Za-z0-9._-] are percent-encoded.
func encodeName(name string) string {
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '.', c == '_', c == '-':
			b.WriteByte(c)
		default:
			b.WriteString(fmt.Sprintf("%%%02X", c))
		}
	}
	return b.String()
}

func decodeName(name string) string {
	decoded, err := url.PathUnescape(name)
	if err != nil {
		return name
	}
	return decoded
}

func (s *FileStore) path(partition, row string) string {
	return filepath.Join(s.root, encodeName(partition), encodeName(row)+".json")
}

func (s *FileStore) Get(ctx context.Context, partition, row string) (models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(partition, row))
	if os.IsNotExist(err) {
		return models.Record{}, fmt.Errorf("%w: %s/%s", models.ErrNotFound, partition, row)
	}
	if err != nil {
		return models.Record{}, fmt.Errorf("read record %s/%s: %w", partition, row, err)
	}
	return decodeRecord(partition, row, data)
}

func (s *FileStore) Upsert(ctx context.Context, rec models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.root, encodeName(rec.Partition))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create partition dir %s: %w", rec.Partition, err)
	}

	payload, err := json.Marshal(fileDoc{
		Doc:       rec.Doc,
		UpdatedAt: rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal record %s/%s: %w", rec.Partition, rec.Row, err)
	}

	final := s.path(rec.Partition, rec.Row)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("temp file for %s/%s: %w", rec.Partition, rec.Row, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write record %s/%s: %w", rec.Partition, rec.Row, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close record %s/%s: %w", rec.Partition, rec.Row, err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename record %s/%s: %w", rec.Partition, rec.Row, err)
	}
	return nil
}

func (s *FileStore) List(ctx context.Context, partition string) ([]models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dir := filepath.Join(s.root, encodeName(partition))
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list partition %s: %w", partition, err)
	}

	var out []models.Record
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".tmp-") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			s.logger.WithError(err).WithField("file", name).Warn("Skipping unreadable record file")
			continue
		}
		row := decodeName(strings.TrimSuffix(name, ".json"))
		rec, err := decodeRecord(partition, row, data)
		if err != nil {
			s.logger.WithError(err).WithField("file", name).Warn("Skipping corrupt record file")
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Row < out[j].Row })
	return out, nil
}

func (s *FileStore) Delete(ctx context.Context, partition, row string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(partition, row))
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s/%s", models.ErrNotFound, partition, row)
	}
	if err != nil {
		return fmt.Errorf("delete record %s/%s: %w", partition, row, err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

func decodeRecord(partition, row string, data []byte) (models.Record, error) {
	var fd fileDoc
	if err := json.Unmarshal(data, &fd); err != nil {
		return models.Record{}, fmt.Errorf("decode record %s/%s: %w", partition, row, err)
	}
	rec := models.Record{Partition: partition, Row: row, Doc: fd.Doc}
	if t, err := time.Parse(time.RFC3339Nano, fd.UpdatedAt); err == nil {
		rec.UpdatedAt = t
	}
	return rec, nil
}
