// Package file хранит key-value данные в одном TOML-файле на диске.
// Подходит для однопроцессного запуска: файл перезаписывается целиком на каждую мутацию.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type document struct {
	Entries map[string]string `toml:"entries"`
}

// KVStore — файловая реализация KeyValueStore; содержимое кешируется в памяти.
type KVStore struct {
	mu      sync.RWMutex
	path    string
	entries map[string]string
}

var _ domain.KeyValueStore = (*KVStore)(nil)

// Open читает файл по path. Отсутствующий файл даёт пустое хранилище,
// испорченный возвращает ошибку.
func Open(path string) (*KVStore, error) {
	resolved, err := expandPath(path)
	if err != nil {
		return nil, err
	}

	s := &KVStore{path: resolved, entries: make(map[string]string)}

	raw, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("read kv file: %w", err)
	}

	var doc document
	if err := toml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode kv file: %w", err)
	}
	if doc.Entries != nil {
		s.entries = doc.Entries
	}
	return s, nil
}

func (s *KVStore) Get(_ context.Context, key string) (string, bool, error) {
	if strings.TrimSpace(key) == "" {
		return "", false, domain.ErrKeyRequired
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.entries[key]
	return v, ok, nil
}

func (s *KVStore) Set(_ context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return domain.ErrKeyRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.entries[key]
	s.entries[key] = value
	if err := s.flushLocked(); err != nil {
		if existed {
			s.entries[key] = prev
		} else {
			delete(s.entries, key)
		}
		return err
	}
	return nil
}

func (s *KVStore) Delete(_ context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return domain.ErrKeyRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.entries[key]
	if !existed {
		return nil
	}
	delete(s.entries, key)
	if err := s.flushLocked(); err != nil {
		s.entries[key] = prev
		return err
	}
	return nil
}

// Path возвращает абсолютный путь файла.
func (s *KVStore) Path() string {
	return s.path
}

// flushLocked пишет во временный файл и переименовывает его поверх основного.
func (s *KVStore) flushLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create kv dir: %w", err)
	}

	payload, err := toml.Marshal(document{Entries: s.entries})
	if err != nil {
		return fmt.Errorf("encode kv file: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return fmt.Errorf("write kv file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace kv file: %w", err)
	}
	return nil
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("kv file path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
