package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"AegisVault/internal/model"
)

// fileState is the on-disk document.
type fileState struct {
	Snapshot  model.Snapshot `json:"snapshot"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// FileStore keeps the whole vault as one JSON document, rewritten on every
// mutation.
type FileStore struct {
	mu   sync.Mutex
	path string
	snap *model.Snapshot
}

// NewFileStore opens path, creating its directory when missing.
func NewFileStore(path string) (*FileStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
	}
	return &FileStore{path: path}, nil
}

// Load reads the state file. A missing file yields nil.
func (s *FileStore) Load(_ context.Context) (*model.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}
	var st fileState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse state file: %w", err)
	}
	s.snap = &st.Snapshot
	out := st.Snapshot
	return &out, nil
}

// Apply merges m into the cached document and rewrites the file through a
// temporary file and rename, so a crash never leaves a torn document.
func (s *FileStore) Apply(_ context.Context, m model.Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := model.Snapshot{}
	if s.snap != nil {
		next = cloneSnapshot(*s.snap)
	}
	merge(&next, m)

	data, err := json.MarshalIndent(fileState{Snapshot: next, UpdatedAt: time.Now()}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}
	s.snap = &next
	return nil
}

func (s *FileStore) Close() error { return nil }

func cloneSnapshot(in model.Snapshot) model.Snapshot {
	out := in
	out.Accounts = append([]model.Account(nil), in.Accounts...)
	out.Models = append([]model.AdvisoryModel(nil), in.Models...)
	out.Pending = append([]model.PendingRequest(nil), in.Pending...)
	return out
}
