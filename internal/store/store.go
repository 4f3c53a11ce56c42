// Package store implements the local persistence layer: a single JSON
// document holding every conversation collection and the project index,
// plus the legacy flat file kept readable during the migration window.
//
// The store owns serialization exclusively. Repositories hold a mutable
// in-memory working set and persist it back explicitly after every mutation;
// the periodic autosaver is the only other writer. Concurrent writers from
// other processes follow last-write-wins, detected (and logged) via the
// document sequence number, never blocked.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"minerva/internal/logger"
	"minerva/internal/version"
	"minerva/pkg/minervatypes"
)

// DocumentFileName is the file holding the categorized store document.
const DocumentFileName = "minerva_conversations.json"

// LegacyFileName is the legacy flat-array file supported read-only for
// backward compatibility.
const LegacyFileName = "minerva_chat_history.json"

// StorageError is returned when a save cannot be made durable (quota,
// permissions, serialization). Callers use it to warn the user that data may
// not have persisted, instead of silently proceeding.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed for %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Store reads and writes the serialized store document under a data
// directory.
type Store struct {
	path       string
	legacyPath string
}

// New creates a Store rooted at dataDir. The directory is created lazily on
// first save.
func New(dataDir string) *Store {
	return &Store{
		path:       filepath.Join(dataDir, DocumentFileName),
		legacyPath: filepath.Join(dataDir, LegacyFileName),
	}
}

// Path returns the document file path.
func (s *Store) Path() string {
	return s.path
}

// Load parses the persisted document. A missing or corrupt file yields an
// empty default document; parse errors are logged and treated as "no data",
// never propagated. Documents with an older schema version are migrated in
// memory; the migrated shape is persisted on the next save.
func (s *Store) Load() *minervatypes.StoreDocument {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("Failed to read store document, starting empty", "path", s.path, "error", err)
		}
		return minervatypes.NewStoreDocument()
	}

	var doc minervatypes.StoreDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		logger.Warn("Store document is corrupt, starting empty", "path", s.path, "error", err)
		return minervatypes.NewStoreDocument()
	}

	migrate(&doc)
	logger.StoreOperation("load", s.path, "seq", doc.Seq)
	return &doc
}

// Save serializes and persists the document atomically (temp file + rename).
// The document seq is bumped past the on-disk seq; a stale overwrite (another
// process saved since this working set was loaded) is logged and proceeds
// last-write-wins.
func (s *Store) Save(doc *minervatypes.StoreDocument) error {
	diskSeq := s.readSeq()
	if diskSeq > doc.Seq {
		logger.Warn("Overwriting newer store document (last-write-wins)",
			"path", s.path, "seq", doc.Seq, "diskSeq", diskSeq)
		doc.Seq = diskSeq
	}
	doc.Seq++
	doc.SchemaVersion = minervatypes.CurrentSchemaVersion

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return &StorageError{Op: "marshal", Path: s.path, Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return &StorageError{Op: "mkdir", Path: s.path, Err: err}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return &StorageError{Op: "write", Path: tmp, Err: err}
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return &StorageError{Op: "rename", Path: s.path, Err: err}
	}

	logger.StoreOperation("save", s.path, "seq", doc.Seq)
	return nil
}

// readSeq reads only the seq field from the on-disk document. Missing or
// unreadable documents report seq 0.
func (s *Store) readSeq() int64 {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return 0
	}
	var probe struct {
		Seq int64 `json:"seq"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return 0
	}
	return probe.Seq
}

// migrate upgrades a document loaded at an older schema version to the
// current shape. Pre-2.0.0 documents lack seq and projectIndex.
func migrate(doc *minervatypes.StoreDocument) {
	if doc.SchemaVersion == "" {
		doc.SchemaVersion = "1.0.0"
	}

	if version.IsNewerThan(minervatypes.CurrentSchemaVersion, doc.SchemaVersion) {
		logger.Info("Migrating store document schema",
			"from", doc.SchemaVersion, "to", minervatypes.CurrentSchemaVersion)
		doc.SchemaVersion = minervatypes.CurrentSchemaVersion
	}

	if doc.General == nil {
		doc.General = make([]*minervatypes.Conversation, 0)
	}
	if doc.Projects == nil {
		doc.Projects = make(map[string][]*minervatypes.Conversation)
	}
	if doc.Agents == nil {
		doc.Agents = make(map[string][]*minervatypes.Conversation)
	}
	if doc.ProjectIndex == nil {
		doc.ProjectIndex = make(map[string]*minervatypes.Project)
	}
}
