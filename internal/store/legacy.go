package store

import (
	"encoding/json"
	"os"

	"minerva/internal/logger"
	"minerva/pkg/minervatypes"
)

// LegacyPath returns the legacy flat-array file path.
func (s *Store) LegacyPath() string {
	return s.legacyPath
}

// HasLegacy reports whether a legacy flat-array file exists.
func (s *Store) HasLegacy() bool {
	_, err := os.Stat(s.legacyPath)
	return err == nil
}

// LoadLegacy reads the legacy flat conversation array. Missing file yields an
// empty slice; a corrupt file is logged and treated as empty, matching the
// tolerance of Load. Malformed entries are skipped rather than failing the
// whole load.
func (s *Store) LoadLegacy() []minervatypes.LegacyConversation {
	data, err := os.ReadFile(s.legacyPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("Failed to read legacy store file", "path", s.legacyPath, "error", err)
		}
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		logger.Warn("Legacy store file is corrupt, ignoring", "path", s.legacyPath, "error", err)
		return nil
	}

	out := make([]minervatypes.LegacyConversation, 0, len(raw))
	for _, entry := range raw {
		var conv minervatypes.LegacyConversation
		if err := json.Unmarshal(entry, &conv); err != nil {
			logger.Debug("Skipping malformed legacy entry", "error", err)
			continue
		}
		if conv.ID == "" {
			continue
		}
		out = append(out, conv)
	}

	logger.StoreOperation("load-legacy", s.legacyPath, "count", len(out))
	return out
}
