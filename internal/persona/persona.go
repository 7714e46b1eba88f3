// Package persona assembles the persona JSON served to the landing page:
// a base document with optional niche and pack overlays merged on top.
package persona

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"

	"go.uber.org/zap"
)

// namePattern guards overlay names used in file paths: lowercase letters,
// digits, and hyphens, must start and end with alphanumeric.
var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,62}[a-z0-9]$`)

// Store loads persona documents from a directory:
//
//	<dir>/base.json
//	<dir>/niches/<name>.json
//	<dir>/packs/<name>.json
type Store struct {
	dir string
	log *zap.Logger
}

// NewStore creates a Store rooted at dir.
func NewStore(dir string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{dir: dir, log: log}
}

// Document returns the assembled persona. Overlay keys shadow base keys,
// niche first, then pack. A missing or unreadable overlay is omitted rather
// than failing the request; a missing base yields an empty document.
func (s *Store) Document(niche, pack string) map[string]json.RawMessage {
	doc := s.load(filepath.Join(s.dir, "base.json"))
	if doc == nil {
		doc = make(map[string]json.RawMessage)
	}

	s.overlay(doc, "niches", niche)
	s.overlay(doc, "packs", pack)
	return doc
}

func (s *Store) overlay(doc map[string]json.RawMessage, kind, name string) {
	if name == "" {
		return
	}
	if !namePattern.MatchString(name) {
		s.log.Warn("ignoring invalid persona overlay name",
			zap.String("kind", kind),
			zap.String("name", name))
		return
	}
	section := s.load(filepath.Join(s.dir, kind, name+".json"))
	for k, v := range section {
		doc[k] = v
	}
}

func (s *Store) load(path string) map[string]json.RawMessage {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("persona file unreadable", zap.String("path", path), zap.Error(err))
		}
		return nil
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		s.log.Warn("persona file is not a JSON object", zap.String("path", path), zap.Error(err))
		return nil
	}
	return doc
}
