// Package memory provides an in-memory docs repository for local runs and tests.
package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/betterdocs/dashboard/internal/store"
)

// DocsStore keeps persisted docs in a map. Safe for concurrent use.
type DocsStore struct {
	mu   sync.RWMutex
	docs map[string]store.PersistedDoc
}

// NewDocsStore returns an empty store.
func NewDocsStore() *DocsStore {
	return &DocsStore{docs: make(map[string]store.PersistedDoc)}
}

// Upsert stores docs under the derived slug, overwriting any prior record.
func (s *DocsStore) Upsert(
	_ context.Context,
	owner, repoURL, repoName string,
	docs json.RawMessage,
) (store.PersistedDoc, error) {
	slug := store.Slug(repoName, owner)
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[slug]
	if !ok {
		doc = store.PersistedDoc{Slug: slug, Owner: owner, RepoName: repoName, CreatedAt: now}
	}
	doc.RepoURL = repoURL
	doc.Docs = append(json.RawMessage(nil), docs...)
	doc.UpdatedAt = now
	s.docs[slug] = doc
	return doc, nil
}

// Get loads one artifact or returns store.ErrNotFound.
func (s *DocsStore) Get(_ context.Context, slug string) (store.PersistedDoc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[slug]
	if !ok {
		return store.PersistedDoc{}, store.ErrNotFound
	}
	return doc, nil
}
