// Package memdoc is an in-memory docstore.Store for tests and the demo CLI.
package memdoc

import (
	"context"
	"sync"

	"github.com/gradrix/dendrite/internal/docstore"
)

type key struct{ namespace, key string }

// Store is a concurrency-safe in-memory docstore.Store.
type Store struct {
	mu   sync.RWMutex
	docs map[key]docstore.Document
}

var _ docstore.Store = (*Store)(nil)

// New builds an empty in-memory store.
func New() *Store {
	return &Store{docs: make(map[key]docstore.Document)}
}

func (s *Store) Put(_ context.Context, doc docstore.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[key{doc.Namespace, doc.Key}] = doc
	return nil
}

func (s *Store) Get(_ context.Context, namespace, k string) (docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[key{namespace, k}]
	if !ok {
		return docstore.Document{}, docstore.ErrNotFound
	}
	return doc, nil
}

func (s *Store) List(_ context.Context, namespace string) ([]docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []docstore.Document
	for k, doc := range s.docs {
		if k.namespace == namespace {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (s *Store) Delete(_ context.Context, namespace, k string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, key{namespace, k})
	return nil
}
