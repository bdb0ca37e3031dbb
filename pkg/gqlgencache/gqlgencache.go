// Package gqlgencache plugs the document cache's canonical query handling
// into a gqlgen server.
//
// gqlgen lets a server replace its parsed-query cache with any
// graphql.Cache[*ast.QueryDocument]. QueryCache is such a replacement: a
// bounded LRU that can additionally store each document in canonical form,
// so every operation the server executes selects __typename. Responses from
// a server configured this way are directly storable by a downstream
// document cache without a normalization mismatch.
//
//	srv := handler.NewDefaultServer(schema)
//	srv.SetQueryCache(gqlgencache.New(1000, true))
package gqlgencache

import (
	"context"

	"github.com/99designs/gqlgen/graphql"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/orneryd/doccache/pkg/canonical"
)

// DefaultSize bounds the cache when no size is given.
const DefaultSize = 1000

// QueryCache is an LRU-backed gqlgen query cache, optionally canonicalizing
// stored documents.
type QueryCache struct {
	docs      *lru.Cache[string, *ast.QueryDocument]
	canonical bool
}

var _ graphql.Cache[*ast.QueryDocument] = (*QueryCache)(nil)

// New creates a QueryCache holding up to size documents (size <= 0 selects
// DefaultSize). When canonicalize is set, documents are normalized before
// storage, so cache hits execute the __typename-injected form.
func New(size int, canonicalize bool) *QueryCache {
	if size <= 0 {
		size = DefaultSize
	}

	// lru.New only fails for non-positive sizes, which are remapped above.
	docs, _ := lru.New[string, *ast.QueryDocument](size)

	return &QueryCache{docs: docs, canonical: canonicalize}
}

// Get returns the cached document for a raw query string.
func (c *QueryCache) Get(_ context.Context, key string) (*ast.QueryDocument, bool) {
	return c.docs.Get(key)
}

// Add stores a parsed document under its raw query string.
func (c *QueryCache) Add(_ context.Context, key string, doc *ast.QueryDocument) {
	if c.canonical {
		doc = canonical.Normalize(doc)
	}
	c.docs.Add(key, doc)
}
