// Package doccache implements a whole-document GraphQL query result cache.
//
// Entries are keyed by the identity of an entire query plus its argument
// set: a content hash of the normalized query document and an
// order-independent key of the variables map. The stored value is the
// complete response for that pair, held as an opaque unit. This inverts the
// usual normalized-entity cache design: there is no entity graph, no partial
// result assembly, and no field-level invalidation. The tradeoff is
// deliberate — implementation simplicity over cross-query entity sharing.
//
// Concurrency: a DocumentCache is plain in-memory state with no locking.
// Every operation runs synchronously to completion on the caller's
// goroutine, and watcher/subscriber callbacks are invoked inline within the
// triggering WriteQuery. Callbacks may reenter the cache freely — there is
// no lock to deadlock on. If multiple goroutines share one instance, the
// caller serializes access externally.
//
// Example:
//
//	cache := doccache.New(nil)
//	doc, _ := canonical.ParseQuery(`query Jobs($id: ID!) { jobs(id: $id) { id } }`)
//
//	unsubscribe, _ := cache.Watch(doc, vars, func(result any, complete bool) {
//		render(result)
//	})
//	defer unsubscribe()
//
//	_ = cache.WriteQuery(doc, vars, response) // fires the watcher
//	_ = cache.WriteQuery(doc, vars, response) // deep-equal, silent
package doccache

import (
	"fmt"
	"reflect"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/orneryd/doccache/pkg/canonical"
	"github.com/orneryd/doccache/pkg/snapshot"
)

// DefaultVariant tags snapshots produced by this implementation.
const DefaultVariant = "DocumentCache"

// Config holds document cache construction options. All fields have
// defaults; New(nil) is valid.
type Config struct {
	// Variant overrides the snapshot metadata tag (default: DefaultVariant).
	Variant string
	// MemoSize bounds the query identity memo (default: canonical.DefaultMemoSize).
	MemoSize int
}

// Stats counts cache effectiveness since construction or the last Reset.
type Stats struct {
	Hits   uint64
	Misses uint64
	Writes uint64
}

// DocumentCache is the cache instance. The zero value is not usable; create
// instances with New.
type DocumentCache struct {
	UnsupportedEntityOps

	variant string
	hasher  *canonical.Hasher

	// data maps query hash -> variables key -> stored result.
	data map[string]map[string]any

	// watches mirrors data's key structure, holding per-key registrations
	// in registration order.
	watches map[string]map[string][]*watchRegistration

	// subs holds operation-bus subscribers per operation kind, in
	// subscription order. Deliberately not cleared by Reset: subscriptions
	// live for the cache instance's lifetime unless unsubscribed.
	subs map[OperationKind][]*subscription

	stats Stats
}

// Interface conformance.
var _ Cache = (*DocumentCache)(nil)

// New creates an empty document cache. cfg may be nil for defaults.
func New(cfg *Config) *DocumentCache {
	variant := DefaultVariant
	memoSize := 0
	if cfg != nil {
		if cfg.Variant != "" {
			variant = cfg.Variant
		}
		memoSize = cfg.MemoSize
	}

	return &DocumentCache{
		variant: variant,
		hasher:  canonical.NewHasher(memoSize),
		data:    make(map[string]map[string]any),
		watches: make(map[string]map[string][]*watchRegistration),
		subs:    make(map[OperationKind][]*subscription),
	}
}

// key resolves a (document, variables) pair to its storage coordinates.
// Variable serialization failures propagate unwrapped.
func (c *DocumentCache) key(doc *ast.QueryDocument, variables map[string]any) (hash, varKey string, err error) {
	varKey, err = canonical.VariablesKey(variables)
	if err != nil {
		return "", "", err
	}
	return c.hasher.Hash(doc), varKey, nil
}

// lookup returns the stored entry at (hash, varKey), if any.
func (c *DocumentCache) lookup(hash, varKey string) (any, bool) {
	byVars, ok := c.data[hash]
	if !ok {
		return nil, false
	}
	result, ok := byVars[varKey]
	return result, ok
}

// store writes result at (hash, varKey), overwriting any previous entry.
func (c *DocumentCache) store(hash, varKey string, result any) {
	byVars := c.data[hash]
	if byVars == nil {
		byVars = make(map[string]any)
		c.data[hash] = byVars
	}
	byVars[varKey] = result
	c.stats.Writes++
}

// Read returns the complete cached result for the exact (doc, variables)
// pair, or ok=false when nothing was ever written at that key. There are no
// partial hits.
func (c *DocumentCache) Read(doc *ast.QueryDocument, variables map[string]any) (any, bool, error) {
	hash, varKey, err := c.key(doc, variables)
	if err != nil {
		return nil, false, err
	}

	result, ok := c.lookup(hash, varKey)
	if !ok {
		c.stats.Misses++
		return nil, false, nil
	}

	c.stats.Hits++
	return result, true, nil
}

// Write unconditionally stores result at the key, without comparing against
// any previous value and without notifying watchers. It is the raw
// persistence path used by generic client-driven writes; user-facing writes
// go through WriteQuery.
func (c *DocumentCache) Write(doc *ast.QueryDocument, variables map[string]any, result any) error {
	hash, varKey, err := c.key(doc, variables)
	if err != nil {
		return err
	}

	c.store(hash, varKey, result)
	return nil
}

// WriteQuery stores result at the key and notifies observers.
//
// Watchers registered on the exact (doc, variables) key fire only when the
// new result differs from the previously stored one by deep equality; a key
// with no prior entry counts as changed. Operation-bus subscribers for
// OpWriteQuery fire on every call regardless of change, receiving the full
// write request — they exist for cross-cutting observation of write
// attempts, not for change detection.
func (c *DocumentCache) WriteQuery(doc *ast.QueryDocument, variables map[string]any, result any) error {
	hash, varKey, err := c.key(doc, variables)
	if err != nil {
		return err
	}

	previous, existed := c.lookup(hash, varKey)
	c.store(hash, varKey, result)

	changed := !existed || !reflect.DeepEqual(previous, result)
	if changed {
		c.notifyWatchers(hash, varKey, result)
	}

	c.publish(OpWriteQuery, WriteRequest{
		Document:     doc,
		Variables:    variables,
		Result:       result,
		Hash:         hash,
		VariablesKey: varKey,
		Changed:      changed,
	})

	return nil
}

// DiffResult is the outcome of a Diff: either the complete cached document,
// or an empty placeholder with a diagnostic for the missing data. An
// incomplete result is not a fault; it means "must fetch".
type DiffResult struct {
	Result   any
	Complete bool
	Missing  []*gqlerror.Error
}

// Diff exposes the all-or-nothing nature of the store as a capability
// query. The store tracks no field-level state, so the missing diagnostic
// is synthesized generically from the document's first top-level field —
// it exists only to satisfy callers expecting a field-error shape.
func (c *DocumentCache) Diff(doc *ast.QueryDocument, variables map[string]any) (DiffResult, error) {
	hash, varKey, err := c.key(doc, variables)
	if err != nil {
		return DiffResult{}, err
	}

	if result, ok := c.lookup(hash, varKey); ok {
		c.stats.Hits++
		return DiffResult{Result: result, Complete: true}, nil
	}

	c.stats.Misses++
	return DiffResult{
		Result:   map[string]any{},
		Complete: false,
		Missing:  []*gqlerror.Error{missingError(doc)},
	}, nil
}

// missingError builds the generic incomplete-result diagnostic.
func missingError(doc *ast.QueryDocument) *gqlerror.Error {
	field := "query"
	if doc != nil {
		for _, op := range doc.Operations {
			for _, sel := range op.SelectionSet {
				if f, ok := sel.(*ast.Field); ok {
					field = f.Name
					break
				}
			}
			break
		}
	}

	return &gqlerror.Error{
		Message: fmt.Sprintf("no cached value for field %q", field),
		Path:    ast.Path{ast.PathName(field)},
	}
}

// Evict reports false, always. A document-granular store has no mechanism
// to remove a sub-part of a cached document, so partial eviction is
// permanently unsupported; callers must not assume anything was removed.
func (c *DocumentCache) Evict(EvictOptions) bool {
	return false
}

// ReadFragment fails: see ErrFragmentsUnsupported.
func (c *DocumentCache) ReadFragment(*ast.QueryDocument, map[string]any) (any, error) {
	return nil, ErrFragmentsUnsupported
}

// WriteFragment fails: see ErrFragmentsUnsupported.
func (c *DocumentCache) WriteFragment(*ast.QueryDocument, map[string]any, any) error {
	return ErrFragmentsUnsupported
}

// UpdateFragment fails: see ErrFragmentsUnsupported.
func (c *DocumentCache) UpdateFragment(*ast.QueryDocument, map[string]any, func(any) any) error {
	return ErrFragmentsUnsupported
}

// Reset clears the document store, the watch registry, the query identity
// memo, and the stats counters, returning the cache to its initial empty
// state. Operation-bus subscriptions survive a Reset.
func (c *DocumentCache) Reset() {
	c.data = make(map[string]map[string]any)
	c.watches = make(map[string]map[string][]*watchRegistration)
	c.hasher.Reset()
	c.stats = Stats{}
}

// Extract returns the full current store contents, including the variant
// metadata record, as a plain serializable value. The optimistic flag is
// accepted for contract compatibility and ignored: there is no
// optimistic-layer concept here.
func (c *DocumentCache) Extract(optimistic bool) map[string]any {
	_ = optimistic

	snap := snapshot.New(c.variant)
	for hash, byVars := range c.data {
		for varKey, result := range byVars {
			snap.Set(hash, varKey, result)
		}
	}

	return snap.ToMap()
}

// Restore replaces the document store wholesale with the entries in snap,
// with no merging and no validation beyond shape expectations, and returns
// the cache itself. Watch registrations and subscriptions are untouched;
// restored entries do not fire watchers.
func (c *DocumentCache) Restore(snap map[string]any) *DocumentCache {
	c.data = snapshot.FromMap(snap).Data
	return c
}

// TransformDocument returns the canonical form of doc, with implicit
// __typename selections injected. The input is not modified.
func (c *DocumentCache) TransformDocument(doc *ast.QueryDocument) *ast.QueryDocument {
	return canonical.Normalize(doc)
}

// Variant reports the snapshot metadata tag this instance writes.
func (c *DocumentCache) Variant() string {
	return c.variant
}

// Stats returns a copy of the current counters.
func (c *DocumentCache) Stats() Stats {
	return c.stats
}
