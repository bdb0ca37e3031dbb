package doccache

import "github.com/vektah/gqlparser/v2/ast"

// Cache is the full capability contract a GraphQL client runtime expects
// from a cache implementation.
//
// DocumentCache implements the whole interface, but only the document-
// granular subset is meaningfully supported. The entity-granular members are
// split out so the unsupported surface is visible at compile time rather
// than inherited silently:
//
//   - Fragment operations (ReadFragment, WriteFragment, UpdateFragment) fail
//     with ErrFragmentsUnsupported. A silent no-op fragment write would
//     corrupt caller assumptions about consistency.
//   - Modify is a no-op inherited from UnsupportedEntityOps. Callers are
//     expected to tolerate a modify that touches nothing.
//   - Evict always reports false: a whole-document store has no way to
//     remove a sub-part of a cached document.
type Cache interface {
	// Document-granular operations.
	Read(doc *ast.QueryDocument, variables map[string]any) (any, bool, error)
	Write(doc *ast.QueryDocument, variables map[string]any, result any) error
	WriteQuery(doc *ast.QueryDocument, variables map[string]any, result any) error
	Diff(doc *ast.QueryDocument, variables map[string]any) (DiffResult, error)
	Watch(doc *ast.QueryDocument, variables map[string]any, fn WatchFunc) (func(), error)
	Reset()
	Extract(optimistic bool) map[string]any
	Restore(snap map[string]any) *DocumentCache
	TransformDocument(doc *ast.QueryDocument) *ast.QueryDocument
	Subscribe(kind OperationKind, fn SubscribeFunc) func()

	// Entity-granular operations, unsupported at document granularity.
	Evict(opts EvictOptions) bool
	Modify(opts ModifyOptions) bool
	ReadFragment(fragment *ast.QueryDocument, variables map[string]any) (any, error)
	WriteFragment(fragment *ast.QueryDocument, variables map[string]any, data any) error
	UpdateFragment(fragment *ast.QueryDocument, variables map[string]any, update func(any) any) error
}

// EvictOptions names an entity, or a field of an entity, to evict.
type EvictOptions struct {
	ID        string
	FieldName string
}

// ModifyOptions names an entity and per-field replacement values.
type ModifyOptions struct {
	ID     string
	Fields map[string]any
}

// UnsupportedEntityOps provides default behavior for the entity-granular
// operations a document cache cannot implement. Embedding it makes the
// unsupported set an explicit, visible property of the embedding type.
type UnsupportedEntityOps struct{}

// Modify is a no-op: no field of any cached document is ever patched in
// place. It reports false so callers can tell nothing was touched.
func (UnsupportedEntityOps) Modify(ModifyOptions) bool {
	return false
}
