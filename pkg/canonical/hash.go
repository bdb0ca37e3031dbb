package canonical

import (
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"golang.org/x/crypto/blake2b"
)

// DefaultMemoSize is the identity-memo capacity used when no size is given.
// Applications typically hold a small, fixed set of query documents, so the
// default is generous.
const DefaultMemoSize = 512

// Hasher computes content hashes for query documents.
//
// The hash of a document is the BLAKE2b-256 digest of its normalized
// rendering, hex encoded. Two documents that are structurally equal after
// normalization always hash identically, whether or not they are the same
// instance.
//
// Repeated hashing of the same document instance is served from an LRU memo
// keyed by pointer identity. The memo is strictly a performance cache:
// entries can be evicted at any time and the hash is recomputed from content,
// so correctness never depends on a memo hit. Collisions of the digest are
// accepted as negligible; there is no fallback key.
type Hasher struct {
	memo *lru.Cache[*ast.QueryDocument, string]
}

// NewHasher creates a Hasher whose identity memo holds up to memoSize
// documents. memoSize <= 0 selects DefaultMemoSize.
func NewHasher(memoSize int) *Hasher {
	if memoSize <= 0 {
		memoSize = DefaultMemoSize
	}

	// lru.New only fails for non-positive sizes, which are remapped above.
	memo, _ := lru.New[*ast.QueryDocument, string](memoSize)

	return &Hasher{memo: memo}
}

// Hash returns the canonical content hash of doc.
func (h *Hasher) Hash(doc *ast.QueryDocument) string {
	if cached, ok := h.memo.Get(doc); ok {
		return cached
	}

	sum := blake2b.Sum256([]byte(Print(Normalize(doc))))
	digest := hex.EncodeToString(sum[:])

	h.memo.Add(doc, digest)

	return digest
}

// Reset drops every memoized hash. Hashes are recomputed lazily afterwards.
func (h *Hasher) Reset() {
	h.memo.Purge()
}

// MemoLen reports how many documents currently have a memoized hash.
func (h *Hasher) MemoLen() int {
	return h.memo.Len()
}
