package persist

import (
	"github.com/orneryd/doccache/pkg/doccache"
	"github.com/orneryd/doccache/pkg/snapshot"
)

// Persister keeps a Store in sync with a live cache.
//
// It subscribes to the cache's writeQuery operation bus, so every write is
// persisted as it happens — including writes whose value did not change,
// which simply overwrite the same record. Persistence failures are logged,
// never surfaced to the writer: the cache stays authoritative and a lost
// record costs at most one upstream refetch after a restart.
type Persister struct {
	store       *Store
	cache       *doccache.DocumentCache
	logger      Logger
	unsubscribe func()
}

// NewPersister attaches write-through persistence to cache. Call Close to
// detach. A nil logger selects a stdlib-log default.
func NewPersister(store *Store, cache *doccache.DocumentCache, logger Logger) *Persister {
	if logger == nil {
		logger = defaultLogger{}
	}

	p := &Persister{store: store, cache: cache, logger: logger}
	p.unsubscribe = cache.Subscribe(doccache.OpWriteQuery, p.onWriteQuery)

	return p
}

func (p *Persister) onWriteQuery(req doccache.WriteRequest) {
	if err := p.store.WriteEntry(req.Hash, req.VariablesKey, req.Result); err != nil {
		p.logger.Log("error", "write-through persist failed", map[string]any{
			"hash":  req.Hash,
			"error": err.Error(),
		})
	}
}

// Hydrate loads the persisted snapshot into the cache, replacing its store
// wholesale, and reports how many entries were restored.
func (p *Persister) Hydrate() (int, error) {
	snap, err := p.store.Load()
	if err != nil {
		return 0, err
	}

	p.cache.Restore(snap.ToMap())

	return snap.Len(), nil
}

// Checkpoint persists the cache's full current state, replacing whatever
// the store held before. Useful at shutdown to capture writes that bypassed
// the bus (raw Write calls and Restore).
func (p *Persister) Checkpoint() error {
	return p.store.Save(snapshot.FromMap(p.cache.Extract(false)))
}

// Close detaches the persister from the cache's operation bus. The
// underlying store is left open; close it separately.
func (p *Persister) Close() {
	p.unsubscribe()
}
