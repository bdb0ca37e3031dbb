package doccache

import (
	"github.com/google/uuid"
	"github.com/vektah/gqlparser/v2/ast"
)

// WatchFunc receives the new result whenever the watched key's value
// actually changes. complete is always true for a document cache: a stored
// entry is a whole response or nothing.
type WatchFunc func(result any, complete bool)

// watchRegistration ties a callback to the exact key it watches. The id
// exists so unsubscribe can remove precisely this registration even when
// the same callback is registered more than once.
type watchRegistration struct {
	id string
	fn WatchFunc
}

// Watch registers fn against the exact (doc, variables) key. The callback
// fires on every WriteQuery at that key whose value differs from the stored
// one, in registration order relative to other watchers on the same key.
//
// The returned function removes exactly this registration and nothing else.
// Registrations are never expired automatically: losing the unsubscribe
// function leaks the registration for the cache instance's lifetime.
func (c *DocumentCache) Watch(doc *ast.QueryDocument, variables map[string]any, fn WatchFunc) (func(), error) {
	hash, varKey, err := c.key(doc, variables)
	if err != nil {
		return nil, err
	}

	byVars := c.watches[hash]
	if byVars == nil {
		byVars = make(map[string][]*watchRegistration)
		c.watches[hash] = byVars
	}

	reg := &watchRegistration{id: uuid.NewString(), fn: fn}
	byVars[varKey] = append(byVars[varKey], reg)

	return func() {
		byVars, ok := c.watches[hash]
		if !ok {
			return
		}
		regs := byVars[varKey]
		for i, r := range regs {
			if r.id == reg.id {
				// Full-slice-expression keeps notifyWatchers' snapshots
				// unaffected when a callback unsubscribes mid-notification.
				byVars[varKey] = append(regs[:i:i], regs[i+1:]...)
				break
			}
		}
		if len(byVars[varKey]) == 0 {
			delete(byVars, varKey)
			if len(byVars) == 0 {
				delete(c.watches, hash)
			}
		}
	}, nil
}

// notifyWatchers invokes every registration at (hash, varKey) with the new
// result. Callbacks run inline and may reenter the cache; the registration
// list is snapshotted first so reentrant Watch/unsubscribe calls do not
// disturb this notification round.
func (c *DocumentCache) notifyWatchers(hash, varKey string, result any) {
	byVars, ok := c.watches[hash]
	if !ok {
		return
	}
	regs := byVars[varKey]
	if len(regs) == 0 {
		return
	}

	current := make([]*watchRegistration, len(regs))
	copy(current, regs)

	for _, reg := range current {
		reg.fn(result, true)
	}
}
