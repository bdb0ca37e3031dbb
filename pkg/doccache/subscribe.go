package doccache

import (
	"github.com/google/uuid"
	"github.com/vektah/gqlparser/v2/ast"
)

// OperationKind names a class of cache write operations observable on the
// operation bus.
type OperationKind string

// OpWriteQuery fires for every WriteQuery call, whether or not the stored
// value changed.
const OpWriteQuery OperationKind = "writeQuery"

// WriteRequest is the payload delivered to operation-bus subscribers: the
// full write as issued, plus the resolved storage coordinates and whether
// the write changed the stored value.
type WriteRequest struct {
	Document     *ast.QueryDocument
	Variables    map[string]any
	Result       any
	Hash         string
	VariablesKey string
	Changed      bool
}

// SubscribeFunc receives every write request of the subscribed kind.
type SubscribeFunc func(req WriteRequest)

type subscription struct {
	id string
	fn SubscribeFunc
}

// Subscribe registers fn for every operation of the given kind, after any
// previously registered subscriber. Unlike watchers, subscribers fire
// unconditionally — they observe write attempts, not value changes.
//
// The returned function removes exactly this subscription, preserving the
// order of the rest. Subscriptions otherwise live for the lifetime of the
// cache instance; Reset does not clear them.
func (c *DocumentCache) Subscribe(kind OperationKind, fn SubscribeFunc) func() {
	sub := &subscription{id: uuid.NewString(), fn: fn}
	c.subs[kind] = append(c.subs[kind], sub)

	return func() {
		subs := c.subs[kind]
		for i, s := range subs {
			if s.id == sub.id {
				c.subs[kind] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
	}
}

// publish invokes subscribers of kind in subscription order. The list is
// snapshotted first; callbacks run inline and may reenter the cache.
func (c *DocumentCache) publish(kind OperationKind, req WriteRequest) {
	subs := c.subs[kind]
	if len(subs) == 0 {
		return
	}

	current := make([]*subscription, len(subs))
	copy(current, subs)

	for _, sub := range current {
		sub.fn(req)
	}
}
