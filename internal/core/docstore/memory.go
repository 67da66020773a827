package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"quiz-api/pkg/utils"
)

// Memory keeps documents in process. Transactions run without holding the
// lock; only the final check-and-apply is serialized.
type Memory struct {
	mu   sync.RWMutex
	docs map[Ref]*Document
	now  func() time.Time
}

func NewMemory() *Memory {
	return &Memory{docs: map[Ref]*Document{}, now: func() time.Time { return time.Now().UTC() }}
}

func (m *Memory) Create(ctx context.Context, collection string, data Fields) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if collection == "" {
		return nil, ErrInvalidRef
	}
	now := m.now()
	norm, err := normalize(data, now)
	if err != nil {
		return nil, err
	}
	doc := &Document{
		Ref:        Ref{Collection: collection, ID: utils.NewIDAt(now)},
		Version:    1,
		CreateTime: now,
		UpdateTime: now,
		data:       norm,
	}
	m.mu.Lock()
	m.docs[doc.Ref] = doc
	m.mu.Unlock()
	return doc, nil
}

func (m *Memory) Get(ctx context.Context, ref Ref) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ref.valid() {
		return nil, ErrInvalidRef
	}
	m.mu.RLock()
	doc, ok := m.docs[ref]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return doc, nil
}

func (m *Memory) List(ctx context.Context, q Query) ([]*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := make([]*Document, 0)
	for ref, doc := range m.docs {
		if ref.Collection == q.Collection {
			out = append(out, doc)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if q.Desc {
			a, b = b, a
		}
		return a.CreateTime.Before(b.CreateTime) ||
			(a.CreateTime.Equal(b.CreateTime) && a.Ref.ID < b.Ref.ID)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *Memory) RunTransaction(ctx context.Context, fn TxFunc) error {
	tx := &memTx{store: m, txState: newTxState()}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	b := &memBackend{docs: m.docs, overlay: map[Ref]*Document{}}
	if err := tx.commit(b, m.now()); err != nil {
		return err
	}
	// overlay 全部校验通过后一次性落地
	for ref, doc := range b.overlay {
		if doc == nil {
			delete(m.docs, ref)
			continue
		}
		m.docs[ref] = doc
	}
	return nil
}

func (m *Memory) Ping(ctx context.Context) error { return ctx.Err() }

func (m *Memory) Close() error { return nil }

type memTx struct {
	store *Memory
	txState
}

func (t *memTx) Get(ref Ref) (*Document, error) {
	doc, ok, err := t.cached(ref)
	if err != nil {
		return nil, err
	}
	if !ok {
		t.store.mu.RLock()
		doc = t.store.docs[ref]
		t.store.mu.RUnlock()
		t.observe(ref, doc)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return doc, nil
}

func (t *memTx) Set(ref Ref, data Fields) error    { return t.stage(ref, opSet, data) }
func (t *memTx) Update(ref Ref, data Fields) error { return t.stage(ref, opUpdate, data) }
func (t *memTx) Delete(ref Ref) error              { return t.stage(ref, opDelete, nil) }

// memBackend stages writes in an overlay so a failed commit leaves docs untouched.
type memBackend struct {
	docs    map[Ref]*Document
	overlay map[Ref]*Document
}

func (b *memBackend) load(ref Ref) (*Document, error) {
	if doc, ok := b.overlay[ref]; ok {
		return doc, nil
	}
	return b.docs[ref], nil
}

func (b *memBackend) insert(doc *Document) error {
	if cur, _ := b.load(doc.Ref); cur != nil {
		return fmt.Errorf("%w: %s already exists", ErrConflict, doc.Ref)
	}
	b.overlay[doc.Ref] = doc
	return nil
}

func (b *memBackend) replace(doc *Document, expect int64) error {
	if cur, _ := b.load(doc.Ref); versionOf(cur) != expect {
		return fmt.Errorf("%w: %s changed", ErrConflict, doc.Ref)
	}
	b.overlay[doc.Ref] = doc
	return nil
}

func (b *memBackend) remove(ref Ref, expect int64) error {
	if cur, _ := b.load(ref); versionOf(cur) != expect {
		return fmt.Errorf("%w: %s changed", ErrConflict, ref)
	}
	b.overlay[ref] = nil
	return nil
}
