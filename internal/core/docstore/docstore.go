// Package docstore is a small document store with optimistic read-modify-write
// transactions. A transaction records the version of every document it reads
// and only commits if none of them changed in the meantime; otherwise the
// commit fails with ErrConflict and the caller may retry (see Runner).
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"time"
)

var (
	ErrNotFound       = errors.New("docstore: document not found")
	ErrConflict       = errors.New("docstore: transaction conflict")
	ErrReadAfterWrite = errors.New("docstore: read after write in transaction")
	ErrInvalidRef     = errors.New("docstore: invalid document reference")
)

// Ref addresses a document by collection name and id.
type Ref struct {
	Collection string
	ID         string
}

func (r Ref) String() string { return r.Collection + "/" + r.ID }

func (r Ref) valid() bool { return r.Collection != "" && r.ID != "" }

// Fields is a top-level field map used for writes.
type Fields map[string]any

type serverTimestamp struct{}

// ServerTimestamp is replaced by the commit time when written.
var ServerTimestamp = serverTimestamp{}

// Document is an immutable snapshot of a stored document.
type Document struct {
	Ref        Ref
	Version    int64
	CreateTime time.Time
	UpdateTime time.Time
	data       map[string]any
}

func (d *Document) Exists() bool { return d != nil }

func (d *Document) Data() map[string]any {
	if d == nil {
		return nil
	}
	return maps.Clone(d.data)
}

// DataTo decodes the document fields into v through their JSON form.
func (d *Document) DataTo(v any) error {
	if d == nil {
		return ErrNotFound
	}
	b, err := json.Marshal(d.data)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// Query lists a collection ordered by creation time.
type Query struct {
	Collection string
	Desc       bool
	Limit      int
}

type TxFunc func(ctx context.Context, tx Tx) error

// Tx is the handle passed to a transaction function. Reads must come before
// writes; writes are buffered and applied atomically on commit.
type Tx interface {
	Get(ref Ref) (*Document, error)
	Set(ref Ref, data Fields) error
	Update(ref Ref, data Fields) error
	Delete(ref Ref) error
}

type Store interface {
	Create(ctx context.Context, collection string, data Fields) (*Document, error)
	Get(ctx context.Context, ref Ref) (*Document, error)
	List(ctx context.Context, q Query) ([]*Document, error)
	// RunTransaction makes a single attempt; conflicts surface as ErrConflict.
	RunTransaction(ctx context.Context, fn TxFunc) error
	Ping(ctx context.Context) error
	Close() error
}

// normalize resolves ServerTimestamp and round-trips through JSON so stored
// data always has the same shape regardless of the driver.
func normalize(data Fields, now time.Time) (map[string]any, error) {
	resolved := make(map[string]any, len(data))
	for k, v := range data {
		if _, ok := v.(serverTimestamp); ok {
			v = now
		}
		resolved[k] = v
	}
	b, err := json.Marshal(resolved)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func versionOf(d *Document) int64 {
	if d == nil {
		return 0
	}
	return d.Version
}
