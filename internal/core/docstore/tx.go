package docstore

import (
	"fmt"
	"maps"
	"time"
)

type opKind int

const (
	opSet opKind = iota
	opUpdate
	opDelete
)

type pendingWrite struct {
	ref  Ref
	op   opKind
	data Fields
}

// apply computes the document that results from the write; nil means deleted.
func (w pendingWrite) apply(base *Document, now time.Time) (*Document, error) {
	switch w.op {
	case opDelete:
		return nil, nil
	case opUpdate:
		if base == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, w.ref)
		}
		patch, err := normalize(w.data, now)
		if err != nil {
			return nil, err
		}
		merged := maps.Clone(base.data)
		if merged == nil {
			merged = map[string]any{}
		}
		maps.Copy(merged, patch)
		return &Document{Ref: w.ref, CreateTime: base.CreateTime, UpdateTime: now, data: merged}, nil
	default:
		data, err := normalize(w.data, now)
		if err != nil {
			return nil, err
		}
		created := now
		if base != nil {
			created = base.CreateTime
		}
		return &Document{Ref: w.ref, CreateTime: created, UpdateTime: now, data: data}, nil
	}
}

// commitBackend is what a driver provides to apply a transaction.
type commitBackend interface {
	load(ref Ref) (*Document, error) // nil, nil when missing
	insert(doc *Document) error
	replace(doc *Document, expect int64) error
	remove(ref Ref, expect int64) error
}

// txState holds the read set and the buffered writes of one attempt.
type txState struct {
	reads   map[Ref]*Document // nil value: observed as missing
	writes  []pendingWrite
	written map[Ref]bool
}

func newTxState() txState {
	return txState{reads: map[Ref]*Document{}, written: map[Ref]bool{}}
}

// cached returns the snapshot already observed for ref, if any.
func (s *txState) cached(ref Ref) (*Document, bool, error) {
	if !ref.valid() {
		return nil, false, ErrInvalidRef
	}
	if s.written[ref] {
		return nil, false, ErrReadAfterWrite
	}
	d, ok := s.reads[ref]
	return d, ok, nil
}

func (s *txState) observe(ref Ref, d *Document) { s.reads[ref] = d }

func (s *txState) stage(ref Ref, op opKind, data Fields) error {
	if !ref.valid() {
		return ErrInvalidRef
	}
	if op != opDelete && data == nil {
		data = Fields{}
	}
	s.writes = append(s.writes, pendingWrite{ref: ref, op: op, data: maps.Clone(data)})
	s.written[ref] = true
	return nil
}

// commit validates the read set and applies the writes in order.
func (s *txState) commit(b commitBackend, now time.Time) error {
	state := make(map[Ref]*Document, len(s.reads)+len(s.writes))
	for ref, seen := range s.reads {
		cur, err := b.load(ref)
		if err != nil {
			return err
		}
		if versionOf(cur) != versionOf(seen) {
			return fmt.Errorf("%w: %s changed", ErrConflict, ref)
		}
		state[ref] = cur
	}

	for _, w := range s.writes {
		base, ok := state[w.ref]
		if !ok {
			var err error
			if base, err = b.load(w.ref); err != nil {
				return err
			}
		}
		next, err := w.apply(base, now)
		if err != nil {
			return err
		}
		switch {
		case next == nil:
			if base != nil {
				if err := b.remove(w.ref, base.Version); err != nil {
					return err
				}
			}
		case base == nil:
			next.Version = 1
			if err := b.insert(next); err != nil {
				return err
			}
		default:
			next.Version = base.Version + 1
			if err := b.replace(next, base.Version); err != nil {
				return err
			}
		}
		state[w.ref] = next
	}
	return nil
}
