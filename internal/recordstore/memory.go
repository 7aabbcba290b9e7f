package recordstore

import (
	"context"
	"errors"
	"slices"
	"sync"
)

// Memory is an in-process Store for local runs and tests.
type Memory struct {
	mu      sync.Mutex
	nextID  int64
	models  map[string]map[int64]Record
	failOn  map[string]error
	history []Call
}

// Call is one recorded mutation against a Memory store.
type Call struct {
	Op    string
	Model string
	IDs   []int64
	Patch Record
}

func NewMemory() *Memory {
	return &Memory{
		models: make(map[string]map[int64]Record),
		failOn: make(map[string]error),
	}
}

// Seed inserts rec (keeping its id when set) and returns the id.
func (m *Memory) Seed(model string, rec Record) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := rec.ID()
	if id == 0 {
		m.nextID++
		id = m.nextID
	} else if id > m.nextID {
		m.nextID = id
	}
	cp := clone(rec)
	cp["id"] = id
	m.table(model)[id] = cp
	return id
}

// FailOn makes every op on model fail with err until cleared with a nil err.
func (m *Memory) FailOn(op, model string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := op + " " + model
	if err == nil {
		delete(m.failOn, key)
		return
	}
	m.failOn[key] = err
}

// Get returns a copy of one record.
func (m *Memory) Get(model string, id int64) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.models[model][id]
	if !ok {
		return nil, false
	}
	return clone(rec), true
}

// Calls returns the recorded mutations in order.
func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.history...)
}

func (m *Memory) table(model string) map[int64]Record {
	t, ok := m.models[model]
	if !ok {
		t = make(map[int64]Record)
		m.models[model] = t
	}
	return t
}

func (m *Memory) fail(op, model string) error {
	if err, ok := m.failOn[op+" "+model]; ok {
		return remote(op, model, err)
	}
	return nil
}

func (m *Memory) Read(_ context.Context, model string, ids []int64, fields []string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("read", model); err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		if rec, ok := m.models[model][id]; ok {
			out = append(out, clone(rec).Only(fields))
		}
	}
	return out, nil
}

func (m *Memory) Write(_ context.Context, model string, ids []int64, patch Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("write", model); err != nil {
		return err
	}
	t := m.models[model]
	for _, id := range ids {
		if _, ok := t[id]; !ok {
			return remote("write", model, ErrNotFound)
		}
	}
	for _, id := range ids {
		for k, v := range patch {
			t[id][k] = v
		}
	}
	m.history = append(m.history, Call{Op: "write", Model: model, IDs: slices.Clone(ids), Patch: clone(patch)})
	return nil
}

func (m *Memory) Create(_ context.Context, model string, payload Record) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("create", model); err != nil {
		return 0, err
	}
	m.nextID++
	id := m.nextID
	rec := clone(payload)
	rec["id"] = id
	m.table(model)[id] = rec
	m.history = append(m.history, Call{Op: "create", Model: model, IDs: []int64{id}, Patch: clone(payload)})
	return id, nil
}

func (m *Memory) Delete(_ context.Context, model string, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("delete", model); err != nil {
		return err
	}
	for _, id := range ids {
		delete(m.models[model], id)
	}
	m.history = append(m.history, Call{Op: "delete", Model: model, IDs: slices.Clone(ids)})
	return nil
}

func (m *Memory) Search(ctx context.Context, model string, domain Domain) ([]int64, error) {
	recs, err := m.match("search", model, domain)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(recs))
	for i, rec := range recs {
		ids[i] = rec.ID()
	}
	return ids, nil
}

func (m *Memory) SearchRead(ctx context.Context, model string, domain Domain, fields []string) ([]Record, error) {
	recs, err := m.match("search_read", model, domain)
	if err != nil {
		return nil, err
	}
	for i := range recs {
		recs[i] = recs[i].Only(fields)
	}
	return recs, nil
}

func (m *Memory) SearchCount(ctx context.Context, model string, domain Domain) (int, error) {
	recs, err := m.match("search_count", model, domain)
	return len(recs), err
}

func (m *Memory) match(op, model string, domain Domain) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(op, model); err != nil {
		return nil, err
	}
	for _, c := range domain {
		if err := c.validate(); err != nil {
			return nil, remote(op, model, err)
		}
	}

	t := m.models[model]
	ids := make([]int64, 0, len(t))
	for id := range t {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var out []Record
	for _, id := range ids {
		if matches(t[id], domain) {
			out = append(out, clone(t[id]))
		}
	}
	return out, nil
}

func matches(rec Record, domain Domain) bool {
	for _, c := range domain {
		got := fieldText(rec, c.Field)
		switch c.Op {
		case OpEq:
			if got != scalarText(c.Value) {
				return false
			}
		case OpNotEq:
			if got == scalarText(c.Value) {
				return false
			}
		case OpIn:
			if !slices.Contains(listText(c.Value), got) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func fieldText(rec Record, field string) string {
	if pair, ok := rec[field].([]any); ok && len(pair) > 0 {
		return scalarText(pair[0])
	}
	return scalarText(rec[field])
}

func clone(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}

var _ Store = (*Memory)(nil)
var _ Store = (*Postgres)(nil)
var _ Store = (*JSONRPC)(nil)

// IsNotFound reports whether err means the addressed record does not exist.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
