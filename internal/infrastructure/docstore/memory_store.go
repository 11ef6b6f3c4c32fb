package docstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"kitchenchat/internal/domain/repository"
	"kitchenchat/pkg/errors"
)

type memoryDoc struct {
	fields repository.Fields
	seq    uint64
}

// MemoryStore is a process-local DocumentStore with change notification.
// It backs the development server and the test suites.
type MemoryStore struct {
	mu          sync.Mutex
	clock       repository.Clock
	seq         uint64
	collections map[string]map[string]*memoryDoc
	watchers    map[string]map[*memoryWatcher]struct{}
}

func NewMemoryStore(clock repository.Clock) *MemoryStore {
	if clock == nil {
		clock = repository.SystemClock{}
	}
	return &MemoryStore{
		clock:       clock,
		collections: make(map[string]map[string]*memoryDoc),
		watchers:    make(map[string]map[*memoryWatcher]struct{}),
	}
}

func (s *MemoryStore) CreateDocument(ctx context.Context, collection string, fields repository.Fields) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.Store("Failed to create document", err)
	}

	s.mu.Lock()
	id := s.insertLocked(collection, fields)
	s.mu.Unlock()

	s.signal(collection)
	return id, nil
}

func (s *MemoryStore) CreateIfAbsent(ctx context.Context, collection string, key repository.UniqueKey, fields repository.Fields) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, errors.Store("Failed to create document", err)
	}

	want := normalize(key.Value)

	s.mu.Lock()
	for _, id := range s.orderedIDsLocked(collection) {
		if s.collections[collection][id].fields[key.Field] == want {
			s.mu.Unlock()
			return id, false, nil
		}
	}
	id := s.insertLocked(collection, fields)
	s.mu.Unlock()

	s.signal(collection)
	return id, true, nil
}

func (s *MemoryStore) GetDocument(ctx context.Context, collection, id string) (*repository.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Store("Failed to get document", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, errors.NotFound("Document", nil)
	}
	return &repository.Document{ID: id, Fields: copyFields(doc.fields)}, nil
}

func (s *MemoryStore) QueryDocuments(ctx context.Context, q repository.Query) ([]*repository.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Store("Failed to query documents", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runLocked(q), nil
}

func (s *MemoryStore) UpdateDocument(ctx context.Context, collection, id string, fields repository.Fields) error {
	if err := ctx.Err(); err != nil {
		return errors.Store("Failed to update document", err)
	}

	s.mu.Lock()
	doc, ok := s.collections[collection][id]
	if !ok {
		s.mu.Unlock()
		return errors.NotFound("Document", nil)
	}
	now := s.clock.Now()
	for k, v := range fields {
		if inc, ok := v.(repository.IncrementTransform); ok {
			current, _ := doc.fields[k].(int64)
			doc.fields[k] = current + inc.By
			continue
		}
		doc.fields[k] = resolve(v, now)
	}
	s.mu.Unlock()

	s.signal(collection)
	return nil
}

func (s *MemoryStore) SubscribeQuery(ctx context.Context, q repository.Query, onChange func([]*repository.Document), onError func(error)) (repository.Unsubscribe, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Store("Failed to subscribe", err)
	}

	w := &memoryWatcher{
		query:    q,
		onChange: onChange,
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	s.mu.Lock()
	if s.watchers[q.Collection] == nil {
		s.watchers[q.Collection] = make(map[*memoryWatcher]struct{})
	}
	s.watchers[q.Collection][w] = struct{}{}
	s.mu.Unlock()

	// initial snapshot
	w.notify <- struct{}{}

	stop := func() {
		w.once.Do(func() {
			w.mu.Lock()
			w.closed = true
			w.mu.Unlock()
			close(w.done)
			s.mu.Lock()
			delete(s.watchers[q.Collection], w)
			s.mu.Unlock()
		})
	}

	go func() {
		for {
			select {
			case <-w.notify:
				s.mu.Lock()
				docs := s.runLocked(w.query)
				s.mu.Unlock()
				if !w.deliver(docs) {
					return
				}
			case <-w.done:
				return
			case <-ctx.Done():
				stop()
				return
			}
		}
	}()

	return stop, nil
}

type memoryWatcher struct {
	query    repository.Query
	onChange func([]*repository.Document)
	notify   chan struct{}
	done     chan struct{}
	once     sync.Once

	mu     sync.Mutex
	closed bool
}

// deliver runs onChange unless the watcher is stopped. mu is held across the
// callback so stop returns only after an in-flight delivery has finished.
func (w *memoryWatcher) deliver(docs []*repository.Document) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	w.onChange(docs)
	return true
}

// signal wakes every watcher of collection. Pending wake-ups coalesce, the
// watcher always reads the latest state.
func (s *MemoryStore) signal(collection string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for w := range s.watchers[collection] {
		select {
		case w.notify <- struct{}{}:
		default:
		}
	}
}

func (s *MemoryStore) insertLocked(collection string, fields repository.Fields) string {
	if s.collections[collection] == nil {
		s.collections[collection] = make(map[string]*memoryDoc)
	}
	now := s.clock.Now()
	stored := make(repository.Fields, len(fields))
	for k, v := range fields {
		if inc, ok := v.(repository.IncrementTransform); ok {
			stored[k] = inc.By
			continue
		}
		stored[k] = resolve(v, now)
	}
	s.seq++
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	s.collections[collection][id] = &memoryDoc{fields: stored, seq: s.seq}
	return id
}

func (s *MemoryStore) orderedIDsLocked(collection string) []string {
	docs := s.collections[collection]
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return docs[ids[i]].seq < docs[ids[j]].seq })
	return ids
}

func (s *MemoryStore) runLocked(q repository.Query) []*repository.Document {
	docs := s.collections[q.Collection]

	var matched []string
	for _, id := range s.orderedIDsLocked(q.Collection) {
		if matches(docs[id].fields, q.Filters) {
			matched = append(matched, id)
		}
	}

	if q.OrderBy != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			a, b := docs[matched[i]], docs[matched[j]]
			c := compareValues(a.fields[q.OrderBy], b.fields[q.OrderBy])
			if c == 0 {
				c = compareSeq(a.seq, b.seq)
			}
			if q.Direction == repository.Desc {
				return c > 0
			}
			return c < 0
		})
	}

	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	out := make([]*repository.Document, 0, len(matched))
	for _, id := range matched {
		out = append(out, &repository.Document{ID: id, Fields: copyFields(docs[id].fields)})
	}
	return out
}

func matches(fields repository.Fields, filters []repository.Filter) bool {
	for _, f := range filters {
		if fields[f.Field] != normalize(f.Value) {
			return false
		}
	}
	return true
}

func compareSeq(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// compareValues orders absent values first, then by natural order of the
// stored type.
func compareValues(a, b interface{}) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		}
		return 1
	}
	switch av := a.(type) {
	case time.Time:
		bv, _ := b.(time.Time)
		return av.Compare(bv)
	case int64:
		bv, _ := b.(int64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
	case string:
		bv, _ := b.(string)
		return strings.Compare(av, bv)
	}
	return 0
}

func resolve(v interface{}, now time.Time) interface{} {
	if repository.IsServerTimestamp(v) {
		return now
	}
	return normalize(v)
}

func normalize(v interface{}) interface{} {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case uint32:
		return int64(n)
	case time.Time:
		return n.UTC()
	}
	return v
}

func copyFields(f repository.Fields) repository.Fields {
	out := make(repository.Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}
