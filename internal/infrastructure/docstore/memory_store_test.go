package docstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kitchenchat/internal/domain/repository"
	"kitchenchat/pkg/errors"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestServerTimestampResolvesToClock(t *testing.T) {
	s := NewMemoryStore(fixedClock{epoch})
	ctx := context.Background()

	id, err := s.CreateDocument(ctx, "c", repository.Fields{"at": repository.ServerTimestamp, "n": 3})
	require.NoError(t, err)

	doc, err := s.GetDocument(ctx, "c", id)
	require.NoError(t, err)
	assert.Equal(t, epoch, doc.Fields["at"])
	assert.Equal(t, int64(3), doc.Fields["n"])
}

func TestIncrementIsAppliedUnderLock(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()
	id, err := s.CreateDocument(ctx, "c", repository.Fields{"count": int64(0)})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.UpdateDocument(ctx, "c", id, repository.Fields{"count": repository.Increment(1)}))
		}()
	}
	wg.Wait()

	doc, err := s.GetDocument(ctx, "c", id)
	require.NoError(t, err)
	assert.Equal(t, int64(50), doc.Fields["count"])
}

func TestIncrementOnAbsentFieldStartsFromZero(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()
	id, err := s.CreateDocument(ctx, "c", repository.Fields{})
	require.NoError(t, err)

	require.NoError(t, s.UpdateDocument(ctx, "c", id, repository.Fields{"count": repository.Increment(2)}))
	doc, err := s.GetDocument(ctx, "c", id)
	require.NoError(t, err)
	assert.Equal(t, int64(2), doc.Fields["count"])
}

func TestCreateIfAbsentCreatesExactlyOnce(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()
	key := repository.UniqueKey{Field: "applicationId", Value: int64(100)}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = map[string]struct{}{}
		created int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, ok, err := s.CreateIfAbsent(ctx, "conversations", key, repository.Fields{"applicationId": int64(100)})
			assert.NoError(t, err)
			mu.Lock()
			ids[id] = struct{}{}
			if ok {
				created++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, ids, 1)
	assert.Equal(t, 1, created)

	docs, err := s.QueryDocuments(ctx, repository.Query{Collection: "conversations"})
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestCreateIfAbsentMatchesIntKinds(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()
	first, _, err := s.CreateIfAbsent(ctx, "c", repository.UniqueKey{Field: "k", Value: 7}, repository.Fields{"k": 7})
	require.NoError(t, err)
	second, created, err := s.CreateIfAbsent(ctx, "c", repository.UniqueKey{Field: "k", Value: int64(7)}, repository.Fields{"k": int64(7)})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first, second)
}

func TestQueryOrdersFiltersAndLimits(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()
	for i, at := range []time.Duration{3, 1, 2, 5} {
		_, err := s.CreateDocument(ctx, "m", repository.Fields{
			"at":    epoch.Add(at * time.Minute),
			"owner": int64(i % 2),
		})
		require.NoError(t, err)
	}

	docs, err := s.QueryDocuments(ctx, repository.Query{
		Collection: "m", OrderBy: "at", Direction: repository.Desc, Limit: 2,
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, epoch.Add(5*time.Minute), docs[0].Fields["at"])
	assert.Equal(t, epoch.Add(3*time.Minute), docs[1].Fields["at"])

	evens, err := s.QueryDocuments(ctx, repository.Query{
		Collection: "m", Filters: []repository.Filter{{Field: "owner", Value: 0}}, OrderBy: "at",
	})
	require.NoError(t, err)
	require.Len(t, evens, 2)
	assert.Equal(t, epoch.Add(2*time.Minute), evens[0].Fields["at"])
	assert.Equal(t, epoch.Add(3*time.Minute), evens[1].Fields["at"])
}

func TestEqualTimestampsKeepInsertionOrder(t *testing.T) {
	s := NewMemoryStore(fixedClock{epoch})
	ctx := context.Background()
	a, _ := s.CreateDocument(ctx, "m", repository.Fields{"at": repository.ServerTimestamp})
	b, _ := s.CreateDocument(ctx, "m", repository.Fields{"at": repository.ServerTimestamp})

	asc, err := s.QueryDocuments(ctx, repository.Query{Collection: "m", OrderBy: "at"})
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, []string{asc[0].ID, asc[1].ID})

	desc, err := s.QueryDocuments(ctx, repository.Query{Collection: "m", OrderBy: "at", Direction: repository.Desc})
	require.NoError(t, err)
	assert.Equal(t, []string{b, a}, []string{desc[0].ID, desc[1].ID})
}

func TestMissingDocuments(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()

	_, err := s.GetDocument(ctx, "c", "nope")
	assert.True(t, errors.IsNotFound(err))

	err = s.UpdateDocument(ctx, "c", "nope", repository.Fields{"x": 1})
	assert.True(t, errors.IsNotFound(err))
}

func TestReturnedFieldsAreCopies(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()
	id, _ := s.CreateDocument(ctx, "c", repository.Fields{"x": "a"})

	doc, err := s.GetDocument(ctx, "c", id)
	require.NoError(t, err)
	doc.Fields["x"] = "changed"

	again, err := s.GetDocument(ctx, "c", id)
	require.NoError(t, err)
	assert.Equal(t, "a", again.Fields["x"])
}

func TestCancelledContextFailsWithStoreError(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.CreateDocument(ctx, "c", repository.Fields{})
	assert.True(t, errors.Is(err, "STORE_ERROR"))
}

func TestSubscribeQuery(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()
	_, err := s.CreateDocument(ctx, "m", repository.Fields{"v": int64(1)})
	require.NoError(t, err)

	snapshots := make(chan int, 16)
	stop, err := s.SubscribeQuery(ctx, repository.Query{Collection: "m"},
		func(docs []*repository.Document) { snapshots <- len(docs) }, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, receive(t, snapshots))

	_, err = s.CreateDocument(ctx, "m", repository.Fields{"v": int64(2)})
	require.NoError(t, err)
	assert.Equal(t, 2, receive(t, snapshots))

	// other collections do not wake the watcher
	_, err = s.CreateDocument(ctx, "other", repository.Fields{})
	require.NoError(t, err)

	stop()
	stop()
	_, err = s.CreateDocument(ctx, "m", repository.Fields{"v": int64(3)})
	require.NoError(t, err)

	select {
	case n := <-snapshots:
		t.Fatalf("delivery after unsubscribe: %d", n)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNoDeliveryAfterUnsubscribeReturns(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()
	id, err := s.CreateDocument(ctx, "m", repository.Fields{"v": int64(0)})
	require.NoError(t, err)

	for round := 0; round < 50; round++ {
		var (
			mu        sync.Mutex
			delivered int
		)
		unsubscribe, err := s.SubscribeQuery(ctx, repository.Query{Collection: "m"},
			func([]*repository.Document) {
				time.Sleep(100 * time.Microsecond)
				mu.Lock()
				delivered++
				mu.Unlock()
			}, nil)
		require.NoError(t, err)

		writerDone := make(chan struct{})
		stopWriter := make(chan struct{})
		go func() {
			defer close(writerDone)
			for {
				select {
				case <-stopWriter:
					return
				default:
					_ = s.UpdateDocument(ctx, "m", id, repository.Fields{"v": repository.Increment(1)})
				}
			}
		}()

		time.Sleep(time.Millisecond)
		unsubscribe()
		mu.Lock()
		atStop := delivered
		mu.Unlock()

		time.Sleep(2 * time.Millisecond)
		close(stopWriter)
		<-writerDone

		mu.Lock()
		assert.Equal(t, atStop, delivered, "round %d: callback ran after unsubscribe returned", round)
		mu.Unlock()
	}
}

func TestSubscribeDetachesOnContextCancel(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx, cancel := context.WithCancel(context.Background())

	snapshots := make(chan int, 16)
	_, err := s.SubscribeQuery(ctx, repository.Query{Collection: "m"},
		func(docs []*repository.Document) { snapshots <- len(docs) }, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, receive(t, snapshots))

	cancel()
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.watchers["m"]) == 0
	}, time.Second, 10*time.Millisecond)
}

func receive(t *testing.T, ch <-chan int) int {
	t.Helper()
	select {
	case n := <-ch:
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot delivered")
	}
	return 0
}
