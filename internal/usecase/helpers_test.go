package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	adapterrepo "kitchenchat/internal/adapter/repository"
	"kitchenchat/internal/domain/entity"
	"kitchenchat/internal/domain/repository"
	"kitchenchat/internal/domain/service"
	"kitchenchat/internal/infrastructure/docstore"
	"kitchenchat/internal/infrastructure/metrics"
	"kitchenchat/pkg/logger"
)

func init() {
	logger.SetLogger(zap.NewNop())
}

// stepClock advances one second on every reading.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type testIdentity struct {
	userID     int64
	role       entity.Role
	refreshErr error
	refreshes  int
}

func (i *testIdentity) UserID() int64     { return i.userID }
func (i *testIdentity) Role() entity.Role { return i.role }
func (i *testIdentity) Credential(ctx context.Context, forceRefresh bool) (string, error) {
	if forceRefresh {
		i.refreshes++
		if i.refreshErr != nil {
			return "", i.refreshErr
		}
	}
	return "token", nil
}

func asChef(id int64) context.Context {
	return service.WithIdentity(context.Background(), &testIdentity{userID: id, role: entity.RoleChef})
}

func asManager(id int64) context.Context {
	return service.WithIdentity(context.Background(), &testIdentity{userID: id, role: entity.RoleManager})
}

// countingStore counts writes and can fail updates on one collection.
type countingStore struct {
	repository.DocumentStore

	mu            sync.Mutex
	creates       int
	updates       int
	failUpdatesOn string
	failCreates   bool
}

func (s *countingStore) CreateDocument(ctx context.Context, collection string, fields repository.Fields) (string, error) {
	s.mu.Lock()
	s.creates++
	fail := s.failCreates
	s.mu.Unlock()
	if fail {
		return "", errors.New("create refused")
	}
	return s.DocumentStore.CreateDocument(ctx, collection, fields)
}

func (s *countingStore) UpdateDocument(ctx context.Context, collection, id string, fields repository.Fields) error {
	s.mu.Lock()
	s.updates++
	fail := s.failUpdatesOn != "" && s.failUpdatesOn == collection
	s.mu.Unlock()
	if fail {
		return errors.New("update refused")
	}
	return s.DocumentStore.UpdateDocument(ctx, collection, id, fields)
}

func (s *countingStore) counts() (creates, updates int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates, s.updates
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []service.Notification
	fail error
}

func (n *recordingNotifier) Notify(ctx context.Context, note service.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
	return n.fail
}

func (n *recordingNotifier) all() []service.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]service.Notification(nil), n.sent...)
}

type fixture struct {
	mem           *docstore.MemoryStore
	store         *countingStore
	conversations *ConversationUseCase
	messages      *MessageUseCase
	readState     *ReadStateUseCase
	notifier      *recordingNotifier
	metrics       *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mem := docstore.NewMemoryStore(newStepClock())
	store := &countingStore{DocumentStore: mem}
	convRepo := adapterrepo.NewConversationRepository(store)
	msgRepo := adapterrepo.NewMessageRepository(store)
	notifier := &recordingNotifier{}
	m := metrics.New(prometheus.NewRegistry())

	return &fixture{
		mem:           mem,
		store:         store,
		conversations: NewConversationUseCase(convRepo, m),
		messages:      NewMessageUseCase(convRepo, msgRepo, notifier, m, 0),
		readState:     NewReadStateUseCase(convRepo, msgRepo, m),
		notifier:      notifier,
		metrics:       m,
	}
}
