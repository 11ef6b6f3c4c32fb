package docstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"kitchenchat/internal/domain/repository"
	"kitchenchat/pkg/errors"
	"kitchenchat/pkg/logger"
)

// uniqueKeysCollection holds one guard document per unique key value so
// CreateIfAbsent can run as a transaction on a known document.
const uniqueKeysCollection = "uniqueKeys"

type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{
		client: client,
	}
}

func (s *FirestoreStore) CreateDocument(ctx context.Context, collection string, fields repository.Fields) (string, error) {
	ref := s.client.Collection(collection).NewDoc()
	if _, err := ref.Create(ctx, toFirestore(fields)); err != nil {
		return "", errors.Store("Failed to create document", err)
	}
	return ref.ID, nil
}

func (s *FirestoreStore) CreateIfAbsent(ctx context.Context, collection string, key repository.UniqueKey, fields repository.Fields) (string, bool, error) {
	coll := s.client.Collection(collection)
	guardRef := s.client.Collection(uniqueKeysCollection).Doc(guardID(collection, key))

	var (
		id      string
		created bool
	)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		id, created = "", false

		guard, err := tx.Get(guardRef)
		if err == nil {
			existing, _ := guard.Data()["documentId"].(string)
			if existing != "" {
				id = existing
				return nil
			}
		} else if status.Code(err) != codes.NotFound {
			return err
		}

		// documents written before the guard existed
		legacy, err := tx.Documents(coll.Where(key.Field, "==", key.Value).Limit(1)).GetAll()
		if err != nil {
			return err
		}
		if len(legacy) > 0 {
			id = legacy[0].Ref.ID
			return tx.Set(guardRef, map[string]interface{}{"documentId": id})
		}

		ref := coll.NewDoc()
		if err := tx.Create(ref, toFirestore(fields)); err != nil {
			return err
		}
		id, created = ref.ID, true
		return tx.Set(guardRef, map[string]interface{}{
			"documentId": ref.ID,
			"createdAt":  firestore.ServerTimestamp,
		})
	})
	if err != nil {
		return "", false, errors.Store("Failed to create document", err)
	}
	return id, created, nil
}

func (s *FirestoreStore) GetDocument(ctx context.Context, collection, id string) (*repository.Document, error) {
	doc, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Document", err)
		}
		return nil, errors.Store("Failed to get document", err)
	}
	return fromSnapshot(doc), nil
}

func (s *FirestoreStore) QueryDocuments(ctx context.Context, q repository.Query) ([]*repository.Document, error) {
	iter := s.buildQuery(q).Documents(ctx)
	defer iter.Stop()

	var docs []*repository.Document
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Store(fmt.Sprintf("Failed to query %s", q.Collection), err)
		}
		docs = append(docs, fromSnapshot(doc))
	}
	return docs, nil
}

func (s *FirestoreStore) UpdateDocument(ctx context.Context, collection, id string, fields repository.Fields) error {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	updates := make([]firestore.Update, 0, len(keys))
	for _, k := range keys {
		updates = append(updates, firestore.Update{Path: k, Value: toFirestoreValue(fields[k])})
	}

	if _, err := s.client.Collection(collection).Doc(id).Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.NotFound("Document", err)
		}
		return errors.Store("Failed to update document", err)
	}
	return nil
}

func (s *FirestoreStore) SubscribeQuery(ctx context.Context, q repository.Query, onChange func([]*repository.Document), onError func(error)) (repository.Unsubscribe, error) {
	subCtx, cancel := context.WithCancel(ctx)
	it := s.buildQuery(q).Snapshots(subCtx)

	// mu is held across onChange so unsubscribe waits for an in-flight delivery
	var (
		mu      sync.Mutex
		stopped bool
	)
	fail := func(err error) {
		mu.Lock()
		if stopped || subCtx.Err() != nil || status.Code(err) == codes.Canceled {
			mu.Unlock()
			return
		}
		stopped = true
		mu.Unlock()

		err = errors.Store(fmt.Sprintf("Subscription on %s failed", q.Collection), err)
		if onError != nil {
			onError(err)
			return
		}
		logger.Error("Firestore subscription on %s failed: %v", q.Collection, err)
	}

	go func() {
		defer it.Stop()
		for {
			snap, err := it.Next()
			if err != nil {
				fail(err)
				return
			}
			docs, err := snap.Documents.GetAll()
			if err != nil {
				fail(err)
				return
			}
			out := make([]*repository.Document, 0, len(docs))
			for _, doc := range docs {
				out = append(out, fromSnapshot(doc))
			}
			mu.Lock()
			if stopped {
				mu.Unlock()
				return
			}
			onChange(out)
			mu.Unlock()
		}
	}()

	return func() {
		mu.Lock()
		stopped = true
		mu.Unlock()
		cancel()
	}, nil
}

func (s *FirestoreStore) buildQuery(q repository.Query) firestore.Query {
	query := s.client.Collection(q.Collection).Query
	for _, f := range q.Filters {
		query = query.Where(f.Field, "==", f.Value)
	}
	if q.OrderBy != "" {
		dir := firestore.Asc
		if q.Direction == repository.Desc {
			dir = firestore.Desc
		}
		query = query.OrderBy(q.OrderBy, dir)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}
	return query
}

func guardID(collection string, key repository.UniqueKey) string {
	return fmt.Sprintf("%s:%s:%v", strings.ReplaceAll(collection, "/", "_"), key.Field, key.Value)
}

func fromSnapshot(doc *firestore.DocumentSnapshot) *repository.Document {
	return &repository.Document{
		ID:     doc.Ref.ID,
		Fields: repository.Fields(doc.Data()),
	}
}

func toFirestore(fields repository.Fields) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		out[k] = toFirestoreValue(v)
	}
	return out
}

func toFirestoreValue(v interface{}) interface{} {
	if repository.IsServerTimestamp(v) {
		return firestore.ServerTimestamp
	}
	if inc, ok := v.(repository.IncrementTransform); ok {
		return firestore.Increment(inc.By)
	}
	return v
}
