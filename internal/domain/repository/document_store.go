package repository

import (
	"context"
	"time"
)

// Fields is the field set of one document. Values are int64, string,
// bool, time.Time, nil, or one of the write transforms below.
type Fields map[string]interface{}

type serverTimestamp struct{}

// ServerTimestamp asks the backend to stamp the field with its own clock.
var ServerTimestamp interface{} = serverTimestamp{}

func IsServerTimestamp(v interface{}) bool {
	_, ok := v.(serverTimestamp)
	return ok
}

// IncrementTransform adds By to the stored integer atomically.
type IncrementTransform struct {
	By int64
}

func Increment(by int64) IncrementTransform {
	return IncrementTransform{By: by}
}

type Direction int

const (
	Asc Direction = iota
	Desc
)

type Filter struct {
	Field string
	Value interface{}
}

// Query selects documents of one collection by equality filters, with an
// optional order and limit. Collection may be a nested path such as
// "conversations/{id}/messages".
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Direction  Direction
	Limit      int
}

type Document struct {
	ID     string
	Fields Fields
	// HasPendingWrites is true when the snapshot includes local writes
	// not yet confirmed by the server.
	HasPendingWrites bool
}

// UniqueKey identifies the field whose value must be unique within a
// collection for CreateIfAbsent.
type UniqueKey struct {
	Field string
	Value interface{}
}

type Unsubscribe func()

// DocumentStore is the realtime document database the chat core runs on.
// GetDocument returns a NOT_FOUND AppError for absent documents; every other
// failure is a STORE_ERROR wrapping the driver error.
type DocumentStore interface {
	CreateDocument(ctx context.Context, collection string, fields Fields) (string, error)
	// CreateIfAbsent creates the document unless one with the same key value
	// exists, atomically. It returns the id of the created or existing
	// document and whether this call created it.
	CreateIfAbsent(ctx context.Context, collection string, key UniqueKey, fields Fields) (string, bool, error)
	GetDocument(ctx context.Context, collection, id string) (*Document, error)
	QueryDocuments(ctx context.Context, q Query) ([]*Document, error)
	// SubscribeQuery delivers the full result of q on every change until the
	// returned func is called or an error is reported. Callbacks run on a
	// store-owned goroutine; once the returned func has returned no further
	// callback runs, so it must not be called from inside onChange.
	SubscribeQuery(ctx context.Context, q Query, onChange func([]*Document), onError func(error)) (Unsubscribe, error)
	UpdateDocument(ctx context.Context, collection, id string, fields Fields) error
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
