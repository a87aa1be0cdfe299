package interfaces

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"
)

// ErrDocumentNotFound is returned by Get and Update when no record has the given id.
var ErrDocumentNotFound = errors.New("document not found")

// Fields is the field set of a stored record.
type Fields map[string]interface{}

// Document is a stored record. CreatedAt is assigned by the store on creation.
type Document struct {
	ID        string
	Fields    Fields
	CreatedAt time.Time
}

// Predicate is a single-field equality filter.
type Predicate struct {
	Field string
	Value interface{}
}

func Eq(field string, value interface{}) Predicate {
	return Predicate{Field: field, Value: value}
}

func (p Predicate) Matches(fields Fields) bool {
	value, ok := fields[p.Field]
	if !ok {
		return false
	}
	return reflect.DeepEqual(value, p.Value)
}

func (p Predicate) String() string {
	return fmt.Sprintf("%s == %v", p.Field, p.Value)
}

// WatchFunc receives the full set of records matching a watch predicate.
type WatchFunc func(docs []Document)

// UnsubscribeFunc stops a watch. Calling it more than once is safe.
type UnsubscribeFunc func()

// DocumentStore is the persistence and change-notification capability the
// booking ledger is built on.
type DocumentStore interface {
	// Create persists a new record and returns it with its assigned id and creation time.
	Create(ctx context.Context, collection string, fields Fields) (Document, error)
	// Get reads a single record.
	Get(ctx context.Context, collection, id string) (Document, error)
	// Set creates or merges a record under a caller-chosen id.
	Set(ctx context.Context, collection, id string, fields Fields) error
	// Update merges fields into an existing record.
	Update(ctx context.Context, collection, id string, fields Fields) error
	// Query is a one-shot filtered read.
	Query(ctx context.Context, collection string, predicate Predicate) ([]Document, error)
	// Watch invokes fn with the current matching set before returning, then
	// again after every change to a matching record until unsubscribed or ctx is done.
	// Calls to fn for a single watch never overlap.
	Watch(ctx context.Context, collection string, predicate Predicate, fn WatchFunc) (UnsubscribeFunc, error)
}
