// Package docstore implements the embedded document index the graph layer
// persists into.
//
// Every index is a named collection of JSON documents, each carrying a type
// (the element label). Document sources live in sqlite, which gives realtime
// get and create-only semantics. Each index also owns a bleve shard fed by an
// asynchronous queue, so searches are near-real-time: a write becomes
// searchable once its shard is refreshed or the background flush fires.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/blevesearch/bleve/v2/search/query"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrConflict indicates a create-only write hit an existing document.
	ErrConflict = errors.New("document already exists")

	// ErrDocumentMissing indicates an update or get targeted a document that
	// does not exist.
	ErrDocumentMissing = errors.New("document missing")

	// ErrInvalidIndexName indicates an index name unusable as a shard name.
	ErrInvalidIndexName = errors.New("invalid index name")
)

// =============================================================================
// Modes
// =============================================================================

// Mode selects how the engine stores data.
type Mode string

const (
	// ModeNode persists sources and shards under a data directory.
	ModeNode Mode = "node"

	// ModeMemory keeps everything in process memory.
	ModeMemory Mode = "memory"

	// ModeTransport names a remote cluster client. The embedded engine
	// cannot serve it.
	ModeTransport Mode = "transport"
)

// Options configures an Engine.
type Options struct {
	Mode Mode

	// Path is the data directory in node mode. Defaults to the platform
	// data directory for ClusterName.
	Path string

	// ClusterName namespaces the default data directory.
	ClusterName string

	// Driver is the database/sql driver used for the source table.
	Driver string

	// FlushInterval bounds how long a write waits before becoming searchable
	// without an explicit refresh (default 1s).
	FlushInterval time.Duration

	// QueueSize is the per-shard pending operation capacity (default 10000).
	QueueSize int

	// BatchSize is the number of operations per bleve batch (default 500).
	BatchSize int

	Logger *slog.Logger
}

// DefaultOptions returns options for an in-memory engine.
func DefaultOptions() Options {
	return Options{
		Mode:          ModeMemory,
		ClusterName:   "docgraph",
		FlushInterval: time.Second,
		QueueSize:     10000,
		BatchSize:     500,
	}
}

// =============================================================================
// Documents and Requests
// =============================================================================

// Document is a stored document as returned by a get.
type Document struct {
	Index   string
	ID      string
	Type    string
	Version int64
	Found   bool
	Source  map[string]any
}

// IndexRequest creates a document. The write fails with ErrConflict if the
// id already exists in the index.
type IndexRequest struct {
	Index  string
	ID     string
	Type   string
	Source map[string]any
}

// UpdateRequest sets the fields in Doc and removes the fields named in Remove.
// Field names are data, never interpreted as an expression.
type UpdateRequest struct {
	Index  string
	ID     string
	Doc    map[string]any
	Remove []string
}

// GetItem addresses one document of a multi-get.
type GetItem struct {
	Index string
	ID    string
}

// SearchRequest matches Query against the given indices, optionally
// restricted to documents of the given types.
type SearchRequest struct {
	Indices []string
	Types   []string
	Query   query.Query
	Size    int
}

// Hit is one search match with its current source.
type Hit struct {
	Index  string
	ID     string
	Type   string
	Score  float64
	Source map[string]any
}

// SearchResponse holds the hits of a search in index order.
type SearchResponse struct {
	Hits  []Hit
	Total uint64
	Took  time.Duration
}

// =============================================================================
// Bulk
// =============================================================================

// OpType identifies the kind of a bulk operation.
type OpType int

const (
	OpCreate OpType = iota
	OpDelete
	OpUpdate
)

func (t OpType) String() string {
	switch t {
	case OpCreate:
		return "create"
	case OpDelete:
		return "delete"
	case OpUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// BulkOperation is one staged write.
type BulkOperation struct {
	Type    OpType
	Index   string
	ID      string
	DocType string
	Source  map[string]any
	Remove  []string
}

// CreateOp builds a create-only bulk operation.
func CreateOp(req IndexRequest) BulkOperation {
	return BulkOperation{Type: OpCreate, Index: req.Index, ID: req.ID, DocType: req.Type, Source: req.Source}
}

// DeleteOp builds a delete bulk operation.
func DeleteOp(index, id string) BulkOperation {
	return BulkOperation{Type: OpDelete, Index: index, ID: id}
}

// UpdateOp builds a partial-update bulk operation.
func UpdateOp(req UpdateRequest) BulkOperation {
	return BulkOperation{Type: OpUpdate, Index: req.Index, ID: req.ID, Source: req.Doc, Remove: req.Remove}
}

// BulkItem is the outcome of one bulk operation.
type BulkItem struct {
	Type  OpType
	Index string
	ID    string
	Err   error
}

// BulkResponse reports the per-item outcome of a bulk request.
type BulkResponse struct {
	Items []BulkItem
	Took  time.Duration
}

// HasFailures reports whether any item failed.
func (r *BulkResponse) HasFailures() bool {
	for _, item := range r.Items {
		if item.Err != nil {
			return true
		}
	}
	return false
}

// Err joins the failures of every failed item, or returns nil.
func (r *BulkResponse) Err() error {
	var errs []error
	for _, item := range r.Items {
		if item.Err != nil {
			errs = append(errs, fmt.Errorf("%s %s/%s: %w", item.Type, item.Index, item.ID, item.Err))
		}
	}
	return errors.Join(errs...)
}

// =============================================================================
// Client
// =============================================================================

// Client is the backend surface used by the graph layer.
type Client interface {
	// Index creates a document, failing on an existing id.
	Index(ctx context.Context, req IndexRequest) (*Document, error)

	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, index, id string) error

	// Update applies a partial update to an existing document.
	Update(ctx context.Context, req UpdateRequest) error

	// MultiGet fetches documents in request order. Missing documents are
	// returned with Found unset.
	MultiGet(ctx context.Context, items []GetItem) ([]Document, error)

	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)

	// Bulk applies operations in order. Item failures are reported in the
	// response and do not abort the remaining items.
	Bulk(ctx context.Context, ops []BulkOperation) (*BulkResponse, error)

	// Refresh makes every completed write searchable. No indices means all.
	Refresh(ctx context.Context, indices ...string) error

	// Indices lists every existing index name.
	Indices(ctx context.Context) ([]string, error)

	Close() error

	String() string
}
