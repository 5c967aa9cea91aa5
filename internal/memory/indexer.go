package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tasknest/tasknest/internal/storage"
)

// SearchResult is a normalized nearest-neighbor hit for a todo.
type SearchResult struct {
	ID     int64   `json:"id"`
	Title  string  `json:"title"`
	Reason *string `json:"reason,omitempty"`
	Score  float32 `json:"score"`
}

// Indexer maintains the semantic index of persisted todos: one document per
// todo, upserted on create/update, removed on delete, queried by free text.
type Indexer struct {
	embedder *Embedder
	store    VectorStore
}

// NewIndexer creates an Indexer backed by the given Embedder and VectorStore.
func NewIndexer(embedder *Embedder, store VectorStore) *Indexer {
	return &Indexer{embedder: embedder, store: store}
}

// BuildDocument renders the deterministic multi-line text summary indexed
// for a todo.
func BuildDocument(t storage.Todo) string {
	reason := "n/a"
	if t.Reason != nil && *t.Reason != "" {
		reason = *t.Reason
	}
	deadline := "unscheduled"
	if t.Deadline != nil {
		deadline = t.Deadline.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("%s\nReason: %s\nPriority: %s\nDeadline: %s", t.Title, reason, t.Priority, deadline)
}

// Index embeds the todo's document and upserts it into the vector store.
func (ix *Indexer) Index(ctx context.Context, t storage.Todo) error {
	doc := BuildDocument(t)
	vec, err := ix.embedder.Embed(ctx, doc)
	if err != nil {
		return fmt.Errorf("embedding todo %d: %w", t.ID, err)
	}
	return ix.upsert(t, doc, vec)
}

// IndexMany indexes a batch of todos, embedding concurrently.
func (ix *Indexer) IndexMany(ctx context.Context, todos []storage.Todo) error {
	if len(todos) == 0 {
		return nil
	}
	docs := make([]string, len(todos))
	for i, t := range todos {
		docs[i] = BuildDocument(t)
	}
	vecs, err := ix.embedder.EmbedBatch(ctx, docs)
	if err != nil {
		return fmt.Errorf("embedding batch: %w", err)
	}
	for i, t := range todos {
		if err := ix.upsert(t, docs[i], vecs[i]); err != nil {
			return err
		}
	}
	return nil
}

func (ix *Indexer) upsert(t storage.Todo, doc string, vec []float32) error {
	reason := ""
	if t.Reason != nil {
		reason = *t.Reason
	}
	return ix.store.Upsert(Record{
		ID:        uuid.New().String(),
		TodoID:    t.ID,
		Document:  doc,
		Title:     t.Title,
		Reason:    reason,
		Priority:  t.Priority,
		Status:    t.Status,
		Embedding: vec,
		CreatedAt: time.Now().UTC(),
	})
}

// Remove deletes the todo's record from the vector store.
func (ix *Indexer) Remove(todoID int64) error {
	return ix.store.DeleteByTodo(todoID)
}

// Search embeds the query and returns the most similar todos, best first.
// When a record carries no title metadata the document's first line is used.
func (ix *Indexer) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}

	vec, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	scored, err := ix.store.Search(vec, limit)
	if err != nil {
		return nil, fmt.Errorf("searching vectors: %w", err)
	}

	results := make([]SearchResult, len(scored))
	for i, s := range scored {
		title := s.Title
		if title == "" {
			title, _, _ = strings.Cut(s.Document, "\n")
		}
		var reason *string
		if s.Reason != "" {
			r := s.Reason
			reason = &r
		}
		results[i] = SearchResult{
			ID:     s.TodoID,
			Title:  title,
			Reason: reason,
			Score:  s.Score,
		}
	}
	return results, nil
}
