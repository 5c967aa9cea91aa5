package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tasknest/tasknest/internal/genai"
	"github.com/tasknest/tasknest/internal/storage"
)

// Indexer is the semantic-index side effect of store mutations. memory.Indexer
// satisfies it; a nil Indexer disables indexing entirely.
type Indexer interface {
	Index(ctx context.Context, t storage.Todo) error
	IndexMany(ctx context.Context, todos []storage.Todo) error
	Remove(todoID int64) error
}

// Service owns todo CRUD, tree assembly, and persistence of generated
// forests. Index updates are best-effort: a failing vector backend degrades
// search but never fails the store write.
type Service struct {
	store   *storage.Store
	indexer Indexer
	logger  *slog.Logger
}

// NewService creates a Service. indexer may be nil to disable semantic
// indexing.
func NewService(store *storage.Store, indexer Indexer) *Service {
	return &Service{
		store:   store,
		indexer: indexer,
		logger:  slog.Default(),
	}
}

// Create persists a single todo and indexes it.
func (s *Service) Create(ctx context.Context, t storage.Todo) (storage.Todo, error) {
	created, err := s.store.CreateTodo(t)
	if err != nil {
		return storage.Todo{}, err
	}
	s.reindex(ctx, created)
	return created, nil
}

// Get returns a todo by id.
func (s *Service) Get(id int64) (storage.Todo, error) {
	return s.store.GetTodo(id)
}

// Update applies a partial patch and reindexes the result.
func (s *Service) Update(ctx context.Context, id int64, p storage.Patch) (storage.Todo, error) {
	updated, err := s.store.UpdateTodo(id, p)
	if err != nil {
		return storage.Todo{}, err
	}
	s.reindex(ctx, updated)
	return updated, nil
}

// Complete marks the todo done.
func (s *Service) Complete(ctx context.Context, id int64) (storage.Todo, error) {
	done := storage.StatusDone
	return s.Update(ctx, id, storage.Patch{Status: &done})
}

// Delete removes a todo and its index entry. Children are not cascaded.
func (s *Service) Delete(id int64) error {
	if err := s.store.DeleteTodo(id); err != nil {
		return err
	}
	if s.indexer != nil {
		if err := s.indexer.Remove(id); err != nil {
			s.logger.Warn("removing todo from index failed", "todo_id", id, "error", err)
		}
	}
	return nil
}

// List returns todos matching the filter in insertion order.
func (s *Service) List(f storage.Filter) ([]storage.Todo, error) {
	return s.store.ListTodos(f)
}

// Tree returns the full nested forest.
func (s *Service) Tree() ([]*TreeNode, error) {
	flat, err := s.store.ListTodos(storage.Filter{})
	if err != nil {
		return nil, err
	}
	return BuildTree(flat), nil
}

// SaveGenerated persists a generated forest depth-first in a single
// transaction: each node is written before its children so every child row
// references an already-assigned parent id, and a failure anywhere rolls the
// whole forest back. The created rows are indexed once, after commit.
func (s *Service) SaveGenerated(ctx context.Context, forest []genai.GeneratedNode) ([]storage.Todo, error) {
	var created []storage.Todo

	err := s.store.InTransaction(func(tx *storage.Tx) error {
		var walk func(node genai.GeneratedNode, parentID *int64) error
		walk = func(node genai.GeneratedNode, parentID *int64) error {
			deadline, err := storage.ParseDeadline(node.Deadline)
			if err != nil {
				return fmt.Errorf("node %q: %w", node.Title, err)
			}
			todo, err := tx.CreateTodo(storage.Todo{
				ParentID: parentID,
				Title:    node.Title,
				Reason:   node.Reason,
				Priority: node.Priority,
				Status:   node.Status,
				Deadline: deadline,
			})
			if err != nil {
				return err
			}
			created = append(created, todo)
			for _, child := range node.Subitems {
				if err := walk(child, &todo.ID); err != nil {
					return err
				}
			}
			return nil
		}

		for _, node := range forest {
			if err := walk(node, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.indexer != nil && len(created) > 0 {
		if err := s.indexer.IndexMany(ctx, created); err != nil {
			s.logger.Warn("indexing generated todos failed", "count", len(created), "error", err)
		}
	}
	return created, nil
}

func (s *Service) reindex(ctx context.Context, t storage.Todo) {
	if s.indexer == nil {
		return
	}
	if err := s.indexer.Index(ctx, t); err != nil {
		s.logger.Warn("indexing todo failed", "todo_id", t.ID, "error", err)
	}
}
