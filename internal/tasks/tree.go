package tasks

import (
	"time"

	"github.com/tasknest/tasknest/internal/storage"
)

// TreeNode is one node of the assembled todo forest. Field values are copied
// from the flat row, never aliased to it.
type TreeNode struct {
	ID       int64       `json:"id"`
	Title    string      `json:"title"`
	Reason   *string     `json:"reason,omitempty"`
	Priority string      `json:"priority"`
	Status   string      `json:"status"`
	Deadline *time.Time  `json:"deadline,omitempty"`
	Children []*TreeNode `json:"children"`
}

// BuildTree reassembles the nested forest from flat rows. Children are
// appended in the order the rows are iterated (store insertion order). A node
// whose parent_id does not resolve to a row in the input (an orphan left by a
// non-cascading delete) is promoted to a root rather than dropped or rejected.
func BuildTree(flat []storage.Todo) []*TreeNode {
	nodes := make(map[int64]*TreeNode, len(flat))
	for _, t := range flat {
		nodes[t.ID] = &TreeNode{
			ID:       t.ID,
			Title:    t.Title,
			Reason:   t.Reason,
			Priority: t.Priority,
			Status:   t.Status,
			Deadline: t.Deadline,
			Children: []*TreeNode{},
		}
	}

	roots := []*TreeNode{}
	for _, t := range flat {
		node := nodes[t.ID]
		if t.ParentID != nil {
			if parent, ok := nodes[*t.ParentID]; ok {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}
	return roots
}
