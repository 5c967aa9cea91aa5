package genai

import (
	"fmt"

	"github.com/tasknest/tasknest/internal/storage"
)

// GeneratedNode is one node of an LLM-produced todo hierarchy. It mirrors a
// stored todo but carries no id; ids are assigned only on persistence.
// Deadline stays a free-form string here; it is coerced (and validated)
// when the node is saved.
type GeneratedNode struct {
	Title    string          `json:"title"`
	Reason   *string         `json:"reason,omitempty"`
	Priority string          `json:"priority"`
	Status   string          `json:"status"`
	Deadline string          `json:"deadline,omitempty"`
	Subitems []GeneratedNode `json:"subitems"`
}

// normalize applies defaults and validates the node and its subtree.
// Any invalid node fails the whole generation call; there is no partial
// acceptance.
func (n *GeneratedNode) normalize() error {
	if n.Title == "" {
		return fmt.Errorf("node has empty title")
	}
	if n.Priority == "" {
		n.Priority = storage.PriorityMedium
	}
	if !storage.ValidPriority(n.Priority) {
		return fmt.Errorf("node %q has unknown priority %q", n.Title, n.Priority)
	}
	if n.Status == "" {
		n.Status = storage.StatusPending
	}
	if !storage.ValidStatus(n.Status) {
		return fmt.Errorf("node %q has unknown status %q", n.Title, n.Status)
	}
	if n.Reason != nil && *n.Reason == "" {
		n.Reason = nil
	}
	for i := range n.Subitems {
		if err := n.Subitems[i].normalize(); err != nil {
			return err
		}
	}
	return nil
}

// normalizeForest validates every node in the forest in place.
func normalizeForest(nodes []GeneratedNode) error {
	for i := range nodes {
		if err := nodes[i].normalize(); err != nil {
			return err
		}
	}
	return nil
}
