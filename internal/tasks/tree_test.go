package tasks

import (
	"testing"

	"github.com/tasknest/tasknest/internal/storage"
)

func idptr(v int64) *int64 { return &v }

func TestBuildTreeNesting(t *testing.T) {
	flat := []storage.Todo{
		{ID: 1, Title: "Plan trip"},
		{ID: 2, Title: "Book flight", ParentID: idptr(1)},
		{ID: 3, Title: "Compare airlines", ParentID: idptr(2)},
		{ID: 4, Title: "Renew passport"},
	}

	roots := BuildTree(flat)
	if len(roots) != 2 {
		t.Fatalf("len(roots) = %d, want 2", len(roots))
	}
	if roots[0].Title != "Plan trip" || roots[1].Title != "Renew passport" {
		t.Errorf("root order: %q, %q", roots[0].Title, roots[1].Title)
	}

	trip := roots[0]
	if len(trip.Children) != 1 || trip.Children[0].Title != "Book flight" {
		t.Fatalf("trip children = %+v", trip.Children)
	}
	flight := trip.Children[0]
	if len(flight.Children) != 1 || flight.Children[0].Title != "Compare airlines" {
		t.Errorf("flight children = %+v", flight.Children)
	}
}

// TestBuildTreeOrphanPromotion: a node pointing at a deleted parent surfaces
// as a root instead of disappearing.
func TestBuildTreeOrphanPromotion(t *testing.T) {
	flat := []storage.Todo{
		{ID: 2, Title: "Book flight", ParentID: idptr(1)}, // parent 1 deleted
		{ID: 3, Title: "Pack bags", ParentID: idptr(2)},
	}

	roots := BuildTree(flat)
	if len(roots) != 1 {
		t.Fatalf("len(roots) = %d, want 1", len(roots))
	}
	if roots[0].ID != 2 {
		t.Errorf("root id = %d, want orphan 2", roots[0].ID)
	}
	if len(roots[0].Children) != 1 || roots[0].Children[0].ID != 3 {
		t.Errorf("orphan kept its own children: %+v", roots[0].Children)
	}
}

func TestBuildTreeEmpty(t *testing.T) {
	roots := BuildTree(nil)
	if roots == nil {
		t.Fatal("BuildTree(nil) = nil, want empty slice")
	}
	if len(roots) != 0 {
		t.Errorf("len(roots) = %d, want 0", len(roots))
	}
}

// TestBuildTreeChildrenNeverNil: leaves serialize with "children": [] rather
// than null.
func TestBuildTreeChildrenNeverNil(t *testing.T) {
	roots := BuildTree([]storage.Todo{{ID: 1, Title: "leaf"}})
	if roots[0].Children == nil {
		t.Error("leaf Children is nil, want empty slice")
	}
}
