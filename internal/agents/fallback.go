package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/tasknest/tasknest/internal/genai"
)

// emptyPlanText is the sentinel output when generation yields no nodes.
const emptyPlanText = "No tasks generated."

// fallbackResult builds the deterministic local substitute: generate a todo
// plan for the same input and render it as an indented numbered list. A
// failing generator degrades to the empty-plan sentinel so the fallback path
// itself never errors.
func (r *Router) fallbackResult(ctx context.Context, userInput string) Result {
	var nodes []genai.GeneratedNode
	if r.generator != nil {
		var err error
		nodes, err = r.generator.Generate(ctx, userInput)
		if err != nil {
			r.logger.Warn("fallback generation failed", "error", err)
			nodes = nil
		}
	}
	return Result{
		Provider:     "fallback",
		Output:       RenderPlan(nodes),
		Raw:          nodes,
		UsedFallback: true,
	}
}

// RenderPlan formats a generated forest as a numbered-list text summary.
// Top-level entries carry their reason; immediate children are indented;
// grandchildren are not rendered.
func RenderPlan(nodes []genai.GeneratedNode) string {
	if len(nodes) == 0 {
		return emptyPlanText
	}
	var lines []string
	for i, node := range nodes {
		reason := "No reason provided."
		if node.Reason != nil && *node.Reason != "" {
			reason = *node.Reason
		}
		lines = append(lines, fmt.Sprintf("%d. %s — %s", i+1, node.Title, reason))
		for j, child := range node.Subitems {
			lines = append(lines, fmt.Sprintf("  %d.%d %s", i+1, j+1, child.Title))
		}
	}
	return strings.Join(lines, "\n")
}
