package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tasknest/tasknest/internal/config"
)

// todoView mirrors the server's todo JSON shape for display.
type todoView struct {
	ID       int64   `json:"id"`
	ParentID *int64  `json:"parent_id"`
	Title    string  `json:"title"`
	Reason   *string `json:"reason"`
	Priority string  `json:"priority"`
	Status   string  `json:"status"`
	Deadline *string `json:"deadline"`
}

type treeView struct {
	ID       int64      `json:"id"`
	Title    string     `json:"title"`
	Reason   *string    `json:"reason"`
	Priority string     `json:"priority"`
	Status   string     `json:"status"`
	Deadline *string    `json:"deadline"`
	Children []treeView `json:"children"`
}

func printTodoLine(t todoView) {
	line := fmt.Sprintf("%s %s %s (%s)",
		colorize(colorCyan, strconv.FormatInt(t.ID, 10)),
		statusGlyph(t.Status),
		t.Title,
		priorityLabel(t.Priority),
	)
	if t.Deadline != nil {
		line += fmt.Sprintf("  due %s", *t.Deadline)
	}
	fmt.Println(line)
}

// --- add ---

var addCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a todo",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		title := strings.Join(args, " ")
		reason, _ := cmd.Flags().GetString("reason")
		priority, _ := cmd.Flags().GetString("priority")
		deadline, _ := cmd.Flags().GetString("deadline")
		parent, _ := cmd.Flags().GetInt64("parent")

		req := map[string]any{"title": title}
		if reason != "" {
			req["reason"] = reason
		}
		if priority != "" {
			req["priority"] = priority
		}
		if deadline != "" {
			req["deadline"] = deadline
		}
		if parent > 0 {
			req["parent_id"] = parent
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/todos", req)
		if err != nil {
			return err
		}

		var created todoView
		if err := decodeJSON(resp, &created); err != nil {
			return err
		}

		printSuccess("Created todo %d: %s", created.ID, created.Title)
		return nil
	},
}

func init() {
	addCmd.Flags().String("reason", "", "why this task matters")
	addCmd.Flags().String("priority", "", "low, medium or high")
	addCmd.Flags().String("deadline", "", "ISO-8601 deadline")
	addCmd.Flags().Int64("parent", 0, "parent todo id (creates a subtask)")
}

// --- list ---

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List todos",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		priority, _ := cmd.Flags().GetString("priority")

		q := url.Values{}
		if status != "" {
			q.Set("status", status)
		}
		if priority != "" {
			q.Set("priority", priority)
		}
		path := "/todos"
		if encoded := q.Encode(); encoded != "" {
			path += "?" + encoded
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var todos []todoView
		if err := decodeJSON(resp, &todos); err != nil {
			return err
		}

		if len(todos) == 0 {
			fmt.Println("No todos found.")
			return nil
		}
		for _, t := range todos {
			printTodoLine(t)
		}
		return nil
	},
}

func init() {
	listCmd.Flags().String("status", "", "filter by status (pending, in-progress, done)")
	listCmd.Flags().String("priority", "", "filter by priority (low, medium, high)")
}

// --- tree ---

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Show the todo forest as a tree",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/todos/tree")
		if err != nil {
			return err
		}

		var roots []treeView
		if err := decodeJSON(resp, &roots); err != nil {
			return err
		}

		if len(roots) == 0 {
			fmt.Println("No todos found.")
			return nil
		}
		for _, root := range roots {
			printTree(root, 0)
		}
		return nil
	},
}

func printTree(node treeView, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Printf("%s%s %s %s (%s)\n",
		indent,
		colorize(colorCyan, strconv.FormatInt(node.ID, 10)),
		statusGlyph(node.Status),
		node.Title,
		priorityLabel(node.Priority),
	)
	for _, child := range node.Children {
		printTree(child, depth+1)
	}
}

// --- show ---

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single todo as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/todos/"+args[0])
		if err != nil {
			return err
		}

		var todo any
		if err := decodeJSON(resp, &todo); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(todo)
	},
}

// --- done ---

var doneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Mark a todo as done",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/todos/"+args[0]+"/complete", nil)
		if err != nil {
			return err
		}

		var todo todoView
		if err := decodeJSON(resp, &todo); err != nil {
			return err
		}

		printSuccess("Done: %s", todo.Title)
		return nil
	},
}

// --- rm ---

var rmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a todo (its subtasks become roots)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/todos/"+args[0])
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			return fmt.Errorf("server returned %d", resp.StatusCode)
		}

		printSuccess("Deleted todo %s", args[0])
		return nil
	},
}

// --- generate ---

var generateCmd = &cobra.Command{
	Use:   "generate <goal>",
	Short: "Generate a todo plan from a free-form goal using AI",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		goal := strings.Join(args, " ")
		save, _ := cmd.Flags().GetBool("save")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/ai/generate", map[string]any{
			"user_input": goal,
			"save":       save,
		})
		if err != nil {
			return err
		}

		var result struct {
			Todos        []treeView `json:"todos"`
			PersistedIDs []int64    `json:"persisted_ids"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Todos) == 0 {
			fmt.Println("No tasks generated.")
			return nil
		}
		for i, t := range result.Todos {
			fmt.Printf("%d. %s (%s)\n", i+1, t.Title, priorityLabel(t.Priority))
			for j, sub := range t.Children {
				fmt.Printf("  %d.%d %s\n", i+1, j+1, sub.Title)
			}
		}
		if save {
			printSuccess("Saved %d todos", len(result.PersistedIDs))
		}
		return nil
	},
}

func init() {
	generateCmd.Flags().Bool("save", false, "persist the generated plan")
}

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Semantic search over stored todos",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/memory/search", map[string]any{
			"query": query,
			"limit": limit,
		})
		if err != nil {
			return err
		}

		var result struct {
			Results []struct {
				ID     int64   `json:"id"`
				Title  string  `json:"title"`
				Reason *string `json:"reason"`
				Score  float32 `json:"score"`
			} `json:"results"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Results) == 0 {
			fmt.Println("No results found.")
			return nil
		}
		for _, r := range result.Results {
			fmt.Printf("%s %s [score: %.3f]\n",
				colorize(colorCyan, strconv.FormatInt(r.ID, 10)),
				r.Title,
				r.Score,
			)
			if r.Reason != nil {
				fmt.Printf("  %s\n", *r.Reason)
			}
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().Int("limit", 5, "maximum number of results")
}

// --- agent ---

var agentCmd = &cobra.Command{
	Use:   "agent <provider> <input>",
	Short: "Dispatch a request to an external agent backend",
	Long: `Dispatch a request to an external agent backend.

Providers: fetchai, janitorai, wordware, letta.
When the backend is unavailable and fallback is enabled, a locally
generated plan is returned instead.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		provider := args[0]
		input := strings.Join(args[1:], " ")
		model, _ := cmd.Flags().GetString("model")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{
			"provider":   provider,
			"user_input": input,
		}
		if model != "" {
			req["model"] = model
		}

		resp, err := client.post(cmd.Context(), "/agents/run", req)
		if err != nil {
			return err
		}

		var result struct {
			Provider     string `json:"provider"`
			Output       string `json:"output"`
			UsedFallback bool   `json:"used_fallback"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if result.UsedFallback {
			printWarning("provider %s unavailable, local fallback used", provider)
		}
		fmt.Println(result.Output)
		return nil
	},
}

func init() {
	agentCmd.Flags().String("model", "", "model override for the agent backend")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Revert a configuration value to its default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}

		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
