package main

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/helmsman-ai/helmsman/internal/config"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <prompt>",
	Short: "Generate a response using the best available model",
	Long: `Generate a response using the best available model.

Examples:
  helmsman ask "what is a bloom filter"
  helmsman ask --local "summarize this design"
  helmsman ask --intent code_generation "write a binary search in Go"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt := strings.Join(args, " ")
		system, _ := cmd.Flags().GetString("system")
		intentTag, _ := cmd.Flags().GetString("intent")
		local, _ := cmd.Flags().GetBool("local")
		fast, _ := cmd.Flags().GetBool("fast")
		quality, _ := cmd.Flags().GetBool("quality")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{
			"prompt":        prompt,
			"require_local": local,
			"prefer_fast":   fast,
		}
		if system != "" {
			req["system_prompt"] = system
		}
		if intentTag != "" {
			req["intent"] = intentTag
		}
		if quality {
			req["prefer_quality"] = true
		}

		resp, err := client.post(cmd.Context(), "/v1/generate", req)
		if err != nil {
			return err
		}

		var result struct {
			TaskID string `json:"task_id"`
			Model  string `json:"model"`
			Output string `json:"output"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printStatus("Model", "%s", result.Model)
		fmt.Println(result.Output)
		return nil
	},
}

func init() {
	askCmd.Flags().String("system", "", "system prompt")
	askCmd.Flags().String("intent", "", "intent tag (skips classification)")
	askCmd.Flags().Bool("local", false, "restrict routing to local models")
	askCmd.Flags().Bool("fast", false, "prefer fast models")
	askCmd.Flags().Bool("quality", false, "prefer high-quality models")
}

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Ingest a document into the corpus",
	Long: `Ingest a document into the corpus.

Supported formats: .txt, .md, .html, .pdf

Examples:
  helmsman ingest ./notes.md
  helmsman ingest --title "Q3 report" --wait ./report.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file := args[0]
		title, _ := cmd.Flags().GetString("title")
		wait, _ := cmd.Flags().GetBool("wait")

		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}

		if title == "" {
			title = filepath.Base(file)
		}

		// Content is shipped inline so the server does not need access to
		// the client's filesystem.
		req := map[string]any{
			"title":    title,
			"filename": filepath.Base(file),
			"content":  base64.StdEncoding.EncodeToString(data),
			"wait":     wait,
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/documents", req)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if result["status"] == "ready" {
			printSuccess("Ingested doc %s", result["id"])
		} else {
			printSuccess("Queued doc %s", result["id"])
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().String("title", "", "title for the document")
	ingestCmd.Flags().Bool("wait", false, "wait for ingestion to complete")
}

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Semantic search over the document corpus",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/documents/search", map[string]any{
			"query": query,
			"limit": limit,
		})
		if err != nil {
			return err
		}

		var results []struct {
			DocumentID string  `json:"document_id"`
			Title      string  `json:"title"`
			Text       string  `json:"text"`
			Score      float32 `json:"score"`
			PageNumber int     `json:"page_number"`
		}
		if err := decodeJSON(resp, &results); err != nil {
			return err
		}

		if len(results) == 0 {
			fmt.Println("No results found.")
			return nil
		}

		for i, r := range results {
			fmt.Printf("\n%s [score: %.3f]\n", colorize(colorBold, fmt.Sprintf("Result %d: %s", i+1, r.Title)), r.Score)
			if r.PageNumber > 1 {
				fmt.Printf("  Page: %d\n", r.PageNumber)
			}
			text := r.Text
			if len(text) > 500 {
				text = text[:500] + "..."
			}
			fmt.Printf("  %s\n", text)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().Int("limit", 5, "maximum number of results")
}

// --- queue ---

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Manage the task queue",
}

var queueAddCmd = &cobra.Command{
	Use:   "add <prompt>",
	Short: "Enqueue a task without waiting for its result",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt := strings.Join(args, " ")
		priority, _ := cmd.Flags().GetInt("priority")
		cloud, _ := cmd.Flags().GetBool("cloud")
		modelID, _ := cmd.Flags().GetString("model")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{
			"prompt":   prompt,
			"priority": priority,
			"is_local": !cloud,
		}
		if modelID != "" {
			req["model_id"] = modelID
		}

		resp, err := client.post(cmd.Context(), "/v1/queue/tasks", req)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Queued task %s", result["id"])
		return nil
	},
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the current queue state",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/queue")
		if err != nil {
			return err
		}

		var snap struct {
			Local []queuedTask `json:"local"`
			Cloud []queuedTask `json:"cloud"`
		}
		if err := decodeJSON(resp, &snap); err != nil {
			return err
		}

		if len(snap.Local) == 0 && len(snap.Cloud) == 0 {
			fmt.Println("Queue is empty.")
			return nil
		}

		printLane("Local", snap.Local)
		printLane("Cloud", snap.Cloud)
		return nil
	},
}

type queuedTask struct {
	ID       string `json:"id"`
	Prompt   string `json:"prompt"`
	Status   string `json:"status"`
	Priority int    `json:"priority"`
	Error    string `json:"error,omitempty"`
}

func printLane(name string, tasks []queuedTask) {
	if len(tasks) == 0 {
		return
	}
	fmt.Printf("\n%s\n", colorize(colorBold, name+" lane"))
	for _, t := range tasks {
		prompt := t.Prompt
		if len(prompt) > 60 {
			prompt = prompt[:60] + "..."
		}
		line := fmt.Sprintf("%s  [%s, p%d]  %s", colorize(colorCyan, t.ID[:8]), t.Status, t.Priority, prompt)
		fmt.Println("  " + line)
		if t.Error != "" {
			fmt.Printf("    %s\n", colorize(colorRed, t.Error))
		}
	}
}

var queueClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove completed and failed tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/queue/clear", nil)
		if err != nil {
			return err
		}

		var snap struct {
			Local []queuedTask `json:"local"`
			Cloud []queuedTask `json:"cloud"`
		}
		if err := decodeJSON(resp, &snap); err != nil {
			return err
		}

		printSuccess("Cleared. %d local, %d cloud tasks remain", len(snap.Local), len(snap.Cloud))
		return nil
	},
}

func init() {
	queueAddCmd.Flags().Int("priority", 0, "task priority (higher runs first)")
	queueAddCmd.Flags().Bool("cloud", false, "place the task in the cloud lane")
	queueAddCmd.Flags().String("model", "", "pin the task to a specific model")
	queueCmd.AddCommand(queueAddCmd)
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueClearCmd)
}

// --- models ---

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage the model registry",
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered models",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/models")
		if err != nil {
			return err
		}

		var models []struct {
			ID           string   `json:"id"`
			Capabilities []string `json:"capabilities"`
			Provider     string   `json:"provider"`
			Enabled      bool     `json:"enabled"`
			Priority     int      `json:"priority"`
			SuccessRate  float64  `json:"success_rate"`
		}
		if err := decodeJSON(resp, &models); err != nil {
			return err
		}

		if len(models) == 0 {
			fmt.Println("No models registered.")
			return nil
		}

		for _, m := range models {
			state := colorize(colorGreen, "enabled")
			if !m.Enabled {
				state = colorize(colorYellow, "disabled")
			}
			fmt.Printf("%s  %s  %s  p%d  %.0f%%  [%s]\n",
				colorize(colorBold, m.ID),
				m.Provider,
				state,
				m.Priority,
				m.SuccessRate*100,
				strings.Join(m.Capabilities, ", "),
			)
		}
		return nil
	},
}

var modelsAddCmd = &cobra.Command{
	Use:   "add <id>",
	Short: "Register a model",
	Long: `Register a model.

Examples:
  helmsman models add phi3.5 --provider local --caps fast,reasoning
  helmsman models add anthropic/claude-opus-4 --provider cloud --caps reasoning,vision --priority 15`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		capsStr, _ := cmd.Flags().GetString("caps")
		provider, _ := cmd.Flags().GetString("provider")
		priority, _ := cmd.Flags().GetInt("priority")
		position, _ := cmd.Flags().GetInt("position")

		if capsStr == "" {
			return fmt.Errorf("--caps is required")
		}
		caps := strings.Split(capsStr, ",")
		for i := range caps {
			caps[i] = strings.TrimSpace(caps[i])
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/models", map[string]any{
			"id":           args[0],
			"capabilities": caps,
			"provider":     provider,
			"priority":     priority,
			"position":     position,
		})
		if err != nil {
			return err
		}

		var result any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Registered %s", args[0])
		return nil
	},
}

var modelsEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Enable a model for routing",
	Args:  cobra.ExactArgs(1),
	RunE:  setModelEnabled(true),
}

var modelsDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Exclude a model from routing",
	Args:  cobra.ExactArgs(1),
	RunE:  setModelEnabled(false),
}

func setModelEnabled(enabled bool) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.patch(cmd.Context(), "/v1/models/"+args[0], map[string]any{"enabled": enabled})
		if err != nil {
			return err
		}

		var result any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if enabled {
			printSuccess("Enabled %s", args[0])
		} else {
			printSuccess("Disabled %s", args[0])
		}
		return nil
	}
}

var modelsRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a model from the registry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/v1/models/"+args[0])
		if err != nil {
			return err
		}

		var result any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Removed %s", args[0])
		return nil
	},
}

func init() {
	modelsAddCmd.Flags().String("caps", "", "comma-separated capabilities (fast, reasoning, vision, embedding)")
	modelsAddCmd.Flags().String("provider", "local", "provider (local or cloud)")
	modelsAddCmd.Flags().Int("priority", 0, "routing priority")
	modelsAddCmd.Flags().Int("position", 0, "insertion position in the registry")
	modelsCmd.AddCommand(modelsListCmd)
	modelsCmd.AddCommand(modelsAddCmd)
	modelsCmd.AddCommand(modelsEnableCmd)
	modelsCmd.AddCommand(modelsDisableCmd)
	modelsCmd.AddCommand(modelsRemoveCmd)
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

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
