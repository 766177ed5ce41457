package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/casheiro/synapstor-go/internal/output"
	"github.com/casheiro/synapstor-go/internal/search"
)

type searchOptions struct {
	commonOptions
	limit  int
	mode   string
	format string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search an indexed collection",
		Long: `Search an indexed collection with natural language.

Semantic mode embeds the query and ranks by vector similarity. Keyword
mode asks the sidecar index for exact matches. Hybrid fuses both with
reciprocal rank fusion.

Examples:
  synapstor search "retry with exponential backoff"
  synapstor search "connection pool" --mode hybrid --limit 5
  synapstor search "cache eviction" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, &opts)
		},
	}

	addConnectionFlags(cmd, &opts.commonOptions)
	addScopeFlags(cmd, &opts.commonOptions)
	f := cmd.Flags()
	f.IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (default from config)")
	f.StringVar(&opts.mode, "mode", "", "Retrieval mode: semantic, keyword or hybrid (default from config)")
	f.StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts *searchOptions) error {
	cfg, _, err := resolveConfig(cmd, &opts.commonOptions)
	if err != nil {
		return err
	}

	reg, err := buildRegistry(cfg, nil)
	if err != nil {
		return err
	}

	params := map[string]any{
		"query": query,
		"limit": opts.limit,
	}
	if opts.mode != "" {
		params["mode"] = opts.mode
	}
	// Restricting to one project only when asked keeps shared
	// collections searchable as a whole.
	if cmd.Flags().Changed("project") {
		params["project"] = cfg.Project.Name
	}

	res, err := reg.Call(ctx, "search", params)
	if err != nil {
		return err
	}
	hits, _ := res.([]search.Hit)

	out := output.New(cmd.OutOrStdout())
	if len(hits) == 0 {
		out.Status("", fmt.Sprintf("No results found for %q", query))
		return nil
	}

	switch opts.format {
	case "json":
		return printHitsJSON(cmd, hits)
	default:
		printHitsText(out, query, hits)
		return nil
	}
}

// printHitsText renders results in human-readable form.
func printHitsText(out *output.Writer, query string, hits []search.Hit) {
	out.Statusf("🔍", "Found %d results for %q:", len(hits), query)
	out.Newline()

	for i, hit := range hits {
		out.Statusf("", "%d. %s (score: %.3f)", i+1, hitLocation(hit), hit.Score)
		for _, line := range snippet(hit.Content, 3) {
			out.Status("", "   "+line)
		}
		out.Newline()
	}
}

// printHitsJSON renders results as a JSON array.
func printHitsJSON(cmd *cobra.Command, hits []search.Hit) error {
	type jsonHit struct {
		ID      string  `json:"id"`
		Path    string  `json:"path,omitempty"`
		Project string  `json:"project,omitempty"`
		Score   float64 `json:"score"`
		Content string  `json:"content"`
	}

	rows := make([]jsonHit, 0, len(hits))
	for _, hit := range hits {
		rows = append(rows, jsonHit{
			ID:      hit.ID,
			Path:    metadataString(hit.Metadata, "relative_path"),
			Project: metadataString(hit.Metadata, "project"),
			Score:   hit.Score,
			Content: hit.Content,
		})
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

// hitLocation names a hit by its source file when the metadata carries
// one. Keyword-only hits have no payload and fall back to the id.
func hitLocation(hit search.Hit) string {
	if path := metadataString(hit.Metadata, "relative_path"); path != "" {
		if project := metadataString(hit.Metadata, "project"); project != "" {
			return project + "/" + path
		}
		return path
	}
	return hit.ID
}

// metadataString reads a string metadata value, tolerating absence.
func metadataString(md map[string]any, key string) string {
	if md == nil {
		return ""
	}
	if v, ok := md[key].(string); ok {
		return v
	}
	return ""
}

// snippet returns the first n lines of content, without trailing blanks.
func snippet(content string, n int) []string {
	lines := strings.Split(content, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
