package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lumeo-dev/lumeo/internal/search"
)

func newSearchCmd() *cobra.Command {
	var (
		labels       []string
		nameContains string
		mimeContains string
		album        string
		limit        int
	)

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search indexed images",
		Long: `Search fuses three signals: case-insensitive keyword matches over OCR
text and captions, semantic similarity over embeddings, and confident
visual labels containing the query. An empty query lists all indexed
images, newest first.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closeApp, err := openApp()
			if err != nil {
				return err
			}
			defer closeApp()

			query := ""
			if len(args) == 1 {
				query = args[0]
			}

			opts := search.Options{Labels: labels}
			if nameContains != "" || mimeContains != "" || album != "" {
				opts.Filters = &search.MetadataFilters{
					NameContains:     nameContains,
					MimeTypeContains: mimeContains,
					AlbumContains:    album,
				}
			}

			results, err := app.ranker.Search(cmd.Context(), query, opts)
			if err != nil {
				return err
			}

			if len(results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No results")
				return nil
			}
			if limit > 0 && len(results) > limit {
				results = results[:limit]
			}

			out := cmd.OutOrStdout()
			for i, res := range results {
				name := res.Item.SourceRef
				if res.Item.Meta.DisplayName != nil {
					name = *res.Item.Meta.DisplayName
				}
				fmt.Fprintf(out, "%2d. %-40s score=%.3f %s\n", i+1, name, res.Score, signalSummary(res))
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&labels, "label", nil, "Require a visual label (repeatable)")
	cmd.Flags().StringVar(&nameContains, "name", "", "Filter by file name substring")
	cmd.Flags().StringVar(&mimeContains, "mime", "", "Filter by MIME type substring")
	cmd.Flags().StringVar(&album, "album", "", "Filter by album substring")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum results to print (0 = all)")
	return cmd
}

// signalSummary renders which signals matched, e.g. "[keyword semantic]".
func signalSummary(res *search.Result) string {
	if res.Signals == 0 {
		return ""
	}
	var parts []string
	if res.KeywordMatch {
		parts = append(parts, "keyword")
	}
	if res.SemanticPass {
		parts = append(parts, fmt.Sprintf("semantic=%.2f", res.SemanticScore))
	}
	if res.TagMatch {
		parts = append(parts, fmt.Sprintf("tag=%.2f", res.TagScore))
	}
	return "[" + strings.Join(parts, " ") + "]"
}
