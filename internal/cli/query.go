package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vault-ai/internal/service"
)

var (
	queryTopK int
	queryJSON bool
)

var queryCmd = &cobra.Command{
	Use:   "query [vault] [text]",
	Short: "Search a vault",
	Long: `Returns the chunks most similar to the query text, best first.
Scores are 1 minus the index distance, rounded to four decimals.`,
	Args: cobra.ExactArgs(2),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of results (0 uses SEARCH_TOP_K)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	svc, err := services(cmd)
	if err != nil {
		return err
	}

	resp, err := svc.Query(commandContext(cmd), service.QueryRequest{
		Vault: args[0],
		Query: args[1],
		TopK:  queryTopK,
	})
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if queryJSON {
		return printJSON(cmd, resp)
	}

	if resp.Status == service.StatusNoMatches {
		if resp.Degraded {
			cmd.Println("No results found (vector index unavailable).")
		} else {
			cmd.Println("No results found.")
		}
		return nil
	}

	cmd.Println("Results:")
	cmd.Println()
	for i, r := range resp.Results {
		cmd.Printf("  [%d] %s p.%d (%.4f)\n", i+1, r.Metadata.Source, r.Metadata.Page, r.Score)
		cmd.Printf("      %s\n", snippet(r.Content, 160))
		cmd.Println()
	}
	return nil
}

// snippet shortens s to at most n runes on one line.
func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
