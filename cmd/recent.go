package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	recentLimit  int
	recentCursor int64
)

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Print the latest-state feed",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		var cursor *int64
		if recentCursor > 0 {
			cursor = &recentCursor
		}

		items, err := st.ListRecent(cmd.Context(), recentLimit, cursor)
		if err != nil {
			return err
		}

		if len(items) == 0 {
			fmt.Println("no items")
			return nil
		}
		for _, it := range items {
			typ, title := "-", "-"
			if it.Type != nil {
				typ = string(*it.Type)
			}
			if it.Title != nil {
				title = *it.Title
			}
			fmt.Printf("%-6d %-12s %-8s %-30s %s\n", it.Seq, it.Status, typ, title, it.RawTextPreview)
		}
		return nil
	},
}

func init() {
	recentCmd.Flags().IntVar(&recentLimit, "limit", 20, "page size")
	recentCmd.Flags().Int64Var(&recentCursor, "cursor", 0, "return items with sequence below this")
	rootCmd.AddCommand(recentCmd)
}
