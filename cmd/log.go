package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var logCmd = &cobra.Command{
	Use:   "log <capture-id>",
	Short: "Print the full decision history for one capture",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		entries, err := st.ListLog(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("no entries")
			return nil
		}
		for _, e := range entries {
			detail := ""
			if e.FiledTitle != nil {
				detail = *e.FiledTitle
			} else if e.Clarification != nil {
				detail = *e.Clarification
			}
			fmt.Printf("%-6d %-14s %-12s %.2f  %s\n", e.Seq, e.Action, e.Status, e.Confidence, detail)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logCmd)
}
