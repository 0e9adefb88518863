package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		shown := *cfg
		if shown.Anthropic.Key != "" {
			shown.Anthropic.Key = "***"
		}

		buf, err := yaml.Marshal(shown)
		if err != nil {
			return err
		}
		fmt.Print(string(buf))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
