package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"manualqa/internal"
	"manualqa/services"
)

var usageOutput string

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show query and storage usage",
	Args:  cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return validateOutputFormat(usageOutput)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := requireSignedIn(cmd.Context())
		if err != nil {
			return err
		}
		usage, err := a.Usage.Get(cmd.Context())
		if err != nil {
			return err
		}
		return writeUsage(cmd.OutOrStdout(), usage, usageOutput)
	},
}

func init() {
	usageCmd.Flags().StringVarP(&usageOutput, "output", "o", "text", "Output format: text, json or yaml")
}

func validateOutputFormat(format string) error {
	switch format {
	case "text", "json", "yaml":
		return nil
	}
	return internal.NewValidationErrorWithValue("output", "unsupported output format", format).
		WithSuggestion("Use one of: text, json, yaml")
}

func writeUsage(w io.Writer, u *services.Usage, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(u)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(u); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	default:
		printUsage(w, u)
		return nil
	}
}
