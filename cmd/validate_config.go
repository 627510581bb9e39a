package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/specdecode/eagleworker/eagle"
)

var validateConfigPath string

var validateConfigCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "Parse and validate a speculative config YAML file without running anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := eagle.LoadSpeculativeConfig(validateConfigPath)
		if err != nil {
			color.Red("invalid: %v", err)
			return err
		}
		color.Green("valid: %s algorithm=%s topk=%d steps=%d draft_tokens=%d page_size=%d backend=%s",
			validateConfigPath, cfg.Algorithm, cfg.EagleTopK, cfg.NumSteps, cfg.NumDraftTokens, cfg.PageSize, cfg.AttentionBackend)
		if !cfg.AttentionBackend.SupportsDraftExtendBackend() {
			fmt.Printf("note: backend %s has no dedicated prefill-capable extend path\n", cfg.AttentionBackend)
		}
		return nil
	},
}

func init() {
	validateConfigCmd.Flags().StringVar(&validateConfigPath, "config", "", "path to speculative config YAML (required)")
	_ = validateConfigCmd.MarkFlagRequired("config")
	rootCmd.AddCommand(validateConfigCmd)
}
