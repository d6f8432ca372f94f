package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/docfiscal/nfscan/internal/pipeline"
)

var imageCmd = &cobra.Command{
	Use:   "image [files...]",
	Short: "Scan invoice images",
	Long: `Scan one or more scanned invoice images and extract the fiscal fields.

Supported formats: JPEG, PNG, BMP, TIFF

Examples:
  nfscan image danfe.jpg
  nfscan image *.png --format json
  nfscan image danfe.jpg --min-confidence 0.6 --output resultado.json`,
	Args:         cobra.ArbitraryArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return errors.New("no input files provided")
		}

		cfg := GetConfig()
		if err := cfg.Validate(); err != nil {
			return err
		}

		minConf, _ := cmd.Flags().GetFloat64("min-confidence")
		if minConf < 0 || minConf > 1 {
			return fmt.Errorf("invalid confidence threshold: %.2f (must be between 0.0 and 1.0)", minConf)
		}
		if err := validateFormat(cfg.Output.Format); err != nil {
			return err
		}

		opts := pipeline.Options{ConfidenceThreshold: minConf}
		p := pipeline.New(cfg)

		for _, path := range args {
			result, err := p.ProcessImageFile(cmd.Context(), path, opts)
			if err != nil {
				return fmt.Errorf("failed to process %s: %w", path, err)
			}
			if len(args) > 1 && cfg.Output.File == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "== %s\n", path)
			}
			if err := writeResult(cmd, result, cfg.Output.Format, cfg.Output.File); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	imageCmd.Flags().StringP("format", "f", "json", "output format (json, text)")
	imageCmd.Flags().StringP("output", "o", "", "write result to file instead of stdout")
	imageCmd.Flags().Float64("min-confidence", 0, "drop detections below this confidence (0 uses the configured threshold)")

	bindOutputFlags(imageCmd)
	rootCmd.AddCommand(imageCmd)
}
