package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/docfiscal/nfscan/internal/pipeline"
)

var pdfCmd = &cobra.Command{
	Use:   "pdf [files...]",
	Short: "Scan invoice PDFs",
	Long: `Extract the embedded page images from PDF files and run each page
through the scanning pipeline. Multi-page documents are merged into a
single extraction result.

Examples:
  nfscan pdf danfe.pdf
  nfscan pdf lote.pdf --format text
  nfscan pdf danfe.pdf --output resultado.json`,
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

		showProgress, _ := cmd.Flags().GetBool("progress")
		var progress pipeline.ProgressFunc
		if showProgress {
			progress = func(page, total int) {
				fmt.Fprintf(cmd.ErrOrStderr(), "page %d/%d\n", page, total)
			}
		}

		opts := pipeline.Options{ConfidenceThreshold: minConf}
		p := pipeline.New(cfg)

		for _, path := range args {
			result, err := p.ProcessPDF(cmd.Context(), path, opts, progress)
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
	pdfCmd.Flags().StringP("format", "f", "json", "output format (json, text)")
	pdfCmd.Flags().StringP("output", "o", "", "write result to file instead of stdout")
	pdfCmd.Flags().Float64("min-confidence", 0, "drop detections below this confidence (0 uses the configured threshold)")
	pdfCmd.Flags().Bool("progress", false, "print per-page progress to stderr")

	bindOutputFlags(pdfCmd)
	rootCmd.AddCommand(pdfCmd)
}
