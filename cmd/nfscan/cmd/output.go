package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/docfiscal/nfscan/internal/extract"
	"github.com/docfiscal/nfscan/internal/pipeline"
)

func printYAML(cmd *cobra.Command, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

// bindOutputFlags maps the shared --format/--output flags into the
// output config keys. Only one subcommand runs per invocation, so the
// last binding in effect is the active command's.
func bindOutputFlags(cmd *cobra.Command) {
	_ = viper.BindPFlag("output.format", cmd.Flags().Lookup("format"))
	_ = viper.BindPFlag("output.file", cmd.Flags().Lookup("output"))
}

const (
	outputFormatJSON = "json"
	outputFormatText = "text"
)

func validateFormat(format string) error {
	switch format {
	case outputFormatJSON, outputFormatText:
		return nil
	default:
		return fmt.Errorf("invalid output format: %s (must be json or text)", format)
	}
}

// writeResult renders the scan result in the requested format, either to
// stdout or to the configured output file.
func writeResult(cmd *cobra.Command, result *pipeline.Result, format, outputFile string) error {
	var out io.Writer = cmd.OutOrStdout()
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	switch format {
	case outputFormatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	default:
		return writeTextResult(out, result)
	}
}

func writeTextResult(out io.Writer, result *pipeline.Result) error {
	doc := result.Document
	var b strings.Builder

	line := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%-28s %s\n", label+":", value)
		}
	}

	line("Numero NF", doc.NumeroNF)
	line("Serie", doc.Serie)
	line("Chave de acesso", doc.ChaveAcesso)
	line("Data de emissao", doc.DataEmissao)
	line("Data de saida", doc.DataSaida)
	line("CNPJ emitente", doc.CNPJEmitente)
	line("Razao social emitente", doc.RazaoSocialEmitente)
	line("CNPJ destinatario", doc.CNPJDestinatario)
	line("CPF destinatario", doc.CPFDestinatario)
	line("Nome destinatario", doc.NomeDestinatario)
	if doc.ValorTotal > 0 {
		fmt.Fprintf(&b, "%-28s %s\n", "Valor total:", extract.FormatMonetary(doc.ValorTotal))
	}
	for _, item := range doc.Itens {
		fmt.Fprintf(&b, "  item %s: %s x%.2f = %s\n",
			item.Codigo, item.Descricao, item.Quantidade, extract.FormatMonetary(item.ValorTotal))
	}
	fmt.Fprintf(&b, "%-28s %d/%d\n", "Campos extraidos:", doc.CamposExtraidos, doc.CamposTotal)
	fmt.Fprintf(&b, "%-28s %.2f\n", "Confianca:", doc.ConfidenceScore)

	_, err := io.WriteString(out, b.String())
	return err
}
