// Package extract turns normalized OCR text into a structured fiscal
// document record. Extraction is best effort: a missing field stays at its
// zero value and never fails the call.
package extract

// ChecklistSize is the number of core fields counted towards the extraction
// completeness ratio: identification, series, access key, issue date, issuer
// tax ID, issuer name, recipient ID (CNPJ or CPF), recipient name, and a
// positive total value.
const ChecklistSize = 9

// Item is one product line of the invoice.
type Item struct {
	Codigo        string  `json:"codigo"`
	Descricao     string  `json:"descricao"`
	Quantidade    float64 `json:"quantidade"`
	Unidade       string  `json:"unidade"`
	ValorUnitario float64 `json:"valor_unitario"`
	ValorTotal    float64 `json:"valor_total"`
}

// Document holds the structured fields of a Brazilian electronic invoice
// (DANFE layout). JSON keys follow the fiscal document vocabulary.
type Document struct {
	NumeroNF    string `json:"numero_nf"`
	Serie       string `json:"serie"`
	ChaveAcesso string `json:"chave_acesso"`
	DataEmissao string `json:"data_emissao"`
	DataSaida   string `json:"data_saida"`

	CNPJEmitente              string `json:"cnpj_emitente"`
	RazaoSocialEmitente       string `json:"razao_social_emitente"`
	InscricaoEstadualEmitente string `json:"inscricao_estadual_emitente"`
	EnderecoEmitente          string `json:"endereco_emitente"`

	CNPJDestinatario     string `json:"cnpj_destinatario"`
	CPFDestinatario      string `json:"cpf_destinatario"`
	NomeDestinatario     string `json:"nome_destinatario"`
	EnderecoDestinatario string `json:"endereco_destinatario"`

	ValorProdutos float64 `json:"valor_produtos"`
	ValorFrete    float64 `json:"valor_frete"`
	ValorSeguro   float64 `json:"valor_seguro"`
	ValorDesconto float64 `json:"valor_desconto"`
	ValorIPI      float64 `json:"valor_ipi"`
	ValorICMS     float64 `json:"valor_icms"`
	ValorTotal    float64 `json:"valor_total"`

	Itens []Item `json:"itens"`

	ConfidenceScore float64 `json:"confidence_score"`
	CamposExtraidos int     `json:"campos_extraidos"`
	CamposTotal     int     `json:"campos_total"`
}

// ExtractedFieldCount counts the non-empty checklist fields. Recipient CNPJ
// and CPF count once, and the total value counts only when positive.
func (d *Document) ExtractedFieldCount() int {
	count := 0
	checklist := []string{
		d.NumeroNF, d.Serie, d.ChaveAcesso, d.DataEmissao,
		d.CNPJEmitente, d.RazaoSocialEmitente,
		firstNonEmpty(d.CNPJDestinatario, d.CPFDestinatario),
		d.NomeDestinatario,
	}
	for _, f := range checklist {
		if f != "" {
			count++
		}
	}
	if d.ValorTotal > 0 {
		count++
	}
	return count
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
