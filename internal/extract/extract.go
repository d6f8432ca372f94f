package extract

import (
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// monetary matches Brazilian-formatted amounts: optional thousands groups
// separated by dot or space, two decimal digits after comma or dot.
const monetary = `(\d{1,3}(?:[.\s]?\d{3})*[,.]\d{2})`

var (
	cnpjPattern  = regexp.MustCompile(`\d{2}\.?\d{3}\.?\d{3}/?\.?\d{4}-?\d{2}`)
	cpfPattern   = regexp.MustCompile(`\d{3}\.?\d{3}\.?\d{3}-?\d{2}`)
	chavePattern = regexp.MustCompile(`((?:\d{4}\s*){10}\d{4})`)
	datePattern  = regexp.MustCompile(`\d{2}[/\-.]\d{2}[/\-.]\d{4}`)

	numeroPattern = regexp.MustCompile(`(?i)(?:NF-?e?\s*:?\s*N[ºo°.]?\s*:?\s*|N[ºo°.]\s*:?\s*|NUMERO\s*:?\s*)(\d{1,9})`)
	seriePattern  = regexp.MustCompile(`(?i)SERIE[:\s]*(\d{1,3})`)
	iePattern     = regexp.MustCompile(`(?i)(?:INSCRICAO\s*ESTADUAL|I\.?E\.?)[:\s]*(\d[\d.\-/]*\d)`)

	emissaoPattern = regexp.MustCompile(`(?i)(?:DATA\s*(?:DE\s*)?EMISSAO|EMISSAO)[:\s]*(\d{2}[/\-.]\d{2}[/\-.]\d{4})`)
	saidaPattern   = regexp.MustCompile(`(?i)(?:DATA\s*(?:DE\s*)?SAIDA|SAIDA)[:\s]*(\d{2}[/\-.]\d{2}[/\-.]\d{4})`)

	emitentePattern     = regexp.MustCompile(`(?i)(?:RAZAO\s*SOCIAL|NOME\s*/?\s*RAZAO\s*SOCIAL)[:\s]*([A-Z][A-Z0-9\s.\-&]+?)(?:\n|CNPJ|CPF|INSCRI)`)
	destinatarioPattern = regexp.MustCompile(`(?i)(?:DESTINAT[AÁ]RIO|DEST\.?(?:/REM\.?)?)[:\s]*(?:NOME[:\s]*)?([A-Z][A-Z0-9\s.\-&]+?)(?:\n|CNPJ|CPF|ENDERE)`)
	enderecoPattern     = regexp.MustCompile(`(?i)ENDERECO[:\s]*([A-Z0-9][^\n]*)`)

	trailingJunk = regexp.MustCompile(`[\s.\-]+$`)
	dateSep      = regexp.MustCompile(`[\-.]`)

	// itemPattern matches a DANFE product row: code, description, unit,
	// quantity, unit value, total value.
	itemPattern = regexp.MustCompile(`(?m)^(\d{1,6})\s+(\S.*?\S)\s+([A-Z]{2,4})\s+(\d+(?:[,.]\d+)?)\s+` + monetary + `\s+` + monetary + `\s*$`)
)

// valuePatterns maps monetary fields to their context-keyword patterns.
// Keyed assignment keeps the table declarative; the same amount pattern
// closes every entry.
var valuePatterns = []struct {
	assign  func(*Document, float64)
	pattern *regexp.Regexp
}{
	{func(d *Document, v float64) { d.ValorTotal = v },
		regexp.MustCompile(`(?i)(?:VALOR\s*TOTAL\s*(?:DA\s*)?(?:NF|NOTA)?|V(?:\.|ALOR)?\s*TOTAL\s*(?:DA\s*)?NF)[:\s]*R?\$?\s*` + monetary)},
	{func(d *Document, v float64) { d.ValorProdutos = v },
		regexp.MustCompile(`(?i)(?:VALOR\s*(?:TOTAL\s*)?(?:DOS\s*)?PRODUTOS|V(?:\.|ALOR)?\s*PROD)[:\s]*R?\$?\s*` + monetary)},
	{func(d *Document, v float64) { d.ValorFrete = v },
		regexp.MustCompile(`(?i)(?:VALOR\s*(?:DO\s*)?FRETE|V(?:\.|ALOR)?\s*FRETE)[:\s]*R?\$?\s*` + monetary)},
	{func(d *Document, v float64) { d.ValorSeguro = v },
		regexp.MustCompile(`(?i)(?:VALOR\s*(?:DO\s*)?SEGURO|V(?:\.|ALOR)?\s*SEGURO)[:\s]*R?\$?\s*` + monetary)},
	{func(d *Document, v float64) { d.ValorDesconto = v },
		regexp.MustCompile(`(?i)DESCONTO[:\s]*R?\$?\s*` + monetary)},
	{func(d *Document, v float64) { d.ValorIPI = v },
		regexp.MustCompile(`(?i)(?:VALOR\s*(?:DO\s*)?IPI|V(?:\.|ALOR)?\s*IPI)[:\s]*R?\$?\s*` + monetary)},
	{func(d *Document, v float64) { d.ValorICMS = v },
		regexp.MustCompile(`(?i)(?:(?:VALOR\s*(?:DO\s*)?)?ICMS|V(?:\.|ALOR)?\s*ICMS)[:\s]*R?\$?\s*` + monetary)},
}

// accentFold strips combining marks so label patterns match both accented
// and OCR-mangled unaccented spellings.
var accentFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Config toggles the validation steps.
type Config struct {
	ValidateCNPJ bool
	ValidateCPF  bool
}

func DefaultConfig() Config {
	return Config{ValidateCNPJ: true, ValidateCPF: true}
}

// Extractor pulls structured invoice fields out of normalized text.
type Extractor struct {
	cfg Config
}

func New(cfg Config) *Extractor {
	return &Extractor{cfg: cfg}
}

// Extract populates a Document from the full OCR text. Missing fields stay
// at their zero values.
func (e *Extractor) Extract(text string) *Document {
	doc := &Document{CamposTotal: ChecklistSize}
	if strings.TrimSpace(text) == "" {
		return doc
	}
	folded := foldAccents(text)

	doc.ChaveAcesso = e.extractChaveAcesso(folded)
	doc.NumeroNF = firstGroup(numeroPattern, folded)
	doc.Serie = firstGroup(seriePattern, folded)
	doc.DataEmissao = e.extractDate(folded, emissaoPattern, true)
	doc.DataSaida = e.extractDate(folded, saidaPattern, false)

	cnpjs := e.extractCNPJs(folded)
	if len(cnpjs) >= 1 {
		doc.CNPJEmitente = cnpjs[0]
	}
	if len(cnpjs) >= 2 {
		doc.CNPJDestinatario = cnpjs[1]
	}
	if doc.CNPJDestinatario == "" {
		doc.CPFDestinatario = e.extractCPF(folded, cnpjs)
	}

	for _, vp := range valuePatterns {
		if m := vp.pattern.FindStringSubmatch(folded); m != nil {
			vp.assign(doc, ParseMonetary(m[1]))
		}
	}

	doc.RazaoSocialEmitente = cleanName(firstGroup(emitentePattern, folded))
	doc.NomeDestinatario = cleanName(firstGroup(destinatarioPattern, folded))
	doc.InscricaoEstadualEmitente = firstGroup(iePattern, folded)

	enderecos := enderecoPattern.FindAllStringSubmatch(folded, 2)
	if len(enderecos) >= 1 {
		doc.EnderecoEmitente = cleanName(enderecos[0][1])
	}
	if len(enderecos) >= 2 {
		doc.EnderecoDestinatario = cleanName(enderecos[1][1])
	}

	doc.Itens = extractItems(folded)

	doc.CamposExtraidos = doc.ExtractedFieldCount()
	slog.Debug("fields extracted",
		"extracted", doc.CamposExtraidos,
		"total", doc.CamposTotal,
		"items", len(doc.Itens))
	return doc
}

// extractChaveAcesso returns the 44-digit access key with whitespace
// stripped, or empty when no run of exactly 44 digits is present.
func (e *Extractor) extractChaveAcesso(text string) string {
	for _, m := range chavePattern.FindAllStringSubmatch(text, -1) {
		chave := strings.Join(strings.Fields(m[1]), "")
		if len(chave) == 44 {
			return chave
		}
	}
	return ""
}

// extractDate looks for a context-labelled date; fallback picks the first
// date anywhere in the text.
func (e *Extractor) extractDate(text string, labelled *regexp.Regexp, fallback bool) string {
	if m := labelled.FindStringSubmatch(text); m != nil {
		return NormalizeDate(m[1])
	}
	if fallback {
		if m := datePattern.FindString(text); m != "" {
			return NormalizeDate(m)
		}
	}
	return ""
}

// extractCNPJs returns the distinct valid CNPJs in reading order, formatted.
func (e *Extractor) extractCNPJs(text string) []string {
	var cnpjs []string
	for _, m := range cnpjPattern.FindAllString(text, -1) {
		digits := digitsOnly(m)
		if len(digits) != 14 {
			continue
		}
		if e.cfg.ValidateCNPJ && !ValidCNPJ(digits) {
			continue
		}
		formatted := FormatCNPJ(digits)
		if !containsString(cnpjs, formatted) {
			cnpjs = append(cnpjs, formatted)
		}
	}
	return cnpjs
}

// extractCPF returns the first valid CPF that is not a fragment of an
// already matched CNPJ.
func (e *Extractor) extractCPF(text string, cnpjs []string) string {
	cnpjDigits := make([]string, len(cnpjs))
	for i, c := range cnpjs {
		cnpjDigits[i] = digitsOnly(c)
	}
	for _, m := range cpfPattern.FindAllString(text, -1) {
		digits := digitsOnly(m)
		if len(digits) != 11 {
			continue
		}
		if e.cfg.ValidateCPF && !ValidCPF(digits) {
			continue
		}
		fragment := false
		for _, c := range cnpjDigits {
			if strings.Contains(c, digits) {
				fragment = true
				break
			}
		}
		if !fragment {
			return FormatCPF(digits)
		}
	}
	return ""
}

func extractItems(text string) []Item {
	var items []Item
	for _, m := range itemPattern.FindAllStringSubmatch(text, -1) {
		qty, err := strconv.ParseFloat(strings.Replace(m[4], ",", ".", 1), 64)
		if err != nil {
			continue
		}
		items = append(items, Item{
			Codigo:        m[1],
			Descricao:     strings.TrimSpace(m[2]),
			Unidade:       m[3],
			Quantidade:    qty,
			ValorUnitario: ParseMonetary(m[5]),
			ValorTotal:    ParseMonetary(m[6]),
		})
	}
	return items
}

// ParseMonetary converts a Brazilian-formatted amount (thousands dot,
// decimal comma) to a float. Unparseable input yields 0.
func ParseMonetary(s string) float64 {
	s = strings.TrimPrefix(strings.TrimSpace(s), "R$")
	s = strings.Join(strings.Fields(s), "")
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// FormatMonetary renders a value in the canonical Brazilian shape
// R$ X.XXX,XX: dot-grouped thousands, comma decimals, always two cents
// digits. The inverse of ParseMonetary.
func FormatMonetary(v float64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	cents := int64(math.Round(v * 100))
	whole := strconv.FormatInt(cents/100, 10)
	return sign + "R$ " + groupThousands(whole) + "," + fmt.Sprintf("%02d", cents%100)
}

func groupThousands(digits string) string {
	n := len(digits)
	if n <= 3 {
		return digits
	}
	var sb strings.Builder
	head := n % 3
	if head > 0 {
		sb.WriteString(digits[:head])
	}
	for i := head; i < n; i += 3 {
		if sb.Len() > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(digits[i : i+3])
	}
	return sb.String()
}

// NormalizeDate unifies date separators to slashes: DD/MM/AAAA.
func NormalizeDate(s string) string {
	return dateSep.ReplaceAllString(s, "/")
}

func foldAccents(s string) string {
	out, _, err := transform.String(accentFold, s)
	if err != nil {
		return s
	}
	return out
}

func firstGroup(re *regexp.Regexp, text string) string {
	if m := re.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func cleanName(s string) string {
	return trailingJunk.ReplaceAllString(strings.TrimSpace(s), "")
}

func containsString(ss []string, want string) bool {
	for _, s := range ss {
		if s == want {
			return true
		}
	}
	return false
}
