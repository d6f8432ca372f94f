// Package textnorm repairs OCR output before field extraction. Repairs are
// conservative: letter-for-digit substitutions apply only inside substrings
// that already look like tax IDs, access keys or monetary values, and a
// canonical reformat happens only when the repaired digit count matches the
// expected length exactly.
package textnorm

import (
	"regexp"
	"strings"
)

// digitConfusions maps the common letter-for-digit OCR mistakes.
var digitConfusions = strings.NewReplacer(
	"O", "0",
	"o", "0",
	"I", "1",
	"l", "1",
	"S", "5",
	"B", "8",
	"Z", "2",
	"G", "6",
)

// Character class of digits plus their look-alikes.
const dl = `[0-9OoIlSBZG]`

var (
	horizontalWS = regexp.MustCompile(`[ \t]+`)
	hyphenBreak  = regexp.MustCompile(`(\p{L})-[ \t]*\n[ \t]*(\p{L})`)

	// Access key first: it contains CNPJ-shaped runs and must win overlaps.
	keyShaped      = regexp.MustCompile(`\b(?:` + dl + `{4}[ .]?){10}` + dl + `{4}\b`)
	cnpjShaped     = regexp.MustCompile(`\b` + dl + `{2}\.?` + dl + `{3}\.?` + dl + `{3}/?` + dl + `{4}-?` + dl + `{2}\b`)
	cpfShaped      = regexp.MustCompile(`\b` + dl + `{3}\.?` + dl + `{3}\.?` + dl + `{3}-?` + dl + `{2}\b`)
	monetaryShaped = regexp.MustCompile(`R\$\s*` + dl + `[0-9OoIlSBZG.,]*`)
)

const (
	cnpjDigits = 14
	cpfDigits  = 11
	keyDigits  = 44
)

// Normalize applies whitespace cleanup, hyphenation repair and scoped digit
// repair, in that order.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	text = collapseWhitespace(text)
	text = hyphenBreak.ReplaceAllString(text, "$1$2")
	text = keyShaped.ReplaceAllStringFunc(text, repairKey)
	text = cnpjShaped.ReplaceAllStringFunc(text, repairCNPJ)
	text = cpfShaped.ReplaceAllStringFunc(text, repairCPF)
	text = monetaryShaped.ReplaceAllStringFunc(text, repairMonetary)
	return text
}

// collapseWhitespace squeezes runs of spaces and tabs and trims each line,
// preserving line structure for downstream context-keyword patterns.
func collapseWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(horizontalWS.ReplaceAllString(line, " "))
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// repairDigits resolves look-alike letters and returns only the digits.
func repairDigits(s string) string {
	repaired := digitConfusions.Replace(s)
	var sb strings.Builder
	sb.Grow(len(repaired))
	for _, r := range repaired {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func repairCNPJ(match string) string {
	digits := repairDigits(match)
	if len(digits) != cnpjDigits {
		return match
	}
	return digits[0:2] + "." + digits[2:5] + "." + digits[5:8] + "/" + digits[8:12] + "-" + digits[12:14]
}

func repairCPF(match string) string {
	digits := repairDigits(match)
	if len(digits) != cpfDigits {
		return match
	}
	return digits[0:3] + "." + digits[3:6] + "." + digits[6:9] + "-" + digits[9:11]
}

// repairKey reformats a 44-digit access key into space-separated groups of
// four.
func repairKey(match string) string {
	digits := repairDigits(match)
	if len(digits) != keyDigits {
		return match
	}
	groups := make([]string, 0, keyDigits/4)
	for i := 0; i < keyDigits; i += 4 {
		groups = append(groups, digits[i:i+4])
	}
	return strings.Join(groups, " ")
}

// monetaryCanonical captures the integer and two-digit decimal parts of a
// repaired amount, leaving any trailing punctuation outside the capture.
var monetaryCanonical = regexp.MustCompile(`^R\$\s*([\d.]*\d)[,.](\d{2})(.*)$`)

// repairMonetary fixes look-alike letters in a monetary value and, when the
// amount carries a two-digit decimal part, reformats it to the canonical
// R$ X.XXX,XX with regrouped thousands. Amounts without cents keep their
// original punctuation; there is no fixed length to validate against.
func repairMonetary(match string) string {
	repaired := digitConfusions.Replace(match)
	m := monetaryCanonical.FindStringSubmatch(repaired)
	if m == nil {
		return repaired
	}
	whole := strings.ReplaceAll(m[1], ".", "")
	return "R$ " + groupThousands(whole) + "," + m[2] + m[3]
}

// groupThousands inserts dot separators every three digits from the right.
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
