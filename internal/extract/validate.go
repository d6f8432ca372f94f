package extract

import "strings"

// Check digit weight vectors for the two-stage mod-11 CNPJ validation.
var (
	cnpjWeights1 = []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	cnpjWeights2 = []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
)

// ValidCNPJ reports whether the 14 digits of a CNPJ pass both mod-11 check
// digits. Sequences of one repeated digit are rejected even when the
// checksum happens to hold.
func ValidCNPJ(cnpj string) bool {
	digits := digitsOnly(cnpj)
	if len(digits) != 14 || allIdentical(digits) {
		return false
	}
	d1 := mod11Digit(digits[:12], cnpjWeights1)
	d2 := mod11Digit(digits[:13], cnpjWeights2)
	return int(digits[12]-'0') == d1 && int(digits[13]-'0') == d2
}

// ValidCPF reports whether the 11 digits of a CPF pass both mod-11 check
// digits, with the same repeated-digit rejection as ValidCNPJ.
func ValidCPF(cpf string) bool {
	digits := digitsOnly(cpf)
	if len(digits) != 11 || allIdentical(digits) {
		return false
	}
	w1 := make([]int, 9)
	for i := range w1 {
		w1[i] = 10 - i
	}
	w2 := make([]int, 10)
	for i := range w2 {
		w2[i] = 11 - i
	}
	d1 := mod11Digit(digits[:9], w1)
	d2 := mod11Digit(digits[:10], w2)
	return int(digits[9]-'0') == d1 && int(digits[10]-'0') == d2
}

func mod11Digit(digits string, weights []int) int {
	sum := 0
	for i, w := range weights {
		sum += int(digits[i]-'0') * w
	}
	rest := sum % 11
	if rest < 2 {
		return 0
	}
	return 11 - rest
}

// FormatCNPJ renders 14 digits as XX.XXX.XXX/XXXX-XX. Other lengths pass
// through unchanged.
func FormatCNPJ(cnpj string) string {
	d := digitsOnly(cnpj)
	if len(d) != 14 {
		return cnpj
	}
	return d[0:2] + "." + d[2:5] + "." + d[5:8] + "/" + d[8:12] + "-" + d[12:14]
}

// FormatCPF renders 11 digits as XXX.XXX.XXX-XX. Other lengths pass through
// unchanged.
func FormatCPF(cpf string) string {
	d := digitsOnly(cpf)
	if len(d) != 11 {
		return cpf
	}
	return d[0:3] + "." + d[3:6] + "." + d[6:9] + "-" + d[9:11]
}

func digitsOnly(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func allIdentical(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return true
}
