package capture

import (
	"regexp"
	"strings"
)

// Rule pulls one field out of OCR text through the first capture group of Pattern.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
}

// Apply returns the trimmed first group; a blank capture is no match.
func (r Rule) Apply(text string) (string, bool) {
	m := r.Pattern.FindStringSubmatch(text)
	if len(m) < 2 {
		return "", false
	}
	v := strings.TrimSpace(m[1])
	if v == "" {
		return "", false
	}
	return v, true
}

// Rules is an ordered cascade: the first rule that matches wins and the
// rest are never tried.
type Rules []Rule

// Match runs the cascade and reports which rule matched.
func (rs Rules) Match(text string) (value, rule string, ok bool) {
	for _, r := range rs {
		if v, ok := r.Apply(text); ok {
			return v, r.Name, true
		}
	}
	return "", "", false
}

func rule(name, pattern string) Rule {
	return Rule{Name: name, Pattern: regexp.MustCompile(pattern)}
}

const nameChars = `\p{L}[\p{L} '.\-]*`

var (
	// Labeled forms come before the bare digit run, which would otherwise
	// shadow them.
	CheckNumberRules = Rules{
		rule("label-numero", `N°\s*(\d{6,10})`),
		rule("label-cheque-fr", `Chèque\s*(\d{6,10})`),
		rule("label-cheque", `(?i)Cheque\s*(\d{6,10})`),
		rule("bare-digits", `\b(\d{6,10})\b`),
	}

	AmountRules = Rules{
		rule("currency-leading", `(?:EUR|€)\s*(\d+[.,]\d{2})`),
		rule("currency-trailing", `(\d+[.,]\d{2})\s*(?:EUR|€)`),
		rule("bare", `(\d+[.,]\d{2})`),
	}

	AmountInWordsRules = Rules{
		rule("words-before-currency", `([A-Za-zÀ-ÿ][A-Za-zÀ-ÿ \-]*?)\s*EUR`),
	}

	PayeeRules = Rules{
		rule("payez-a", `Payez\s*à\s*(`+nameChars+`)`),
		rule("beneficiaire", `Bénéficiaire\s*:\s*(`+nameChars+`)`),
		rule("pay-to-order", `(?i)Pay\s+to\s+the\s+order\s+of\s*:?\s*(`+nameChars+`)`),
		rule("before-currency", `(`+nameChars+`?)\s*EUR`),
	}

	BankCodeRules = Rules{
		rule("code-banque", `(?:Code\s*banque|Banque)\s*:?\s*(\d{3})`),
		rule("bank-code", `(?i)Bank(?:\s*code)?\s*:?\s*(\d{3})`),
	}

	BranchCodeRules = Rules{
		rule("code-guichet", `(?:Code\s*guichet|Guichet)\s*:?\s*(\d{3})`),
		rule("branch-code", `(?i)Branch(?:\s*code)?\s*:?\s*(\d{3})`),
	}

	AccountNumberRules = Rules{
		rule("numero-compte", `(?:N°\s*compte|Compte)\s*:?\s*(\d{16})`),
		rule("account-number", `(?i)Account(?:\s*(?:number|no\.?))?\s*:?\s*(\d{16})`),
	}

	RIBKeyRules = Rules{
		rule("cle-rib", `(?:Clé\s*RIB|Clé)\s*:?\s*(\d{2})`),
		rule("rib-key", `(?i)(?:RIB\s*key|Key)\s*:?\s*(\d{2})`),
	}
)
