package nlp

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	recipientPattern = regexp.MustCompile(
		`(?i)(?:转给|发给|给|向|\bto\s+)\s*` +
			`(?:([A-Za-z0-9]{32,44})(?:[^A-Za-z0-9]|$)` +
			`|([A-Za-z][A-Za-z0-9]+?|\p{Han}{2,20}?)(?:[转发付支的个元块]|[^\p{Han}A-Za-z]|$))`,
	)
	amountPattern        = regexp.MustCompile(`(\d+(?:\.\d+)?)`)
	contactPattern       = regexp.MustCompile(`(?:添加|删除|查找|搜索)\s*联系人\s*([A-Za-z0-9\p{Han}]{2,20})`)
	contactPatternLatin  = regexp.MustCompile(`(?i)\b(?:add|delete|remove|find|search)\s+contact\s+([A-Za-z0-9]{2,20})`)
	solanaAddressPattern = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)
)

// currencyTokens is scanned in order; the first token contained in the text wins.
var currencyTokens = []struct {
	token string
	code  string
}{
	{"sol", CurrencySOL},
	{"usdc", CurrencyUSDC},
	{"usdt", "USDT"},
}

func (c *Classifier) ExtractEntities(text string, intent Intent) Entities {
	var entities Entities

	original := prepare(text)
	if original == "" {
		return entities
	}

	switch intent {
	case IntentTransfer:
		remainder := original
		if loc := recipientPattern.FindStringSubmatchIndex(original); loc != nil {
			start, end := loc[2], loc[3]
			if start < 0 {
				start, end = loc[4], loc[5]
			}
			entities.Recipient = original[start:end]
			remainder = original[:start] + " " + original[end:]
		}

		if m := amountPattern.FindStringSubmatch(remainder); m != nil {
			if amount, err := strconv.ParseFloat(m[1], 64); err == nil {
				entities.Amount = amount
			}
		}

		entities.Currency = extractCurrency(strings.ToLower(remainder))

	case IntentQueryBalance:
		entities.Currency = extractCurrency(strings.ToLower(original))

	case IntentContactManagement:
		if m := contactPattern.FindStringSubmatch(original); m != nil {
			entities.ContactName = m[1]
		} else if m := contactPatternLatin.FindStringSubmatch(original); m != nil {
			entities.ContactName = m[1]
		}

		lowered := strings.ToLower(original)
		switch {
		case strings.Contains(lowered, "添加") || strings.Contains(lowered, "add"):
			entities.Action = ActionAdd
		case strings.Contains(lowered, "删除") || strings.Contains(lowered, "delete") || strings.Contains(lowered, "remove"):
			entities.Action = ActionDelete
		case strings.Contains(lowered, "查找") || strings.Contains(lowered, "搜索") ||
			strings.Contains(lowered, "find") || strings.Contains(lowered, "search"):
			entities.Action = ActionSearch
		}
	}

	return entities
}

func extractCurrency(lowered string) string {
	for _, c := range currencyTokens {
		if strings.Contains(lowered, c.token) {
			return c.code
		}
	}
	return ""
}

func isSolanaAddress(s string) bool {
	return solanaAddressPattern.MatchString(s)
}

// prepare folds full-width forms but keeps the caller's casing so recipients
// and contact names survive extraction unchanged.
func prepare(text string) string {
	return strings.TrimSpace(norm.NFKC.String(text))
}
