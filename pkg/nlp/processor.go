package nlp

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

type Classifier struct {
	categories []Category
}

func DefaultCategories() []Category {
	return []Category{
		{
			Intent: IntentTransfer,
			Keywords: []string{
				"转账", "发送", "付款", "支付", "转给", "给", "发给",
				"transfer", "send", "pay", "give",
			},
		},
		{
			Intent: IntentQueryBalance,
			Keywords: []string{
				"余额", "账户", "有多少", "查看余额", "我的余额",
				"balance", "account", "how much", "my balance",
			},
		},
		{
			Intent: IntentQueryTransaction,
			Keywords: []string{
				"交易记录", "历史记录", "转账记录", "交易", "记录",
				"transaction", "history", "record", "transactions",
			},
		},
		{
			Intent: IntentContactManagement,
			Keywords: []string{
				"联系人", "添加联系人", "删除联系人", "联系人列表",
				"contact", "add contact", "delete contact", "contact list",
			},
		},
		{
			Intent: IntentSettings,
			Keywords: []string{
				"设置", "配置", "修改设置", "偏好设置",
				"settings", "config", "preferences", "configure",
			},
		},
		{
			Intent: IntentHelp,
			Keywords: []string{
				"帮助", "怎么", "如何", "教程", "说明",
				"help", "how to", "tutorial", "guide", "instruction",
			},
		},
	}
}

// NewClassifier builds a classifier over the given table, falling back to
// DefaultCategories when none is supplied.
func NewClassifier(categories ...Category) IClassifier {
	if len(categories) == 0 {
		categories = DefaultCategories()
	}

	table := make([]Category, 0, len(categories))
	for _, c := range categories {
		keywords := make([]string, 0, len(c.Keywords))
		for _, k := range c.Keywords {
			if k = cleanText(k); k != "" {
				keywords = append(keywords, k)
			}
		}
		if len(keywords) == 0 {
			continue
		}
		table = append(table, Category{Intent: c.Intent, Keywords: keywords})
	}

	return &Classifier{categories: table}
}

func unknown() Classification {
	return Classification{
		Intent:          IntentUnknown,
		Confidence:      0,
		MatchedKeywords: []string{},
	}
}

func (c *Classifier) Classify(text string) Classification {
	cleaned := cleanText(text)
	if cleaned == "" {
		return unknown()
	}

	best := unknown()
	for _, category := range c.categories {
		var matched []string
		for _, keyword := range category.Keywords {
			if strings.Contains(cleaned, keyword) {
				matched = append(matched, keyword)
			}
		}
		if len(matched) == 0 {
			continue
		}

		score := float64(len(matched)) / float64(len(category.Keywords))
		if score >= best.Confidence {
			best = Classification{
				Intent:          category.Intent,
				Confidence:      score,
				MatchedKeywords: matched,
			}
		}
	}

	return best
}

func (c *Classifier) ClassifyAny(v any) Classification {
	text, ok := v.(string)
	if !ok {
		return unknown()
	}
	return c.Classify(text)
}

func (c *Classifier) Categories() []Category {
	out := make([]Category, len(c.categories))
	copy(out, c.categories)
	return out
}

func cleanText(text string) string {
	return strings.TrimSpace(strings.ToLower(norm.NFKC.String(text)))
}
