package nlp

type Intent string

const (
	IntentTransfer          Intent = "transfer"
	IntentQueryBalance      Intent = "query_balance"
	IntentQueryTransaction  Intent = "query_transaction"
	IntentContactManagement Intent = "contact_management"
	IntentSettings          Intent = "settings"
	IntentHelp              Intent = "help"
	IntentUnknown           Intent = "unknown"
)

const (
	ActionAdd    = "add"
	ActionDelete = "delete"
	ActionSearch = "search"
)

const (
	CurrencySOL  = "SOL"
	CurrencyUSDC = "USDC"
)

// Category is one row of the keyword table. Order matters: on an exact score
// tie the category declared later wins.
type Category struct {
	Intent   Intent   `json:"intent" yaml:"intent" validate:"required"`
	Keywords []string `json:"keywords" yaml:"keywords" validate:"required,min=1,dive,required"`
}

type Classification struct {
	Intent          Intent   `json:"intent"`
	Confidence      float64  `json:"confidence"`
	MatchedKeywords []string `json:"matchedKeywords"`
}

type Entities struct {
	Amount      float64 `json:"amount,omitempty"`
	Recipient   string  `json:"recipient,omitempty"`
	Currency    string  `json:"currency,omitempty"`
	Action      string  `json:"action,omitempty"`
	ContactName string  `json:"contactName,omitempty"`
}

type Validation struct {
	IsValid  bool     `json:"isValid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
	Entities Entities `json:"normalizedEntities"`
}

type IClassifier interface {
	Classify(text string) Classification
	ClassifyAny(v any) Classification
	ExtractEntities(text string, intent Intent) Entities
	Validate(intent Intent, entities Entities) Validation
	GenerateConfirmationMessage(intent Intent, entities Entities) string
}
