package nlp

import (
	"fmt"
	"strconv"
)

const MaxTransferAmount = 1000000

const (
	MsgInvalidAmount       = "请指定有效的转账金额"
	MsgAmountTooLarge      = "转账金额不能超过1,000,000"
	MsgMissingRecipient    = "请指定转账接收方"
	MsgInvalidAddress      = "无效的Solana地址格式"
	MsgUnsupportedCurrency = "不支持的货币类型"
	MsgDefaultCurrency     = "未指定货币类型，将使用默认的 SOL"
	MsgMissingContactAdd   = "请指定要添加的联系人名称"
	MsgMissingContactDel   = "请指定要删除的联系人名称"
	MsgNotUnderstood       = "抱歉，我没有理解您的意图，请重新说明"
)

// addressLikeLength is the length from which a recipient is treated as a
// wallet address rather than a contact name.
const addressLikeLength = 32

var supportedCurrencies = map[string]bool{
	CurrencySOL:  true,
	CurrencyUSDC: true,
}

func (c *Classifier) Validate(intent Intent, entities Entities) Validation {
	errs := []string{}
	warnings := []string{}

	switch intent {
	case IntentTransfer:
		switch {
		case entities.Amount <= 0:
			errs = append(errs, MsgInvalidAmount)
		case entities.Amount > MaxTransferAmount:
			errs = append(errs, MsgAmountTooLarge)
		}

		if entities.Recipient == "" {
			errs = append(errs, MsgMissingRecipient)
		} else if len(entities.Recipient) >= addressLikeLength && !isSolanaAddress(entities.Recipient) {
			errs = append(errs, MsgInvalidAddress)
		}

		if entities.Currency == "" {
			warnings = append(warnings, MsgDefaultCurrency)
			entities.Currency = CurrencySOL
		} else if !supportedCurrencies[entities.Currency] {
			errs = append(errs, MsgUnsupportedCurrency)
		}

	case IntentQueryBalance:
		if entities.Currency != "" && !supportedCurrencies[entities.Currency] {
			errs = append(errs, MsgUnsupportedCurrency)
		}

	case IntentContactManagement:
		if entities.Action == ActionAdd && entities.ContactName == "" {
			errs = append(errs, MsgMissingContactAdd)
		}
		if entities.Action == ActionDelete && entities.ContactName == "" {
			errs = append(errs, MsgMissingContactDel)
		}
	}

	return Validation{
		IsValid:  len(errs) == 0,
		Errors:   errs,
		Warnings: warnings,
		Entities: entities,
	}
}

func (c *Classifier) GenerateConfirmationMessage(intent Intent, entities Entities) string {
	switch intent {
	case IntentTransfer:
		currency := entities.Currency
		if currency == "" {
			currency = CurrencySOL
		}
		return fmt.Sprintf("您要向 %s 转账 %s %s，是否确认？", entities.Recipient, formatAmount(entities.Amount), currency)

	case IntentQueryBalance:
		currency := entities.Currency
		if currency == "" {
			currency = "所有"
		}
		return fmt.Sprintf("您要查询 %s 的账户余额，是否确认？", currency)

	case IntentQueryTransaction:
		return "您要查看交易记录，是否确认？"

	case IntentContactManagement:
		switch entities.Action {
		case ActionAdd:
			return fmt.Sprintf("您要添加联系人 %s，是否确认？", entities.ContactName)
		case ActionDelete:
			return fmt.Sprintf("您要删除联系人 %s，是否确认？", entities.ContactName)
		default:
			return "您要管理联系人，是否确认？"
		}

	case IntentSettings:
		return "您要打开设置页面，是否确认？"

	case IntentHelp:
		return "您要查看帮助信息，是否确认？"

	default:
		return MsgNotUnderstood
	}
}

func formatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', -1, 64)
}
