package deposit

import (
	"fmt"
	"strings"

	apperr "github.com/Fi44er/invest_bot/internal/errors"
)

type Method string

const (
	MethodBitcoin  Method = "bitcoin"
	MethodEthereum Method = "ethereum"
	MethodUSDT     Method = "usdt"
)

var Methods = []Method{MethodBitcoin, MethodEthereum, MethodUSDT}

func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case MethodBitcoin, MethodEthereum, MethodUSDT:
		return m, nil
	}
	return "", apperr.NewValidationError("method", fmt.Sprintf("unsupported payment method %q", s))
}

// Label is the payment channel name stored on the transaction.
func (m Method) Label() string {
	switch m {
	case MethodBitcoin:
		return "Bitcoin"
	case MethodEthereum:
		return "Ethereum"
	case MethodUSDT:
		return "USDT"
	}
	return string(m)
}

// Asset is the ticker the payer sends.
func (m Method) Asset() string {
	switch m {
	case MethodBitcoin:
		return "BTC"
	case MethodEthereum:
		return "ETH"
	case MethodUSDT:
		return "USDT"
	}
	return strings.ToUpper(string(m))
}

// Currencies accepted as the deposit amount currency.
var Currencies = []string{
	"USD", "CAD", "MXN",
	"BRL", "ARS", "CLP", "COP",
	"EUR", "GBP", "CHF", "SEK", "NOK", "PLN", "TRY", "RUB",
	"JPY", "CNY", "INR", "KRW", "SGD", "HKD", "AED",
	"AUD", "NZD",
	"ZAR", "NGN", "KES", "EGP",
}

func normalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "USD", nil
	}
	for _, c := range Currencies {
		if c == code {
			return code, nil
		}
	}
	return "", apperr.NewValidationError("currency", fmt.Sprintf("unsupported currency %q", code))
}
