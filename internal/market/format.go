package market

import (
	"fmt"
	"strings"
)

// FormatPrice renders an amount with the currency's display symbol and a
// decimal precision scaled to its magnitude, so sub-cent assets keep enough
// significant digits while large amounts stay readable.
func FormatPrice(amount float64, currency string) string {
	currency = strings.ToUpper(currency)
	symbol := fiatSymbols[currency]

	var decimals int
	switch {
	case amount < 0.01:
		decimals = 6
	case amount < 1:
		decimals = 4
	case amount < 100:
		decimals = 2
	default:
		decimals = 0
	}

	formatted := groupThousands(fmt.Sprintf("%.*f", decimals, amount))

	switch {
	case symbol != "" && prefixedFiat[currency]:
		return symbol + formatted
	case symbol != "":
		return formatted + " " + symbol
	default:
		return formatted + " " + currency
	}
}

// FormatChange renders a signed 24h percentage change with the gain/loss
// marker convention.
func FormatChange(pct float64) string {
	switch {
	case pct > 0:
		return fmt.Sprintf("📈 +%.2f%%", pct)
	case pct < 0:
		return fmt.Sprintf("📉 %.2f%%", pct)
	default:
		return fmt.Sprintf("➡️ %.2f%%", pct)
	}
}

// groupThousands inserts comma separators into the integer part of a
// formatted decimal number.
func groupThousands(s string) string {
	intPart, frac, hasFrac := strings.Cut(s, ".")

	neg := strings.HasPrefix(intPart, "-")
	if neg {
		intPart = intPart[1:]
	}

	if len(intPart) > 3 {
		var b strings.Builder
		lead := len(intPart) % 3
		if lead > 0 {
			b.WriteString(intPart[:lead])
		}
		for i := lead; i < len(intPart); i += 3 {
			if b.Len() > 0 {
				b.WriteByte(',')
			}
			b.WriteString(intPart[i : i+3])
		}
		intPart = b.String()
	}

	if neg {
		intPart = "-" + intPart
	}
	if hasFrac {
		return intPart + "." + frac
	}
	return intPart
}
