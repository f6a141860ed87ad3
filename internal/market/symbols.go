// Package market fetches and formats crypto and fiat market data. It talks
// to CoinGecko (with CoinCap as fallback) for crypto prices and Frankfurter
// (with exchangerate-api as fallback) for fiat rates; the price cache in
// front of it bounds how often either is actually called.
package market

import "strings"

// cryptoIDs maps ticker symbols to CoinGecko/CoinCap asset identifiers.
var cryptoIDs = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"XMR":   "monero",
	"LTC":   "litecoin",
	"DOGE":  "dogecoin",
	"ADA":   "cardano",
	"DOT":   "polkadot",
	"LINK":  "chainlink",
	"UNI":   "uniswap",
	"SOL":   "solana",
	"MATIC": "polygon",
	"AVAX":  "avalanche",
	"ATOM":  "cosmos",
	"XRP":   "ripple",
	"BNB":   "binancecoin",
}

// cryptoNames allows resolving full asset names ("bitcoin") back to symbols.
var cryptoNames = func() map[string]string {
	m := make(map[string]string, len(cryptoIDs))
	for sym, id := range cryptoIDs {
		m[id] = sym
	}
	return m
}()

// fiatSymbols maps ISO currency codes to display symbols.
var fiatSymbols = map[string]string{
	"USD": "$", "EUR": "€", "GBP": "£", "JPY": "¥",
	"CNY": "¥", "INR": "₹", "KRW": "₩", "RUB": "₽",
	"CAD": "C$", "AUD": "A$", "CHF": "Fr", "SEK": "kr",
	"NOK": "kr", "DKK": "kr", "PLN": "zł", "CZK": "Kč",
	"NZD": "NZ$", "MXN": "$", "BRL": "R$", "ZAR": "R",
	"HKD": "HK$", "SGD": "S$", "THB": "฿", "TRY": "₺",
}

// prefixedFiat holds the currencies whose symbol precedes the amount.
var prefixedFiat = map[string]bool{
	"USD": true, "GBP": true, "EUR": true, "INR": true, "CAD": true,
	"AUD": true, "NZD": true, "HKD": true, "SGD": true, "MXN": true,
	"BRL": true, "ZAR": true,
}

// knownFiat is the set of fiat currency codes accepted in queries.
var knownFiat = map[string]bool{
	"USD": true, "EUR": true, "GBP": true, "JPY": true, "CNY": true,
	"INR": true, "KRW": true, "RUB": true, "CAD": true, "AUD": true,
	"CHF": true, "SEK": true, "NOK": true, "DKK": true, "PLN": true,
	"CZK": true, "NZD": true, "MXN": true, "BRL": true, "ZAR": true,
	"HKD": true, "SGD": true, "THB": true, "TRY": true, "ARS": true,
	"CLP": true, "COP": true, "PEN": true, "UYU": true, "PHP": true,
	"MYR": true, "IDR": true,
}

// ResolveCrypto resolves a token (ticker or full asset name, any case) to a
// canonical crypto symbol. Crypto resolution takes priority over fiat when a
// token matches both.
func ResolveCrypto(token string) (string, bool) {
	upper := strings.ToUpper(token)
	if _, ok := cryptoIDs[upper]; ok {
		return upper, true
	}
	if sym, ok := cryptoNames[strings.ToLower(token)]; ok {
		return sym, true
	}
	return "", false
}

// IsFiat reports whether token is a known fiat currency code.
func IsFiat(token string) bool {
	return knownFiat[strings.ToUpper(token)]
}
