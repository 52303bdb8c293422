package router

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	priceRe = regexp.MustCompile(`(?i)([$€£¥₹]|\b(?:usd|eur|gbp|jpy|inr)\s?)\s?(\d{1,3}(?:,\d{3})+|\d+)(?:\.(\d{1,2}))?`)
	forRe   = regexp.MustCompile(`(?i)\bfor\b`)
	buyRe   = regexp.MustCompile(`(?i)^(?:buy|purchase|order|get|pick up)\s+`)
)

var currencies = map[string]string{"$": "USD", "€": "EUR", "£": "GBP", "¥": "JPY", "₹": "INR"}

// Price is a money amount found in text.
type Price struct {
	Amount   float64
	Currency string
	Token    string
}

// ParsePrice returns the first currency-prefixed amount in s.
func ParsePrice(s string) (Price, bool) {
	m := priceRe.FindStringSubmatch(s)
	if m == nil {
		return Price{}, false
	}
	num := strings.ReplaceAll(m[2], ",", "")
	if m[3] != "" {
		num += "." + m[3]
	}
	amount, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return Price{}, false
	}
	sym := strings.TrimSpace(m[1])
	cur, ok := currencies[sym]
	if !ok {
		cur = strings.ToUpper(sym)
	}
	return Price{Amount: amount, Currency: cur, Token: m[0]}, true
}

// ShoppingItem extracts the item name and price from a purchase summary.
// The name is the text before the first standalone "for", else the whole
// summary, with the price token removed.
func ShoppingItem(summary string) (string, Price, bool) {
	price, hasPrice := ParsePrice(summary)
	name := summary
	if loc := forRe.FindStringIndex(summary); loc != nil && loc[0] > 0 {
		name = summary[:loc[0]]
	}
	if hasPrice {
		name = strings.Replace(name, price.Token, " ", 1)
	}
	name = buyRe.ReplaceAllString(strings.TrimSpace(name), "")
	name = strings.Join(strings.Fields(name), " ")
	name = strings.Trim(name, " .,:;-")
	if name == "" {
		name = strings.TrimSpace(summary)
	}
	return capitalize(name), price, hasPrice
}
