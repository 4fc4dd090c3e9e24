package payment

import (
	"fmt"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var currencyLocales = map[string]language.Tag{
	"COP": language.MustParse("es-CO"),
	"MXN": language.MustParse("es-MX"),
}

// FormatAmount renders minor units in the customer's locale, e.g. "1.000.000 COP".
func FormatAmount(cents int64, code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	unit, err := currency.ParseISO(code)
	if err != nil {
		return fmt.Sprintf("%d.%02d %s", cents/100, cents%100, code)
	}
	tag, ok := currencyLocales[code]
	if !ok {
		tag = language.LatinAmericanSpanish
	}
	scale, _ := currency.Cash.Rounding(unit)
	p := message.NewPrinter(tag)
	return p.Sprintf("%v %s", number.Decimal(float64(cents)/100, number.Scale(scale)), unit.String())
}
