package letter

import (
	"fmt"
	"strconv"
	"time"
)

var months = [...]string{
	"januar", "februar", "marts", "april", "maj", "juni",
	"juli", "august", "september", "oktober", "november", "december",
}

// FormatDate writes a date in Danish long form, e.g. "1. januar 2024".
func FormatDate(d time.Time) string {
	return fmt.Sprintf("%d. %s %d", d.Day(), months[d.Month()-1], d.Year())
}

// AddressLineCount is the number of recipient address lines in the template.
const AddressLineCount = 5

// Notice holds the values printed on the fine notice.
type Notice struct {
	SendDate     time.Time
	RegisterDate time.Time
	MoveDate     time.Time
	AddressLines []string
	MoveAddress  string
	Amount       int
	Contact      string
	CaseNumber   string
}

// Replacements maps the template keywords to their values. Missing
// address lines become empty strings so no keyword is left behind.
func (n Notice) Replacements() map[string]string {
	m := map[string]string{
		"SENDEDATO":       FormatDate(n.SendDate),
		"ANMELDELSESDATO": FormatDate(n.RegisterDate),
		"FLYTTEDATO":      FormatDate(n.MoveDate),
		"FLYTTE_ADRESSE":  n.MoveAddress,
		"BELØB":           strconv.Itoa(n.Amount),
		"KONTAKT":         n.Contact,
		"SAGSNUMMER":      n.CaseNumber,
	}
	for i := 0; i < AddressLineCount; i++ {
		line := ""
		if i < len(n.AddressLines) {
			line = n.AddressLines[i]
		}
		m["ADRESSE"+strconv.Itoa(i+1)] = line
	}
	return m
}
