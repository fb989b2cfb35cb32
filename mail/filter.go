package mail

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// headerBreakers are stripped from every value that may reach a header line.
var headerBreakers = strings.NewReplacer("\r", "", "\n", "", "\t", "")

var emailReplacer = strings.NewReplacer(
	"\r", "",
	"\n", "",
	"\t", "",
	`"`, "",
	",", "",
	"<", "",
	">", "",
)

var nameReplacer = strings.NewReplacer(
	"\r", "",
	"\n", "",
	"\t", "",
	`"`, "'",
	"<", "[",
	">", "]",
)

// FilterEmail removes carriage returns, line feeds, tabs, double quotes,
// commas and angle brackets from email, then drops every character that is
// not allowed in an address.
func FilterEmail(email string) string {
	return strings.Map(func(r rune) rune {
		if isEmailRune(r) {
			return r
		}
		return -1
	}, emailReplacer.Replace(email))
}

func isEmailRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	return strings.ContainsRune("!#$%&'*+-=?^_`{|}~@.[]", r)
}

// FilterName removes carriage returns, line feeds and tabs from a display
// name. Double quotes become single quotes and angle brackets become square
// brackets.
func FilterName(name string) string {
	return strings.TrimSpace(norm.NFC.String(nameReplacer.Replace(name)))
}

// FilterOther strips control characters from free text such as a subject.
// Quotes, tags and non-ASCII text are kept.
func FilterOther(data string) string {
	data = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, headerBreakers.Replace(data))
	return norm.NFC.String(data)
}
