package mail

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Address is an email address with an optional display name.
type Address struct {
	Email string
	Name  string
}

// String formats the address with FormatAddress.
func (a Address) String() string {
	return FormatAddress(a.Email, a.Name)
}

// FormatAddress formats a display address, e.g. `"Name" <user@example.com>`.
// The name is written as RFC 2047 encoded words. Without a name the sanitised
// email is returned on its own.
func FormatAddress(email, name string) string {
	email = FilterEmail(email)

	name = FilterName(name)
	if name == "" {
		return email
	}

	return fmt.Sprintf(`"%s" <%s>`, EncodeUTF8(name), email)
}

// EncodeUTF8 encodes value as RFC 2047 encoded words. Values containing
// whitespace are encoded one word at a time.
func EncodeUTF8(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if strings.IndexFunc(value, unicode.IsSpace) >= 0 {
		return EncodeUTF8Words(value)
	}
	return EncodeUTF8Word(value)
}

// EncodeUTF8Word returns value as a single base64 encoded word.
func EncodeUTF8Word(value string) string {
	return "=?UTF-8?B?" + base64.StdEncoding.EncodeToString([]byte(value)) + "?="
}

// EncodeUTF8Words splits value on spaces and encodes every word separately,
// joining them with an encoded space.
func EncodeUTF8Words(value string) string {
	words := strings.Split(value, " ")

	encoded := make([]string, 0, len(words))
	for _, word := range words {
		encoded = append(encoded, EncodeUTF8Word(word))
	}

	return strings.Join(encoded, EncodeUTF8Word(" "))
}

// encodeFilename makes an attachment filename safe for a quoted parameter.
func encodeFilename(name string) string {
	name = strings.ReplaceAll(FilterOther(name), `"`, "'")
	if !isASCII(name) {
		return EncodeUTF8Word(name)
	}
	return name
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
