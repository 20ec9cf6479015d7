package logger

import (
	"net/url"
	"strings"
)

// SanitizedEmail masks an identity for logs: the first character of the
// local part and the top-level domain survive ("a****@*******.com").
func SanitizedEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "[invalid-email]"
	}
	local, domain := email[:at], email[at+1:]

	masked := local[:1] + strings.Repeat("*", len(local)-1)

	labels := strings.Split(domain, ".")
	for i := 0; i < len(labels)-1; i++ {
		labels[i] = strings.Repeat("*", len(labels[i]))
	}
	return masked + "@" + strings.Join(labels, ".")
}

var sensitiveParams = map[string]struct{}{
	"password":      {},
	"token":         {},
	"access_token":  {},
	"secret":        {},
	"email":         {},
	"otp":           {},
	"backup_code":   {},
	"captcha_token": {},
}

// SanitizeQueryString reports whether rawQuery names a sensitive parameter,
// in which case the whole query string should be redacted. Unparsable
// queries are redacted too.
func SanitizeQueryString(rawQuery string) bool {
	if rawQuery == "" {
		return false
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return true
	}
	for key := range values {
		if _, ok := sensitiveParams[strings.ToLower(key)]; ok {
			return true
		}
	}
	return false
}
