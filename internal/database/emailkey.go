package database

import "strings"

// RTDB keys may not contain ".", "#", "$", "[" or "]"; the remaining tokens
// keep the encoding reversible.
var emailKeyReplacer = strings.NewReplacer(
	".", "_DOT_",
	"@", "_AT_",
	"+", "_PLUS_",
	"-", "_DASH_",
	":", "_COLON_",
	"#", "_HASH_",
	"$", "_DOLLAR_",
	"[", "_LBRACKET_",
	"]", "_RBRACKET_",
)

// NormalizeEmail lowercases and trims an email address. All stores key and
// compare emails in this form so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EmailKey converts an email address into an RTDB-path-safe key. The address
// is normalized first, so equal-modulo-case emails map to the same key. The
// "email:" prefix keeps encoded addresses from colliding with other key
// schemes under the same node.
func EmailKey(email string) string {
	return "email:" + emailKeyReplacer.Replace(NormalizeEmail(email))
}
