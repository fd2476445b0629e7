// Package tokens approximates token usage for backends that do not report
// it.
package tokens

import "unicode/utf8"

const charsPerToken = 4

// Estimate approximates the token count of text at about four characters
// per token, rounding up. Empty text is zero tokens.
func Estimate(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + charsPerToken - 1) / charsPerToken
}
