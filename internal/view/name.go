package view

import "strings"

// SplitName turns the single "first last" field into its two parts. Only
// the first two whitespace separated tokens are kept; a lone token leaves
// the last name empty.
func SplitName(name string) (firstname, lastname string) {
	tokens := strings.Fields(name)
	if len(tokens) > 0 {
		firstname = tokens[0]
	}
	if len(tokens) > 1 {
		lastname = tokens[1]
	}
	return firstname, lastname
}
