package services

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

const MaxMOTDLength = 200

// Letters and combining marks cover local scripts; digits and plain spaces are allowed too.
var groupNamePattern = regexp.MustCompile(`^[\p{L}\p{M}\p{N} ]{3,20}$`)

var motdPolicy = bluemonday.StrictPolicy()

var angleBrackets = strings.NewReplacer("<", "", ">", "")

// ValidateName trims name and checks length and charset.
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrMissingField.Withf("name is required")
	}
	if !groupNamePattern.MatchString(name) {
		return "", ErrInvalidName
	}
	return name, nil
}

// SanitizeMOTD strips markup from motd and truncates it to MaxMOTDLength runes.
func SanitizeMOTD(motd string) string {
	text := html.UnescapeString(motdPolicy.Sanitize(motd))
	text = strings.TrimSpace(angleBrackets.Replace(text))
	if utf8.RuneCountInString(text) <= MaxMOTDLength {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:MaxMOTDLength]))
}
