package services

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var plainTextPolicy = bluemonday.StrictPolicy()

// sanitizePlainText strips every HTML element from user supplied text and trims it.
func sanitizePlainText(input string) string {
	cleaned := plainTextPolicy.Sanitize(strings.TrimSpace(input))
	return strings.TrimSpace(html.UnescapeString(cleaned))
}
