// Package common provides shared HTTP utility functions for API handlers.
package common

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode"

	"github.com/go-chi/chi/v5"
)

// MaxRepositoryIDLength bounds repository ids accepted in paths
const MaxRepositoryIDLength = 256

// RepositoryIDParam returns the decoded repository id held in the named chi
// path parameter. Ids usually contain an escaped slash ("acme%2Fapi"), so the
// raw value is unescaped here. Ids are embedded in store keys, so whitespace,
// control characters and glob metacharacters are rejected.
func RepositoryIDParam(r *http.Request, paramName string) (string, error) {
	decoded, err := url.PathUnescape(chi.URLParam(r, paramName))
	if err != nil {
		return "", fmt.Errorf("invalid URL encoding in %s", paramName)
	}

	switch {
	case strings.TrimSpace(decoded) == "":
		return "", fmt.Errorf("%s cannot be empty", paramName)
	case len(decoded) > MaxRepositoryIDLength:
		return "", fmt.Errorf("%s cannot be longer than %d characters", paramName, MaxRepositoryIDLength)
	case strings.IndexFunc(decoded, unicode.IsSpace) >= 0:
		return "", fmt.Errorf("%s cannot contain whitespace", paramName)
	case strings.IndexFunc(decoded, unicode.IsControl) >= 0:
		return "", fmt.Errorf("%s cannot contain control characters", paramName)
	case strings.ContainsAny(decoded, `*?[]{}\`):
		return "", fmt.Errorf("%s cannot contain pattern characters", paramName)
	}
	return decoded, nil
}
