package renderx

import (
	"strings"
	"text/template"

	"github.com/dlclark/regexp2"

	"github.com/cmmoran/composeiso/internal/util"
)

var nonAlnum = regexp2.MustCompile(`[^a-z0-9]+`, regexp2.None)

// Slug lowercases s and folds every run of other characters into one '-'.
func Slug(s string) (string, error) {
	out, err := nonAlnum.Replace(strings.ToLower(s), "-", -1, -1)
	if err != nil {
		return "", err
	}
	return strings.Trim(out, "-"), nil
}

// TokenFuncMap holds the helpers available to token templates on top of sprig.
func TokenFuncMap() template.FuncMap {
	return template.FuncMap{
		"slug": Slug,
		// short returns the first n hex characters of the SHA-256 of s.
		"short": func(n int, s string) string {
			return util.ShortFingerprint([]byte(s), n)
		},
	}
}
