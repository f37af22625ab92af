// Package token produces the short suffix appended to every identifier of a
// rewritten compose manifest.
//
// Tokens end up in hostnames, volume directory names and orchestrator object
// names, so they are restricted to lowercase alphanumerics with optional inner
// hyphens. Generators either draw from a CSPRNG (Random), or are deterministic
// (Fixed, Seeded, Template) for scripted and repeatable deployments.
package token

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/dlclark/regexp2"
	"github.com/google/uuid"

	"github.com/cmmoran/composeiso/internal/render"
	"github.com/cmmoran/composeiso/internal/renderx"
	"github.com/cmmoran/composeiso/internal/util"
)

const (
	DefaultLength = 8
	MinLength     = 4
	MaxLength     = 12
	maxTokenLen   = 63
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrInvalidLength = errors.New("invalid token length")
)

// lowercase alnum and '-', no leading, trailing or doubled '-'.
var shape = regexp2.MustCompile(`^(?!-)(?!.*--)[a-z0-9-]+(?<!-)$`, regexp2.None)

// Validate reports whether tok is safe to append to compose identifiers.
func Validate(tok string) error {
	if tok == "" {
		return fmt.Errorf("%w: empty", ErrInvalidToken)
	}
	if len(tok) > maxTokenLen {
		return fmt.Errorf("%w: %q longer than %d characters", ErrInvalidToken, tok, maxTokenLen)
	}
	ok, err := shape.MatchString(tok)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !ok {
		return fmt.Errorf("%w: %q must be lowercase alphanumeric with inner hyphens only", ErrInvalidToken, tok)
	}
	return nil
}

type Generator interface {
	Generate() (string, error)
}

// Random draws Length hex characters from a version 4 UUID.
// The first six bytes of a v4 UUID carry no version or variant bits.
type Random struct {
	Length int
}

func (r Random) Generate() (string, error) {
	n, err := checkLength(r.Length)
	if err != nil {
		return "", err
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("token: %w", err)
	}
	return hex.EncodeToString(id[:6])[:n], nil
}

// Fixed always returns the same caller supplied token.
type Fixed string

func (f Fixed) Generate() (string, error) {
	if err := Validate(string(f)); err != nil {
		return "", err
	}
	return string(f), nil
}

// Seeded derives a stable token from Seed, e.g. a branch or preview name.
type Seeded struct {
	Seed   string
	Length int
}

func (s Seeded) Generate() (string, error) {
	n, err := checkLength(s.Length)
	if err != nil {
		return "", err
	}
	if s.Seed == "" {
		return "", fmt.Errorf("%w: empty seed", ErrInvalidToken)
	}
	return util.ShortFingerprint([]byte(s.Seed), n), nil
}

// Template renders Text with sprig functions plus slug and short over Data
// and validates the trimmed result, e.g. `{{ .branch | slug }}` or
// `{{ .branch | short 6 }}`.
type Template struct {
	Text string
	Data map[string]any
}

func (t Template) Generate() (string, error) {
	out, err := render.NewEngine(render.Options{Strict: true, Funcs: renderx.TokenFuncMap()}).RenderString("token", t.Text, t.Data)
	if err != nil {
		return "", fmt.Errorf("token template: %w", err)
	}
	out = strings.TrimSpace(out)
	if err = Validate(out); err != nil {
		return "", err
	}
	return out, nil
}

func checkLength(n int) (int, error) {
	if n == 0 {
		return DefaultLength, nil
	}
	if n < MinLength || n > MaxLength {
		return 0, fmt.Errorf("%w: %d (want %d..%d)", ErrInvalidLength, n, MinLength, MaxLength)
	}
	return n, nil
}
