package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"crewhall/src/models"
)

const (
	inviteCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	inviteCodeLength   = 4
	MaxCodeAttempts    = 10
)

var inviteCodePattern = regexp.MustCompile(`^[A-Z]+-[A-Z0-9]{4}$`)

// CodeExistsFunc reports whether code is already taken for its kind.
type CodeExistsFunc func(ctx context.Context, code string) (bool, error)

// InviteCodeGenerator allocates "<PREFIX>-XXXX" codes.
type InviteCodeGenerator struct {
	suffix func() (string, error)
}

func NewInviteCodeGenerator() *InviteCodeGenerator {
	return &InviteCodeGenerator{suffix: randomSuffix}
}

// Generate draws candidates until one is free, giving up with
// ErrCodeGenerationExhausted after MaxCodeAttempts collisions.
func (g *InviteCodeGenerator) Generate(ctx context.Context, kind models.GroupKind, exists CodeExistsFunc) (string, error) {
	prefix := kind.CodePrefix()
	if prefix == "" {
		return "", ErrInvalidKind
	}

	for attempt := 0; attempt < MaxCodeAttempts; attempt++ {
		suffix, err := g.suffix()
		if err != nil {
			return "", fmt.Errorf("generate invite code: %w", err)
		}
		code := prefix + "-" + suffix

		taken, err := exists(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", ErrCodeGenerationExhausted
}

func randomSuffix() (string, error) {
	var b strings.Builder
	b.Grow(inviteCodeLength)
	max := big.NewInt(int64(len(inviteCodeAlphabet)))
	for i := 0; i < inviteCodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(inviteCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeInviteCode trims and upper-cases user input.
func NormalizeInviteCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidInviteCode reports whether code has the shape of a code for kind.
func ValidInviteCode(kind models.GroupKind, code string) bool {
	return inviteCodePattern.MatchString(code) && strings.HasPrefix(code, kind.CodePrefix()+"-")
}
