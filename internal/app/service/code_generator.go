package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

const (
	codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// Auto-generated codes are 7 characters: 62^7 ≈ 3.5 trillion
	// values, so collisions stay rare long past any realistic load.
	generatedCodeLength = 7

	// Custom codes get a wider band so branded slugs like "promo"
	// or "spring-sale" minus the dash still fit.
	customCodeMinLength = 4
	customCodeMaxLength = 32

	maxGenerateAttempts = 5
)

var (
	// ErrGenerationExhausted signals that every random draw collided.
	// Retryable: the caller may simply issue the request again.
	ErrGenerationExhausted = errors.New("exhausted code generation attempts")
	// ErrInvalidCustomCode signals a custom code outside the allowed
	// charset or length band.
	ErrInvalidCustomCode = errors.New("invalid custom code")
)

// CodeChecker reports whether a code is already bound. The generator
// only needs this one method of the store.
type CodeChecker interface {
	Exists(ctx context.Context, code string) (bool, error)
}

// CodeGenerator produces short, non-enumerable link codes.
//
// Codes are drawn from crypto/rand over a base62 alphabet rather than
// derived from a sequence, so knowing one code reveals nothing about
// its neighbours. Uniqueness is ultimately the store's job; the
// generator just avoids handing out a code it can already see is
// taken.
type CodeGenerator struct {
	checker CodeChecker
}

// NewCodeGenerator returns a generator that pre-checks candidates
// against the given checker.
func NewCodeGenerator(checker CodeChecker) *CodeGenerator {
	return &CodeGenerator{checker: checker}
}

// Generate draws random codes until one is free, giving up with
// ErrGenerationExhausted after a bounded number of collisions.
func (g *CodeGenerator) Generate(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		code, err := randomCode(generatedCodeLength)
		if err != nil {
			return "", fmt.Errorf("draw random code: %w", err)
		}

		taken, err := g.checker.Exists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check code availability: %w", err)
		}
		if !taken {
			return code, nil
		}
	}
	return "", ErrGenerationExhausted
}

// ValidateCustomCode checks charset and length of a caller-supplied
// code. Whether the code is free is decided by the store's atomic
// create, not here.
func ValidateCustomCode(code string) error {
	if len(code) < customCodeMinLength || len(code) > customCodeMaxLength {
		return ErrInvalidCustomCode
	}
	for i := 0; i < len(code); i++ {
		if !isCodeChar(code[i]) {
			return ErrInvalidCustomCode
		}
	}
	return nil
}

func isCodeChar(c byte) bool {
	return (c >= '0' && c <= '9') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= 'a' && c <= 'z')
}

func randomCode(length int) (string, error) {
	buf := make([]byte, length)
	alphabetLen := big.NewInt(int64(len(codeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", err
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
