package pickup

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// Alphabet excludes characters that are easy to misread at the desk (0/O, 1/I)
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Result is the outcome of presenting a code
type Result string

const (
	ResultSuccess Result = "success"
	ResultInvalid Result = "invalid"
	ResultExpired Result = "expired"
)

// Code is a one-time token completing the approved -> active handoff of a loan
type Code struct {
	ID         uuid.UUID  `json:"id"`
	LoanID     uuid.UUID  `json:"loan_id"`
	Code       string     `json:"code"`
	IssuedAt   time.Time  `json:"issued_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
	ExpiredAt  *time.Time `json:"expired_at,omitempty"`
}

// NewCode creates an unconsumed code valid for ttl from now
func NewCode(loanID uuid.UUID, value string, now time.Time, ttl time.Duration) *Code {
	return &Code{
		ID:        uuid.New(),
		LoanID:    loanID,
		Code:      value,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
}

// Active reports whether the code is neither consumed nor expired
func (c *Code) Active() bool {
	return c.ConsumedAt == nil && c.ExpiredAt == nil
}

// PastExpiry reports whether the redemption window has closed
func (c *Code) PastExpiry(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Redeem validates a presented value against this code for the given loan.
// Success consumes the code; a late presentation marks it expired.
func (c *Code) Redeem(presented string, loanID uuid.UUID, now time.Time) Result {
	if !c.Active() || c.LoanID != loanID {
		return ResultInvalid
	}
	if subtle.ConstantTimeCompare([]byte(c.Code), []byte(presented)) != 1 {
		return ResultInvalid
	}
	if c.PastExpiry(now) {
		c.ExpiredAt = &now
		return ResultExpired
	}
	c.ConsumedAt = &now
	return ResultSuccess
}

// Expire closes an unconsumed code; it reports false when already closed
func (c *Code) Expire(now time.Time) bool {
	if !c.Active() {
		return false
	}
	c.ExpiredAt = &now
	return true
}

// Generator produces candidate code values
type Generator interface {
	Generate() (string, error)
}

// RandomGenerator draws fixed-length codes from Alphabet using crypto/rand
type RandomGenerator struct {
	length int
}

func NewRandomGenerator(length int) (*RandomGenerator, error) {
	if length < 4 {
		return nil, errors.New("pickup code length must be at least 4")
	}
	return &RandomGenerator{length: length}, nil
}

func (g *RandomGenerator) Generate() (string, error) {
	size := big.NewInt(int64(len(Alphabet)))
	buf := make([]byte, g.length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", fmt.Errorf("failed to read random source: %w", err)
		}
		buf[i] = Alphabet[n.Int64()]
	}
	return string(buf), nil
}
