package auth

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"pipewatch/internal/config"
)

// ErrWrongPassword is returned when a password does not match its stored hash.
var ErrWrongPassword = errors.New("wrong password")

// PasswordPolicy validates candidate passwords and hashes accepted ones.
type PasswordPolicy struct {
	MinLength int
	MaxLength int
	Cost      int
}

// NewPasswordPolicy builds a policy from configuration.
func NewPasswordPolicy(cfg *config.Config) PasswordPolicy {
	return PasswordPolicy{
		MinLength: cfg.Auth.MinPasswordLength,
		MaxLength: cfg.Auth.MaxPasswordLength,
		Cost:      cfg.Auth.BcryptCost,
	}
}

// Validate rejects passwords outside the configured length bounds.
func (p PasswordPolicy) Validate(password string) error {
	length := utf8.RuneCountInString(password)
	if length < p.MinLength || length > p.MaxLength {
		return fmt.Errorf("password must be between %d and %d characters", p.MinLength, p.MaxLength)
	}
	return nil
}

// Hash derives a bcrypt hash at the configured cost.
func (p PasswordPolicy) Hash(password string) (string, error) {
	cost := p.Cost
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Check compares a candidate password against a stored hash.
func (p PasswordPolicy) Check(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrWrongPassword
	}
	return nil
}
