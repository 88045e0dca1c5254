package auth

import (
	"errors"
	"strings"
	"testing"

	"pipewatch/internal/testsupport"
)

func TestPasswordHashAndCheck(t *testing.T) {
	policy := NewPasswordPolicy(testsupport.NewConfig(t))

	hash, err := policy.Hash("correct horse")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if hash == "correct horse" {
		t.Fatal("hash must not equal the plaintext")
	}
	if err := policy.Check(hash, "correct horse"); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if err := policy.Check(hash, "wrong"); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("Check wrong password: err = %v, want ErrWrongPassword", err)
	}
}

func TestPasswordPolicyBounds(t *testing.T) {
	policy := PasswordPolicy{MinLength: 6, MaxLength: 20, Cost: 4}

	cases := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"too short", "abc", true},
		{"minimum", "abcdef", false},
		{"maximum", strings.Repeat("x", 20), false},
		{"too long", strings.Repeat("x", 21), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := policy.Validate(tc.password)
			if tc.wantErr && err == nil {
				t.Fatalf("Validate(%q) = nil, want error", tc.password)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("Validate(%q) = %v, want nil", tc.password, err)
			}
		})
	}
}
