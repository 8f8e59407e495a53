package auth

import (
	"strings"
	"testing"
)

func TestHashPassword_RoundTrip(t *testing.T) {
	hash, err := HashPassword("Correct-Horse-9")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=3,p=1$") {
		t.Errorf("hash = %q, want argon2id PHC prefix", hash)
	}

	ok, err := VerifyPassword("Correct-Horse-9", hash)
	if err != nil || !ok {
		t.Errorf("VerifyPassword(correct) = %v, %v", ok, err)
	}
	ok, err = VerifyPassword("Wrong-Horse-9", hash)
	if err != nil || ok {
		t.Errorf("VerifyPassword(wrong) = %v, %v", ok, err)
	}
}

func TestHashPassword_UniqueSalts(t *testing.T) {
	a, _ := HashPassword("Same-Password-1") //nolint:errcheck // checked by comparison
	b, _ := HashPassword("Same-Password-1") //nolint:errcheck // checked by comparison
	if a == b {
		t.Error("two hashes of the same password share a salt")
	}
}

func TestVerifyPassword_Malformed(t *testing.T) {
	tests := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"plaintext", "hunter2"},
		{"wrong algorithm", "$bcrypt$v=19$m=65536,t=3,p=1$c2FsdA$aGFzaA"},
		{"too few parts", "$argon2id$v=19$m=65536,t=3,p=1"},
		{"bad version", "$argon2id$v=16$m=65536,t=3,p=1$c2FsdA$aGFzaA"},
		{"bad salt", "$argon2id$v=19$m=65536,t=3,p=1$!!!$aGFzaA"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := VerifyPassword("x", tt.hash); err == nil {
				t.Error("VerifyPassword() error = nil, want error")
			}
		})
	}
}

func TestIsValidPassword(t *testing.T) {
	tests := []struct {
		password string
		want     bool
	}{
		{"Abcdefg1", true},
		{"abcdefg1", false}, // no upper
		{"ABCDEFG1", false}, // no lower
		{"Abcdefgh", false}, // no digit
		{"Abc1", false},     // short
	}
	for _, tt := range tests {
		if got := IsValidPassword(tt.password); got != tt.want {
			t.Errorf("IsValidPassword(%q) = %v, want %v", tt.password, got, tt.want)
		}
	}
}

func TestIsValidUsername(t *testing.T) {
	tests := []struct {
		username string
		want     bool
	}{
		{"darren", true},
		{"user@example.com", true},
		{"a.b-c_d+e", true},
		{"ab", false},
		{"has space", false},
		{"", false},
		{strings.Repeat("x", 65), false},
	}
	for _, tt := range tests {
		if got := IsValidUsername(tt.username); got != tt.want {
			t.Errorf("IsValidUsername(%q) = %v, want %v", tt.username, got, tt.want)
		}
	}
}

func BenchmarkHashPassword(b *testing.B) {
	for b.Loop() {
		HashPassword("Correct-Horse-9") //nolint:errcheck // benchmark
	}
}
