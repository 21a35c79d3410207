package netcontrol

import (
	"strings"
	"testing"
)

func TestGenerateRandomSecretLength(t *testing.T) {
	tests := []struct {
		name   string
		length int
		want   int
	}{
		{"Zero", 0, MinimumSecretLength},
		{"Negative", -5, MinimumSecretLength},
		{"BelowFloor", 7, MinimumSecretLength},
		{"AtFloor", 8, 8},
		{"AboveFloor", 16, 16},
		{"Long", 64, 64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GenerateRandomSecret(tt.length)
			if len(got) != tt.want {
				t.Errorf("len(GenerateRandomSecret(%d)) = %d, want %d", tt.length, len(got), tt.want)
			}
		})
	}
}

func TestGenerateRandomSecretAlphabet(t *testing.T) {
	// Enough draws to make a stray character overwhelmingly likely to show.
	for i := 0; i < 50; i++ {
		s := GenerateRandomSecret(32)
		for _, r := range s {
			if !strings.ContainsRune(secretAlphabet, r) {
				t.Fatalf("secret %q contains %q, not in alphabet", s, r)
			}
		}
		if strings.ContainsRune(s, 'O') {
			t.Fatalf("secret %q contains the letter O", s)
		}
	}
}

func TestSecretAlphabetExcludesOh(t *testing.T) {
	if strings.ContainsRune(secretAlphabet, 'O') {
		t.Error("alphabet contains the letter O")
	}
}

func TestGenerateRandomSecretVaries(t *testing.T) {
	a := GenerateRandomSecret(32)
	b := GenerateRandomSecret(32)
	if a == b {
		t.Errorf("two generated secrets are identical: %q", a)
	}
}
