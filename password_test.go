package main

import (
	"strings"
	"testing"
	"time"
)

func TestValidatePasswordComplexity(t *testing.T) {
	testCases := []struct {
		name     string
		password string
		wantErr  string // substring expected in the error, "" means no error
	}{
		{"too short", "Ab1!", "at least 8 characters"},
		{"too long", strings.Repeat("Aa1!", 40), "at most 128 characters"},
		{"missing upper", "lowercase1!", "uppercase"},
		{"missing lower", "UPPERCASE1!", "lowercase"},
		{"missing digit", "NoDigitsHere!", "digit"},
		{"missing special", "NoSpecial123", "special character"},
		{"valid", "Valid123!", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := validatePasswordComplexity(tc.password)
			if tc.wantErr == "" {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not contain %q", err.Error(), tc.wantErr)
			}
		})
	}
}

// TestHashPasswordTwiceDifferentResults checks that salt randomness produces
// a distinct hash each time, even for the same input.
func TestHashPasswordTwiceDifferentResults(t *testing.T) {
	h1, err := hashPassword("Sup3rSecret!")
	if err != nil {
		t.Fatal(err)
	}
	h2, err := hashPassword("Sup3rSecret!")
	if err != nil {
		t.Fatal(err)
	}
	if h1 == h2 {
		t.Error("expected two distinct hashes from two hash calls")
	}
}

func TestHashStartsWithBcryptPrefix(t *testing.T) {
	h, err := hashPassword("Sup3rSecret!")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(h, "$2a$") && !strings.HasPrefix(h, "$2b$") {
		t.Errorf("hash %q does not look like a bcrypt hash", h)
	}
}

// TestHashVerifyRoundTrip checks round-trip law L3: hash then verify with
// the same password succeeds; with any other password fails.
func TestHashVerifyRoundTrip(t *testing.T) {
	hash, err := hashPassword("correct horse battery staple!1A")
	if err != nil {
		t.Fatal(err)
	}
	if !verifyPassword(hash, "correct horse battery staple!1A") {
		t.Error("verifyPassword should succeed with the same password")
	}
	if verifyPassword(hash, "wrong password") {
		t.Error("verifyPassword should fail with a different password")
	}
}

// TestTimingAttackMitigation checks property P7: the mean latency ratio
// between verifying against a known-wrong password and verifying against
// the dummy hash (the "user not found" path) stays under 2.0.
func TestTimingAttackMitigation(t *testing.T) {
	hash, err := hashPassword("RealPassword123!")
	if err != nil {
		t.Fatal(err)
	}

	const samples = 5
	var wrongTotal, dummyTotal time.Duration

	for i := 0; i < samples; i++ {
		start := time.Now()
		verifyPassword(hash, "WrongPassword456!")
		wrongTotal += time.Since(start)

		start = time.Now()
		verifyPassword(dummyPasswordHash(), "anything")
		dummyTotal += time.Since(start)
	}

	wrongAvg := wrongTotal / samples
	dummyAvg := dummyTotal / samples

	var ratio float64
	if wrongAvg < dummyAvg {
		ratio = float64(dummyAvg) / float64(wrongAvg)
	} else {
		ratio = float64(wrongAvg) / float64(dummyAvg)
	}
	if ratio >= 2.0 {
		t.Errorf("timing ratio %.2f exceeds 2.0 (wrong=%v dummy=%v)", ratio, wrongAvg, dummyAvg)
	}
}
