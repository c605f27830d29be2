package webhook

import "testing"

func TestSignDeterministic(t *testing.T) {
	body := []byte(`{"event_type":"booking.updated"}`)
	a := Sign("secret", "1700000000", body)
	b := Sign("secret", "1700000000", body)
	if a != b {
		t.Fatalf("same inputs produced different signatures: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"id":42}`)
	sig := Sign("whsec_abc", "1700000000", body)

	cases := []struct {
		name     string
		secret   string
		ts       string
		body     []byte
		received string
		want     bool
	}{
		{"valid", "whsec_abc", "1700000000", body, sig, true},
		{"valid with prefix", "whsec_abc", "1700000000", body, "sha256=" + sig, true},
		{"valid with whitespace", "whsec_abc", "1700000000", body, "  " + sig, true},
		{"wrong secret", "whsec_xyz", "1700000000", body, sig, false},
		{"wrong timestamp", "whsec_abc", "1700000001", body, sig, false},
		{"tampered body", "whsec_abc", "1700000000", []byte(`{"id":43}`), sig, false},
		{"not hex", "whsec_abc", "1700000000", body, "zz" + sig[2:], false},
		{"truncated", "whsec_abc", "1700000000", body, sig[:32], false},
		{"empty", "whsec_abc", "1700000000", body, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := VerifySignature(tc.secret, tc.ts, tc.body, tc.received)
			if got != tc.want {
				t.Fatalf("VerifySignature = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSignTimestampBodyBoundary(t *testing.T) {
	// "12.34" must not collide with "1.234": the separator is part of
	// the signed material.
	a := Sign("s", "12", []byte("34"))
	b := Sign("s", "1", []byte("234"))
	if a == b {
		t.Fatal("timestamp/body boundary is ambiguous")
	}
}
