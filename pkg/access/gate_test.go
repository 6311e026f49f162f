package access

import "testing"

func TestGate_NoPassword_ShortCircuitsAllow(t *testing.T) {
	g := New("", []byte("secret"), false)
	required, verified := g.Check("")
	if required || !verified {
		t.Fatalf("Check() = %v, %v; want false, true", required, verified)
	}
}

func TestGate_VerifyThenCheck_RoundTrips(t *testing.T) {
	g := New("hunter2", []byte("secret"), false)

	required, verified := g.Check("")
	if !required || verified {
		t.Fatalf("initial Check() = %v, %v; want true, false", required, verified)
	}

	ok, token := g.Verify("hunter2", true)
	if !ok || token == "" {
		t.Fatalf("Verify() = %v, %q; want true, non-empty", ok, token)
	}

	required, verified = g.Check(token)
	if !required || !verified {
		t.Fatalf("Check(token) = %v, %v; want true, true", required, verified)
	}
}

func TestGate_VerifyWithSHA256Hex(t *testing.T) {
	g := New("hunter2", []byte("secret"), false)
	const hashed = "f52fbd32b2b3b86ff88ef6c490628285f482af15ddcb29541f94bcf526a3f6c7"
	ok, _ := g.Verify(hashed, false)
	if !ok {
		t.Fatalf("Verify() with pre-hashed password = false, want true")
	}
}

func TestGate_WrongPassword_Rejected(t *testing.T) {
	g := New("hunter2", []byte("secret"), false)
	ok, token := g.Verify("wrong", true)
	if ok || token != "" {
		t.Fatalf("Verify() with wrong password = %v, %q; want false, empty", ok, token)
	}
}

func TestGate_ClearedCookie_NotVerified(t *testing.T) {
	g := New("hunter2", []byte("secret"), false)
	_, verified := g.Check("")
	if verified {
		t.Fatalf("Check() with no cookie should not verify")
	}
}
