package security

import (
	"strings"
	"testing"
)

func testHasher(t *testing.T) *Argon2Hasher {
	t.Helper()
	hasher, err := NewArgon2Hasher(Argon2Config{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("NewArgon2Hasher returned error: %v", err)
	}
	return hasher
}

func TestArgon2HasherRoundTrip(t *testing.T) {
	hasher := testHasher(t)
	password := "correct horse battery staple"

	encoded, err := hasher.Hash(password)
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}

	parts := strings.Split(encoded, "$")
	if len(parts) != 5 {
		t.Fatalf("unexpected hash format: %q", encoded)
	}
	if parts[0] != argon2Variant || parts[1] != argon2Version {
		t.Fatalf("unexpected header: %s$%s", parts[0], parts[1])
	}
	if parts[2] != "m=8192,t=1,p=1" {
		t.Fatalf("unexpected params: %s", parts[2])
	}

	ok, err := hasher.Verify(password, encoded)
	if err != nil || !ok {
		t.Fatalf("Verify(correct) = %v, %v", ok, err)
	}

	ok, err = hasher.Verify("Tr0ub4dor&3", encoded)
	if err != nil || ok {
		t.Fatalf("Verify(wrong) = %v, %v", ok, err)
	}
}

func TestArgon2HasherSaltsEveryHash(t *testing.T) {
	hasher := testHasher(t)

	first, err := hasher.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	second, err := hasher.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct salted hashes")
	}
}

func TestArgon2HasherVerifiesHashesFromOtherParameters(t *testing.T) {
	old := testHasher(t)
	encoded, err := old.Hash("rotated-params")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}

	current, err := NewArgon2Hasher(Argon2Config{Memory: 16 * 1024, Iterations: 2, Parallelism: 2, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("NewArgon2Hasher returned error: %v", err)
	}
	ok, err := current.Verify("rotated-params", encoded)
	if err != nil || !ok {
		t.Fatalf("expected hash with embedded parameters to verify, got %v, %v", ok, err)
	}
}

func TestArgon2HasherRejectsMalformedHash(t *testing.T) {
	hasher := testHasher(t)

	for _, encoded := range []string{
		"not-a-hash",
		"bcrypt$v=19$m=8192,t=1,p=1$c2FsdA$aGFzaA",
		"argon2id$v=18$m=8192,t=1,p=1$c2FsdA$aGFzaA",
		"argon2id$v=19$m=8192,t=1$c2FsdA$aGFzaA",
	} {
		if _, err := hasher.Verify("password", encoded); err == nil {
			t.Fatalf("expected error for %q", encoded)
		}
	}

	ok, err := hasher.Verify("", "argon2id$v=19$m=8192,t=1,p=1$c2FsdA$aGFzaA")
	if err != nil || ok {
		t.Fatalf("empty password must not verify, got %v, %v", ok, err)
	}
}

func TestNewArgon2HasherValidatesConfig(t *testing.T) {
	if _, err := NewArgon2Hasher(Argon2Config{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}); err == nil {
		t.Fatalf("expected low memory to be rejected")
	}
	if _, err := NewArgon2Hasher(DefaultArgon2Config()); err != nil {
		t.Fatalf("default config must be valid: %v", err)
	}
}
