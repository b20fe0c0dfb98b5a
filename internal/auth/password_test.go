package auth

import (
	"errors"
	"strings"
	"testing"
)

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("changeme")
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}
	if !strings.HasPrefix(hash, "pbkdf2:sha256:600000$") {
		t.Fatalf("HashPassword returned unexpected format: %s", hash)
	}
	if strings.Contains(hash, "changeme") {
		t.Fatal("hash contains the plaintext")
	}
}

func TestHashPassword_UniqueSalt(t *testing.T) {
	h1, err := HashPassword("changeme")
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}
	h2, err := HashPassword("changeme")
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}
	if h1 == h2 {
		t.Fatal("two hashes of the same password must differ by salt")
	}
}

func TestCheckPassword_Correct(t *testing.T) {
	hash, err := HashPassword("changeme")
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}

	valid, err := CheckPassword("changeme", hash)
	if err != nil {
		t.Fatalf("CheckPassword error: %v", err)
	}
	if !valid {
		t.Fatal("Correct password was rejected")
	}
}

func TestCheckPassword_Wrong(t *testing.T) {
	hash, err := HashPassword("changeme")
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}

	valid, err := CheckPassword("wrongpassword", hash)
	if err != nil {
		t.Fatalf("CheckPassword error: %v", err)
	}
	if valid {
		t.Fatal("Wrong password was accepted")
	}
}

func TestCheckPassword_VariousInputs(t *testing.T) {
	inputs := []string{"", " ", "longenough1", "пароль-с-юникодом", strings.Repeat("x", 256)}

	for _, in := range inputs {
		hash, err := hashWithIterations(in, 1000)
		if err != nil {
			t.Fatalf("hashWithIterations(%q) error: %v", in, err)
		}
		valid, err := CheckPassword(in, hash)
		if err != nil || !valid {
			t.Errorf("CheckPassword(%q) = %v, %v; want true, nil", in, valid, err)
		}
		valid, _ = CheckPassword(in+"x", hash)
		if valid {
			t.Errorf("CheckPassword(%q+x) accepted a different password", in)
		}
	}
}

func TestCheckPassword_KnownVector(t *testing.T) {
	tests := []struct {
		name     string
		password string
		encoded  string
	}{
		// PBKDF2-HMAC-SHA256("password", "salt", 1, 32) from RFC 7914.
		{"rfc 7914", "password", "pbkdf2:sha256:1$salt$120fb6cffcf8b32c43e7225256c4f837a86548c92ccc35480805987cb70be17b"},
		// Produced by werkzeug.security.generate_password_hash(method="pbkdf2:sha256", salt_length=16).
		{"werkzeug 600000", "longenough1", "pbkdf2:sha256:600000$AbCdEfGhIjKlMnOp$d200c262272f1284e283167cfb84d9c27165e8adb03837e278f2cb7d7ed64d05"},
		{"werkzeug 260000", "hunter22", "pbkdf2:sha256:260000$Zq8sKw3LmN0pRt5v$8e692dbac8efd7b6ca7aa5c687172ab87ab3b285e20ae93523a1aca4a2f9901b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, err := CheckPassword(tt.password, tt.encoded)
			if err != nil {
				t.Fatalf("CheckPassword error: %v", err)
			}
			if !valid {
				t.Fatal("known vector rejected")
			}
			if ok, _ := CheckPassword(tt.password+"x", tt.encoded); ok {
				t.Fatal("known vector accepted a different password")
			}
		})
	}
}

func TestHashPassword_SaltFormat(t *testing.T) {
	encoded, err := HashPassword("changeme")
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}

	parts := strings.Split(encoded, "$")
	if len(parts) != 3 {
		t.Fatalf("encoded hash %q has %d parts, want 3", encoded, len(parts))
	}
	if len(parts[1]) != PBKDF2SaltLen {
		t.Errorf("salt length = %d, want %d", len(parts[1]), PBKDF2SaltLen)
	}
	for _, c := range parts[1] {
		if !strings.ContainsRune(saltChars, c) {
			t.Errorf("salt %q contains %q outside the alphanumeric alphabet", parts[1], c)
		}
	}
}

func TestCheckPassword_Malformed(t *testing.T) {
	tests := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"argon2", "$argon2id$v=19$m=19456,t=2,p=1$c2FsdA$aGFzaA"},
		{"wrong method", "pbkdf2:sha1:1000$c2FsdA$abcd"},
		{"bad iterations", "pbkdf2:sha256:abc$c2FsdA$abcd"},
		{"zero iterations", "pbkdf2:sha256:0$c2FsdA$abcd"},
		{"empty salt", "pbkdf2:sha256:1000$$abcd"},
		{"bad hash", "pbkdf2:sha256:1000$c2FsdA$zz"},
		{"missing parts", "pbkdf2:sha256:1000$c2FsdA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, err := CheckPassword("password", tt.hash)
			if valid {
				t.Fatal("malformed hash accepted")
			}
			if !errors.Is(err, ErrMalformedHash) {
				t.Fatalf("err = %v, want ErrMalformedHash", err)
			}
		})
	}
}

func TestNeedsRehash(t *testing.T) {
	current, err := HashPassword("changeme")
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}
	old, err := hashWithIterations("changeme", 260000)
	if err != nil {
		t.Fatalf("hashWithIterations error: %v", err)
	}

	if NeedsRehash(current) {
		t.Error("NeedsRehash(current) = true, want false")
	}
	if !NeedsRehash(old) {
		t.Error("NeedsRehash(old iterations) = false, want true")
	}
	if !NeedsRehash("garbage") {
		t.Error("NeedsRehash(garbage) = false, want true")
	}
}
