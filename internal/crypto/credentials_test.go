package crypto

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCredentialsRoundTrip(t *testing.T) {
	creds := Credentials{ApiKey: "my-api-key", ApiSecret: "my-api-secret"}

	blob, err := EncryptCredentials(creds, "correct horse battery staple")
	if err != nil {
		t.Fatalf("EncryptCredentials: %v", err)
	}
	if strings.Contains(string(blob), "my-api-key") || strings.Contains(string(blob), "my-api-secret") {
		t.Fatal("ciphertext blob contains plaintext credentials")
	}

	got, err := DecryptCredentials(blob, "correct horse battery staple")
	if err != nil {
		t.Fatalf("DecryptCredentials: %v", err)
	}
	if got != creds {
		t.Errorf("round trip = %+v, want %+v", got, creds)
	}
}

func TestDecryptWrongPassword(t *testing.T) {
	blob, err := EncryptCredentials(Credentials{ApiKey: "k", ApiSecret: "s"}, "right")
	if err != nil {
		t.Fatalf("EncryptCredentials: %v", err)
	}
	if _, err := DecryptCredentials(blob, "wrong"); err == nil {
		t.Fatal("decryption with the wrong password must fail")
	}
}

func TestEncryptRejectsEmptyInputs(t *testing.T) {
	if _, err := EncryptCredentials(Credentials{ApiKey: "k", ApiSecret: "s"}, ""); err == nil {
		t.Error("empty password must be rejected")
	}
	if _, err := EncryptCredentials(Credentials{}, "pw"); err == nil {
		t.Error("empty credentials must be rejected")
	}
}

func TestEncryptionIsSalted(t *testing.T) {
	creds := Credentials{ApiKey: "k", ApiSecret: "s"}
	a, err := EncryptCredentials(creds, "pw")
	if err != nil {
		t.Fatalf("EncryptCredentials: %v", err)
	}
	b, err := EncryptCredentials(creds, "pw")
	if err != nil {
		t.Fatalf("EncryptCredentials: %v", err)
	}
	if string(a) == string(b) {
		t.Error("two encryptions of the same input must differ (random salt and nonce)")
	}
}

func TestLoadCredentials(t *testing.T) {
	creds := Credentials{ApiKey: "file-key", ApiSecret: "file-secret"}
	blob, err := EncryptCredentials(creds, "pw")
	if err != nil {
		t.Fatalf("EncryptCredentials: %v", err)
	}

	path := filepath.Join(t.TempDir(), "credentials.json.enc")
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	got, err := LoadCredentials(path, "pw")
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if got != creds {
		t.Errorf("LoadCredentials = %+v, want %+v", got, creds)
	}

	if _, err := LoadCredentials(filepath.Join(t.TempDir(), "missing.enc"), "pw"); err == nil {
		t.Error("missing file must be an error")
	}
}
