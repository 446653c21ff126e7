package encryption

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"crepo/internal/config"
)

func newTestAgeEncryptor(t *testing.T) *AgeEncryptor {
	t.Helper()
	dir := t.TempDir()
	e := NewAgeEncryptor(config.EncryptionConfig{
		Type:          "age",
		RecipientPath: filepath.Join(dir, "recipient.txt"),
		IdentityPath:  filepath.Join(dir, "identity.txt"),
	})
	if err := e.Setup(); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	return e
}

func TestAgeSetup(t *testing.T) {
	e := newTestAgeEncryptor(t)

	recipient, err := os.ReadFile(e.recipientPath)
	if err != nil {
		t.Fatalf("reading recipient file: %v", err)
	}
	if !strings.HasPrefix(string(recipient), "age1") {
		t.Errorf("recipient file = %q, want age1... public key", recipient)
	}

	identity, err := os.ReadFile(e.identityPath)
	if err != nil {
		t.Fatalf("reading identity file: %v", err)
	}
	if !strings.HasPrefix(string(identity), "AGE-SECRET-KEY-1") {
		t.Errorf("identity file does not hold an age secret key")
	}

	info, err := os.Stat(e.identityPath)
	if err != nil {
		t.Fatalf("stat identity file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("identity file mode = %o, want 0600", perm)
	}
}

func TestAgeSetupRefusesExistingKeys(t *testing.T) {
	e := newTestAgeEncryptor(t)
	if err := e.Setup(); err == nil {
		t.Error("second Setup succeeded; existing keys would be overwritten")
	}
}

func TestAgeRoundTrip(t *testing.T) {
	e := newTestAgeEncryptor(t)
	plaintext := []byte("the quick brown fox")

	var ciphertext bytes.Buffer
	if err := e.Encrypt(bytes.NewReader(plaintext), &ciphertext); err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Contains(ciphertext.Bytes(), plaintext) {
		t.Error("ciphertext contains the plaintext")
	}

	var decrypted bytes.Buffer
	if err := e.Decrypt(bytes.NewReader(ciphertext.Bytes()), &decrypted); err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(decrypted.Bytes(), plaintext) {
		t.Errorf("decrypted = %q, want %q", decrypted.Bytes(), plaintext)
	}
}

func TestAgeDecryptWithWrongIdentity(t *testing.T) {
	e1 := newTestAgeEncryptor(t)
	e2 := newTestAgeEncryptor(t)

	var ciphertext bytes.Buffer
	if err := e1.Encrypt(strings.NewReader("secret"), &ciphertext); err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	var out bytes.Buffer
	if err := e2.Decrypt(bytes.NewReader(ciphertext.Bytes()), &out); err == nil {
		t.Error("Decrypt succeeded with a different identity")
	}
}

func TestAgeEncryptWithoutKeys(t *testing.T) {
	dir := t.TempDir()
	e := NewAgeEncryptor(config.EncryptionConfig{
		RecipientPath: filepath.Join(dir, "missing-recipient.txt"),
		IdentityPath:  filepath.Join(dir, "missing-identity.txt"),
	})

	var out bytes.Buffer
	if err := e.Encrypt(strings.NewReader("x"), &out); err == nil {
		t.Error("Encrypt succeeded without a recipient file")
	}
	if err := e.Decrypt(strings.NewReader("x"), &out); err == nil {
		t.Error("Decrypt succeeded without an identity file")
	}
}
