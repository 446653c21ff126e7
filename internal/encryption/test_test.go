package encryption

import (
	"bytes"
	"strings"
	"testing"

	"crepo/internal/config"
)

func TestTestEncryptorRoundTrip(t *testing.T) {
	e := NewTestEncryptor()

	var ciphertext bytes.Buffer
	if err := e.Encrypt(strings.NewReader("payload"), &ciphertext); err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if ciphertext.String() == "payload" {
		t.Error("encrypted output equals plaintext")
	}
	if ciphertext.Len() != len("payload")+len(testHeader) {
		t.Errorf("ciphertext length = %d, want %d", ciphertext.Len(), len("payload")+len(testHeader))
	}

	var plaintext bytes.Buffer
	if err := e.Decrypt(bytes.NewReader(ciphertext.Bytes()), &plaintext); err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if plaintext.String() != "payload" {
		t.Errorf("decrypted = %q, want %q", plaintext.String(), "payload")
	}
}

func TestTestEncryptorRejectsBadHeader(t *testing.T) {
	e := NewTestEncryptor()

	var out bytes.Buffer
	if err := e.Decrypt(strings.NewReader("not encrypted data"), &out); err == nil {
		t.Error("Decrypt accepted input without the header")
	}
	if err := e.Decrypt(strings.NewReader("x"), &out); err == nil {
		t.Error("Decrypt accepted truncated input")
	}
}

func TestNewEncryptorFromConfig(t *testing.T) {
	tests := []struct {
		typ     string
		wantNil bool
		wantErr bool
	}{
		{typ: "", wantNil: true},
		{typ: "age"},
		{typ: "test"},
		{typ: "rot13", wantErr: true},
	}
	for _, tt := range tests {
		t.Run("type "+tt.typ, func(t *testing.T) {
			e, err := NewEncryptorFromConfig(config.EncryptionConfig{Type: tt.typ})
			if tt.wantErr {
				if err == nil {
					t.Error("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewEncryptorFromConfig: %v", err)
			}
			if (e == nil) != tt.wantNil {
				t.Errorf("encryptor nil = %v, want %v", e == nil, tt.wantNil)
			}
		})
	}
}
