package storage

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"testing"
)

func TestKeySignerFromJSONSignsVerifiably(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	data, _ := json.Marshal(map[string]string{
		"client_email": "uploader@krishisetu.iam.gserviceaccount.com",
		"private_key":  string(pemKey),
	})

	signer, err := NewKeySignerFromJSON(data)
	if err != nil {
		t.Fatalf("NewKeySignerFromJSON: %v", err)
	}
	if signer.Email() != "uploader@krishisetu.iam.gserviceaccount.com" {
		t.Fatalf("unexpected email %s", signer.Email())
	}

	payload := []byte("GOOG4-RSA-SHA256\n20240310T093000Z")
	sig, err := signer.SignBytes(context.Background(), payload)
	if err != nil {
		t.Fatalf("SignBytes: %v", err)
	}
	digest := sha256.Sum256(payload)
	if err := rsa.VerifyPKCS1v15(&key.PublicKey, crypto.SHA256, digest[:], sig); err != nil {
		t.Fatalf("signature does not verify: %v", err)
	}
}

func TestKeySignerRejectsIncompleteKeys(t *testing.T) {
	cases := map[string]string{
		"not json":      "{",
		"missing email": `{"private_key":"x"}`,
		"bad pem":       `{"client_email":"a@b","private_key":"not a key"}`,
	}
	for name, raw := range cases {
		if _, err := NewKeySignerFromJSON([]byte(raw)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestKeySignerHonoursCancelledContext(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer := &KeySigner{email: "a@b", key: key}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := signer.SignBytes(ctx, []byte("x")); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestNewIAMSignerRequiresEmail(t *testing.T) {
	if _, err := NewIAMSigner(context.Background(), " "); err == nil {
		t.Fatalf("expected error for blank email")
	}
}
