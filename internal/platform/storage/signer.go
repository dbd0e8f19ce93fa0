package storage

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"google.golang.org/api/iamcredentials/v1"
	"google.golang.org/api/option"
)

// Signer signs V4 upload URLs on behalf of a service account.
type Signer interface {
	// Email is the GoogleAccessID placed in signed URLs.
	Email() string
	SignBytes(ctx context.Context, payload []byte) ([]byte, error)
}

// KeySigner signs with a downloaded service account key. It suits local runs and environments
// without workload identity.
type KeySigner struct {
	email string
	key   *rsa.PrivateKey
}

// NewKeySignerFromFile reads a service account JSON key.
func NewKeySignerFromFile(path string) (*KeySigner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("storage: read service account key: %w", err)
	}
	return NewKeySignerFromJSON(data)
}

// NewKeySignerFromJSON parses the client_email and private_key fields of a service account key.
func NewKeySignerFromJSON(data []byte) (*KeySigner, error) {
	var doc struct {
		ClientEmail string `json:"client_email"`
		PrivateKey  string `json:"private_key"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("storage: decode service account key: %w", err)
	}
	email := strings.TrimSpace(doc.ClientEmail)
	if email == "" {
		return nil, errors.New("storage: client_email missing in service account key")
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(doc.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("storage: parse private key: %w", err)
	}
	return &KeySigner{email: email, key: key}, nil
}

// Email implements Signer.
func (s *KeySigner) Email() string { return s.email }

// SignBytes implements Signer with RSASSA-PKCS1-v1_5 over SHA-256.
func (s *KeySigner) SignBytes(ctx context.Context, payload []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	digest := sha256.Sum256(payload)
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("storage: sign payload: %w", err)
	}
	return sig, nil
}

// IAMSigner delegates signing to the IAM Credentials signBlob API, so the runtime service account
// needs no exported key. The caller must hold roles/iam.serviceAccountTokenCreator on email.
type IAMSigner struct {
	email   string
	service *iamcredentials.Service
}

// NewIAMSigner constructs a signer for the given service account.
func NewIAMSigner(ctx context.Context, email string, opts ...option.ClientOption) (*IAMSigner, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, errors.New("storage: signer service account email is required")
	}
	service, err := iamcredentials.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: iam credentials client: %w", err)
	}
	return &IAMSigner{email: email, service: service}, nil
}

// Email implements Signer.
func (s *IAMSigner) Email() string { return s.email }

// SignBytes implements Signer.
func (s *IAMSigner) SignBytes(ctx context.Context, payload []byte) ([]byte, error) {
	name := "projects/-/serviceAccounts/" + s.email
	resp, err := s.service.Projects.ServiceAccounts.SignBlob(name, &iamcredentials.SignBlobRequest{
		Payload: base64.StdEncoding.EncodeToString(payload),
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("storage: sign blob: %w", err)
	}
	return base64.StdEncoding.DecodeString(resp.SignedBlob)
}
