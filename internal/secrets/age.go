package secrets

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
)

// AgeEncryptor seals and opens blobs with a single X25519 age identity.
type AgeEncryptor struct {
	identity  *age.X25519Identity
	recipient *age.X25519Recipient
}

// NewAgeEncryptor loads the first AGE-SECRET-KEY line from the file at path.
func NewAgeEncryptor(path string) (*AgeEncryptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open age key: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		id, err := age.ParseX25519Identity(line)
		if err != nil {
			return nil, fmt.Errorf("parse age key %s: %w", path, err)
		}
		return newEncryptor(id), nil
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read age key: %w", err)
	}
	return nil, fmt.Errorf("no age identity in %s", path)
}

// EnsureKeyFile loads the identity at path, generating and writing a new one
// (mode 0600) if the file does not exist.
func EnsureKeyFile(path string) (*AgeEncryptor, error) {
	enc, err := NewAgeEncryptor(path)
	if err == nil {
		return enc, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	id, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generate age key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}
	content := fmt.Sprintf("# public key: %s\n%s\n", id.Recipient(), id)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return nil, fmt.Errorf("write age key: %w", err)
	}
	return newEncryptor(id), nil
}

// NewEphemeralEncryptor returns an encryptor whose key lives only in memory.
// Data sealed with it is unreadable after the process exits.
func NewEphemeralEncryptor() (*AgeEncryptor, error) {
	id, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generate age key: %w", err)
	}
	return newEncryptor(id), nil
}

func newEncryptor(id *age.X25519Identity) *AgeEncryptor {
	return &AgeEncryptor{identity: id, recipient: id.Recipient()}
}

// Recipient returns the public key that blobs are sealed to.
func (e *AgeEncryptor) Recipient() string {
	return e.recipient.String()
}

// Encrypt seals plaintext to the encryptor's recipient.
func (e *AgeEncryptor) Encrypt(plaintext []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, e.recipient)
	if err != nil {
		return nil, fmt.Errorf("age encrypt: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("age encrypt: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("age encrypt: %w", err)
	}
	return buf.Bytes(), nil
}

// Decrypt opens a blob sealed by Encrypt.
func (e *AgeEncryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	r, err := age.Decrypt(bytes.NewReader(ciphertext), e.identity)
	if err != nil {
		return nil, fmt.Errorf("age decrypt: %w", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("age decrypt: %w", err)
	}
	return out, nil
}
