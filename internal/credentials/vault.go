// Package credentials stores per-service secrets (API keys, tokens) that
// agents need at execution time. Values are encrypted at rest with age;
// the vault file itself is plain JSON mapping service/key to ciphertext.
package credentials

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"filippo.io/age"

	"github.com/Jonnycatx/agentforge-runner/internal/config"
)

const (
	encPrefix = "ENC[age:"
	encSuffix = "]"
)

// KeyPath returns the default age key file path: $AGENTFORGE_PATH/.age-key.
func KeyPath() string {
	return filepath.Join(config.DataPath(), ".age-key")
}

// VaultPath returns the default vault file path: $AGENTFORGE_PATH/credentials.json.
func VaultPath() string {
	return filepath.Join(config.DataPath(), "credentials.json")
}

// Vault is a file-backed credential store. Every value is an age-encrypted
// blob; the identity never leaves the process.
type Vault struct {
	path     string
	identity *age.X25519Identity

	mu sync.Mutex
}

// Open loads the vault at path, generating the age key file if absent.
func Open(path, keyPath string) (*Vault, error) {
	if err := generateIdentity(keyPath); err != nil {
		return nil, err
	}
	identity, err := loadIdentity(keyPath)
	if err != nil {
		return nil, err
	}
	return &Vault{path: path, identity: identity}, nil
}

// generateIdentity creates an X25519 key pair at path with 0o600. Idempotent:
// an existing key file is left alone.
func generateIdentity(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("credentials: generate identity: %w", err)
	}

	content := fmt.Sprintf("# public key: %s\n%s\n", identity.Recipient().String(), identity.String())
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("credentials: create key directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("credentials: write key: %w", err)
	}
	return nil
}

func loadIdentity(path string) (*age.X25519Identity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("credentials: open key: %w", err)
	}
	defer f.Close()

	identities, err := age.ParseIdentities(f)
	if err != nil {
		return nil, fmt.Errorf("credentials: parse identities: %w", err)
	}
	if len(identities) == 0 {
		return nil, fmt.Errorf("credentials: no identities in %s", path)
	}
	id, ok := identities[0].(*age.X25519Identity)
	if !ok {
		return nil, fmt.Errorf("credentials: unexpected identity type in %s", path)
	}
	return id, nil
}

// Set stores a credential value for (service, key).
func (v *Vault) Set(service, key, value string) error {
	if service == "" || key == "" {
		return fmt.Errorf("credentials: service and key are required")
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	entries, err := v.load()
	if err != nil {
		return err
	}
	blob, err := encrypt(value, v.identity.Recipient())
	if err != nil {
		return err
	}
	entries[entryName(service, key)] = blob
	return v.save(entries)
}

// Get retrieves a credential. Absence is not an error: it returns ("", false, nil).
func (v *Vault) Get(service, key string) (string, bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	entries, err := v.load()
	if err != nil {
		return "", false, err
	}
	blob, ok := entries[entryName(service, key)]
	if !ok {
		return "", false, nil
	}
	value, err := decrypt(blob, v.identity)
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Delete removes a credential. Deleting a missing entry is a no-op.
func (v *Vault) Delete(service, key string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	entries, err := v.load()
	if err != nil {
		return err
	}
	delete(entries, entryName(service, key))
	return v.save(entries)
}

// List returns the stored service/key names, sorted. Values stay encrypted.
func (v *Vault) List() ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	entries, err := v.load()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func entryName(service, key string) string {
	return service + "/" + key
}

func (v *Vault) load() (map[string]string, error) {
	data, err := os.ReadFile(v.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("credentials: read vault: %w", err)
	}
	entries := map[string]string{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("credentials: parse vault: %w", err)
	}
	return entries, nil
}

func (v *Vault) save(entries map[string]string) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("credentials: marshal vault: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(v.path), 0o755); err != nil {
		return fmt.Errorf("credentials: create vault directory: %w", err)
	}
	if err := os.WriteFile(v.path, data, 0o600); err != nil {
		return fmt.Errorf("credentials: write vault: %w", err)
	}
	return nil
}

func encrypt(plaintext string, recipient *age.X25519Recipient) (string, error) {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipient)
	if err != nil {
		return "", fmt.Errorf("credentials: encrypt init: %w", err)
	}
	if _, err := io.WriteString(w, plaintext); err != nil {
		return "", fmt.Errorf("credentials: encrypt write: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("credentials: encrypt close: %w", err)
	}
	return encPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()) + encSuffix, nil
}

func decrypt(blob string, identity *age.X25519Identity) (string, error) {
	if !strings.HasPrefix(blob, encPrefix) || !strings.HasSuffix(blob, encSuffix) {
		return "", fmt.Errorf("credentials: not an encrypted blob")
	}
	ciphertext, err := base64.StdEncoding.DecodeString(blob[len(encPrefix) : len(blob)-len(encSuffix)])
	if err != nil {
		return "", fmt.Errorf("credentials: base64 decode: %w", err)
	}
	r, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return "", fmt.Errorf("credentials: decrypt: %w", err)
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("credentials: read decrypted: %w", err)
	}
	return string(plain), nil
}
