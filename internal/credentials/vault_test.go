package credentials

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func openTestVault(t *testing.T) *Vault {
	t.Helper()
	dir := t.TempDir()
	v, err := Open(filepath.Join(dir, "credentials.json"), filepath.Join(dir, ".age-key"))
	if err != nil {
		t.Fatalf("open vault: %v", err)
	}
	return v
}

func TestVault_SetGet(t *testing.T) {
	v := openTestVault(t)

	if err := v.Set("openai", "api_key", "sk-12345"); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := v.Get("openai", "api_key")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok || got != "sk-12345" {
		t.Errorf("get = %q, %v", got, ok)
	}
}

func TestVault_GetMissing(t *testing.T) {
	v := openTestVault(t)

	got, ok, err := v.Get("gmail", "token")
	if err != nil {
		t.Fatalf("absence must not be an error: %v", err)
	}
	if ok || got != "" {
		t.Errorf("missing credential = %q, %v", got, ok)
	}
}

func TestVault_Overwrite(t *testing.T) {
	v := openTestVault(t)

	if err := v.Set("openai", "api_key", "old"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := v.Set("openai", "api_key", "new"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, _, _ := v.Get("openai", "api_key")
	if got != "new" {
		t.Errorf("get after overwrite = %q", got)
	}
}

func TestVault_Delete(t *testing.T) {
	v := openTestVault(t)

	if err := v.Set("openai", "api_key", "sk-12345"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := v.Delete("openai", "api_key"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := v.Get("openai", "api_key"); ok {
		t.Error("credential survived delete")
	}

	// Deleting a missing entry is a no-op.
	if err := v.Delete("openai", "api_key"); err != nil {
		t.Errorf("double delete: %v", err)
	}
}

func TestVault_List(t *testing.T) {
	v := openTestVault(t)

	v.Set("openai", "api_key", "a")
	v.Set("gmail", "token", "b")

	names, err := v.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(names) != 2 || names[0] != "gmail/token" || names[1] != "openai/api_key" {
		t.Errorf("list = %v", names)
	}
}

func TestVault_EncryptedAtRest(t *testing.T) {
	dir := t.TempDir()
	vaultPath := filepath.Join(dir, "credentials.json")
	v, err := Open(vaultPath, filepath.Join(dir, ".age-key"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := v.Set("openai", "api_key", "sk-secret-value"); err != nil {
		t.Fatalf("set: %v", err)
	}

	raw, err := os.ReadFile(vaultPath)
	if err != nil {
		t.Fatalf("read vault file: %v", err)
	}
	if strings.Contains(string(raw), "sk-secret-value") {
		t.Error("plaintext credential on disk")
	}
	if !strings.Contains(string(raw), "ENC[age:") {
		t.Error("vault entries are not age blobs")
	}
}

func TestVault_PersistsAcrossOpens(t *testing.T) {
	dir := t.TempDir()
	vaultPath := filepath.Join(dir, "credentials.json")
	keyPath := filepath.Join(dir, ".age-key")

	v1, err := Open(vaultPath, keyPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := v1.Set("openai", "api_key", "sk-12345"); err != nil {
		t.Fatalf("set: %v", err)
	}

	// Reopening with the same key file decrypts the same values.
	v2, err := Open(vaultPath, keyPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, ok, err := v2.Get("openai", "api_key")
	if err != nil || !ok || got != "sk-12345" {
		t.Errorf("get after reopen = %q, %v, %v", got, ok, err)
	}
}

func TestVault_RejectsEmptyNames(t *testing.T) {
	v := openTestVault(t)
	if err := v.Set("", "api_key", "x"); err == nil {
		t.Error("empty service accepted")
	}
	if err := v.Set("openai", "", "x"); err == nil {
		t.Error("empty key accepted")
	}
}
