package provider

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestProviderSelectorFileProviderSuccess(t *testing.T) {
	f, fErr := os.CreateTemp("", "TestProviderSelectorFileProviderSuccess.txt")
	if fErr != nil {
		t.Fatal(fErr)
	}
	defer os.Remove(f.Name())
	var expectedPath string = f.Name()
	var ps ProviderSelector
	if err := json.Unmarshal([]byte(`{
      "file": {
        "path": "`+expectedPath+`"
      }
    }`), &ps); err != nil {
		t.Fatal(err)
	}
	if ps.File == nil {
		t.Fatalf("FileProvider not set in ProviderSelector")
	}
	if ps.File.Path != expectedPath {
		t.Fatalf("Expected path \"%s\", got path \"%s\"", expectedPath, ps.File.Path)
	}
	if err := ps.Open(); err != nil {
		t.Fatal(err)
	}
}

func TestProviderSelectorNothingConfigured(t *testing.T) {
	var ps ProviderSelector
	if err := ps.Open(); err == nil {
		t.Fatal("Expected an error for an empty ProviderSelector")
	}
	if _, err := ps.Read(); err == nil {
		t.Fatal("Expected an error when reading without a selected provider")
	}
}

func TestSecretFromFile(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "jwt.key")
	if err := os.WriteFile(testFile, []byte("signing-key\n"), 0600); err != nil {
		t.Fatalf("Could not write test file: %v", err)
	}
	secret, err := Secret("ignored", &ProviderSelector{File: &FileProvider{Path: testFile}})
	if err != nil {
		t.Fatal(err)
	}
	if string(secret) != "signing-key" {
		t.Fatalf("Expected \"signing-key\", got \"%s\"", string(secret))
	}
}

func TestSecretFromEnv(t *testing.T) {
	t.Setenv("LDAPSECURITY_TEST_SECRET", "from-env")
	secret, err := Secret("", &ProviderSelector{Env: &EnvProvider{Name: "LDAPSECURITY_TEST_SECRET"}})
	if err != nil {
		t.Fatal(err)
	}
	if string(secret) != "from-env" {
		t.Fatalf("Expected \"from-env\", got \"%s\"", string(secret))
	}
}

func TestSecretLiteral(t *testing.T) {
	secret, err := Secret("literal", nil)
	if err != nil || string(secret) != "literal" {
		t.Fatalf("Expected \"literal\" and no error, got \"%s\" and %v", string(secret), err)
	}
}
