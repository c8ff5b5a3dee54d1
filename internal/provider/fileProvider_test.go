package provider

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestFileReadSuccess(t *testing.T) {
	const expectedData string = "cn=admin-password"
	testFile := filepath.Join(t.TempDir(), "bind-password.txt")
	if err := os.WriteFile(testFile, []byte(expectedData+"\n"), 0600); err != nil {
		t.Fatalf("Could not write test file: %v", err)
	}
	var fp Provider = &FileProvider{}
	jErr := json.Unmarshal([]byte(`{
     "path": "`+testFile+`"
	  }`), &fp)
	if jErr != nil {
		t.Fatal(jErr)
	}
	if err := fp.Open(); err != nil {
		t.Fatalf("Could not open file: %v", err)
	}
	data, err := fp.Read()
	if err != nil {
		t.Fatalf("Could not read provided data: %v", err)
	}
	if string(data) != expectedData {
		t.Fatalf("Expected \"%s\", got \"%s\"", expectedData, string(data))
	}
}

func TestFileOpenMissing(t *testing.T) {
	fp := &FileProvider{Path: filepath.Join(t.TempDir(), "missing")}
	if err := fp.Open(); err == nil {
		t.Fatal("Expected an error for a missing file")
	}
	if err := (&FileProvider{}).Open(); err == nil {
		t.Fatal("Expected an error for an empty path")
	}
}
