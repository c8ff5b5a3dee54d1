package testutil

import (
	"fmt"
	"os"
)

// TestConfig holds credentials for tests running against a real directory.
type TestConfig struct {
	URL          string
	BaseDN       string
	TestUsername string
	TestPassword string
}

const (
	testURLEnvKey      = "LDAPSECURITY_TEST_URL"
	testBaseDNEnvKey   = "LDAPSECURITY_TEST_BASE_DN"
	testUsernameEnvKey = "LDAPSECURITY_TEST_USERNAME"
	testPasswordEnvKey = "LDAPSECURITY_TEST_PASSWORD"
)

// TestConfigFromEnv reads the directory credentials from the environment.
// It fails when one of the variables is missing so callers can skip.
func TestConfigFromEnv() (TestConfig, error) {
	var cfg TestConfig
	for key, target := range map[string]*string{
		testURLEnvKey:      &cfg.URL,
		testBaseDNEnvKey:   &cfg.BaseDN,
		testUsernameEnvKey: &cfg.TestUsername,
		testPasswordEnvKey: &cfg.TestPassword,
	} {
		value, ok := os.LookupEnv(key)
		if !ok {
			return cfg, fmt.Errorf("%s not set", key)
		}
		*target = value
	}
	return cfg, nil
}
