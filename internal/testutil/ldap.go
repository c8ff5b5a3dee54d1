package testutil

import (
	"testing"
)

// StartMockDirectory runs a MockDirectory and stops it when the test ends.
func StartMockDirectory(t *testing.T, directory *MockDirectory) uint16 {
	t.Helper()
	server := &MockTCPServer{}
	port, err := server.Start(directory.Handle, func(err error) { t.Error("Error: ", err) })
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(server.Close)
	return port
}

// StartMockMemCache runs a MockMemCache and stops it when the test ends.
// It returns the host:port to pass to memcache.New.
func StartMockMemCache(t *testing.T, cache *MockMemCache) string {
	t.Helper()
	server := &MockTCPServer{}
	if _, err := server.Start(cache.MockMemCachedMsgHandler, func(err error) { t.Error("Error: ", err) }); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(server.Close)
	return server.Addr()
}
