package ldapIdp

import (
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/pp23/ldapsecurity/internal/authn"
)

func TestParseSearchFilterEscapesUsername(t *testing.T) {
	cfg := CreateConfig()
	cfg.SearchFilter = "  (&(objectClass=person)(uid={{.Username}}))\n"
	filter, err := ParseSearchFilter(cfg, "jo*)(uid=*")
	if err != nil {
		t.Fatal(err)
	}
	expected := `(&(objectClass=person)(uid=jo\2a\29\28uid=\2a))`
	if filter != expected {
		t.Fatalf("Expected filter %s, got %s", expected, filter)
	}
}

func TestParseSearchFilterInvalidTemplate(t *testing.T) {
	cfg := CreateConfig()
	cfg.SearchFilter = "(uid={{.Username)"
	if _, err := ParseSearchFilter(cfg, "jane"); err == nil {
		t.Fatal("Expected template error, got nil")
	}
}

func TestGroupFilterNested(t *testing.T) {
	cfg := CreateConfig()
	entry := ldap.NewEntry("cn=jane,dc=example,dc=org", nil)
	filter := groupFilter(cfg, entry, "jane")
	if filter != "(|(member=cn=jane,dc=example,dc=org)(uniqueMember=cn=jane,dc=example,dc=org)(memberUid=jane))" {
		t.Fatalf("Unexpected group filter %s", filter)
	}
	cfg.EnableNestedGroupFilter = true
	filter = groupFilter(cfg, entry, "jane")
	if filter != "(|(member=cn=jane,dc=example,dc=org)(uniqueMember=cn=jane,dc=example,dc=org)(memberUid=jane)(member:1.2.840.113556.1.4.1941:=cn=jane,dc=example,dc=org))" {
		t.Fatalf("Unexpected nested group filter %s", filter)
	}
}

func TestLdapCheckAllowedUsers(t *testing.T) {
	cfg := CreateConfig()
	entry := ldap.NewEntry("cn=Jane,dc=example,dc=org", nil)
	if LdapCheckAllowedUsers(cfg, entry, "jane") {
		t.Fatal("Expected no match without allowed users")
	}
	cfg.AllowedUsers = []string{"JANE"}
	if !LdapCheckAllowedUsers(cfg, entry, "jane") {
		t.Fatal("Expected username match")
	}
	cfg.AllowedUsers = []string{"cn=jane,dc=example,dc=org"}
	if !LdapCheckAllowedUsers(cfg, entry, "other") {
		t.Fatal("Expected DN match")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err      error
		expected error
	}{
		{ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("invalid")), authn.ErrBadCredentials},
		{ldap.NewError(ldap.ErrorEmptyPassword, errors.New("empty")), authn.ErrBadCredentials},
		{errUserNotFound, authn.ErrBadCredentials},
		{ldap.NewError(ldap.ErrorNetwork, errors.New("dial")), authn.ErrDirectoryUnavailable},
		{ldap.NewError(ldap.LDAPResultBusy, errors.New("busy")), authn.ErrDirectoryUnavailable},
		{fmt.Errorf("BindDN Error: %w", ldap.NewError(ldap.LDAPResultUnavailable, errors.New("down"))), authn.ErrDirectoryUnavailable},
		{&net.OpError{Op: "dial", Err: errors.New("refused")}, authn.ErrDirectoryUnavailable},
		{authn.ErrUserNotAuthorized, authn.ErrUserNotAuthorized},
	}
	for _, test := range tests {
		if got := classify(test.err); !errors.Is(got, test.expected) {
			t.Errorf("Expected %v to classify as %v, got %v", test.err, test.expected, got)
		}
	}
	if classify(nil) != nil {
		t.Fatal("Expected nil for nil error")
	}
}

func TestGroupName(t *testing.T) {
	if name := groupName("cn=admins,ou=groups,dc=example,dc=org"); name != "admins" {
		t.Fatalf("Expected admins, got %s", name)
	}
	if name := groupName("developers"); name != "developers" {
		t.Fatalf("Expected developers, got %s", name)
	}
}
