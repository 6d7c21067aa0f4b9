package config

import (
	"errors"
	"testing"

	"github.com/99designs/keyring"
)

// mockKeyring is an in-memory keyring for tests.
type mockKeyring struct {
	items map[string]keyring.Item
}

func newMockKeyring() *mockKeyring {
	return &mockKeyring{items: make(map[string]keyring.Item)}
}

func (m *mockKeyring) Get(key string) (keyring.Item, error) {
	item, ok := m.items[key]
	if !ok {
		return keyring.Item{}, keyring.ErrKeyNotFound
	}
	return item, nil
}

func (m *mockKeyring) GetMetadata(key string) (keyring.Metadata, error) {
	return keyring.Metadata{}, nil
}

func (m *mockKeyring) Set(item keyring.Item) error {
	m.items[item.Key] = item
	return nil
}

func (m *mockKeyring) Remove(key string) error {
	if _, ok := m.items[key]; !ok {
		return keyring.ErrKeyNotFound
	}
	delete(m.items, key)
	return nil
}

func (m *mockKeyring) Keys() ([]string, error) {
	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	return keys, nil
}

func useMockKeyring(t *testing.T) *mockKeyring {
	t.Helper()
	mock := newMockKeyring()
	restore := SetOpenKeyring(func(keyring.Config) (keyring.Keyring, error) {
		return mock, nil
	})
	t.Cleanup(restore)
	return mock
}

func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv("HOSTDESK_BASE_URL", "")
	t.Setenv("HOSTDESK_API_TOKEN", "")
	t.Setenv("HOSTDESK_ACCOUNT_ID", "")
	t.Setenv("HOSTDESK_PROFILE", "")
}

func TestSaveAndLoadAccount(t *testing.T) {
	clearEnv(t)
	useMockKeyring(t)

	account := Account{BaseURL: "https://desk.example.com", APIToken: "tok", AccountID: 3}
	if err := SaveAccount(account); err != nil {
		t.Fatalf("SaveAccount: %v", err)
	}

	loaded, err := LoadAccount()
	if err != nil {
		t.Fatalf("LoadAccount: %v", err)
	}
	if loaded != account {
		t.Errorf("loaded = %+v, want %+v", loaded, account)
	}
	if !HasAccount() {
		t.Error("HasAccount should be true")
	}
}

func TestLoadAccountNotConfigured(t *testing.T) {
	clearEnv(t)
	useMockKeyring(t)

	_, err := LoadAccount()
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestLoadAccountFromEnv(t *testing.T) {
	useMockKeyring(t)
	t.Setenv("HOSTDESK_BASE_URL", "https://desk.example.com/")
	t.Setenv("HOSTDESK_API_TOKEN", "env-tok")
	t.Setenv("HOSTDESK_ACCOUNT_ID", "12")

	account, err := LoadAccount()
	if err != nil {
		t.Fatalf("LoadAccount: %v", err)
	}
	if account.BaseURL != "https://desk.example.com" {
		t.Errorf("BaseURL = %q, trailing slash should be trimmed", account.BaseURL)
	}
	if account.APIToken != "env-tok" || account.AccountID != 12 {
		t.Errorf("account = %+v", account)
	}
}

func TestLoadAccountEnvIncomplete(t *testing.T) {
	useMockKeyring(t)
	t.Setenv("HOSTDESK_BASE_URL", "https://desk.example.com")
	t.Setenv("HOSTDESK_API_TOKEN", "")
	t.Setenv("HOSTDESK_ACCOUNT_ID", "")

	if _, err := LoadAccount(); err == nil {
		t.Fatal("expected error when env is partially set")
	}
}

func TestProfiles(t *testing.T) {
	clearEnv(t)
	useMockKeyring(t)

	if err := SaveProfile("staging", Account{BaseURL: "https://stage.example.com", APIToken: "s", AccountID: 1}); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}
	if err := SaveProfile("prod", Account{BaseURL: "https://desk.example.com", APIToken: "p", AccountID: 2}); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}

	profiles, err := ListProfiles()
	if err != nil {
		t.Fatalf("ListProfiles: %v", err)
	}
	if len(profiles) != 2 {
		t.Fatalf("profiles = %v", profiles)
	}

	current, err := CurrentProfile()
	if err != nil || current != "prod" {
		t.Errorf("CurrentProfile = %q, %v; saving switches the active profile", current, err)
	}

	account, err := LoadProfile("staging")
	if err != nil || account.APIToken != "s" {
		t.Errorf("LoadProfile(staging) = %+v, %v", account, err)
	}

	if err := DeleteProfile("prod"); err != nil {
		t.Fatalf("DeleteProfile: %v", err)
	}
	current, _ = CurrentProfile()
	if current != "staging" {
		t.Errorf("after deleting active profile, current = %q", current)
	}
}

func TestGuestSessionRoundTrip(t *testing.T) {
	clearEnv(t)
	useMockKeyring(t)

	session := GuestSession{
		BaseURL:     "https://desk.example.com",
		GuestID:     44,
		Name:        "Sam",
		Email:       "sam@example.com",
		Token:       "sess",
		StreamToken: "stream",
	}
	if err := SaveGuestSession(session); err != nil {
		t.Fatalf("SaveGuestSession: %v", err)
	}

	loaded, err := LoadGuestSession("https://desk.example.com")
	if err != nil {
		t.Fatalf("LoadGuestSession: %v", err)
	}
	if loaded != session {
		t.Errorf("loaded = %+v", loaded)
	}

	// Sessions are scoped per server host.
	if _, err := LoadGuestSession("https://other.example.com"); !errors.Is(err, ErrNoGuestSession) {
		t.Errorf("expected ErrNoGuestSession for other host, got %v", err)
	}

	if err := DeleteGuestSession("https://desk.example.com"); err != nil {
		t.Fatalf("DeleteGuestSession: %v", err)
	}
	if _, err := LoadGuestSession("https://desk.example.com"); !errors.Is(err, ErrNoGuestSession) {
		t.Errorf("expected ErrNoGuestSession after delete, got %v", err)
	}
	// Deleting again is not an error.
	if err := DeleteGuestSession("https://desk.example.com"); err != nil {
		t.Errorf("second delete: %v", err)
	}
}

func TestShouldForceFileBackend(t *testing.T) {
	tests := []struct {
		goos, backend, dbus string
		want                bool
	}{
		{"linux", keyringBackendAuto, "", true},
		{"linux", keyringBackendAuto, "unix:path=/run/user/1000/bus", false},
		{"darwin", keyringBackendAuto, "", false},
		{"darwin", keyringBackendFile, "", true},
		{"linux", keyringBackendSystem, "", false},
	}
	for _, tt := range tests {
		if got := shouldForceFileBackend(tt.goos, tt.backend, tt.dbus); got != tt.want {
			t.Errorf("shouldForceFileBackend(%q,%q,%q) = %v", tt.goos, tt.backend, tt.dbus, got)
		}
	}
}

func TestResolvePortalBaseURL(t *testing.T) {
	clearEnv(t)
	useMockKeyring(t)

	if _, err := ResolvePortalBaseURL(""); err == nil {
		t.Fatal("expected error with nothing configured")
	}

	got, err := ResolvePortalBaseURL("https://override.example.com/")
	if err != nil || got != "https://override.example.com" {
		t.Errorf("override: %q, %v", got, err)
	}

	t.Setenv("HOSTDESK_BASE_URL", "https://env.example.com")
	t.Setenv("HOSTDESK_API_TOKEN", "t")
	t.Setenv("HOSTDESK_ACCOUNT_ID", "1")
	got, err = ResolvePortalBaseURL("")
	if err != nil || got != "https://env.example.com" {
		t.Errorf("env: %q, %v", got, err)
	}
}
