package cliconfig

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shurlinet/exchatge-client/internal/cryptoprim"
	"github.com/shurlinet/exchatge-client/internal/store"
)

func TestLoadWritesDefaultWhenMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("precondition: %s should not exist yet", path)
	}

	opts, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Load did not write %s: %v", path, err)
	}

	if !opts.Admin {
		t.Error("default Admin = false, want true")
	}
	if opts.Host != "127.0.0.1" {
		t.Errorf("default Host = %q, want 127.0.0.1", opts.Host)
	}
	if opts.Port != 8080 {
		t.Errorf("default Port = %d, want 8080", opts.Port)
	}
	if len(opts.ServerSignPublicKey) != 32 {
		t.Fatalf("default ServerSignPublicKey len = %d, want 32", len(opts.ServerSignPublicKey))
	}
	if opts.Credentials != nil {
		t.Error("default Credentials should be nil")
	}
	if opts.Theme != ThemeLight {
		t.Errorf("default Theme = %v, want ThemeLight", opts.Theme)
	}
	if opts.Language != LanguageEnglish {
		t.Errorf("default Language = %v, want LanguageEnglish", opts.Language)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)

	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	want := &Options{
		Admin:               false,
		Host:                "10.0.0.5",
		Port:                4242,
		ServerSignPublicKey: key,
		Credentials:         &Credentials{Username: "alice", Password: "correct horse"},
		Theme:               ThemeDark,
		Language:            LanguageRussian,
	}

	if err := Save(path, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got.Admin != want.Admin {
		t.Errorf("Admin = %v, want %v", got.Admin, want.Admin)
	}
	if got.Host != want.Host {
		t.Errorf("Host = %q, want %q", got.Host, want.Host)
	}
	if got.Port != want.Port {
		t.Errorf("Port = %d, want %d", got.Port, want.Port)
	}
	for i := range key {
		if got.ServerSignPublicKey[i] != key[i] {
			t.Fatalf("ServerSignPublicKey[%d] = %d, want %d", i, got.ServerSignPublicKey[i], key[i])
		}
	}
	if got.Theme != want.Theme {
		t.Errorf("Theme = %v, want %v", got.Theme, want.Theme)
	}
	if got.Language != want.Language {
		t.Errorf("Language = %v, want %v", got.Language, want.Language)
	}
	if got.Credentials == nil {
		t.Fatal("Credentials = nil, want non-nil")
	}
	if got.Credentials.Username != "alice" || got.Credentials.Password != "correct horse" {
		t.Errorf("Credentials = %+v, want {alice correct horse}", got.Credentials)
	}
}

func TestSaveWithoutCredentialsLeavesOptionEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)

	opts := defaultOptions()
	if err := Save(path, opts); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "credentials=\n") {
		t.Errorf("expected empty credentials line, got:\n%s", data)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Credentials != nil {
		t.Errorf("Credentials = %+v, want nil", got.Credentials)
	}
}

func TestCredentialsAreSealedUnderHostID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)

	opts := defaultOptions()
	opts.Credentials = &Credentials{Username: "bob", Password: "hunter2"}
	if err := Save(path, opts); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if strings.Contains(string(data), "bob") || strings.Contains(string(data), "hunter2") {
		t.Fatal("options.txt leaks plaintext username/password")
	}

	hostID, err := store.HostID()
	if err != nil {
		t.Fatalf("store.HostID: %v", err)
	}
	if len(hostID) == 0 {
		t.Fatal("store.HostID returned empty id")
	}

	var encoded string
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "credentials=") {
			encoded = strings.TrimPrefix(line, "credentials=")
		}
	}
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("decode credentials: %v", err)
	}
	key, err := cryptoprim.DeriveKeyFromPassword(hostID)
	if err != nil {
		t.Fatalf("derive host-id key: %v", err)
	}
	if _, err := cryptoprim.Open(key[:], blob); err != nil {
		t.Fatalf("credentials do not open under the host-id key: %v", err)
	}
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	sspk := strings.TrimSuffix(strings.Repeat("1,", 32), ",")
	if err := os.WriteFile(path, []byte("admin=true\nhost=127.0.0.1\nport=8080\nsspk="+sspk+"\nbogus=1\n"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("Load with unknown key succeeded, want error")
	}
}

func TestLoadRejectsMalformedSSPK(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	content := "admin=true\nhost=127.0.0.1\nport=8080\nsspk=1,2,3\ncredentials=\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("Load with truncated sspk succeeded, want error")
	}
}

func TestLoadRejectsMissingSSPK(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	content := "admin=true\nhost=127.0.0.1\nport=8080\ncredentials=\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("Load without sspk succeeded, want error")
	}
}

func TestEncodeCredentialsRejectsOversizedFields(t *testing.T) {
	opts := defaultOptions()
	opts.Credentials = &Credentials{Username: "this-username-is-far-too-long-for-the-wire-field", Password: "x"}
	if err := Save(filepath.Join(t.TempDir(), FileName), opts); err == nil {
		t.Fatal("Save with oversized username succeeded, want error")
	}
}
