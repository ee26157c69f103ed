// Package cliconfig loads and writes the CLI host's options.txt: the
// line-oriented key=value configuration file that carries the server
// address and pinned signing key, the admin flag, the optional sealed
// auto-login credentials, and the display preferences, per spec.md §6.
// Grounded on original_source/src/options.c's optionsInit/readOptionsFile
// and its default-file bootstrap; the sqlite-backed internal/store and
// x/crypto primitives in internal/cryptoprim play the same roles here
// that SDL_RWops file I/O and the hand-rolled host-id tiling played
// there.
package cliconfig

import (
	"bufio"
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shurlinet/exchatge-client/internal/cryptoprim"
	"github.com/shurlinet/exchatge-client/internal/store"
	"github.com/shurlinet/exchatge-client/internal/wire"
)

// FileName is the config file's name in the working directory, matching
// original_source/src/options.c's OPTIONS_FILE.
const FileName = "options.txt"

// maxFileSize mirrors OPTIONS_FILE's MAX_FILE_SIZE (1 << 10): the file
// is small and line-oriented, never a target for streaming.
const maxFileSize = 1 << 10

const (
	keyAdmin       = "admin"
	keyHost        = "host"
	keyPort        = "port"
	keySSPK        = "sspk"
	keyCredentials = "credentials"
	keyTheme       = "theme"
	keyLanguage    = "language"
)

// Theme selects the CLI host's color scheme, per spec.md §6's `theme`
// option.
type Theme int

const (
	ThemeLight Theme = 0
	ThemeDark  Theme = 1
)

func (t Theme) String() string {
	if t == ThemeDark {
		return "dark"
	}
	return "light"
}

// Language selects the CLI host's message language, per spec.md §6's
// `language` option.
type Language int

const (
	LanguageEnglish Language = 0
	LanguageRussian Language = 1
)

func (l Language) String() string {
	if l == LanguageRussian {
		return "russian"
	}
	return "english"
}

// Credentials is a username/password pair recovered from (or destined
// for) the sealed `credentials` option, enabling auto-login.
type Credentials struct {
	Username string
	Password string
}

// Options is the parsed contents of options.txt.
type Options struct {
	Admin               bool
	Host                string
	Port                uint16
	ServerSignPublicKey ed25519.PublicKey // exactly cryptoprim.KeySize bytes
	Credentials         *Credentials       // nil disables auto-login
	Theme               Theme
	Language            Language
}

// defaultServerSignPublicKey is exchatge's stock deployment key, carried
// over byte-for-byte from the default options.txt content embedded in
// original_source/src/options.c's createDefaultOptionsFileIfNotExists.
// Any operator pointing at a different server must overwrite `sspk` in
// their own options.txt.
var defaultServerSignPublicKey = ed25519.PublicKey{
	255, 23, 21, 243, 148, 177, 186, 0, 73, 34, 173, 130, 234, 251, 83, 130,
	138, 54, 215, 5, 170, 139, 175, 148, 71, 215, 74, 172, 27, 225, 26, 249,
}

func defaultOptions() *Options {
	return &Options{
		Admin:               true,
		Host:                "127.0.0.1",
		Port:                8080,
		ServerSignPublicKey: append(ed25519.PublicKey(nil), defaultServerSignPublicKey...),
		Theme:               ThemeLight,
		Language:            LanguageEnglish,
	}
}

// Load reads path, writing defaultOptions to it first if it does not
// already exist — the same bootstrap sequence as optionsInit's
// createDefaultOptionsFileIfNotExists followed by readOptionsFile.
func Load(path string) (*Options, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := Save(path, defaultOptions()); err != nil {
			return nil, fmt.Errorf("cliconfig: write default %s: %w", path, err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("cliconfig: stat %s: %w", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cliconfig: read %s: %w", path, err)
	}
	if len(data) > maxFileSize {
		return nil, fmt.Errorf("cliconfig: %s exceeds %d bytes", path, maxFileSize)
	}

	opts := &Options{}
	haveSSPK := false

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("cliconfig: malformed line %q", line)
		}

		switch key {
		case keyAdmin:
			opts.Admin = value == "true"
		case keyHost:
			opts.Host = value
		case keyPort:
			port, err := strconv.ParseUint(value, 10, 16)
			if err != nil {
				return nil, fmt.Errorf("cliconfig: parse port %q: %w", value, err)
			}
			opts.Port = uint16(port)
		case keySSPK:
			key, err := parseSSPK(value)
			if err != nil {
				return nil, fmt.Errorf("cliconfig: parse sspk: %w", err)
			}
			opts.ServerSignPublicKey = key
			haveSSPK = true
		case keyCredentials:
			if value == "" {
				opts.Credentials = nil
				continue
			}
			creds, err := decodeCredentials(value)
			if err != nil {
				return nil, fmt.Errorf("cliconfig: decode credentials: %w", err)
			}
			opts.Credentials = creds
		case keyTheme:
			theme, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("cliconfig: parse theme %q: %w", value, err)
			}
			opts.Theme = Theme(theme)
		case keyLanguage:
			language, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("cliconfig: parse language %q: %w", value, err)
			}
			opts.Language = Language(language)
		default:
			return nil, fmt.Errorf("cliconfig: unknown option %q", key)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("cliconfig: scan %s: %w", path, err)
	}
	if !haveSSPK {
		return nil, fmt.Errorf("cliconfig: %s missing required %q key", path, keySSPK)
	}
	return opts, nil
}

// Save writes o to path in options.txt's key=value format, in the same
// admin/host/port/sspk/credentials field order as the original
// distribution's default file, followed by theme/language.
func Save(path string, o *Options) error {
	sspk, err := formatSSPK(o.ServerSignPublicKey)
	if err != nil {
		return err
	}
	creds, err := encodeCredentials(o.Credentials)
	if err != nil {
		return fmt.Errorf("cliconfig: encode credentials: %w", err)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s=%t\n", keyAdmin, o.Admin)
	fmt.Fprintf(&buf, "%s=%s\n", keyHost, o.Host)
	fmt.Fprintf(&buf, "%s=%d\n", keyPort, o.Port)
	fmt.Fprintf(&buf, "%s=%s\n", keySSPK, sspk)
	fmt.Fprintf(&buf, "%s=%s\n", keyCredentials, creds)
	fmt.Fprintf(&buf, "%s=%d\n", keyTheme, o.Theme)
	fmt.Fprintf(&buf, "%s=%d\n", keyLanguage, o.Language)

	if buf.Len() > maxFileSize {
		return fmt.Errorf("cliconfig: encoded options exceed %d bytes", maxFileSize)
	}
	return os.WriteFile(path, buf.Bytes(), 0600)
}

func parseSSPK(value string) (ed25519.PublicKey, error) {
	parts := strings.Split(value, ",")
	if len(parts) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("want %d comma-separated bytes, got %d", ed25519.PublicKeySize, len(parts))
	}
	key := make(ed25519.PublicKey, ed25519.PublicKeySize)
	for i, p := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(p), 10, 8)
		if err != nil {
			return nil, fmt.Errorf("byte %d: %w", i, err)
		}
		key[i] = byte(n)
	}
	return key, nil
}

func formatSSPK(key ed25519.PublicKey) (string, error) {
	if len(key) != ed25519.PublicKeySize {
		return "", fmt.Errorf("cliconfig: server sign public key must be %d bytes, got %d", ed25519.PublicKeySize, len(key))
	}
	parts := make([]string, len(key))
	for i, b := range key {
		parts[i] = strconv.Itoa(int(b))
	}
	return strings.Join(parts, ","), nil
}

// credentialsKey derives the key that seals the `credentials` option,
// per spec.md §6's `derive_key(host_id)`. original_source/src/options.c's
// makeKey() tiled the host id's raw bytes across a 32-byte buffer with no
// hashing; this reuses cryptoprim's Blake2b password-keying primitive
// against the host id bytes instead, the same "hash whatever entropy we
// have into a key" role it already plays for the store password.
func credentialsKey() ([cryptoprim.KeySize]byte, error) {
	hostID, err := store.HostID()
	if err != nil {
		return [cryptoprim.KeySize]byte{}, fmt.Errorf("host id: %w", err)
	}
	return cryptoprim.DeriveKeyFromPassword(hostID)
}

func decodeCredentials(encoded string) (*Credentials, error) {
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("base64: %w", err)
	}
	key, err := credentialsKey()
	if err != nil {
		return nil, err
	}
	plain, err := cryptoprim.Open(key[:], blob)
	if err != nil {
		return nil, err
	}
	if len(plain) != wire.UsernameSize+wire.PasswordSize {
		return nil, fmt.Errorf("unexpected credentials length %d", len(plain))
	}
	username := strings.TrimRight(string(plain[:wire.UsernameSize]), "\x00")
	password := strings.TrimRight(string(plain[wire.UsernameSize:]), "\x00")
	return &Credentials{Username: username, Password: password}, nil
}

func encodeCredentials(c *Credentials) (string, error) {
	if c == nil {
		return "", nil
	}
	if len(c.Username) > wire.UsernameSize || len(c.Password) > wire.PasswordSize {
		return "", fmt.Errorf("username/password exceed wire field sizes (%d/%d bytes)", wire.UsernameSize, wire.PasswordSize)
	}

	body := make([]byte, wire.UsernameSize+wire.PasswordSize)
	copy(body[:wire.UsernameSize], c.Username)
	copy(body[wire.UsernameSize:], c.Password)

	key, err := credentialsKey()
	if err != nil {
		return "", err
	}
	blob, err := cryptoprim.Seal(key[:], body)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(blob), nil
}
