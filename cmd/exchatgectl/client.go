package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/shurlinet/exchatge-client/internal/cliconfig"
	"github.com/shurlinet/exchatge-client/internal/cryptoprim"
	"github.com/shurlinet/exchatge-client/internal/orchestrator"
	"github.com/shurlinet/exchatge-client/internal/session"
	"github.com/shurlinet/exchatge-client/internal/store"
	"github.com/shurlinet/exchatge-client/internal/wire"
)

// replyTimeout bounds how long a subcommand waits for an asynchronous
// server reply before giving up, the CLI host's stand-in for a user
// watching a GUI for the same event.
const replyTimeout = 10 * time.Second

// client bundles a connected, authenticated-or-authenticating session
// with the background loops that drive it and the store backing it,
// plus one small buffered channel per callback a subcommand might
// need to wait on. Every channel is capacity 1, except messages at 16,
// so a single callback does not block the orchestrator's goroutines
// waiting for a subcommand that has already gotten the answer it
// needed and moved on.
type client struct {
	sess  *session.Session
	orch  *orchestrator.Orchestrator
	store *store.Store
	opts  *cliconfig.Options

	loggedIn     chan uint32
	loginFailed  chan struct{}
	registered   chan bool
	errored      chan int32
	disconnected chan struct{}
	usersFetched chan []*wire.UserInfo
	messages     chan receivedMessage
	convInvites  chan uint32
	fileInvites  chan session.FileInvite

	metrics     *metrics
	stopMetrics func()

	recv recvFileState
}

type receivedMessage struct {
	fromID    uint32
	timestamp uint64
	text      []byte
}

// recvFileState tracks the single file transfer chat's auto-accept
// loop may be writing to at a time, matching the one-active-exchange
// rule session.fileExchange itself enforces. OnFileChunk fires inside
// ReceiveFileExchange, on the goroutine that called it; start and
// finish run on the file-accepting goroutine around that call. Every
// access takes mu.
type recvFileState struct {
	mu     sync.Mutex
	f      *os.File
	hasher *cryptoprim.HashState
}

func (r *recvFileState) start(f *os.File, hasher *cryptoprim.HashState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.f, r.hasher = f, hasher
}

func (r *recvFileState) write(data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return
	}
	r.f.Write(data)
	r.hasher.Update(data)
}

func (r *recvFileState) finish() (*os.File, [cryptoprim.HashSize]byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, hasher := r.f, r.hasher
	r.f, r.hasher = nil, nil
	if hasher == nil {
		return f, [cryptoprim.HashSize]byte{}
	}
	return f, hasher.Finish()
}

func loadOptions(cmd *cobra.Command) (*cliconfig.Options, string, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = cliconfig.FileName
	}
	opts, err := cliconfig.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("load %s: %w", path, err)
	}
	return opts, path, nil
}

// maybeDumpConfig honors --dump-config: it prints the resolved options
// as YAML (the one place this CLI uses gopkg.in/yaml.v3 — options.txt
// itself stays the spec-mandated key=value format) and tells the
// caller to exit immediately afterward.
func maybeDumpConfig(cmd *cobra.Command, opts *cliconfig.Options) (bool, error) {
	dump, _ := cmd.Flags().GetBool("dump-config")
	if !dump {
		return false, nil
	}
	redacted := struct {
		Admin          bool   `yaml:"admin"`
		Host           string `yaml:"host"`
		Port           uint16 `yaml:"port"`
		HasCredentials bool   `yaml:"has_credentials"`
		Theme          string `yaml:"theme"`
		Language       string `yaml:"language"`
	}{
		Admin:          opts.Admin,
		Host:           opts.Host,
		Port:           opts.Port,
		HasCredentials: opts.Credentials != nil,
		Theme:          opts.Theme.String(),
		Language:       opts.Language.String(),
	}
	out, err := yaml.Marshal(redacted)
	if err != nil {
		return true, fmt.Errorf("marshal config: %w", err)
	}
	fmt.Fprint(os.Stdout, string(out))
	return true, nil
}

// resolvePassword returns the store/login password: the --password
// flag, then saved Credentials.Password, then an interactive prompt
// with echo disabled.
func resolvePassword(cmd *cobra.Command, opts *cliconfig.Options) (string, error) {
	if flagPass, _ := cmd.Flags().GetString("password"); flagPass != "" {
		return flagPass, nil
	}
	if opts.Credentials != nil && opts.Credentials.Password != "" {
		return opts.Credentials.Password, nil
	}
	return readPassphrase(os.Stdout, "Password: ")
}

// readPassphrase reads a passphrase from the terminal without echo.
func readPassphrase(w io.Writer, prompt string) (string, error) {
	fmt.Fprint(w, prompt)
	passBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	return string(passBytes), nil
}

// resolveUsername returns the username to authenticate as: the
// --username flag if set, else saved Credentials.Username.
func resolveUsername(cmd *cobra.Command, opts *cliconfig.Options) (string, error) {
	if flagUser, _ := cmd.Flags().GetString("username"); flagUser != "" {
		return flagUser, nil
	}
	if opts.Credentials != nil && opts.Credentials.Username != "" {
		return opts.Credentials.Username, nil
	}
	return "", fmt.Errorf("no username given: pass --username or save credentials in %s", cliconfig.FileName)
}

// openClient takes the already-loaded options, opens the encrypted
// store under password, connects and handshakes with the server, and starts the
// orchestrator's background loops. Callers must defer c.Close().
func openClient(cmd *cobra.Command, opts *cliconfig.Options, password string) (*client, error) {
	dbPath := filepath.Join(filepath.Dir(optionsPath(cmd)), "exchatge.db")
	st, err := store.Open(dbPath, []byte(password))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	m := newMetrics()
	var stopMetrics func()
	if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
		stopMetrics = serveMetrics(addr, m)
	}

	c := &client{
		store:        st,
		opts:         opts,
		metrics:      m,
		stopMetrics:  stopMetrics,
		loggedIn:     make(chan uint32, 1),
		loginFailed:  make(chan struct{}, 1),
		registered:   make(chan bool, 1),
		errored:      make(chan int32, 1),
		disconnected: make(chan struct{}, 1),
		usersFetched: make(chan []*wire.UserInfo, 1),
		messages:     make(chan receivedMessage, 16),
		convInvites:  make(chan uint32, 1),
		fileInvites:  make(chan session.FileInvite, 1),
	}

	cb := session.Callbacks{
		OnLoggedIn:    func(userID uint32) { c.loggedIn <- userID },
		OnLoginFailed: func() { c.loginFailed <- struct{}{} },
		OnRegistered:  func(success bool) { c.registered <- success },
		OnError:       func(flag int32) { c.errored <- flag },
		OnDisconnected: func() {
			select {
			case c.disconnected <- struct{}{}:
			default:
			}
		},
		OnUsersFetched: func(users []*wire.UserInfo) { c.usersFetched <- users },
		OnMessage: func(fromID uint32, timestamp uint64, text []byte) {
			c.metrics.messagesTotal.WithLabelValues("in").Inc()
			c.messages <- receivedMessage{fromID: fromID, timestamp: timestamp, text: text}
		},
		OnConversationInvite: func(fromID uint32) { c.convInvites <- fromID },
		OnFileInvite: func(fromID uint32, size uint32, hash [32]byte, filename string) {
			c.fileInvites <- session.FileInvite{FromID: fromID, Size: size, Hash: hash, Filename: filename}
		},
		OnFileChunk: func(fromID uint32, index uint32, data []byte) {
			c.metrics.fileBytesTotal.WithLabelValues("in").Add(float64(len(data)))
			c.recv.write(data)
		},
	}

	c.sess = session.New(opts.ServerSignPublicKey, st, cb)
	if err := c.sess.Connect(opts.Host, int(opts.Port)); err != nil {
		m.connectionsTotal.WithLabelValues("failure").Inc()
		st.Close()
		if stopMetrics != nil {
			stopMetrics()
		}
		return nil, fmt.Errorf("connect %s:%d: %w", opts.Host, opts.Port, err)
	}
	m.connectionsTotal.WithLabelValues("success").Inc()

	c.orch = orchestrator.New(c.sess, nil)
	c.orch.Start()
	return c, nil
}

// Close stops the background loops, disconnects, and closes the
// store, in that order so no callback fires against an already-closed
// store.
func (c *client) Close() {
	c.orch.Stop()
	c.sess.Disconnect()
	c.store.Close()
	if c.stopMetrics != nil {
		c.stopMetrics()
	}
}

func optionsPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return cliconfig.FileName
	}
	return path
}

// waitLogin blocks for OnLoggedIn/OnLoginFailed/OnError up to
// replyTimeout, the result of a prior LogIn call.
func (c *client) waitLogin() (uint32, error) {
	select {
	case id := <-c.loggedIn:
		return id, nil
	case <-c.loginFailed:
		return 0, fmt.Errorf("login rejected")
	case flag := <-c.errored:
		return 0, fmt.Errorf("server error 0x%x", flag)
	case <-c.disconnected:
		return 0, fmt.Errorf("disconnected before login completed")
	case <-time.After(replyTimeout):
		return 0, fmt.Errorf("timed out waiting for login result")
	}
}

// waitRegister blocks for OnRegistered/OnError up to replyTimeout.
func (c *client) waitRegister() (bool, error) {
	select {
	case ok := <-c.registered:
		return ok, nil
	case flag := <-c.errored:
		return false, fmt.Errorf("server error 0x%x", flag)
	case <-c.disconnected:
		return false, fmt.Errorf("disconnected before registration completed")
	case <-time.After(replyTimeout):
		return false, fmt.Errorf("timed out waiting for registration result")
	}
}

// waitUsers blocks for OnUsersFetched up to replyTimeout.
func (c *client) waitUsers() ([]*wire.UserInfo, error) {
	select {
	case users := <-c.usersFetched:
		return users, nil
	case flag := <-c.errored:
		return nil, fmt.Errorf("server error 0x%x", flag)
	case <-time.After(replyTimeout):
		return nil, fmt.Errorf("timed out waiting for user list")
	}
}
