package main

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/shurlinet/exchatge-client/internal/cryptoprim"
	"github.com/shurlinet/exchatge-client/internal/session"
	"github.com/shurlinet/exchatge-client/internal/store"
)

var chatCmd = &cobra.Command{
	Use:   "chat <peer-id>",
	Short: "Log in and exchange messages with a peer interactively",
	Long: `chat sets up a conversation with peer-id if none exists yet
(spec.md §4.4.5), replays up to the first 1000 messages of the
locally persisted history with that peer, then reads lines from stdin and sends each as a
PROCEED message, printing incoming messages as they arrive. Exit
with Ctrl-D.`,
	Args: cobra.ExactArgs(1),
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().String("username", "", "username (falls back to saved credentials)")
}

// receivedFilesDir is the spec-mandated destination for incoming file
// transfers (spec.md §6), created on first received transfer.
const receivedFilesDir = "files"

func runChat(cmd *cobra.Command, args []string) error {
	peerID64, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid peer id %q: %w", args[0], err)
	}
	peerID := uint32(peerID64)

	c, err := loginForCommand(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := ensureConversation(c, peerID); err != nil {
		return fmt.Errorf("set up conversation with %d: %w", peerID, err)
	}

	out := cmd.OutOrStdout()
	go func() {
		for m := range c.messages {
			if m.fromID == peerID {
				fmt.Fprintf(out, "\r%d> %s\n", m.fromID, m.text)
			}
		}
	}()

	c.sess.SetIgnoreUsualMessages(true)
	if err := c.sess.FetchMissingMessages(peerID, 0, 1000); err != nil {
		c.sess.SetIgnoreUsualMessages(false)
		return fmt.Errorf("replay history: %w", err)
	}
	c.sess.SetIgnoreUsualMessages(false)

	go acceptIncomingFiles(c, cmd.ErrOrStderr())
	go acceptConversationInvites(c, cmd.ErrOrStderr())

	fmt.Fprintf(out, "chatting with %d — type a message and press Enter, Ctrl-D to quit\n", peerID)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if err := c.sess.SendMessage(peerID, []byte(line)); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "send failed: %v\n", err)
			continue
		}
		c.metrics.messagesTotal.WithLabelValues("out").Inc()
	}
	return scanner.Err()
}

// ensureConversation runs the peer conversation setup handshake
// (spec.md §4.4.5) against peerID if this client has never exchanged
// keys with it before; a prior conversation's ratchet state is reused
// as-is otherwise.
func ensureConversation(c *client, peerID uint32) error {
	if _, err := c.store.LoadConversation(peerID); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNoSuchConversation) {
		return err
	}

	cs, err := c.sess.CreateConversation(peerID)
	if err != nil {
		return err
	}
	return c.store.SaveConversation(cs)
}

// acceptConversationInvites drains convInvites for as long as a chat
// session runs: it is the only place in this CLI host that calls
// ReplyToConversationSetupInvite, since a dedicated responder command
// would have no session left to reply on by the time a user invoked
// it. An invite from a peer this client already holds conversation
// state for is declined rather than overwriting that state's ratchet.
func acceptConversationInvites(c *client, errOut io.Writer) {
	for fromID := range c.convInvites {
		if err := replyToInvite(c, fromID); err != nil {
			fmt.Fprintf(errOut, "conversation invite from %d: %v\n", fromID, err)
		}
	}
}

func replyToInvite(c *client, fromID uint32) error {
	if _, err := c.store.LoadConversation(fromID); err == nil {
		_, err := c.sess.ReplyToConversationSetupInvite(fromID, false)
		return err
	} else if !errors.Is(err, store.ErrNoSuchConversation) {
		return err
	}

	cs, err := c.sess.ReplyToConversationSetupInvite(fromID, true)
	if err != nil {
		return err
	}
	return c.store.SaveConversation(cs)
}

// acceptIncomingFiles auto-accepts every file invite offered during a
// chat session, writes the incoming chunks under receivedFilesDir, and
// deletes the partial file on any mismatch, truncation, or decryption
// failure (spec.md §4.4.7), reporting errors to errOut rather than
// aborting the chat.
func acceptIncomingFiles(c *client, errOut io.Writer) {
	for invite := range c.fileInvites {
		if err := receiveOneFile(c, invite); err != nil {
			fmt.Fprintf(errOut, "file from %d (%s): %v\n", invite.FromID, invite.Filename, err)
		}
	}
}

func receiveOneFile(c *client, invite session.FileInvite) error {
	if err := os.MkdirAll(receivedFilesDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", receivedFilesDir, err)
	}
	name := fmt.Sprintf("%d_%s", time.Now().UnixMilli(), filepath.Base(invite.Filename))
	path := filepath.Join(receivedFilesDir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	hasher, err := cryptoprim.HashInit()
	if err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	c.recv.start(f, hasher)

	exchangeErr := c.sess.ReceiveFileExchange(invite.FromID, invite.Size)
	gotFile, gotHash := c.recv.finish()
	gotFile.Close()

	if exchangeErr != nil {
		os.Remove(path)
		return exchangeErr
	}
	if !bytes.Equal(gotHash[:], invite.Hash[:]) {
		os.Remove(path)
		return fmt.Errorf("hash mismatch, discarding %s", path)
	}
	return nil
}
