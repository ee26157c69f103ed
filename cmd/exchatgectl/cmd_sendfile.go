package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shurlinet/exchatge-client/internal/cryptoprim"
	"github.com/shurlinet/exchatge-client/internal/wire"
)

// sendFileChunkSize bounds how much plaintext one FlagFileChunk frame
// carries. It must leave room for Pad's length-suffix block on top of
// wire.MaxPlaintextBodySize (spec.md §6's max_plaintext_body budget),
// since sendFilePlaintext pads before handing the result to
// wire.NewFrame, which rejects any body over wire.BodySize.
const sendFileChunkSize = wire.MaxPlaintextBodySize - 8

var sendFileCmd = &cobra.Command{
	Use:   "send-file <peer-id> <path>",
	Short: "Log in and send a file to a peer",
	Long: `send-file hashes path with Blake2b-256, sends a file invite, and —
if the peer accepts — streams it in sendFileChunkSize chunks over the
peer's stream cipher (spec.md §4.4.7).`,
	Args: cobra.ExactArgs(2),
	RunE: runSendFile,
}

func init() {
	rootCmd.AddCommand(sendFileCmd)
	sendFileCmd.Flags().String("username", "", "username (falls back to saved credentials)")
}

func runSendFile(cmd *cobra.Command, args []string) error {
	peerID64, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid peer id %q: %w", args[0], err)
	}
	peerID := uint32(peerID64)
	path := args[1]

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() > wire.MaxFileSize {
		return fmt.Errorf("%s is %d bytes, exceeds the %d byte maximum", path, info.Size(), wire.MaxFileSize)
	}

	hash, err := hashFile(path)
	if err != nil {
		return fmt.Errorf("hash %s: %w", path, err)
	}

	c, err := loginForCommand(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := ensureConversation(c, peerID); err != nil {
		return fmt.Errorf("set up conversation with %d: %w", peerID, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	next := chunkSource(f, sendFileChunkSize, c.metrics)
	err = c.sess.BeginFileExchange(peerID, uint32(info.Size()), hash, filepath.Base(path), next)
	if err != nil {
		return fmt.Errorf("file exchange with %d: %w", peerID, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "sent %s (%d bytes) to %d\n", filepath.Base(path), info.Size(), peerID)
	return nil
}

func hashFile(path string) ([cryptoprim.HashSize]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return [cryptoprim.HashSize]byte{}, err
	}
	defer f.Close()

	h, err := cryptoprim.HashInit()
	if err != nil {
		return [cryptoprim.HashSize]byte{}, err
	}
	buf := make([]byte, sendFileChunkSize)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			h.Update(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return [cryptoprim.HashSize]byte{}, err
		}
	}
	return h.Finish(), nil
}

// chunkSource adapts a file into a session.ChunkSource: sequential
// reads regardless of the index argument, since BeginFileExchange
// always requests chunks in order.
func chunkSource(f *os.File, size int, m *metrics) func(uint32) ([]byte, error) {
	buf := make([]byte, size)
	return func(uint32) ([]byte, error) {
		n, err := f.Read(buf)
		if n > 0 {
			m.fileBytesTotal.WithLabelValues("out").Add(float64(n))
			return append([]byte{}, buf[:n]...), nil
		}
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}
}
