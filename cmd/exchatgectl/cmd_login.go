package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate against the configured server",
	Long: `login connects to the server named in options.txt, sends LOG_IN, and
reports the assigned user id on success. It exists on its own (rather
than only as a preamble to other commands) so credentials can be
verified without doing anything else.`,
	RunE: runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().String("username", "", "username (falls back to saved credentials)")
}

func runLogin(cmd *cobra.Command, args []string) error {
	opts, _, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	if done, err := maybeDumpConfig(cmd, opts); done {
		return err
	}

	username, err := resolveUsername(cmd, opts)
	if err != nil {
		return err
	}
	password, err := resolvePassword(cmd, opts)
	if err != nil {
		return err
	}

	c, err := openClient(cmd, opts, password)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.sess.LogIn(username, password); err != nil {
		return fmt.Errorf("send login: %w", err)
	}
	userID, err := c.waitLogin()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s (user id %d)\n", username, userID)
	return nil
}

// loginForCommand is the shared preamble every command that needs an
// authenticated session runs first: resolve credentials, connect, log
// in, and block until the result arrives. The caller's defer c.Close()
// still applies on error paths since c is returned non-nil whenever
// err is nil.
func loginForCommand(cmd *cobra.Command) (*client, error) {
	opts, _, err := loadOptions(cmd)
	if err != nil {
		return nil, err
	}
	username, err := resolveUsername(cmd, opts)
	if err != nil {
		return nil, err
	}
	password, err := resolvePassword(cmd, opts)
	if err != nil {
		return nil, err
	}
	c, err := openClient(cmd, opts, password)
	if err != nil {
		return nil, err
	}
	if err := c.sess.LogIn(username, password); err != nil {
		c.Close()
		return nil, fmt.Errorf("send login: %w", err)
	}
	if _, err := c.waitLogin(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}
