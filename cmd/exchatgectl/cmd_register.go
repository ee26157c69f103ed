package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a new account with the server",
	Long: `register sends REGISTER with the given username/password. The server
disconnects after responding either way (spec.md §4.4.3), so this
command always opens its own connection and tears it down afterward.`,
	RunE: runRegister,
}

func init() {
	rootCmd.AddCommand(registerCmd)
	registerCmd.Flags().String("username", "", "username to register (required)")
	registerCmd.MarkFlagRequired("username")
}

func runRegister(cmd *cobra.Command, args []string) error {
	opts, _, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	if done, err := maybeDumpConfig(cmd, opts); done {
		return err
	}

	username, _ := cmd.Flags().GetString("username")
	password, err := readPassphraseConfirm()
	if err != nil {
		return err
	}

	c, err := openClient(cmd, opts, password)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.sess.Register(username, password); err != nil {
		return fmt.Errorf("send register: %w", err)
	}
	ok, err := c.waitRegister()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("registration rejected (username %q may already be taken)", username)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "registered %q\n", username)
	return nil
}

// readPassphraseConfirm prompts for a new password twice and requires
// the two entries to match, the same confirmation shape
// cmd_relay_vault.go uses for new passphrases.
func readPassphraseConfirm() (string, error) {
	pass1, err := readPassphrase(os.Stdout, "New password: ")
	if err != nil {
		return "", err
	}
	pass2, err := readPassphrase(os.Stdout, "Confirm password: ")
	if err != nil {
		return "", err
	}
	if pass1 != pass2 {
		return "", fmt.Errorf("passwords do not match")
	}
	return pass1, nil
}
