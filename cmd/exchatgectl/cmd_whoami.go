package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Log in and print the assigned user id",
	RunE:  runWhoami,
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
	whoamiCmd.Flags().String("username", "", "username (falls back to saved credentials)")
}

func runWhoami(cmd *cobra.Command, args []string) error {
	c, err := loginForCommand(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	state, _, userID := c.sess.State()
	fmt.Fprintf(cmd.OutOrStdout(), "user id %d, state %s\n", userID, state)
	return nil
}
