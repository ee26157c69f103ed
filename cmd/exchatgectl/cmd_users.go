package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Log in and list known users",
	RunE:  runUsers,
}

func init() {
	rootCmd.AddCommand(usersCmd)
	usersCmd.Flags().String("username", "", "username (falls back to saved credentials)")
}

func runUsers(cmd *cobra.Command, args []string) error {
	c, err := loginForCommand(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.sess.FetchUsers(); err != nil {
		return fmt.Errorf("fetch users: %w", err)
	}
	users, err := c.waitUsers()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, u := range users {
		status := "offline"
		if u.Connected {
			status = "online"
		}
		name := trimTrailingZeros(u.Name[:])
		fmt.Fprintf(out, "%-10d %-16s %s\n", u.ID, name, status)
	}
	return nil
}

func trimTrailingZeros(b []byte) string {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return string(b[:end])
}
