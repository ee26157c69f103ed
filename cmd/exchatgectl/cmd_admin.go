package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Administrative commands (require an admin account)",
}

var adminShutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Log in and send the admin SHUTDOWN command",
	RunE:  runAdminShutdown,
}

func init() {
	rootCmd.AddCommand(adminCmd)
	adminCmd.AddCommand(adminShutdownCmd)
	adminShutdownCmd.Flags().String("username", "", "username (falls back to saved credentials)")
}

func runAdminShutdown(cmd *cobra.Command, args []string) error {
	c, err := loginForCommand(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	if !c.opts.Admin {
		return fmt.Errorf("%s does not have admin: true; refusing to send SHUTDOWN", optionsPath(cmd))
	}
	if err := c.sess.ShutdownServer(); err != nil {
		return fmt.Errorf("send shutdown: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "shutdown command sent")
	return nil
}
