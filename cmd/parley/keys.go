package main

import (
	"fmt"

	"parley/cmd/internal/auth/session"

	"github.com/spf13/cobra"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Print a new PASETO v4 secret key (hex) for auth.paseto_secret_key_hex",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), session.NewSecretKeyHex())
		return err
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}
