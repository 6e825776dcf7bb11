package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/gluk-w/claworc/webconsole/internal/crypto"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage the stored backend token",
}

var tokenSaveCmd = &cobra.Command{
	Use:   "save [token]",
	Short: "Encrypt and store the backend token (prompts when omitted)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTokenSave,
}

var tokenShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the stored backend token, masked",
	Args:  cobra.NoArgs,
	RunE:  runTokenShow,
}

var tokenClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored backend token",
	Args:  cobra.NoArgs,
	RunE:  runTokenClear,
}

func init() {
	tokenCmd.AddCommand(tokenSaveCmd, tokenShowCmd, tokenClearCmd)
	rootCmd.AddCommand(tokenCmd)
}

func runTokenSave(cmd *cobra.Command, args []string) error {
	cleanup, err := setup(os.Stderr)
	if err != nil {
		return err
	}
	defer cleanup()

	var token string
	if len(args) == 1 {
		token = args[0]
	} else {
		fd := int(os.Stdin.Fd())
		if !term.IsTerminal(fd) {
			return errors.New("no token given and stdin is not a TTY")
		}
		fmt.Fprint(os.Stderr, "Backend token: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("read token: %w", err)
		}
		token = string(b)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("token is empty")
	}

	if err := crypto.SaveToken(token); err != nil {
		return err
	}
	fmt.Printf("Token %s saved.\n", crypto.Mask(token))
	return nil
}

func runTokenShow(cmd *cobra.Command, args []string) error {
	cleanup, err := setup(os.Stderr)
	if err != nil {
		return err
	}
	defer cleanup()

	token, err := crypto.LoadToken()
	if err != nil {
		return err
	}
	if token == "" {
		fmt.Println("No token stored.")
		return nil
	}
	fmt.Println(crypto.Mask(token))
	return nil
}

func runTokenClear(cmd *cobra.Command, args []string) error {
	cleanup, err := setup(os.Stderr)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := crypto.ClearToken(); err != nil {
		return err
	}
	fmt.Println("Token cleared.")
	return nil
}
