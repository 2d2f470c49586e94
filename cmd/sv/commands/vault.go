package commands

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"splatvault/pkg/types"
)

var vaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Manage the encrypted credential vault",
}

func readPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

var vaultUnlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Unlock the vault for this session",
	RunE: func(cmd *cobra.Command, args []string) error {
		pw, err := readPassword("Vault password: ")
		if err != nil {
			return err
		}
		if err := SV.Vault.Unlock(SV.Session, pw); err != nil {
			if errors.Is(err, types.ErrVaultMismatch) {
				return fmt.Errorf("password does not match")
			}
			return err
		}
		fmt.Println("✅ Vault unlocked for this session.")
		return nil
	},
}

var vaultSetCmd = &cobra.Command{
	Use:   "set [secret-id]",
	Short: "Encrypt and store a secret under the given id",
	Long: `Store an encrypted secret. The first secret ever stored establishes the
vault password for this device. S3 sources expect "accessKey:secretKey",
hosted-table sources expect the database password.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var pw string
		if !SV.Session.Unlocked() {
			var err error
			pw, err = readPassword("Vault password: ")
			if err != nil {
				return err
			}
		}

		plain, err := readPassword("Secret value: ")
		if err != nil {
			return err
		}

		if err := SV.Vault.Encrypt(SV.Session, args[0], plain, pw); err != nil {
			return err
		}
		fmt.Printf("✅ Secret %q stored.\n", args[0])
		return nil
	},
}

var vaultResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Discard ALL encrypted secrets (the only way out of a lost password)",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprint(os.Stderr, "This deletes every stored secret and cannot be undone. Type 'yes' to proceed: ")
		var answer string
		fmt.Fscanln(os.Stdin, &answer)
		if answer != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
		if err := SV.Vault.Reset(); err != nil {
			return err
		}
		SV.Session.Clear()
		fmt.Println("✅ Vault reset. Re-enter credentials to rebuild it.")
		return nil
	},
}

func init() {
	vaultCmd.AddCommand(vaultUnlockCmd)
	vaultCmd.AddCommand(vaultSetCmd)
	vaultCmd.AddCommand(vaultResetCmd)
}
