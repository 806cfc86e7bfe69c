package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Back office account helpers",
}

var adminHashCmd = &cobra.Command{
	Use:   "hash-password",
	Short: "Print a bcrypt hash for SABIPREP_ADMIN_PASS_HASH",
	Long:  "Reads a password from the first line of stdin and prints its bcrypt hash.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cost, _ := cmd.Flags().GetInt("cost")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read password: %w", err)
		}
		pw := strings.TrimRight(line, "\r\n")
		if pw == "" {
			return errors.New("empty password")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		fmt.Println(string(hash))
		return nil
	},
}

func init() {
	adminHashCmd.Flags().Int("cost", bcrypt.DefaultCost, "bcrypt cost")
	adminCmd.AddCommand(adminHashCmd)
}
