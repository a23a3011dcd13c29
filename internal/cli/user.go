package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"toolcrib/internal/apperr"
	"toolcrib/internal/credentials"
	"toolcrib/internal/models"
	"toolcrib/internal/repo"
)

var (
	userName     string
	userPassword string
	userRole     string
	userFullName string
	userEmail    string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a user with a password and a role",
	RunE: func(cmd *cobra.Command, _ []string) error {
		role := models.Role(strings.ToUpper(userRole))
		if !role.Valid() {
			return apperr.ErrInvalidArgument.WithMessagef("role must be OPERATOR, OFFICER or SUPERVISOR, got %q", userRole)
		}
		if strings.TrimSpace(userName) == "" || userPassword == "" {
			return apperr.ErrInvalidArgument.WithMessage("--username and --password are required")
		}
		hash, err := credentials.Hash(userPassword)
		if err != nil {
			return err
		}

		d, err := requireDB(cmd)
		if err != nil {
			return err
		}
		defer closeDB(d)

		u := &models.User{
			Username:     strings.TrimSpace(userName),
			FullName:     userFullName,
			Email:        userEmail,
			PasswordHash: hash,
			Role:         role,
		}
		if err := repo.NewUserStore(d).CreateUser(cmd.Context(), u); err != nil {
			return err
		}
		return output(cmd, u, fmt.Sprintf("created user %s (id=%d, role=%s)", u.Username, u.ID, u.Role))
	},
}

func init() {
	userAddCmd.Flags().StringVar(&userName, "username", "", "login name")
	userAddCmd.Flags().StringVar(&userPassword, "password", "", "initial password")
	userAddCmd.Flags().StringVar(&userRole, "role", string(models.RoleOperator), "OPERATOR | OFFICER | SUPERVISOR")
	userAddCmd.Flags().StringVar(&userFullName, "full-name", "", "display name")
	userAddCmd.Flags().StringVar(&userEmail, "email", "", "e-mail")
	userCmd.AddCommand(userAddCmd)
	rootCmd.AddCommand(userCmd)
}
