// cmd/cctvd/token.go
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/owl29bd/cctv-automation-backend/internal/database"
	"github.com/owl29bd/cctv-automation-backend/internal/web"
)

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Mint an access token for a user in the directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Auth.JWTSecret == "" {
			return errMissingSecret
		}

		store, err := database.NewBoltStore(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer store.Close()

		user, err := store.GetUser(context.Background(), args[0])
		if err != nil {
			return err
		}

		now := time.Now()
		token, err := web.NewAuthenticator(cfg.Auth).Sign(web.Claims{
			Email: user.Email,
			Role:  string(user.Role),
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   user.ID,
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
			},
		})
		if err != nil {
			return fmt.Errorf("failed to sign token: %w", err)
		}

		fmt.Println(token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
	rootCmd.AddCommand(tokenCmd)
}
