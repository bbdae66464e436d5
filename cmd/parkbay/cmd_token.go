/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/parkbay/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a signed API token for local testing",
	Long:  "Issue an HS256 bearer token with the configured signing key. Production tokens come from the identity provider.",
	RunE:  runToken,
}

var (
	tokenUser  string
	tokenRoles []string
	tokenTTL   time.Duration
)

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "User id to embed (required)")
	tokenCmd.Flags().StringSliceVar(&tokenRoles, "role", nil, "Role to grant, repeatable (admin, payments)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
	_ = tokenCmd.MarkFlagRequired("user")
}

func runToken(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	if tokenTTL <= 0 {
		return errors.New("ttl must be positive")
	}
	if strings.EqualFold(cfg.Environment, "production") {
		logger.Warn().Str("user", tokenUser).Msg("issuing a token with the production signing key")
	}

	token, err := auth.Issue([]byte(cfg.JWTSigningKey), auth.Claims{UserID: tokenUser, Roles: tokenRoles}, tokenTTL)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
