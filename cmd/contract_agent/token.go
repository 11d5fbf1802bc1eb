package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/jonathan/contract-signer/internal/config"
	"github.com/jonathan/contract-signer/internal/server"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an operator bearer token",
	Long:  "Mints a JWT for the operator endpoints, signed with JWT_SECRET. Omit --company for a token that can see every company.",
	RunE:  runToken,
}

var (
	tokenOperator string
	tokenCompany  string
)

func init() {
	tokenCmd.Flags().StringVar(&tokenOperator, "operator", "", "Operator UUID (generated when empty)")
	tokenCmd.Flags().StringVar(&tokenCompany, "company", "", "Company UUID the token is scoped to")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, _ []string) error {
	jwtCfg, err := config.NewJWTConfig()
	if err != nil {
		return err
	}

	operatorID := uuid.New()
	if tokenOperator != "" {
		if operatorID, err = uuid.Parse(tokenOperator); err != nil {
			return fmt.Errorf("invalid operator id: %w", err)
		}
	}
	var companyID uuid.UUID
	if tokenCompany != "" {
		if companyID, err = uuid.Parse(tokenCompany); err != nil {
			return fmt.Errorf("invalid company id: %w", err)
		}
	}

	token, err := server.NewJWTService(jwtCfg).GenerateToken(operatorID, companyID)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
	return err
}
