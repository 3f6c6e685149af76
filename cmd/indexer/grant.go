package main

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rpattn/entityindexer/internal/domain"
)

var (
	grantAddress string
	grantUserID  int64
	grantScopes  []string
	grantRevoke  bool
)

var grantCmd = &cobra.Command{
	Use:   "grant",
	Short: "Create, replace or revoke a delegated authorization",
	Long: `Lets --address sign change requests on behalf of --user. Scopes take the
form "*", "Type:*", "*:Action" or "Type:Action"; no scopes grants everything.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !common.IsHexAddress(grantAddress) {
			return fmt.Errorf("invalid grantee address %q", grantAddress)
		}
		if grantUserID <= 0 {
			return fmt.Errorf("user id must be positive")
		}

		ctx := cmd.Context()
		store, conn, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()

		grant := domain.Grant{
			GranteeAddress: strings.ToLower(grantAddress),
			UserID:         grantUserID,
			IsRevoked:      grantRevoke,
			Scopes:         grantScopes,
		}
		if err := store.UpsertGrant(ctx, grant); err != nil {
			return err
		}
		logger.Info("grant stored",
			zap.String("grantee", grant.GranteeAddress),
			zap.Int64("user_id", grant.UserID),
			zap.Bool("revoked", grant.IsRevoked),
			zap.Strings("scopes", grant.Scopes))
		return nil
	},
}

func init() {
	grantCmd.Flags().StringVar(&grantAddress, "address", "", "grantee wallet address")
	grantCmd.Flags().Int64Var(&grantUserID, "user", 0, "user id the grantee acts for")
	grantCmd.Flags().StringSliceVar(&grantScopes, "scope", nil, "allowed scope, repeatable")
	grantCmd.Flags().BoolVar(&grantRevoke, "revoke", false, "mark the grant revoked")
	_ = grantCmd.MarkFlagRequired("address")
	_ = grantCmd.MarkFlagRequired("user")
}
