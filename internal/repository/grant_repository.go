package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/rpattn/entityindexer/internal/domain"
)

// GetGrant looks up the grant for a grantee address, ignoring address case.
func (r *pgBlockTx) GetGrant(ctx context.Context, granteeAddress string, userID int64) (domain.Grant, bool, error) {
	var grant domain.Grant
	err := r.tx.QueryRow(ctx,
		`SELECT grantee_address, user_id, is_revoked, scopes
		 FROM grants
		 WHERE lower(grantee_address) = $1 AND user_id = $2`,
		strings.ToLower(granteeAddress), userID,
	).Scan(&grant.GranteeAddress, &grant.UserID, &grant.IsRevoked, &grant.Scopes)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Grant{}, false, nil
	}
	if err != nil {
		return domain.Grant{}, false, fmt.Errorf("failed to get grant: %w", err)
	}
	return grant, true, nil
}
