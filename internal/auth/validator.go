// Package auth decides whether the signer of a change request may act for
// the request's acting user.
package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/rpattn/entityindexer/internal/domain"
)

// WalletRegistry resolves the wallet registered to a user.
type WalletRegistry interface {
	Wallet(ctx context.Context, userID int64) (string, bool, error)
}

// GrantReader looks up delegated authorizations.
type GrantReader interface {
	GetGrant(ctx context.Context, granteeAddress string, userID int64) (domain.Grant, bool, error)
}

// Decision is the result of an authorization check.
type Decision struct {
	Authorized bool
	ViaGrant   bool
	Reason     string
}

func allow(viaGrant bool) Decision {
	return Decision{Authorized: true, ViaGrant: viaGrant}
}

func deny(format string, args ...any) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

// Validator checks signers against wallets and grants.
type Validator struct {
	wallets WalletRegistry
	grants  GrantReader
}

// NewValidator creates a validator.
func NewValidator(wallets WalletRegistry, grants GrantReader) *Validator {
	return &Validator{wallets: wallets, grants: grants}
}

// Authorize decides req. current is the entity's current version, or nil.
// Errors are storage failures; a denial is reported through the Decision.
func (v *Validator) Authorize(ctx context.Context, req domain.ChangeRequest, current *domain.VersionedEntity) (Decision, error) {
	if current != nil && req.Action != domain.ActionCreate && current.OwnerUserID != req.ActingUserID {
		return deny("user %d does not own %s %d", req.ActingUserID, req.EntityType, req.EntityID), nil
	}

	// A new user has no wallet yet; the signer becomes it.
	if req.EntityType == domain.EntityTypeUser && req.Action == domain.ActionCreate {
		if req.ActingUserID != req.EntityID {
			return deny("user create must be signed for user %d, got %d", req.EntityID, req.ActingUserID), nil
		}
		return allow(false), nil
	}

	wallet, found, err := v.wallets.Wallet(ctx, req.ActingUserID)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to resolve wallet for user %d: %w", req.ActingUserID, err)
	}
	if !found {
		return deny("acting user %d does not exist", req.ActingUserID), nil
	}
	if strings.EqualFold(wallet, req.Signer) {
		return allow(false), nil
	}

	grant, found, err := v.grants.GetGrant(ctx, req.Signer, req.ActingUserID)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to resolve grant for user %d: %w", req.ActingUserID, err)
	}
	if !found {
		return deny("signer %s is not authorized for user %d", req.Signer, req.ActingUserID), nil
	}
	if grant.IsRevoked {
		return deny("grant from user %d to %s is revoked", req.ActingUserID, req.Signer), nil
	}
	if !grant.Allows(req.EntityType, req.Action) {
		return deny("grant from user %d to %s does not cover %s:%s", req.ActingUserID, req.Signer, req.EntityType, req.Action), nil
	}
	return allow(true), nil
}
