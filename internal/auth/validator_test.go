package auth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/entityindexer/internal/domain"
)

const (
	ownerWallet = "0x00000000000000000000000000000000000000aa"
	delegate    = "0x00000000000000000000000000000000000000bb"
	stranger    = "0x00000000000000000000000000000000000000cc"
)

type stubWallets map[int64]string

func (s stubWallets) Wallet(ctx context.Context, userID int64) (string, bool, error) {
	wallet, ok := s[userID]
	return wallet, ok, nil
}

type stubGrants struct {
	grants []domain.Grant
	err    error
}

func (s stubGrants) GetGrant(ctx context.Context, grantee string, userID int64) (domain.Grant, bool, error) {
	if s.err != nil {
		return domain.Grant{}, false, s.err
	}
	for _, grant := range s.grants {
		if strings.EqualFold(grant.GranteeAddress, grantee) && grant.UserID == userID {
			return grant, true, nil
		}
	}
	return domain.Grant{}, false, nil
}

func request(entityType domain.EntityType, action domain.Action, entityID, actingUser int64, signer string) domain.ChangeRequest {
	return domain.ChangeRequest{
		EntityType:   entityType,
		EntityID:     entityID,
		ActingUserID: actingUser,
		Action:       action,
		Signer:       signer,
	}
}

func TestAuthorizeOwnerWallet(t *testing.T) {
	v := NewValidator(stubWallets{3000001: strings.ToUpper(ownerWallet[:2]) + ownerWallet[2:]}, stubGrants{})

	decision, err := v.Authorize(context.Background(), request(domain.EntityTypePlaylist, domain.ActionCreate, 400001, 3000001, ownerWallet), nil)
	require.NoError(t, err)
	assert.True(t, decision.Authorized)
	assert.False(t, decision.ViaGrant)
}

func TestAuthorizeUnknownSigner(t *testing.T) {
	v := NewValidator(stubWallets{3000001: ownerWallet}, stubGrants{})

	decision, err := v.Authorize(context.Background(), request(domain.EntityTypePlaylist, domain.ActionCreate, 400001, 3000001, stranger), nil)
	require.NoError(t, err)
	assert.False(t, decision.Authorized)
	assert.NotEmpty(t, decision.Reason)
}

func TestAuthorizeMissingActingUser(t *testing.T) {
	v := NewValidator(stubWallets{}, stubGrants{})

	decision, err := v.Authorize(context.Background(), request(domain.EntityTypePlaylist, domain.ActionCreate, 400001, 3000009, ownerWallet), nil)
	require.NoError(t, err)
	assert.False(t, decision.Authorized)
}

func TestAuthorizeGrantScopes(t *testing.T) {
	wallets := stubWallets{3000001: ownerWallet}
	cases := []struct {
		name       string
		grant      domain.Grant
		authorized bool
	}{
		{"all scopes", domain.Grant{GranteeAddress: delegate, UserID: 3000001}, true},
		{"wildcard", domain.Grant{GranteeAddress: delegate, UserID: 3000001, Scopes: []string{"*"}}, true},
		{"type wildcard", domain.Grant{GranteeAddress: delegate, UserID: 3000001, Scopes: []string{"Playlist:*"}}, true},
		{"action wildcard", domain.Grant{GranteeAddress: delegate, UserID: 3000001, Scopes: []string{"*:Update"}}, true},
		{"exact", domain.Grant{GranteeAddress: delegate, UserID: 3000001, Scopes: []string{"Playlist:Update"}}, true},
		{"other type", domain.Grant{GranteeAddress: delegate, UserID: 3000001, Scopes: []string{"User:Update"}}, false},
		{"other action", domain.Grant{GranteeAddress: delegate, UserID: 3000001, Scopes: []string{"Playlist:Delete"}}, false},
		{"revoked", domain.Grant{GranteeAddress: delegate, UserID: 3000001, IsRevoked: true}, false},
		{"other user", domain.Grant{GranteeAddress: delegate, UserID: 3000002}, false},
	}

	current := &domain.VersionedEntity{EntityType: domain.EntityTypePlaylist, EntityID: 400001, OwnerUserID: 3000001}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := NewValidator(wallets, stubGrants{grants: []domain.Grant{tc.grant}})
			decision, err := v.Authorize(context.Background(), request(domain.EntityTypePlaylist, domain.ActionUpdate, 400001, 3000001, delegate), current)
			require.NoError(t, err)
			assert.Equal(t, tc.authorized, decision.Authorized, decision.Reason)
			if tc.authorized {
				assert.True(t, decision.ViaGrant)
			}
		})
	}
}

func TestAuthorizeRequiresOwnership(t *testing.T) {
	v := NewValidator(stubWallets{3000002: stranger}, stubGrants{})
	current := &domain.VersionedEntity{EntityType: domain.EntityTypePlaylist, EntityID: 400001, OwnerUserID: 3000001}

	decision, err := v.Authorize(context.Background(), request(domain.EntityTypePlaylist, domain.ActionDelete, 400001, 3000002, stranger), current)
	require.NoError(t, err)
	assert.False(t, decision.Authorized)
	assert.Contains(t, decision.Reason, "does not own")
}

func TestAuthorizeUserCreate(t *testing.T) {
	v := NewValidator(stubWallets{}, stubGrants{})

	decision, err := v.Authorize(context.Background(), request(domain.EntityTypeUser, domain.ActionCreate, 3000005, 3000005, stranger), nil)
	require.NoError(t, err)
	assert.True(t, decision.Authorized)

	decision, err = v.Authorize(context.Background(), request(domain.EntityTypeUser, domain.ActionCreate, 3000005, 3000006, stranger), nil)
	require.NoError(t, err)
	assert.False(t, decision.Authorized)
}

func TestAuthorizeStorageFailure(t *testing.T) {
	boom := errors.New("connection reset")
	v := NewValidator(stubWallets{3000001: ownerWallet}, stubGrants{err: boom})

	_, err := v.Authorize(context.Background(), request(domain.EntityTypePlaylist, domain.ActionCreate, 400001, 3000001, delegate), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}
