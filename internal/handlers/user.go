package handlers

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rpattn/entityindexer/internal/domain"
)

var handlePattern = regexp.MustCompile(`^[A-Za-z0-9_.]{1,30}$`)

type userPatch struct {
	Handle              *string `json:"handle"`
	Name                *string `json:"name"`
	Bio                 *string `json:"bio"`
	Location            *string `json:"location"`
	ProfilePictureSizes *string `json:"profile_picture_sizes"`
	CoverPhotoSizes     *string `json:"cover_photo_sizes"`
	IsDeactivated       *bool   `json:"is_deactivated"`
}

// UserHandler applies identity rules. A user owns itself and its wallet is
// the signer of its create request.
type UserHandler struct {
	offset int64
}

// NewUserHandler creates a handler accepting ids from offset upwards.
func NewUserHandler(offset int64) *UserHandler {
	return &UserHandler{offset: offset}
}

func (h *UserHandler) EntityType() domain.EntityType {
	return domain.EntityTypeUser
}

func (h *UserHandler) ValidateCreate(ctx context.Context, req domain.ChangeRequest, r Reader) (domain.Change, error) {
	if err := requireNewID(ctx, req, r, h.offset); err != nil {
		return domain.Change{}, err
	}
	if req.EntityID != req.ActingUserID {
		return domain.Change{}, domain.Reject("user %d cannot be created by user %d", req.EntityID, req.ActingUserID)
	}

	wallet := strings.ToLower(req.Signer)
	holders, err := r.FindCurrentByProperty(ctx, domain.EntityTypeUser, map[string]any{"wallet": wallet})
	if err != nil {
		return domain.Change{}, err
	}
	if len(holders) > 0 {
		return domain.Change{}, domain.Reject("wallet %s is already registered to user %d", wallet, holders[0].EntityID)
	}

	user := domain.User{Wallet: wallet}
	if req.Metadata.HasData() {
		if err := h.applyPatch(ctx, &user, req, r); err != nil {
			return domain.Change{}, err
		}
	}

	properties, err := encode(domain.EntityTypeUser, user)
	if err != nil {
		return domain.Change{}, err
	}
	return domain.Change{Request: req, OwnerUserID: req.EntityID, Properties: properties}, nil
}

func (h *UserHandler) ValidateUpdate(ctx context.Context, req domain.ChangeRequest, current domain.VersionedEntity, r Reader) (domain.Change, error) {
	if !req.Metadata.HasData() {
		return domain.Change{}, domain.Reject("user update carries no metadata")
	}

	var user domain.User
	if err := current.DecodeProperties(&user); err != nil {
		return domain.Change{}, err
	}
	if err := h.applyPatch(ctx, &user, req, r); err != nil {
		return domain.Change{}, err
	}

	properties, err := encode(domain.EntityTypeUser, user)
	if err != nil {
		return domain.Change{}, err
	}
	return domain.Change{Request: req, OwnerUserID: current.OwnerUserID, Properties: properties}, nil
}

func (h *UserHandler) ValidateDelete(ctx context.Context, req domain.ChangeRequest, current domain.VersionedEntity) (domain.Change, error) {
	return deleteChange(req, current), nil
}

func (h *UserHandler) ApplyMetadataSideEffects(change *domain.Change, previous *domain.VersionedEntity) {
	setMetadataCID(change)
}

// applyPatch merges the keys present in the request metadata into user.
func (h *UserHandler) applyPatch(ctx context.Context, user *domain.User, req domain.ChangeRequest, r Reader) error {
	var patch userPatch
	if err := decodePatch(req.Metadata.Data, &patch); err != nil {
		return err
	}

	if patch.Handle != nil && *patch.Handle != user.Handle {
		if user.Handle != "" {
			return domain.Reject("handle %q cannot be changed", user.Handle)
		}
		if err := h.claimHandle(ctx, *patch.Handle, req.EntityID, r); err != nil {
			return err
		}
		user.Handle = *patch.Handle
		user.HandleLC = strings.ToLower(*patch.Handle)
	}
	if patch.Name != nil {
		if utf8.RuneCountInString(*patch.Name) > domain.CharacterLimitUserName {
			return domain.Reject("name exceeds %d characters", domain.CharacterLimitUserName)
		}
		user.Name = *patch.Name
	}
	if patch.Bio != nil {
		if utf8.RuneCountInString(*patch.Bio) > domain.CharacterLimitUserBio {
			return domain.Reject("bio exceeds %d characters", domain.CharacterLimitUserBio)
		}
		user.Bio = *patch.Bio
	}
	if patch.Location != nil {
		user.Location = *patch.Location
	}
	if patch.ProfilePictureSizes != nil {
		user.ProfilePictureSizes = *patch.ProfilePictureSizes
	}
	if patch.CoverPhotoSizes != nil {
		user.CoverPhotoSizes = *patch.CoverPhotoSizes
	}
	if patch.IsDeactivated != nil {
		user.IsDeactivated = *patch.IsDeactivated
	}
	return nil
}

func (h *UserHandler) claimHandle(ctx context.Context, handle string, userID int64, r Reader) error {
	if !handlePattern.MatchString(handle) {
		return domain.Reject("handle %q must be 1-%d letters, digits, '_' or '.'", handle, domain.CharacterLimitHandle)
	}
	holders, err := r.FindCurrentByProperty(ctx, domain.EntityTypeUser, map[string]any{"handle_lc": strings.ToLower(handle)})
	if err != nil {
		return err
	}
	for _, holder := range holders {
		if holder.EntityID != userID {
			return domain.Reject("handle %q is already taken", handle)
		}
	}
	return nil
}
