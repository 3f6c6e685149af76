package domain

const (
	// DefaultUserIDOffset is the first id reserved for users.
	DefaultUserIDOffset int64 = 3_000_000

	CharacterLimitUserBio  = 256
	CharacterLimitUserName = 32
	CharacterLimitHandle   = 30
)

// User is the identity entity. Wallet is the signer that created the user.
type User struct {
	Wallet              string `json:"wallet"`
	Handle              string `json:"handle,omitempty"`
	HandleLC            string `json:"handle_lc,omitempty"`
	Name                string `json:"name,omitempty"`
	Bio                 string `json:"bio,omitempty"`
	Location            string `json:"location,omitempty"`
	ProfilePictureSizes string `json:"profile_picture_sizes,omitempty"`
	CoverPhotoSizes     string `json:"cover_photo_sizes,omitempty"`
	IsDeactivated       bool   `json:"is_deactivated"`
	MetadataCID         string `json:"metadata_multihash,omitempty"`
}
