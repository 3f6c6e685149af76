package domain

import "fmt"

// Route maps a human readable slug to an entity. Rows are append-only apart
// from the current flag.
type Route struct {
	EntityType  EntityType `json:"entity_type"`
	EntityID    int64      `json:"entity_id"`
	OwnerID     int64      `json:"owner_id"`
	Slug        string     `json:"slug"`
	TitleSlug   string     `json:"title_slug"`
	CollisionID int        `json:"collision_id"`
	IsCurrent   bool       `json:"is_current"`
	BlockNumber int64      `json:"block_number"`
	TxHash      string     `json:"tx_hash"`
}

// SlugWithCollision builds the friendly slug for a collision id.
func SlugWithCollision(titleSlug string, collisionID int) string {
	if collisionID == 0 {
		return titleSlug
	}
	return fmt.Sprintf("%s-%d", titleSlug, collisionID)
}

// LegacySlug builds the permanent id-suffixed fallback slug.
func LegacySlug(titleSlug string, entityID int64) string {
	return fmt.Sprintf("%s-%d", titleSlug, entityID)
}
