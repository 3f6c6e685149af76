package domain

import "strings"

// Grant lets GranteeAddress act on behalf of UserID for the listed scopes.
// An empty scope list grants every operation.
type Grant struct {
	GranteeAddress string   `json:"grantee_address"`
	UserID         int64    `json:"user_id"`
	IsRevoked      bool     `json:"is_revoked"`
	Scopes         []string `json:"scopes"`
}

// Allows reports whether the grant covers entityType/action. Scopes take the
// form "*", "Type:*", "*:Action" or "Type:Action".
func (g Grant) Allows(entityType EntityType, action Action) bool {
	if g.IsRevoked {
		return false
	}
	if len(g.Scopes) == 0 {
		return true
	}
	for _, scope := range g.Scopes {
		scope = strings.TrimSpace(scope)
		if scope == "*" {
			return true
		}
		typePart, actionPart, ok := strings.Cut(scope, ":")
		if !ok {
			continue
		}
		if (typePart == "*" || strings.EqualFold(typePart, string(entityType))) &&
			(actionPart == "*" || strings.EqualFold(actionPart, string(action))) {
			return true
		}
	}
	return false
}
