package memory

import (
	"encoding/json"
	"reflect"

	"github.com/rpattn/entityindexer/internal/domain"
)

// normalize round-trips properties through JSON so stored values have the
// same shapes a JSONB column would return.
func normalize(properties map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(properties)
	if err != nil {
		return nil, err
	}
	return domain.FromJSONBProperties(raw)
}

func cloneVersion(v domain.VersionedEntity) domain.VersionedEntity {
	properties, err := normalize(v.Properties)
	if err == nil {
		v.Properties = properties
	}
	return v
}

func containsAll(properties, filter map[string]any) bool {
	for key, want := range filter {
		got, ok := properties[key]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}
