package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// VersionSnapshot represents the minimal data required to compute diffs between entity versions.
type VersionSnapshot struct {
	EntityType  EntityType
	EntityID    int64
	OwnerUserID int64
	Position    Position
	IsDelete    bool
	Properties  map[string]any
}

// NewVersionSnapshot creates a snapshot from a stored version.
func NewVersionSnapshot(version VersionedEntity) VersionSnapshot {
	return VersionSnapshot{
		EntityType:  version.EntityType,
		EntityID:    version.EntityID,
		OwnerUserID: version.OwnerUserID,
		Position:    version.Position(),
		IsDelete:    version.IsDelete,
		Properties:  copyProperties(version.Properties),
	}
}

// Label names the snapshot in diff headers.
func (s VersionSnapshot) Label() string {
	return fmt.Sprintf("%s/%d@%d.%d.%d", s.EntityType, s.EntityID, s.Position.BlockNumber, s.Position.TxIndex, s.Position.LogIndex)
}

// CanonicalText flattens the snapshot into a deterministic set of lines suitable for diffing.
func (s VersionSnapshot) CanonicalText() ([]string, error) {
	lines := []string{
		fmt.Sprintf("EntityType: %s", s.EntityType),
		fmt.Sprintf("EntityID: %d", s.EntityID),
		fmt.Sprintf("Owner: %d", s.OwnerUserID),
		fmt.Sprintf("Deleted: %t", s.IsDelete),
		"Properties:",
	}

	flattened := map[string]string{}
	if len(s.Properties) > 0 {
		if err := flattenProperties("", s.Properties, flattened); err != nil {
			return nil, err
		}
	}

	if len(flattened) == 0 {
		lines = append(lines, "  (empty)")
		return lines, nil
	}

	keys := make([]string, 0, len(flattened))
	for key := range flattened {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		lines = append(lines, fmt.Sprintf("  %s: %s", key, flattened[key]))
	}

	return lines, nil
}

// DiffVersionSnapshots produces a unified diff between two snapshots. A nil
// base diffs against nothing.
func DiffVersionSnapshots(base *VersionSnapshot, target *VersionSnapshot) (string, error) {
	baseLines, err := canonicalLines(base)
	if err != nil {
		return "", err
	}

	targetLines, err := canonicalLines(target)
	if err != nil {
		return "", err
	}

	return unifiedDiff(snapshotLabel(base), snapshotLabel(target), baseLines, targetLines), nil
}

// Diffs returns one unified diff per version against its predecessor.
func (h EntityHistory) Diffs() ([]string, error) {
	diffs := make([]string, 0, len(h))
	var previous *VersionSnapshot
	for _, version := range h {
		snapshot := NewVersionSnapshot(version)
		diff, err := DiffVersionSnapshots(previous, &snapshot)
		if err != nil {
			return nil, err
		}
		diffs = append(diffs, diff)
		previous = &snapshot
	}
	return diffs, nil
}

func snapshotLabel(snapshot *VersionSnapshot) string {
	if snapshot == nil {
		return "/dev/null"
	}
	return snapshot.Label()
}

func canonicalLines(snapshot *VersionSnapshot) ([]string, error) {
	if snapshot == nil {
		return nil, nil
	}
	return snapshot.CanonicalText()
}

func flattenProperties(prefix string, value any, acc map[string]string) error {
	switch typed := value.(type) {
	case map[string]any:
		if len(typed) == 0 {
			if prefix != "" {
				acc[prefix] = "{}"
			}
			return nil
		}
		keys := make([]string, 0, len(typed))
		for key := range typed {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			nextPrefix := key
			if prefix != "" {
				nextPrefix = prefix + "." + key
			}
			if err := flattenProperties(nextPrefix, typed[key], acc); err != nil {
				return err
			}
		}
	case []any:
		if len(typed) == 0 {
			if prefix != "" {
				acc[prefix] = "[]"
			}
			return nil
		}
		for idx, item := range typed {
			nextPrefix := fmt.Sprintf("%s[%d]", prefix, idx)
			if prefix == "" {
				nextPrefix = fmt.Sprintf("[%d]", idx)
			}
			if err := flattenProperties(nextPrefix, item, acc); err != nil {
				return err
			}
		}
	case nil:
		if prefix != "" {
			acc[prefix] = "null"
		}
	default:
		if prefix == "" {
			return fmt.Errorf("property key missing for value %v", typed)
		}
		encoded, err := json.Marshal(typed)
		if err != nil {
			acc[prefix] = fmt.Sprintf("%v", typed)
		} else {
			acc[prefix] = string(encoded)
		}
	}

	return nil
}

// diffLine is one body line of a diff, marked ' ', '-' or '+'.
type diffLine struct {
	mark byte
	text string
}

// unifiedDiff renders both versions as a single hunk. The hunk header carries
// the line count of each side so the output applies with patch(1).
func unifiedDiff(fromLabel, toLabel string, from, to []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "--- %s\n+++ %s\n", fromLabel, toLabel)
	fmt.Fprintf(&b, "@@ -%s +%s @@\n", hunkRange(len(from)), hunkRange(len(to)))
	for _, line := range lcsDiff(from, to) {
		b.WriteByte(line.mark)
		b.WriteString(line.text)
		b.WriteByte('\n')
	}
	return b.String()
}

func hunkRange(count int) string {
	if count == 0 {
		return "0,0"
	}
	return fmt.Sprintf("1,%d", count)
}

// lcsDiff walks the longest common subsequence of from and to, preferring
// removals before additions where both are possible.
func lcsDiff(from, to []string) []diffLine {
	// common[i][j] is the LCS length of from[i:] and to[j:].
	common := make([][]int, len(from)+1)
	for i := range common {
		common[i] = make([]int, len(to)+1)
	}
	for i := len(from) - 1; i >= 0; i-- {
		for j := len(to) - 1; j >= 0; j-- {
			switch {
			case from[i] == to[j]:
				common[i][j] = common[i+1][j+1] + 1
			default:
				common[i][j] = max(common[i+1][j], common[i][j+1])
			}
		}
	}

	lines := make([]diffLine, 0, len(from)+len(to))
	i, j := 0, 0
	for i < len(from) || j < len(to) {
		switch {
		case i < len(from) && j < len(to) && from[i] == to[j]:
			lines = append(lines, diffLine{mark: ' ', text: from[i]})
			i++
			j++
		case j == len(to) || (i < len(from) && common[i+1][j] >= common[i][j+1]):
			lines = append(lines, diffLine{mark: '-', text: from[i]})
			i++
		default:
			lines = append(lines, diffLine{mark: '+', text: to[j]})
			j++
		}
	}
	return lines
}
