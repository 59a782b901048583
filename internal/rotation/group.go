package rotation

import (
	"strings"

	"github.com/rewired-gh/dmgvar/internal/models"
)

// DefaultSeparator splits an action name into its base action and buff suffix.
const DefaultSeparator = "-"

// GroupKey returns the group an action name belongs to: everything before the
// first separator, with surrounding spaces removed. A name without the separator
// is its own group, and an empty separator keeps the whole name.
//
// The convention is fragile: a base action whose own name contains the separator
// is split early. Rows that set base_action explicitly avoid this, see RowGroup.
func GroupKey(name, sep string) string {
	if sep != "" {
		if i := strings.Index(name, sep); i >= 0 {
			name = name[:i]
		}
	}
	return strings.TrimSpace(name)
}

// RowGroup returns the group of a row: the base_action column when present,
// otherwise the key derived from the action name.
func RowGroup(a models.Action, sep string) string {
	if base := strings.TrimSpace(a.BaseAction); base != "" {
		return base
	}
	return GroupKey(a.Name, sep)
}
