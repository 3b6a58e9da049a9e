package clip

import (
	"fmt"
	"strings"

	"github.com/shinji-kodama/batch-clip/internal/model"
)

// GDBExtension is the extension of a file geodatabase directory.
const GDBExtension = ".gdb"

// NormalizeGDBName makes a user supplied geodatabase name filesystem-safe:
// everything from the first period on is dropped, spaces become
// underscores and ".gdb" is appended. Leading and trailing spaces are
// replaced like any other.
//
//	"My Clip"       → "My_Clip.gdb"
//	"data.gdb"      → "data.gdb"
//	"My Output.gdb" → "My_Output.gdb"
//	" My Clip"      → "_My_Clip.gdb"
func NormalizeGDBName(name string) (string, error) {
	stem, _, _ := strings.Cut(name, ".")
	stem = strings.ReplaceAll(stem, " ", "_")
	if stem == "" || strings.ContainsAny(stem, `/\`) {
		return "", fmt.Errorf("%w: %q", model.ErrInvalidGDBName, name)
	}
	return stem + GDBExtension, nil
}
