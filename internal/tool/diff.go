package tool

import (
	"fmt"
	"strings"

	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"

	"github.com/rfenwick/aide/internal/permission"
)

// buildDiffMeta computes the unified diff between two versions of a file for
// a permission request payload.
func buildDiffMeta(path, oldContent, newContent string) *permission.DiffMeta {
	edits := myers.ComputeEdits(span.URIFromPath(path), oldContent, newContent)
	unified := fmt.Sprint(gotextdiff.ToUnified("a/"+path, "b/"+path, oldContent, edits))

	meta := &permission.DiffMeta{
		Unified:   unified,
		IsNewFile: oldContent == "",
	}
	for _, line := range strings.Split(unified, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		case strings.HasPrefix(line, "+"):
			meta.Added++
		case strings.HasPrefix(line, "-"):
			meta.Removed++
		}
	}
	return meta
}
