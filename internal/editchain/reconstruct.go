package editchain

import (
	"strings"

	"github.com/TheMichaelB/spacesync/internal/models"
)

// Segments that reach object prototypes in JavaScript peers.
var bannedSegments = map[string]bool{
	"__proto__":   true,
	"constructor": true,
	"prototype":   true,
}

// ReconstructState replays the diffs of entries[0..upTo] onto an empty
// document. upTo past the end replays the whole chain.
func ReconstructState(entries []*models.EditEntry, upTo int) (map[string]any, error) {
	doc := make(map[string]any)
	for i := 0; i <= upTo && i < len(entries); i++ {
		if entries[i] == nil {
			continue
		}
		for _, d := range entries[i].Diffs {
			if err := apply(doc, d); err != nil {
				return nil, err
			}
		}
	}
	return doc, nil
}

func apply(doc map[string]any, d models.EditDiff) error {
	parts := strings.Split(d.Path, ".")
	for _, p := range parts {
		if bannedSegments[p] {
			return &models.DangerousPathSegmentError{Segment: p, Path: d.Path}
		}
	}

	// Missing or non-object intermediates are replaced by empty objects.
	parent := doc
	for _, key := range parts[:len(parts)-1] {
		child, ok := parent[key].(map[string]any)
		if !ok {
			child = make(map[string]any)
			parent[key] = child
		}
		parent = child
	}

	leaf := parts[len(parts)-1]
	if d.Del {
		delete(parent, leaf)
	} else {
		parent[leaf] = deepCopy(d.To)
	}
	return nil
}

// deepCopy keeps later diffs from writing through into an entry's values.
func deepCopy(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = deepCopy(val)
		}
		return out
	}
	return v
}
