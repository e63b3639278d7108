package editchain

import (
	"reflect"
	"sort"

	"github.com/TheMichaelB/spacesync/internal/crypto"
	"github.com/TheMichaelB/spacesync/internal/models"
)

// ValueDiff lists the changes from oldView to newView at the shallowest
// changed path. Nested objects are walked; arrays and scalars are compared
// whole. A removed key yields Del; a key set to null does not. Non-object
// views produce no diffs.
func ValueDiff(oldView, newView any, prefix string) []models.EditDiff {
	oldObj, ok := oldView.(map[string]any)
	if !ok {
		return nil
	}
	newObj, ok := newView.(map[string]any)
	if !ok {
		return nil
	}

	keys := make([]string, 0, len(oldObj)+len(newObj))
	for k := range oldObj {
		keys = append(keys, k)
	}
	for k := range newObj {
		if _, dup := oldObj[k]; !dup {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var diffs []models.EditDiff
	for _, key := range keys {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}

		oldVal, inOld := oldObj[key]
		newVal, inNew := newObj[key]

		if !inNew {
			diffs = append(diffs, models.EditDiff{Path: path, From: oldVal, To: nil, Del: true})
			continue
		}

		oldChild, oldIsObj := oldVal.(map[string]any)
		newChild, newIsObj := newVal.(map[string]any)
		if oldIsObj && newIsObj {
			diffs = append(diffs, ValueDiff(oldChild, newChild, path)...)
			continue
		}

		if inOld && sameValue(oldVal, newVal) {
			continue
		}
		diffs = append(diffs, models.EditDiff{Path: path, From: oldVal, To: newVal})
	}
	return diffs
}

func sameValue(a, b any) bool {
	ca, errA := crypto.CanonicalJSON(a)
	cb, errB := crypto.CanonicalJSON(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	return ca == cb
}
