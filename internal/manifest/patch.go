package manifest

import (
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// PatchType names how a patch is applied, matching kubectl patch --type.
type PatchType string

const (
	StrategicPatch PatchType = "strategic"
	MergePatch     PatchType = "merge"
	JSONPatch      PatchType = "json"
)

// Valid reports whether kubectl accepts t as a patch type.
func (t PatchType) Valid() bool {
	switch t {
	case StrategicPatch, MergePatch, JSONPatch:
		return true
	}
	return false
}

// ApplyPatch returns doc with patch applied the way the given patch type
// would apply it. Strategic patches are previewed as merge patches, so lists
// are replaced, not merged by key. A json patch is an RFC 6902 operation list.
func ApplyPatch(doc *unstructured.Unstructured, typ PatchType, patch []byte) (*unstructured.Unstructured, error) {
	original, err := json.Marshal(doc.Object)
	if err != nil {
		return nil, err
	}

	var patched []byte
	switch typ {
	case StrategicPatch, MergePatch:
		patched, err = jsonpatch.MergePatch(original, patch)
	case JSONPatch:
		var ops jsonpatch.Patch
		ops, err = jsonpatch.DecodePatch(patch)
		if err == nil {
			patched, err = ops.Apply(original)
		}
	default:
		return nil, fmt.Errorf("unknown patch type %q", typ)
	}
	if err != nil {
		return nil, fmt.Errorf("patching %s: %w", Ref(doc), err)
	}

	var content map[string]any
	if err := json.Unmarshal(patched, &content); err != nil {
		return nil, err
	}
	return &unstructured.Unstructured{Object: content}, nil
}
