package workflow

import (
	"encoding/json"

	"github.com/n8nkit/n8nkit/engine/core"
)

// SerializeOptions controls what Serialize emits.
type SerializeOptions struct {
	// Full keeps server-assigned fields (id, createdAt, updatedAt,
	// versionId). Disable when producing payloads for create/update calls.
	Full bool
}

// Serialize renders the workflow as indented JSON. Field order follows the
// model's declaration order, matching platform exports.
func Serialize(w *Workflow, opts SerializeOptions) ([]byte, error) {
	target := w
	if !opts.Full {
		clone, err := Clone(w)
		if err != nil {
			return nil, err
		}
		clone.ID = ""
		clone.VersionID = ""
		clone.CreatedAt = ""
		clone.UpdatedAt = ""
		target = clone
	}
	buf, err := json.MarshalIndent(target, "", "  ")
	if err != nil {
		return nil, core.WrapError(core.KindInternal, core.CodeInternal, err, "serialize workflow")
	}
	return buf, nil
}

// Clone returns a deep copy of the workflow; diff and autofix mutate clones
// so a failed sequence leaves the caller's document untouched.
func Clone(w *Workflow) (*Workflow, error) {
	cp, err := core.DeepCopy(w)
	if err != nil {
		return nil, core.WrapError(core.KindInternal, core.CodeInternal, err, "clone workflow")
	}
	return cp, nil
}
