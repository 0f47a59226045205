package installer

import (
	"encoding/json"
	"os"

	"github.com/agpm-project/agpm/pkg/core"
)

// ApplyMergeTarget sets key alias in the JSON object at targetPath to
// payload (itself a JSON-encoded value), creating the file as `{}` if
// absent, and writes it back atomically (spec.md §4.H "merge-target
// tools"). payload must be valid JSON.
func ApplyMergeTarget(targetPath, alias string, payload []byte) error {
	doc, err := readMergeTarget(targetPath)
	if err != nil {
		return err
	}
	var value any
	if err := json.Unmarshal(payload, &value); err != nil {
		return core.NewInstallError(core.CodeMergeTargetBad, "%s: payload for %q is not valid JSON: %v", targetPath, alias, err)
	}
	doc[alias] = value
	return writeMergeTarget(targetPath, doc)
}

// RemoveMergeTargetKey deletes alias from the JSON object at targetPath, the
// reverse of ApplyMergeTarget (spec.md §4.H "Removal reverses this op").
// A missing target file or key is not an error.
func RemoveMergeTargetKey(targetPath, alias string) error {
	doc, err := readMergeTarget(targetPath)
	if err != nil {
		return err
	}
	if _, ok := doc[alias]; !ok {
		return nil
	}
	delete(doc, alias)
	return writeMergeTarget(targetPath, doc)
}

func readMergeTarget(targetPath string) (map[string]any, error) {
	data, err := os.ReadFile(targetPath)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, core.NewInstallError(core.CodeOther, "reading merge target %s: %v", targetPath, err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, core.NewInstallError(core.CodeMergeTargetBad, "merge target %s is not a JSON object: %v", targetPath, err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

func writeMergeTarget(targetPath string, doc map[string]any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return core.NewInstallError(core.CodeOther, "encoding merge target %s: %v", targetPath, err)
	}
	return writeFileAtomic(targetPath, append(data, '\n'), 0o644)
}
