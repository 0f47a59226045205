package frontmatter

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/agpm-project/agpm/pkg/core"
	"github.com/agpm-project/agpm/pkg/logger"
)

var skillsLog = logger.New("frontmatter:skills")

// SkillMetadata is the name/description pair every skill directory's
// SKILL.md frontmatter must carry (spec.md §3: skills are directory-valued
// resources). Adapted from the teacher's pkg/parser/skills_parser.go.
type SkillMetadata struct {
	Name        string
	Description string
	Dir         string
	Valid       bool
}

// ParseSkillMetadata reads SKILL.md from skillDir (or treats skillPath
// itself as the file if it already points at one) and extracts its name and
// description.
func ParseSkillMetadata(skillPath string) (*SkillMetadata, error) {
	skillFile := skillPath
	if info, err := os.Stat(skillPath); err == nil && info.IsDir() {
		skillFile = filepath.Join(skillPath, "SKILL.md")
	}

	content, err := os.ReadFile(skillFile)
	if err != nil {
		return nil, core.NewManifestError("SkillNotFound", "reading %s: %v", skillFile, err)
	}

	result, err := Split(string(content))
	if err != nil {
		return nil, err
	}

	meta := &SkillMetadata{Dir: filepath.Dir(skillFile)}
	if name, ok := result.Frontmatter["name"].(string); ok {
		meta.Name = name
	}
	if desc, ok := result.Frontmatter["description"].(string); ok {
		meta.Description = desc
	}
	meta.Valid = meta.Name != "" && meta.Description != ""

	skillsLog.Printf("parsed skill %s: valid=%v", meta.Dir, meta.Valid)
	return meta, nil
}

// DiscoverSkills walks rootDir recursively for SKILL.md files, returning
// their containing directories.
func DiscoverSkills(rootDir string) ([]string, error) {
	var dirs []string
	err := filepath.WalkDir(rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == "SKILL.md" {
			dirs = append(dirs, filepath.Dir(path))
		}
		return nil
	})
	if err != nil {
		return nil, core.NewManifestError("SkillDiscoveryFailed", "walking %s: %v", rootDir, err)
	}
	skillsLog.Printf("discovered %d skills under %s", len(dirs), rootDir)
	return dirs, nil
}

// ValidateSkill returns an error unless skillDir has a SKILL.md with both
// name and description set.
func ValidateSkill(skillDir string) error {
	meta, err := ParseSkillMetadata(skillDir)
	if err != nil {
		return err
	}
	if !meta.Valid {
		return core.NewManifestError("InvalidSkill", "%s: SKILL.md missing required name/description frontmatter", skillDir)
	}
	return nil
}
