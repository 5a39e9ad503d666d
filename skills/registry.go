// Package skills discovers agent skills: directories containing a SKILL.md
// whose YAML frontmatter names the skill and whose body holds instructions
// the model follows on demand.
package skills

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Skill is one discovered skill.
type Skill struct {
	Name        string
	Description string
	// Path points at the SKILL.md file.
	Path string
	// Source is "global" or "project".
	Source string
}

// Location is a directory scanned for skill subdirectories.
type Location struct {
	Source string
	Dir    string
}

// DefaultLocations returns the standard scan order: global skills under
// the user's config directory, then project skills under workingDir.
// Later locations win on name collisions, so project skills override
// global ones.
func DefaultLocations(workingDir string) []Location {
	var locs []Location
	if home, err := os.UserHomeDir(); err == nil {
		locs = append(locs, Location{Source: "global", Dir: filepath.Join(home, ".modoki", "skills")})
	}
	locs = append(locs, Location{Source: "project", Dir: filepath.Join(workingDir, "skills")})
	return locs
}

// Registry holds the discovered skills. Scan may be called again at any
// time to pick up new or removed skills.
type Registry struct {
	locations []Location

	mu     sync.RWMutex
	skills map[string]Skill
}

// NewRegistry creates a registry scanning the given locations.
func NewRegistry(locations ...Location) *Registry {
	return &Registry{
		locations: locations,
		skills:    make(map[string]Skill),
	}
}

// Scan walks every location and replaces the registry contents with what
// it finds. Missing directories and malformed skill files are skipped.
func (r *Registry) Scan() {
	found := make(map[string]Skill)
	for _, loc := range r.locations {
		entries, err := os.ReadDir(loc.Dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			skillPath := filepath.Join(loc.Dir, entry.Name(), "SKILL.md")
			data, err := os.ReadFile(skillPath)
			if err != nil {
				continue
			}
			meta, _, ok := parseSkillFile(data)
			if !ok {
				continue
			}
			found[meta.Name] = Skill{
				Name:        meta.Name,
				Description: meta.Description,
				Path:        skillPath,
				Source:      loc.Source,
			}
		}
	}

	r.mu.Lock()
	r.skills = found
	r.mu.Unlock()
}

// List returns all skills sorted by name.
func (r *Registry) List() []Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]Skill, 0, len(r.skills))
	for _, s := range r.skills {
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// Get returns a skill by name.
func (r *Registry) Get(name string) (Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.skills[name]
	return s, ok
}

// Count returns the number of discovered skills.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.skills)
}

// Instructions loads the skill body, re-reading SKILL.md so edits are
// picked up without a rescan.
func (r *Registry) Instructions(name string) (string, error) {
	skill, ok := r.Get(name)
	if !ok {
		return "", fmt.Errorf("unknown skill: %s", name)
	}
	data, err := os.ReadFile(skill.Path)
	if err != nil {
		return "", fmt.Errorf("read skill %s: %w", name, err)
	}
	_, body, ok := parseSkillFile(data)
	if !ok {
		return "", fmt.Errorf("skill %s has an invalid SKILL.md", name)
	}
	return body, nil
}

type skillMeta struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// parseSkillFile splits a SKILL.md into its YAML frontmatter and body.
// The file must open with a --- fence and close it with another.
func parseSkillFile(data []byte) (skillMeta, string, bool) {
	text := string(data)
	if !strings.HasPrefix(text, "---") {
		return skillMeta{}, "", false
	}
	end := strings.Index(text[3:], "---")
	if end < 0 {
		return skillMeta{}, "", false
	}
	end += 3

	var meta skillMeta
	if err := yaml.Unmarshal([]byte(text[3:end]), &meta); err != nil {
		return skillMeta{}, "", false
	}
	if meta.Name == "" {
		return skillMeta{}, "", false
	}
	body := strings.TrimSpace(text[end+3:])
	return meta, body, true
}
