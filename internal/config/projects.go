package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/watchloop/autopilot/internal/domain"
	"gopkg.in/yaml.v3"
)

// ProjectsSource names which of spec §6.1's three project-config sources
// supplied the final list, for the one-time startup log line.
type ProjectsSource string

const (
	ProjectsSourceYAMLProjects ProjectsSource = "projects.yaml"
	ProjectsSourceYAMLDirs     ProjectsSource = "project_dirs.yaml"
	ProjectsSourceLineFile     ProjectsSource = "line file"
	ProjectsSourceDefault      ProjectsSource = "compiled-in default"
)

// projectsYAML matches either `projects: [{window, dir, default_nudge}]` or
// `project_dirs: [dir, ...]` -- both are optional, and absence of both means
// this file didn't supply a projects list at all.
type projectsYAML struct {
	Projects []struct {
		Window       string `yaml:"window"`
		Dir          string `yaml:"dir"`
		DefaultNudge string `yaml:"default_nudge"`
	} `yaml:"projects"`
	ProjectDirs []string `yaml:"project_dirs"`
}

// defaultProjects is the compiled-in fallback when no external source names
// any projects at all (spec §6.1's final loading-order step).
var defaultProjects []domain.Project

// LoadProjects resolves the ordered source chain from spec §6.1: primary
// YAML (fragment embedded in the main config file) -> a fallback line-delimited
// conf file -> the compiled-in default list. Returns the resolved projects
// and which source supplied them, so the caller can log both once.
func LoadProjects(primaryYAMLPath, fallbackConfPath string) ([]domain.Project, ProjectsSource, error) {
	if primaryYAMLPath != "" {
		if projects, source, err := loadYAMLProjects(primaryYAMLPath); err == nil && len(projects) > 0 {
			return projects, source, nil
		}
	}

	if fallbackConfPath != "" {
		if projects, err := loadLineFileProjects(fallbackConfPath); err == nil && len(projects) > 0 {
			return projects, ProjectsSourceLineFile, nil
		}
	}

	return defaultProjects, ProjectsSourceDefault, nil
}

func loadYAMLProjects(path string) ([]domain.Project, ProjectsSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	var doc projectsYAML
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, "", err
	}

	if len(doc.Projects) > 0 {
		projects := make([]domain.Project, 0, len(doc.Projects))
		for _, p := range doc.Projects {
			projects = append(projects, domain.NewProject(p.Window, p.Dir, p.DefaultNudge))
		}
		return projects, ProjectsSourceYAMLProjects, nil
	}

	if len(doc.ProjectDirs) > 0 {
		return projectsFromDirs(doc.ProjectDirs), ProjectsSourceYAMLDirs, nil
	}

	return nil, "", nil
}

// projectsFromDirs derives a window name from each directory's basename,
// disambiguating collisions with a numeric suffix (spec §6.1: "window
// derived from the directory basename, disambiguated by suffix on
// collision").
func projectsFromDirs(dirs []string) []domain.Project {
	seen := make(map[string]int)
	projects := make([]domain.Project, 0, len(dirs))
	for _, dir := range dirs {
		base := filepath.Base(strings.TrimRight(dir, "/"))
		window := base
		if n := seen[base]; n > 0 {
			window = fmt.Sprintf("%s-%d", base, n+1)
		}
		seen[base]++
		projects = append(projects, domain.NewProject(window, dir, ""))
	}
	return projects
}

// loadLineFileProjects parses the fallback `window:dir[:default_nudge]`
// format, one project per line, "#"-prefixed comments and blank lines
// ignored (spec §6.1).
func loadLineFileProjects(path string) ([]domain.Project, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var projects []domain.Project
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, ":", 3)
		if len(parts) < 2 {
			continue
		}
		window := strings.TrimSpace(parts[0])
		dir := strings.TrimSpace(parts[1])
		nudge := ""
		if len(parts) == 3 {
			nudge = strings.TrimSpace(parts[2])
		}
		if window == "" || dir == "" {
			continue
		}
		projects = append(projects, domain.NewProject(window, dir, nudge))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return projects, nil
}
