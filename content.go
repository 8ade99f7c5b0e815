package main

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var (
	ErrProjectNotFound = errors.New("project not found")
	ErrInvalidContent  = errors.New("invalid site content")
)

// Profile is the site owner as shown in the hero and about sections.
type Profile struct {
	Name       string `yaml:"name" json:"name" validate:"required"`
	Role       string `yaml:"role" json:"role" validate:"required"`
	Tagline    string `yaml:"tagline" json:"tagline"`
	About      string `yaml:"about" json:"about"`
	Email      string `yaml:"email" json:"email" validate:"required,email"`
	Location   string `yaml:"location" json:"location"`
	ResumePath string `yaml:"resume_path" json:"resume_path"`
	GitHubURL  string `yaml:"github_url" json:"github_url,omitempty"`
	LinkedIn   string `yaml:"linkedin_url" json:"linkedin_url,omitempty"`
}

// Project is one portfolio entry. It only drives display and links.
type Project struct {
	ID          string   `yaml:"id" json:"id" validate:"required"`
	Title       string   `yaml:"title" json:"title" validate:"required"`
	Description string   `yaml:"description" json:"description"`
	Image       string   `yaml:"image" json:"image"`
	Tags        []string `yaml:"tags" json:"tags"`
	Slug        string   `yaml:"slug" json:"slug" validate:"required,slug"`
	Summary     string   `yaml:"summary" json:"summary,omitempty"`
	Tools       []string `yaml:"tools" json:"tools,omitempty"`
	Highlights  []string `yaml:"highlights" json:"highlights,omitempty"`
	RepoURL     string   `yaml:"repo_url" json:"repo_url,omitempty"`
}

// Skill levels are display percentages, 0 to 100.
type Skill struct {
	Name  string   `yaml:"name" json:"name" validate:"required"`
	Level int      `yaml:"level" json:"level" validate:"gte=0,lte=100"`
	Tags  []string `yaml:"tags" json:"tags,omitempty"`
	Icon  string   `yaml:"icon" json:"icon,omitempty"`
}

type SkillCategory struct {
	Name   string  `yaml:"name" json:"name" validate:"required"`
	Icon   string  `yaml:"icon" json:"icon,omitempty"`
	Skills []Skill `yaml:"skills" json:"skills" validate:"dive"`
}

// Site is all the static content the pages render. Slice order is display
// order everywhere.
type Site struct {
	Profile    Profile         `yaml:"profile" json:"profile"`
	Projects   []Project       `yaml:"projects" json:"projects" validate:"dive"`
	Categories []SkillCategory `yaml:"skills" json:"skills" validate:"required,min=1,dive"`
}

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

var contentValidator = newContentValidator()

func newContentValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugPattern.MatchString(fl.Field().String())
	})
	return v
}

// LoadContent returns the built-in content, or the YAML file at path when
// one is given. Either way the result is validated.
func LoadContent(path string) (*Site, error) {
	site := defaultContent()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading content file: %w", err)
		}
		site = &Site{}
		if err := yaml.Unmarshal(data, site); err != nil {
			return nil, fmt.Errorf("parsing content file %s: %w", path, err)
		}
	}
	if err := site.Validate(); err != nil {
		return nil, err
	}
	return site, nil
}

// Validate checks field rules and that project slugs are unique.
func (s *Site) Validate() error {
	if err := contentValidator.Struct(s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidContent, err)
	}
	seen := make(map[string]bool, len(s.Projects))
	for _, p := range s.Projects {
		if seen[p.Slug] {
			return fmt.Errorf("%w: duplicate project slug %q", ErrInvalidContent, p.Slug)
		}
		seen[p.Slug] = true
	}
	return nil
}

func (s *Site) ProjectBySlug(slug string) (Project, bool) {
	for _, p := range s.Projects {
		if p.Slug == slug {
			return p, true
		}
	}
	return Project{}, false
}

// Category returns the named skill category. Unknown or empty names get the
// first category, which is the default active tab.
func (s *Site) Category(name string) SkillCategory {
	for _, c := range s.Categories {
		if strings.EqualFold(c.Name, name) {
			return c
		}
	}
	return s.Categories[0]
}

// TopSkills returns up to n skill names across all categories, highest level
// first. Ties keep display order.
func (s *Site) TopSkills(n int) []string {
	var all []Skill
	for _, c := range s.Categories {
		all = append(all, c.Skills...)
	}
	// insertion sort keeps ties stable and the lists are tiny
	for i := 1; i < len(all); i++ {
		for j := i; j > 0 && all[j].Level > all[j-1].Level; j-- {
			all[j], all[j-1] = all[j-1], all[j]
		}
	}
	if n > len(all) {
		n = len(all)
	}
	names := make([]string, 0, n)
	for _, sk := range all[:n] {
		names = append(names, sk.Name)
	}
	return names
}

// ProjectURL is the page link for a project card.
func ProjectURL(p Project) string {
	return "/projects/" + p.Slug
}
