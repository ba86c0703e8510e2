package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"toltec-dpdb/internal/completion"
	"toltec-dpdb/internal/domain"
)

// LocationSpec declares a data root registered at init time.
type LocationSpec struct {
	Label    string            `yaml:"label"`
	Type     string            `yaml:"type"`
	RootURI  string            `yaml:"root_uri"`
	Priority int               `yaml:"priority"`
	Meta     map[string]string `yaml:"meta,omitempty"`
}

// Profile describes one instrument: how many parts an observation has, how
// they group into sub-arrays, and where its files live.
type Profile struct {
	Name              string             `yaml:"name"`
	ExpectedParts     int                `yaml:"expected_parts"`
	DisabledParts     []int              `yaml:"disabled_parts"`
	ValidationTimeout time.Duration      `yaml:"validation_timeout"`
	RetryOnIncomplete bool               `yaml:"retry_on_incomplete"`
	Groups            []completion.Group `yaml:"groups"`
	Locations         []LocationSpec     `yaml:"locations"`
}

// DefaultProfile is the built-in TolTEC profile.
func DefaultProfile() Profile {
	return Profile{
		Name:              "toltec",
		ExpectedParts:     completion.DefaultExpectedParts,
		ValidationTimeout: completion.DefaultValidationTimeout,
		RetryOnIncomplete: true,
		Groups:            append([]completion.Group(nil), completion.DefaultGroups...),
		Locations: []LocationSpec{
			{Label: "lmt", Type: string(domain.LocationFilesystem), RootURI: "file:///data_lmt"},
		},
	}
}

// LoadProfile reads a YAML profile. An empty path returns DefaultProfile.
func LoadProfile(path string) (Profile, error) {
	if path == "" {
		return DefaultProfile(), nil
	}
	raw, err := os.ReadFile(path) //nolint:gosec // path is operator-controlled
	if err != nil {
		return Profile{}, fmt.Errorf("read instrument profile: %w", err)
	}
	p, err := ParseProfile(raw)
	if err != nil {
		return Profile{}, fmt.Errorf("instrument profile %s: %w", path, err)
	}
	return p, nil
}

// ParseProfile decodes and validates a YAML profile. Unknown keys are
// rejected. Omitted validation_timeout and retry_on_incomplete keep their
// defaults.
func ParseProfile(raw []byte) (Profile, error) {
	p := Profile{RetryOnIncomplete: true}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return Profile{}, domain.ErrValidation("decode instrument profile: %v", err)
	}
	if p.ValidationTimeout == 0 {
		p.ValidationTimeout = completion.DefaultValidationTimeout
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Validate checks the part layout the same way the watcher will, plus the
// location declarations.
func (p Profile) Validate() error {
	if p.Name == "" {
		return domain.ErrValidation("instrument profile: name is required")
	}
	if p.ValidationTimeout < 0 {
		return domain.ErrValidation("instrument profile %s: negative validation_timeout", p.Name)
	}
	table, err := completion.NewGroupTable(p.ExpectedParts, p.Groups)
	if err != nil {
		return fmt.Errorf("instrument profile %s: %w", p.Name, err)
	}
	seen := make(map[int]bool, len(p.DisabledParts))
	for _, d := range p.DisabledParts {
		if err := table.CheckPart(d); err != nil {
			return fmt.Errorf("instrument profile %s: disabled parts: %w", p.Name, err)
		}
		seen[d] = true
	}
	if len(seen) == p.ExpectedParts {
		return domain.ErrValidation("instrument profile %s: all parts disabled", p.Name)
	}
	labels := make(map[string]bool, len(p.Locations))
	for _, loc := range p.DomainLocations() {
		if err := loc.Validate(); err != nil {
			return fmt.Errorf("instrument profile %s: %w", p.Name, err)
		}
		if labels[loc.Label] {
			return domain.ErrValidation("instrument profile %s: duplicate location %q", p.Name, loc.Label)
		}
		labels[loc.Label] = true
	}
	return nil
}

// WatcherConfig returns the completion layout of the profile.
func (p Profile) WatcherConfig() completion.Config {
	return completion.Config{
		ExpectedParts: p.ExpectedParts,
		DisabledParts: append([]int(nil), p.DisabledParts...),
		Groups:        append([]completion.Group(nil), p.Groups...),
	}
}

// DomainLocations converts the declared locations to catalog registrations.
func (p Profile) DomainLocations() []domain.Location {
	out := make([]domain.Location, 0, len(p.Locations))
	for _, l := range p.Locations {
		out = append(out, domain.Location{
			Label: l.Label, Type: domain.LocationType(l.Type), RootURI: l.RootURI,
			Priority: l.Priority, Meta: l.Meta,
		})
	}
	return out
}
