package doctors

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// Directory looks doctors up by ID and lists them. Every consumer that needs
// "does this doctor exist" goes through a Directory.
type Directory interface {
	Get(ctx context.Context, id uuid.UUID) (*Doctor, error)
	List(ctx context.Context, filter ListFilter) ([]*Doctor, error)
}

// ---------------------------------------------------------------------------
// Static roster
// ---------------------------------------------------------------------------

//go:embed roster.yaml
var defaultRoster []byte

// RosterDirectory serves the built-in roster.
type RosterDirectory struct {
	byID    map[uuid.UUID]*Doctor
	ordered []*Doctor
}

// NewRosterDirectory loads the embedded roster.
func NewRosterDirectory() (*RosterDirectory, error) {
	return ParseRoster(defaultRoster)
}

// ParseRoster builds a RosterDirectory from YAML of the form
// {doctors: [{id, full_name, ...}]}.
func ParseRoster(data []byte) (*RosterDirectory, error) {
	var file struct {
		Doctors []*Doctor `yaml:"doctors"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse roster: %w", err)
	}

	r := &RosterDirectory{byID: make(map[uuid.UUID]*Doctor, len(file.Doctors))}
	for i, d := range file.Doctors {
		if d.ID == uuid.Nil {
			return nil, fmt.Errorf("roster entry %d: missing id", i)
		}
		if _, dup := r.byID[d.ID]; dup {
			return nil, fmt.Errorf("roster entry %d: duplicate id %s", i, d.ID)
		}
		d.Source = SourceRoster
		r.byID[d.ID] = d
		r.ordered = append(r.ordered, d)
	}
	return r, nil
}

func (r *RosterDirectory) Get(_ context.Context, id uuid.UUID) (*Doctor, error) {
	d, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *RosterDirectory) List(_ context.Context, filter ListFilter) ([]*Doctor, error) {
	var out []*Doctor
	for _, d := range r.ordered {
		if filter.Match(d) {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Published profiles
// ---------------------------------------------------------------------------

// ProfileDirectory serves published doctor profiles.
type ProfileDirectory struct {
	profiles ProfileRepository
}

func NewProfileDirectory(profiles ProfileRepository) *ProfileDirectory {
	return &ProfileDirectory{profiles: profiles}
}

func (p *ProfileDirectory) Get(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	prof, err := p.profiles.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !prof.IsPublished {
		return nil, ErrNotFound
	}
	return prof.Doctor(), nil
}

func (p *ProfileDirectory) List(ctx context.Context, filter ListFilter) ([]*Doctor, error) {
	profiles, err := p.profiles.ListPublished(ctx)
	if err != nil {
		return nil, err
	}
	var out []*Doctor
	for _, prof := range profiles {
		if d := prof.Doctor(); filter.Match(d) {
			out = append(out, d)
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Merged view
// ---------------------------------------------------------------------------

// MergedDirectory unifies the roster and published profiles. When both know
// an ID the profile wins.
type MergedDirectory struct {
	roster   Directory
	profiles Directory
}

func NewMergedDirectory(roster, profiles Directory) *MergedDirectory {
	return &MergedDirectory{roster: roster, profiles: profiles}
}

func (m *MergedDirectory) Get(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := m.profiles.Get(ctx, id)
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return m.roster.Get(ctx, id)
}

// List queries both sources concurrently and returns the union ordered by
// name, then ID.
func (m *MergedDirectory) List(ctx context.Context, filter ListFilter) ([]*Doctor, error) {
	var fromRoster, fromProfiles []*Doctor
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		fromRoster, err = m.roster.List(gctx, filter)
		return err
	})
	g.Go(func() error {
		var err error
		fromProfiles, err = m.profiles.List(gctx, filter)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[uuid.UUID]bool, len(fromProfiles))
	out := make([]*Doctor, 0, len(fromRoster)+len(fromProfiles))
	for _, d := range fromProfiles {
		seen[d.ID] = true
		out = append(out, d)
	}
	for _, d := range fromRoster {
		if !seen[d.ID] {
			out = append(out, d)
		}
	}
	slices.SortFunc(out, func(a, b *Doctor) int {
		if c := strings.Compare(a.FullName, b.FullName); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	return out, nil
}
