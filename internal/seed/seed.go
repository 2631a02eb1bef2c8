// Package seed loads event definitions from YAML and upserts them by slug.
package seed

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/Shivanand-hulikatti/symposium-backend/internal/model"
	"gopkg.in/yaml.v3"
)

// File is the top-level seed document.
type File struct {
	Events []Event `yaml:"events"`
}

// Event is one event entry in a seed file.
type Event struct {
	Slug        string `yaml:"slug"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Fee         int    `yaml:"fee"`
	MinTeamSize int    `yaml:"minTeamSize"`
	MaxTeamSize int    `yaml:"maxTeamSize"`
	MaxSeats    *int   `yaml:"maxSeats"`
	IsLive      bool   `yaml:"isLive"`
}

// Upserter stores events keyed by slug.
type Upserter interface {
	Upsert(ctx context.Context, e *model.Event) error
}

// Load parses and validates a seed document.
func Load(r io.Reader) ([]model.Event, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}

	seen := make(map[string]bool, len(f.Events))
	events := make([]model.Event, 0, len(f.Events))
	for i, e := range f.Events {
		e.Slug = strings.TrimSpace(e.Slug)
		if err := e.validate(); err != nil {
			return nil, fmt.Errorf("event %d (%q): %w", i, e.Slug, err)
		}
		if seen[e.Slug] {
			return nil, fmt.Errorf("event %d: duplicate slug %q", i, e.Slug)
		}
		seen[e.Slug] = true
		events = append(events, model.Event{
			Slug:        e.Slug,
			Title:       strings.TrimSpace(e.Title),
			Description: e.Description,
			Fee:         e.Fee,
			MinTeamSize: e.MinTeamSize,
			MaxTeamSize: e.MaxTeamSize,
			MaxSeats:    e.MaxSeats,
			IsLive:      e.IsLive,
		})
	}
	return events, nil
}

// LoadFile reads a seed document from path.
func LoadFile(path string) ([]model.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return Load(f)
}

func (e Event) validate() error {
	switch {
	case e.Slug == "":
		return fmt.Errorf("slug is required")
	case strings.TrimSpace(e.Title) == "":
		return fmt.Errorf("title is required")
	case e.Fee < 0:
		return fmt.Errorf("fee must not be negative")
	case e.MinTeamSize < 1:
		return fmt.Errorf("minTeamSize must be at least 1")
	case e.MaxTeamSize < e.MinTeamSize:
		return fmt.Errorf("maxTeamSize %d is below minTeamSize %d", e.MaxTeamSize, e.MinTeamSize)
	case e.MaxTeamSize > 10:
		return fmt.Errorf("maxTeamSize %d exceeds the 10 participant limit", e.MaxTeamSize)
	case e.MaxSeats != nil && *e.MaxSeats < 1:
		return fmt.Errorf("maxSeats must be positive when set")
	}
	return nil
}

// Apply upserts events in order and returns how many were written.
func Apply(ctx context.Context, store Upserter, events []model.Event) (int, error) {
	for i := range events {
		if err := store.Upsert(ctx, &events[i]); err != nil {
			return i, err
		}
		log.Printf("[SEED] %s -> %s", events[i].Slug, events[i].ID)
	}
	return len(events), nil
}
