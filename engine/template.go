package engine

import (
	"context"
	"errors"
	"time"
)

var ErrTemplateNotFound = errors.New("workflow template not found")

// StageDefinition is one step of a workflow template, as configured outside
// this core.
type StageDefinition struct {
	ID   string
	Name string

	// ExpectedDuration is the default SLA for the stage. Zero means the
	// stage carries no SLA.
	ExpectedDuration time.Duration

	// DefaultAssignee, when set, is assigned automatically on stage entry.
	DefaultAssignee string
}

// Template is the ordered stage configuration an instance executes.
// Templates are immutable once an instance references them.
type Template struct {
	ID     string
	Name   string
	Stages []StageDefinition
}

// Stage returns the definition for the given stage id.
func (t *Template) Stage(stageID string) (StageDefinition, bool) {
	for _, s := range t.Stages {
		if s.ID == stageID {
			return s, true
		}
	}

	return StageDefinition{}, false
}

// First returns the entry stage of the template.
func (t *Template) First() (StageDefinition, bool) {
	if len(t.Stages) == 0 {
		return StageDefinition{}, false
	}

	return t.Stages[0], true
}

// TemplateResolver resolves template configuration. Configuration tooling
// outside this core owns the definitions; the engine only reads them.
type TemplateResolver interface {
	Template(ctx context.Context, templateID string) (*Template, error)
}

// StaticTemplates resolves templates from a fixed in-memory set.
type StaticTemplates map[string]*Template

var _ TemplateResolver = (StaticTemplates)(nil)

func (st StaticTemplates) Template(ctx context.Context, templateID string) (*Template, error) {
	t, ok := st[templateID]
	if !ok {
		return nil, ErrTemplateNotFound
	}

	return t, nil
}
