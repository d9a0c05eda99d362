// Package pongo renders textual templates with pongo2 (Django syntax).
package pongo

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/flosch/pongo2/v6"

	"github.com/estatio/docrender/internal/datamodel"
	"github.com/estatio/docrender/internal/sourcecache"
)

// SourceLoader supplies template text with a revision token.
type SourceLoader interface {
	SourceFor(ctx context.Context, typeRef, targetPath string) (sourcecache.Source, error)
}

// Option configures the Engine before construction.
type Option func(*Engine)

// WithGlobals seeds values available to every template. Model keys win on
// conflict.
func WithGlobals(globals map[string]any) Option {
	return func(e *Engine) {
		for k, v := range globals {
			e.globals[strings.TrimSpace(k)] = v
		}
	}
}

// WithLoader sets the loader used by RenderFor.
func WithLoader(l SourceLoader) Option {
	return func(e *Engine) { e.loader = l }
}

type compiled struct {
	source sourcecache.Source
	tpl    *pongo2.Template
}

// Engine compiles template sources and keeps each compiled template until
// the revision it was compiled from changes.
type Engine struct {
	mu      sync.RWMutex
	cache   map[string]compiled
	globals pongo2.Context
	loader  SourceLoader

	compiles int
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		cache:   make(map[string]compiled),
		globals: pongo2.Context{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Compile returns the compiled form of src, cached under key. The cached
// entry is reused while src carries the same template id and revision.
// escapeHTML turns pongo2 autoescaping on for the template.
func (e *Engine) Compile(key string, src sourcecache.Source, escapeHTML bool) (*pongo2.Template, error) {
	e.mu.RLock()
	entry, ok := e.cache[key]
	e.mu.RUnlock()
	if ok && entry.source.SameVersion(src) {
		return entry.tpl, nil
	}

	text := src.Text
	if !escapeHTML {
		text = "{% autoescape off %}" + text + "{% endautoescape %}"
	}
	tpl, err := pongo2.FromString(text)
	if err != nil {
		return nil, fmt.Errorf("pongo: compile %s revision %d: %w", key, src.Revision, err)
	}

	e.mu.Lock()
	e.cache[key] = compiled{source: src, tpl: tpl}
	e.compiles++
	e.mu.Unlock()
	return tpl, nil
}

// Execute runs tpl against model merged over the engine globals.
func (e *Engine) Execute(tpl *pongo2.Template, model datamodel.Model) (string, error) {
	ctx := make(pongo2.Context, len(e.globals)+len(model))
	ctx.Update(e.globals)
	for k, v := range model {
		ctx[k] = v
	}
	out, err := tpl.Execute(ctx)
	if err != nil {
		return "", fmt.Errorf("pongo: execute: %w", err)
	}
	return out, nil
}

// RenderFor renders the template currently in force for typeRef at
// targetPath, fetched through the configured loader.
func (e *Engine) RenderFor(ctx context.Context, typeRef, targetPath string, model datamodel.Model) (string, error) {
	if e.loader == nil {
		return "", fmt.Errorf("pongo: no source loader configured")
	}
	src, err := e.loader.SourceFor(ctx, typeRef, targetPath)
	if err != nil {
		return "", err
	}
	tpl, err := e.Compile(typeRef+":"+targetPath, src, false)
	if err != nil {
		return "", err
	}
	return e.Execute(tpl, model)
}

// Compiles reports how many times a source has been compiled.
func (e *Engine) Compiles() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.compiles
}
