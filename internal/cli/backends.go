package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"

	"github.com/roach88/objectagent/internal/agent"
	"github.com/roach88/objectagent/internal/agenterr"
	docbackend "github.com/roach88/objectagent/internal/backend/document"
	"github.com/roach88/objectagent/internal/backend/memory"
	"github.com/roach88/objectagent/internal/backend/sqlite"
	"github.com/roach88/objectagent/internal/capability"
	"github.com/roach88/objectagent/internal/metadata"
	"github.com/roach88/objectagent/internal/query"
)

// Explainer is implemented by agents that can render the native form of a
// query without running it.
type Explainer interface {
	Explain(q *query.Query) (string, error)
}

// Backends is the set of agents opened from a Config.
type Backends struct {
	Classes  *metadata.Registry
	Registry *agent.Registry
	Events   *agent.EventBus

	closers []func() error
}

// OpenBackends opens every configured backend, wraps it in an
// EventDispatchingAgent and registers it under its backend name.
func OpenBackends(cfg *Config, logger *slog.Logger) (*Backends, error) {
	classes, err := BuildClasses(cfg.Types)
	if err != nil {
		return nil, err
	}
	b := &Backends{Classes: classes, Events: agent.NewEventBus()}
	for _, name := range []string{agent.PrePersist, agent.PostPersist, agent.PreRemove, agent.PostRemove} {
		b.Events.Subscribe(name, func(e agent.Event) error {
			logger.Debug("event", "name", e.Name, "object", fmt.Sprintf("%T", e.Object))
			return nil
		})
	}

	var entries []agent.Entry
	add := func(name string, a agent.Agent) {
		entries = append(entries, agent.Entry{Name: name, Agent: agent.NewEventDispatchingAgent(a, b.Events)})
	}

	if cfg.SQL != nil {
		a, err := b.openSQL(cfg, logger)
		if err != nil {
			return nil, errors.Join(err, b.Close())
		}
		add(sqlite.Name, a)
	}
	if cfg.Document != nil {
		a, err := openDocument(cfg, logger)
		if err != nil {
			return nil, errors.Join(err, b.Close())
		}
		add(docbackend.Name, a)
	}
	if cfg.Memory != nil {
		a, err := openMemory(cfg, logger)
		if err != nil {
			return nil, errors.Join(err, b.Close())
		}
		add(memory.Name, a)
	}
	if len(entries) == 0 {
		return nil, agenterr.InvalidArgument("no backend configured: add a sql, document or memory section")
	}

	if b.Registry, err = agent.NewRegistry(entries...); err != nil {
		return nil, errors.Join(err, b.Close())
	}
	return b, nil
}

// Close releases the resources held by the backends.
func (b *Backends) Close() error {
	var errs []error
	for _, c := range b.closers {
		errs = append(errs, c())
	}
	b.closers = nil
	return errors.Join(errs...)
}

func (b *Backends) openSQL(cfg *Config, logger *slog.Logger) (agent.Agent, error) {
	sc := cfg.SQL
	if sc.Path == "" {
		return nil, agenterr.InvalidArgument("sql.path must be set")
	}
	classes, err := backendClasses(cfg.Types, sc.Types)
	if err != nil {
		return nil, err
	}
	caps, err := narrow(sqlite.DefaultCapabilities, sc.Capabilities)
	if err != nil {
		return nil, fmt.Errorf("sql.capabilities: %w", err)
	}

	db, err := sqlite.Open(sc.Path)
	if err != nil {
		return nil, err
	}
	b.closers = append(b.closers, db.Close)
	if sc.CreateSchema {
		if err := sqlite.CreateSchema(db, classes); err != nil {
			return nil, err
		}
	}
	return sqlite.New(db, classes, sqlite.WithLogger(logger), sqlite.WithCapabilities(caps)), nil
}

func openDocument(cfg *Config, logger *slog.Logger) (agent.Agent, error) {
	dc := cfg.Document
	classes, err := backendClasses(cfg.Types, dc.Types)
	if err != nil {
		return nil, err
	}
	caps, err := narrow(docbackend.DefaultCapabilities, dc.Capabilities)
	if err != nil {
		return nil, fmt.Errorf("document.capabilities: %w", err)
	}
	opts := []docbackend.Option{docbackend.WithLogger(logger), docbackend.WithCapabilities(caps)}
	if dc.Workspace == "" {
		return docbackend.New(docbackend.NewTree(), classes, opts...), nil
	}
	return docbackend.Open(dc.Workspace, classes, opts...)
}

func openMemory(cfg *Config, logger *slog.Logger) (agent.Agent, error) {
	mc := cfg.Memory
	classes, err := backendClasses(cfg.Types, mc.Types)
	if err != nil {
		return nil, err
	}
	caps, err := narrow(memory.DefaultCapabilities, mc.Capabilities)
	if err != nil {
		return nil, fmt.Errorf("memory.capabilities: %w", err)
	}

	store := memory.NewStore(classes)
	if mc.Fixtures != "" {
		f, err := os.Open(mc.Fixtures)
		if err != nil {
			return nil, fmt.Errorf("open fixtures: %w", err)
		}
		err = memory.LoadFixtures(store, f)
		f.Close()
		if err != nil {
			return nil, err
		}
	}
	for _, class := range classes.Classes() {
		if !store.HasCollection(class.Name()) {
			if err := store.AddCollection(class.Name()); err != nil {
				return nil, err
			}
		}
	}
	return memory.New(store, memory.WithLogger(logger), memory.WithCapabilities(caps)), nil
}

// backendClasses builds the classes of the listed types, or of all declared
// types when none are listed.
func backendClasses(types map[string]TypeConfig, only []string) (*metadata.Registry, error) {
	if len(only) == 0 {
		return BuildClasses(types)
	}
	subset := make(map[string]TypeConfig, len(only))
	for _, name := range only {
		tc, ok := types[name]
		if !ok {
			return nil, agenterr.InvalidArgument("backend lists undeclared type %q", name)
		}
		subset[name] = tc
	}
	return BuildClasses(subset)
}

// narrow applies the configured capability keys over defaults. Keys left out
// keep their default; nothing can be enabled beyond the defaults.
func narrow(defaults capability.Capabilities, overrides map[string]any) (capability.Capabilities, error) {
	if len(overrides) == 0 {
		return defaults, nil
	}
	merged := defaults.Map()
	maps.Copy(merged, overrides)
	configured, err := capability.FromMap(merged)
	if err != nil {
		return capability.Capabilities{}, err
	}
	return defaults.Narrow(configured), nil
}

// explainer returns the Explainer behind a, unwrapping decorators.
func explainer(a agent.Agent) (Explainer, bool) {
	for {
		if e, ok := a.(Explainer); ok {
			return e, true
		}
		u, ok := a.(interface{ Unwrap() agent.Agent })
		if !ok {
			return nil, false
		}
		a = u.Unwrap()
	}
}
