// Package facade is a persistence facade over a pluggable storage
// engine: a managed tree of transactional contexts with automatic
// change propagation, plus entity lifecycle helpers. Queries are built
// with the query subpackage.
package facade

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/othierry/facade/engine"
	"github.com/othierry/facade/internal/queue"
	"github.com/othierry/facade/schema"
)

type contextKind int

const (
	kindChild contextKind = iota
	kindIndependent
)

type registration struct {
	ctx  *Context
	kind contextKind
}

// savedEvent is the structured message a top-level save emits; the
// stack's drain goroutine performs the merge and write-through steps.
type savedEvent struct {
	source  *Context
	changes changeSet
	done    chan error
}

// Stack owns the context hierarchy, the registry of dynamically
// registered contexts, the storage engine and the save propagation
// protocol.
type Stack struct {
	opts  Options
	model *schema.Model
	eng   engine.Engine
	log   *log.Logger

	mainQ *queue.Serial
	root  *Context
	main  *Context

	regMu    sync.Mutex
	registry map[string]registration

	eventMu sync.RWMutex
	closed  bool
	events  chan savedEvent
	drained chan struct{}
}

// New builds a stack from options. It resolves the model and wires the
// context hierarchy but does not touch disk; call Connect for that.
func New(opts Options) (*Stack, error) {
	model := opts.Model
	if model == nil {
		if opts.ModelPath == "" {
			return nil, &ConfigurationError{Option: "model", Reason: "a model or a model path is required"}
		}
		loaded, err := schema.LoadModel(opts.ModelPath)
		if err != nil {
			return nil, &ConfigurationError{Option: "model", Reason: err.Error()}
		}
		model = loaded
	} else if err := model.Validate(); err != nil {
		return nil, &ConfigurationError{Option: "model", Reason: err.Error()}
	}

	switch opts.storeType() {
	case SQLiteStoreType, MemoryStoreType:
	default:
		return nil, &ConfigurationError{Option: "store_type", Reason: fmt.Sprintf("unknown store type %q", opts.StoreType)}
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	s := &Stack{
		opts:     opts,
		model:    model,
		log:      logger,
		mainQ:    queue.NewSerial("main"),
		registry: make(map[string]registration),
		events:   make(chan savedEvent, 16),
		drained:  make(chan struct{}),
	}
	s.root = newContext(s, "root", nil, queue.NewSerial("root"), true)
	s.main = newContext(s, "main", s.root, s.mainQ, true)
	go s.drain()
	return s, nil
}

// Main returns the main context: the default target for lifecycle and
// query operations, bound to the UI-affine domain.
func (s *Stack) Main() *Context { return s.main }

// Model returns the resolved model description.
func (s *Stack) Model() *schema.Model { return s.model }

// PrimaryKey returns the configured primary-key field name, or "".
func (s *Stack) PrimaryKey() string { return s.opts.PrimaryKey }

// Logger returns the stack's diagnostic logger.
func (s *Stack) Logger() *log.Logger { return s.log }

// RegisterChildContext creates (or returns) a child context. The
// default parent is main; registration is idempotent per identifier,
// and re-registering under a different kind is a MisuseError.
func (s *Stack) RegisterChildContext(id string, opts ...ContextOption) *Context {
	return s.register(id, kindChild, opts)
}

// RegisterIndependentContext creates (or returns) an independent
// context: parent forced to root, bypassing main, so background work
// never sees main's uncommitted edits.
func (s *Stack) RegisterIndependentContext(id string, opts ...ContextOption) *Context {
	return s.register(id, kindIndependent, opts)
}

// ContextOption tunes context registration.
type ContextOption func(*contextConfig)

type contextConfig struct {
	parent      *Context
	concurrency Concurrency
}

// WithParent sets a child context's parent. Only valid for child
// contexts.
func WithParent(parent *Context) ContextOption {
	return func(cfg *contextConfig) { cfg.parent = parent }
}

// WithConcurrency selects the context's domain; the default is a
// private background worker.
func WithConcurrency(c Concurrency) ContextOption {
	return func(cfg *contextConfig) { cfg.concurrency = c }
}

func (s *Stack) register(id string, kind contextKind, opts []ContextOption) *Context {
	if id == "" || id == "main" || id == "root" {
		misuse("context identifier %q is reserved", id)
	}
	cfg := contextConfig{concurrency: BackgroundConcurrency}
	for _, o := range opts {
		o(&cfg)
	}

	s.regMu.Lock()
	defer s.regMu.Unlock()

	if reg, ok := s.registry[id]; ok {
		if reg.kind != kind {
			misuse("context %q is already registered under a different kind", id)
		}
		return reg.ctx
	}

	parent := cfg.parent
	if kind == kindIndependent {
		if parent != nil {
			misuse("independent context %q cannot have an explicit parent", id)
		}
		parent = s.root
	} else if parent == nil {
		parent = s.main
	}

	q := s.mainQ
	owns := false
	if cfg.concurrency == BackgroundConcurrency {
		q = queue.NewSerial("context:" + id)
		owns = true
	}
	ctx := newContext(s, id, parent, q, owns)
	s.registry[id] = registration{ctx: ctx, kind: kind}
	return ctx
}

// UnregisterContext removes a context from the registry, discarding its
// pending state on its own domain. Unregistering an unknown identifier
// is a no-op.
func (s *Stack) UnregisterContext(id string) {
	s.regMu.Lock()
	reg, ok := s.registry[id]
	if ok {
		delete(s.registry, id)
	}
	s.regMu.Unlock()
	if !ok {
		return
	}
	reg.ctx.Reset()
	if reg.ctx.ownsQueue {
		reg.ctx.q.Close()
	}
}

// mergeTargets is the merge propagation set: main plus every
// independent context, minus the context that just saved.
func (s *Stack) mergeTargets(except *Context) []*Context {
	s.regMu.Lock()
	defer s.regMu.Unlock()

	var targets []*Context
	if s.main != except {
		targets = append(targets, s.main)
	}
	ids := make([]string, 0, len(s.registry))
	for id, reg := range s.registry {
		if reg.kind == kindIndependent && reg.ctx != except {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		targets = append(targets, s.registry[id].ctx)
	}
	return targets
}

// Commit saves the context asynchronously; the completion callback is
// delivered on the main domain regardless of where the save ran.
func (s *Stack) Commit(c *Context, onComplete func(error)) {
	go func() {
		err := s.commit(c)
		queued := s.mainQ.Async(func() {
			if onComplete != nil {
				onComplete(err)
			}
		})
		if !queued && onComplete != nil {
			// Main domain already torn down; deliver on the committing
			// goroutine rather than dropping the callback.
			onComplete(err)
		}
	}()
}

// CommitSync saves the context and blocks until the whole propagation
// protocol, including the root write-through, has completed.
func (s *Stack) CommitSync(c *Context) error {
	return s.commit(c)
}

// commit implements the save protocol: flush the context's changes into
// its parent, then recursively commit the parent, stopping at the root
// boundary where the saved-event path takes over.
func (s *Stack) commit(c *Context) error {
	if c == nil || c.isRoot() {
		misuse("cannot commit the root context directly")
	}

	var cs changeSet
	c.q.Sync(func() {
		if c.dirty {
			cs = c.takeChanges()
		}
	})
	if !cs.empty() {
		parent := c.parent
		parent.q.Sync(func() { parent.applyChangeSet(cs) })
	}

	if !c.topLevel() {
		return s.commit(c.parent)
	}
	return s.emitSaved(c, cs)
}

func (s *Stack) emitSaved(c *Context, cs changeSet) error {
	s.eventMu.RLock()
	if s.closed {
		s.eventMu.RUnlock()
		return errors.New("stack is closed")
	}
	done := make(chan error, 1)
	s.events <- savedEvent{source: c, changes: cs, done: done}
	s.eventMu.RUnlock()
	return <-done
}

// drain serializes save events: merge into sibling top-level contexts,
// then write the root context through to durable storage.
func (s *Stack) drain() {
	defer close(s.drained)
	for ev := range s.events {
		err := s.processSaved(ev)
		if ev.done != nil {
			ev.done <- err
		}
	}
}

func (s *Stack) processSaved(ev savedEvent) error {
	if !ev.changes.empty() {
		for _, target := range s.mergeTargets(ev.source) {
			target := target
			target.q.Sync(func() { target.mergeChangeSet(ev.changes) })
		}
	}

	var req engine.SaveRequest
	s.root.q.Sync(func() { req = s.root.takeSaveRequest() })
	if req.Empty() {
		return nil
	}
	if s.eng == nil {
		return &SaveError{Context: ev.source.id, Err: errors.New("store is not connected")}
	}
	if err := s.eng.Save(&req); err != nil {
		s.log.Error("write-through failed", "context", ev.source.id, "err", err)
		return &SaveError{Context: ev.source.id, Err: err}
	}
	return nil
}

// BatchDelete issues one bulk delete against the store, bypassing
// per-object staging and in-memory lifecycle. Only file-backed and
// memory engines advertising the capability support it.
func (s *Stack) BatchDelete(entity string, filter engine.Predicate) (int64, error) {
	if s.eng == nil {
		return 0, errors.New("store is not connected")
	}
	bd, ok := s.eng.(engine.BatchDeleter)
	if !ok {
		return 0, fmt.Errorf("store type %q does not support batch delete", s.opts.storeType())
	}
	n, err := bd.BatchDelete(entity, filter)
	if err != nil {
		return 0, &FetchError{Entity: entity, Err: err}
	}
	return n, nil
}

// Close stops the propagation drain, tears down every context domain
// and closes the engine. Outstanding commits must have completed.
func (s *Stack) Close() error {
	s.eventMu.Lock()
	if s.closed {
		s.eventMu.Unlock()
		return nil
	}
	s.closed = true
	close(s.events)
	s.eventMu.Unlock()
	<-s.drained

	s.regMu.Lock()
	regs := make([]registration, 0, len(s.registry))
	for _, reg := range s.registry {
		regs = append(regs, reg)
	}
	s.registry = make(map[string]registration)
	s.regMu.Unlock()

	for _, reg := range regs {
		if reg.ctx.ownsQueue {
			reg.ctx.q.Close()
		}
	}
	s.mainQ.Close()
	s.root.q.Close()

	if s.eng != nil {
		err := s.eng.Close()
		s.eng = nil
		return err
	}
	return nil
}
