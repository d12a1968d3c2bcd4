package tool

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	ai "github.com/spetersoncode/dylan"
)

// DefaultTimeout bounds a single dispatch when neither the tool nor the
// registry sets one.
const DefaultTimeout = 30 * time.Second

// Origin tells where a tool implementation lives.
type Origin string

const (
	OriginNative Origin = "native"
	OriginRemote Origin = "remote"
)

// Descriptor is a registry entry.
type Descriptor struct {
	Tool   ai.Tool
	Origin Origin
	// Source names the remote server a tool came from. Empty for natives.
	Source string
	// Timeout overrides the registry default when positive.
	Timeout time.Duration
	Handler Handler

	schema *jsonschema.Schema
}

// RemoteTool is a tool discovered on a remote tool server.
type RemoteTool struct {
	Tool    ai.Tool
	Source  string
	Handler Handler
	Timeout time.Duration
}

type remoteSnapshot struct {
	order  []*Descriptor
	byName map[string]*Descriptor
}

var emptySnapshot = &remoteSnapshot{byName: map[string]*Descriptor{}}

// Registry holds native tools and the current snapshot of remote tools.
// It is safe for concurrent use. Native registrations are guarded by a
// mutex; the remote subset is replaced wholesale through an atomic pointer
// so readers always see a complete snapshot.
type Registry struct {
	mu      sync.RWMutex
	natives map[string]*Descriptor
	order   []string

	remote atomic.Pointer[remoteSnapshot]

	schemas        *schemaCache
	defaultTimeout time.Duration
	logger         *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithDefaultTimeout sets the dispatch timeout for tools without their own.
func WithDefaultTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.defaultTimeout = d
		}
	}
}

// WithLogger sets the registry logger.
func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry creates an empty tool registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	schemas, err := newSchemaCache(512)
	if err != nil {
		panic(err)
	}
	r := &Registry{
		natives:        make(map[string]*Descriptor),
		schemas:        schemas,
		defaultTimeout: DefaultTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.remote.Store(emptySnapshot)
	return r
}

// RegisterOption configures a single native registration.
type RegisterOption func(*Descriptor)

// WithTimeout sets a tool-specific dispatch timeout.
func WithTimeout(d time.Duration) RegisterOption {
	return func(desc *Descriptor) {
		desc.Timeout = d
	}
}

// Register adds a native tool with its handler.
// Returns an error if a native tool with the same name is already
// registered or the parameter schema does not compile.
func (r *Registry) Register(t ai.Tool, handler Handler, opts ...RegisterOption) error {
	schema, err := r.schemas.compile(t.Parameters)
	if err != nil {
		return &ErrInvalidSchema{Name: t.Name, Err: err}
	}

	d := &Descriptor{
		Tool:    t,
		Origin:  OriginNative,
		Handler: handler,
		schema:  schema,
	}
	for _, opt := range opts {
		opt(d)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.natives[t.Name]; exists {
		return &ErrToolAlreadyRegistered{Name: t.Name}
	}
	r.natives[t.Name] = d
	r.order = append(r.order, t.Name)
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(t ai.Tool, handler Handler, opts ...RegisterOption) {
	if err := r.Register(t, handler, opts...); err != nil {
		panic(err)
	}
}

// Unregister removes a native tool. It is a no-op if the tool is not registered.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.natives[name]; !ok {
		return
	}
	delete(r.natives, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
}

// ReplaceRemote swaps the whole remote subset for tools. Tools whose names
// collide with a native tool, or with an earlier remote tool, are dropped;
// their names are returned. In-flight dispatches keep using the snapshot
// they started with.
func (r *Registry) ReplaceRemote(tools []RemoteTool) []string {
	r.mu.RLock()
	natives := make(map[string]struct{}, len(r.natives))
	for name := range r.natives {
		natives[name] = struct{}{}
	}
	r.mu.RUnlock()

	snap := &remoteSnapshot{byName: make(map[string]*Descriptor, len(tools))}
	var rejected []string
	for _, rt := range tools {
		name := rt.Tool.Name
		if _, ok := natives[name]; ok {
			r.logger.Warn("remote tool shadowed by native tool", "tool", name, "source", rt.Source)
			rejected = append(rejected, name)
			continue
		}
		if prev, ok := snap.byName[name]; ok {
			r.logger.Warn("duplicate remote tool", "tool", name, "source", rt.Source, "kept", prev.Source)
			rejected = append(rejected, name)
			continue
		}
		schema, err := r.schemas.compile(rt.Tool.Parameters)
		if err != nil {
			// Remote schemas are not ours to fix; dispatch skips validation.
			r.logger.Warn("remote tool schema does not compile", "tool", name, "source", rt.Source, "error", err)
		}
		d := &Descriptor{
			Tool:    rt.Tool,
			Origin:  OriginRemote,
			Source:  rt.Source,
			Timeout: rt.Timeout,
			Handler: rt.Handler,
			schema:  schema,
		}
		snap.byName[name] = d
		snap.order = append(snap.order, d)
	}

	r.remote.Store(snap)
	return rejected
}

// Lookup returns the descriptor for name. Native tools take precedence.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	if d := r.lookup(name); d != nil {
		return *d, true
	}
	return Descriptor{}, false
}

func (r *Registry) lookup(name string) *Descriptor {
	r.mu.RLock()
	d, ok := r.natives[name]
	r.mu.RUnlock()
	if ok {
		return d
	}
	return r.remote.Load().byName[name]
}

// ListAll returns native tools in registration order followed by the
// current remote snapshot in discovery order.
func (r *Registry) ListAll() []Descriptor {
	r.mu.RLock()
	out := make([]Descriptor, 0, len(r.order))
	natives := make(map[string]struct{}, len(r.order))
	for _, name := range r.order {
		out = append(out, *r.natives[name])
		natives[name] = struct{}{}
	}
	r.mu.RUnlock()

	for _, d := range r.remote.Load().order {
		if _, shadowed := natives[d.Tool.Name]; shadowed {
			continue
		}
		out = append(out, *d)
	}
	return out
}

// Tools returns the merged catalog in ListAll order, ready to pass to a
// ChatProvider.
func (r *Registry) Tools() []ai.Tool {
	all := r.ListAll()
	tools := make([]ai.Tool, len(all))
	for i, d := range all {
		tools[i] = d.Tool
	}
	return tools
}

// Names returns the merged tool names in ListAll order.
func (r *Registry) Names() []string {
	all := r.ListAll()
	names := make([]string, len(all))
	for i, d := range all {
		names[i] = d.Tool.Name
	}
	return names
}

// Len returns the number of tools in the merged catalog.
func (r *Registry) Len() int {
	return len(r.ListAll())
}

// RemoteCount returns the number of tools in the current remote snapshot.
func (r *Registry) RemoteCount() int {
	return len(r.remote.Load().order)
}

// RegisterFunc registers a tool with a typed handler that automatically
// unmarshals the arguments JSON into T. The schema is reflected from T.
//
// Example:
//
//	type SearchArgs struct {
//	    Query string `json:"query" jsonschema:"description=Search query"`
//	}
//
//	tool.RegisterFunc(registry, "search", "Search the web",
//	    func(ctx context.Context, args SearchArgs) (string, error) {
//	        return doSearch(args.Query), nil
//	    },
//	)
func RegisterFunc[T any](r *Registry, name, description string, fn TypedHandler[T], opts ...RegisterOption) error {
	schema, err := SchemaFor[T]()
	if err != nil {
		return err
	}
	t := ai.Tool{Name: name, Description: description, Parameters: schema}
	return r.Register(t, typed(fn), opts...)
}

// Registration holds a tool and its handler for fluent registration.
type Registration struct {
	Tool    ai.Tool
	Handler Handler
	Options []RegisterOption
}

// Func creates a Registration with automatic schema generation from the typed handler.
// Panics if schema generation fails.
func Func[T any](name, description string, fn TypedHandler[T], opts ...RegisterOption) Registration {
	return Registration{
		Tool: ai.Tool{
			Name:        name,
			Description: description,
			Parameters:  MustSchemaFor[T](),
		},
		Handler: typed(fn),
		Options: opts,
	}
}

// WithHandler creates a Registration from a Handler and a raw schema.
func WithHandler(name, description string, schema json.RawMessage, h Handler, opts ...RegisterOption) Registration {
	return Registration{
		Tool:    ai.Tool{Name: name, Description: description, Parameters: schema},
		Handler: h,
		Options: opts,
	}
}

// Add registers one or more tools to the registry.
// Panics if any tool is already registered.
// Returns the registry for fluent chaining.
func (r *Registry) Add(regs ...Registration) *Registry {
	for _, reg := range regs {
		r.MustRegister(reg.Tool, reg.Handler, reg.Options...)
	}
	return r
}

func (r *Registry) timeoutFor(d *Descriptor) time.Duration {
	if d.Timeout > 0 {
		return d.Timeout
	}
	return r.defaultTimeout
}
