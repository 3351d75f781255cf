package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/sqlitestore/internal/engine"
)

// Registration describes one logical database.
type Registration struct {
	// Key is the logical name of the database.
	Key string

	// Path is the filesystem path of the database file.
	Path string

	// Attachments maps schema alias to the key of another registered
	// database. They are attached whenever the registry opens Key.
	Attachments map[string]string

	// Default makes this the database returned by Registry.Default.
	Default bool
}

// Registry maps logical database keys to files and caches one lazily opened
// connection per key.
//
// All methods are safe for concurrent use. Connections returned by Get are
// shared and must not be used from more than one goroutine at a time.
type Registry struct {
	mu         sync.RWMutex
	entries    map[string]Registration
	order      []string
	defaultKey string
	conns      map[string]*Conn

	engine      engine.Engine
	busyTimeout time.Duration
	logger      Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithEngine sets the engine used to open connections.
func WithEngine(e engine.Engine) RegistryOption {
	return func(r *Registry) { r.engine = e }
}

// WithBusyTimeout sets the busy timeout applied to every opened connection.
func WithBusyTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) { r.busyTimeout = d }
}

// WithLogger sets the logger passed to the registry and its connections.
func WithLogger(l Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		entries: make(map[string]Registration),
		conns:   make(map[string]*Conn),
		engine:  engine.SQLite{},
		logger:  noopLogger{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds or replaces a database registration. Replacing a key closes
// its cached connection.
func (r *Registry) Register(reg Registration) error {
	if reg.Key == "" {
		return fmt.Errorf("store: registration key is required")
	}
	if reg.Path == "" {
		return fmt.Errorf("store: registration %q: path is required", reg.Key)
	}

	attachments := make(map[string]string, len(reg.Attachments))
	for alias, key := range reg.Attachments {
		attachments[alias] = key
	}
	reg.Attachments = attachments

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[reg.Key]; exists {
		r.closeCachedLocked(reg.Key)
	} else {
		r.order = append(r.order, reg.Key)
	}
	r.entries[reg.Key] = reg
	if reg.Default {
		r.defaultKey = reg.Key
	}

	r.logger.Debug("database registered", "key", reg.Key, "path", reg.Path)
	return nil
}

// Unregister removes a registration and closes its cached connection.
func (r *Registry) Unregister(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[key]; !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, key)
	}
	err := r.closeCachedLocked(key)
	delete(r.entries, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if r.defaultKey == key {
		r.defaultKey = ""
	}
	return err
}

// Default returns the default key: the one registered with Default set, or
// else the first key registered.
func (r *Registry) Default() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.defaultKey != "" {
		return r.defaultKey, true
	}
	if len(r.order) > 0 {
		return r.order[0], true
	}
	return "", false
}

// Keys returns the registered keys in registration order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, len(r.order))
	copy(keys, r.order)
	return keys
}

// Path returns the file path registered for key.
func (r *Registry) Path(key string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.entries[key]
	return reg.Path, ok
}

// Attachments returns a copy of the attachments registered for key.
func (r *Registry) Attachments(key string) map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.entries[key]
	if !ok {
		return nil
	}
	out := make(map[string]string, len(reg.Attachments))
	for alias, k := range reg.Attachments {
		out[alias] = k
	}
	return out
}

// Get returns the cached read-write connection for key, opening it on first
// use.
func (r *Registry) Get(key string) (*Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.conns[key]; ok {
		return c, nil
	}
	c, err := r.openLocked(key, false)
	if err != nil {
		return nil, err
	}
	r.conns[key] = c
	return c, nil
}

// Open opens a new, uncached connection for key with its registered
// attachments. The caller owns the connection and must close it.
func (r *Registry) Open(key string, readOnly bool) (*Conn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.openLocked(key, readOnly)
}

// With opens key, calls fn with the connection and closes it.
func (r *Registry) With(key string, readOnly bool, fn func(*Conn) error) error {
	c, err := r.Open(key, readOnly)
	if err != nil {
		return err
	}
	fnErr := fn(c)
	if closeErr := c.Close(); closeErr != nil {
		return errors.Join(fnErr, closeErr)
	}
	return fnErr
}

// openLocked opens key and attaches its registered schemas. Callers hold mu.
func (r *Registry) openLocked(key string, readOnly bool) (*Conn, error) {
	reg, ok := r.entries[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, key)
	}

	c, err := Open(Config{
		Path:        reg.Path,
		ReadOnly:    readOnly,
		BusyTimeout: r.busyTimeout,
		Engine:      r.engine,
		Logger:      r.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", key, err)
	}

	aliases := make([]string, 0, len(reg.Attachments))
	for alias := range reg.Attachments {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)

	for _, alias := range aliases {
		target, ok := r.entries[reg.Attachments[alias]]
		if !ok {
			c.Close() //nolint:errcheck // Best effort cleanup on error path
			return nil, fmt.Errorf("attaching %s to %s: %w: %s", alias, key, ErrNotRegistered, reg.Attachments[alias])
		}
		if err := c.AttachSchema(target.Path, alias); err != nil {
			c.Close() //nolint:errcheck // Best effort cleanup on error path
			return nil, fmt.Errorf("attaching %s to %s: %w", alias, key, err)
		}
	}

	return c, nil
}

func (r *Registry) closeCachedLocked(key string) error {
	c, ok := r.conns[key]
	if !ok {
		return nil
	}
	delete(r.conns, key)
	if err := c.Close(); err != nil {
		r.logger.Warn("closing cached connection failed", "key", key, "error", err)
		return err
	}
	return nil
}

// CloseAll closes every cached connection. Registrations are kept.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, key := range r.order {
		if err := r.closeCachedLocked(key); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}
