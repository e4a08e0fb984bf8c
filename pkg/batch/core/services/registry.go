// Package services implements the capability registry: it hardens the engine
// configuration once, then lazily instantiates, initializes and caches exactly
// one implementation per capability.
package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"

	"github.com/tigerroll/stepcore/pkg/batch/core/application/port"
	"github.com/tigerroll/stepcore/pkg/batch/core/config"
	"github.com/tigerroll/stepcore/pkg/batch/support/util/exception"
	"github.com/tigerroll/stepcore/pkg/batch/support/util/logger"
)

const moduleName = "registry"

var (
	errNoBinding       = errors.New("no implementation configured")
	errUnknownProvider = errors.New("no provider registered under this identifier")
)

// Registry resolves capabilities to singletons.
//
// Configuration is merged and hardened by Initialize, at most once. Resolve
// publishes an instance only after its Init hook returned, so lock-free readers
// always observe fully initialized singletons.
type Registry struct {
	loader *config.Loader

	// guarded by initMu until initialized is set, read-only afterwards
	initMu      sync.Mutex
	initialized atomic.Bool
	props       config.Properties
	settings    *config.EngineSettings
	env         func(string) (string, bool)

	setupMu      sync.RWMutex
	providers    map[string]Provider
	bindings     config.Properties
	capabilities map[reflect.Type]struct{}

	// mu guards slots; a slot's lock is held while its capability is first resolved.
	mu    sync.Mutex
	slots map[reflect.Type]*sync.Mutex
	cache sync.Map // reflect.Type -> port.BatchService

	loadedMu sync.Mutex
	loaded   []port.BatchService
	closed   atomic.Bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithLoader sets the configuration loader used by Initialize.
func WithLoader(l *config.Loader) Option {
	return func(r *Registry) { r.loader = l }
}

// NewRegistry creates an empty registry. Providers and default bindings are
// added with Provide and Bind before the first Initialize or Resolve.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		providers:    make(map[string]Provider),
		bindings:     make(config.Properties),
		capabilities: make(map[reflect.Type]struct{}),
		slots:        make(map[reflect.Type]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.loader == nil {
		r.loader = config.NewLoader()
	}
	return r
}

// Provide registers the provider of implementation id.
// It panics on an empty id or a provider without constructors.
func (r *Registry) Provide(id string, p Provider) {
	if id == "" {
		panic("services: provider id cannot be empty")
	}
	if p.WithRegistry == nil && p.NoArg == nil {
		panic(fmt.Sprintf("services: provider %q has no constructor", id))
	}
	r.setupMu.Lock()
	defer r.setupMu.Unlock()
	r.providers[id] = p
}

// Bind makes id the built-in default implementation of capability T.
// Defaults are stored under the capability's short name so that both the
// short and the fully qualified name can override them from configuration.
func Bind[T port.BatchService](r *Registry, id string) {
	key := CapabilityKey[T]()
	if r.initialized.Load() {
		logger.Warnf("Default binding of %s to '%s' ignored: configuration is already hardened.", FullName(key), id)
		return
	}
	r.setupMu.Lock()
	defer r.setupMu.Unlock()
	r.bindings[ShortName(key)] = id
	r.capabilities[key] = struct{}{}
}

// Initialize builds and hardens the effective configuration. Precedence, lowest
// first: default bindings and settings, the configuration resource, overrides,
// the process environment. Only the first successful call does any work;
// concurrent callers block until it completes.
func (r *Registry) Initialize(overrides map[string]string) error {
	if r.initialized.Load() {
		return nil
	}
	r.initMu.Lock()
	defer r.initMu.Unlock()
	if r.initialized.Load() {
		return nil
	}

	r.setupMu.RLock()
	defaults := config.DefaultSettings()
	defaults.Merge(r.bindings)
	known := make([]string, 0, 2*len(r.capabilities))
	for key := range r.capabilities {
		known = append(known, FullName(key), ShortName(key))
	}
	r.setupMu.RUnlock()

	props, err := r.loader.Load(defaults, overrides, known...)
	if err != nil {
		return exception.NewBatchError(moduleName, "failed to load registry configuration", err, false, false)
	}
	settings, err := config.BindSettings(props)
	if err != nil {
		return err
	}

	logger.SetLogLevel(settings.LogLevel)
	r.env = r.loader.Environment()
	r.props = props
	r.settings = settings
	r.initialized.Store(true)
	logger.Debugf("Capability registry initialized with %d configuration entries.", len(props))
	return nil
}

// Resolve returns the singleton implementing capability T, loading it on first request.
//
// Errors: an unconfigured or unknown implementation id, a failing provider or
// Init hook, or a value that does not implement T yield *exception.ServiceLoadError.
// A *exception.FatalError raised by a provider is returned unchanged, and a
// provider returning no instance is fatal.
func Resolve[T port.BatchService](r *Registry) (T, error) {
	var zero T
	key := CapabilityKey[T]()
	if v, ok := r.cache.Load(key); ok {
		return v.(T), nil
	}
	if err := r.Initialize(nil); err != nil {
		return zero, err
	}
	svc, err := r.load(key)
	if err != nil {
		return zero, err
	}
	return svc.(T), nil
}

// MustResolve is Resolve for wiring code that cannot proceed without T.
func MustResolve[T port.BatchService](r *Registry) T {
	svc, err := Resolve[T](r)
	if err != nil {
		panic(err)
	}
	return svc
}

func (r *Registry) slot(key reflect.Type) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[key]
	if !ok {
		s = &sync.Mutex{}
		r.slots[key] = s
	}
	return s
}

func (r *Registry) load(key reflect.Type) (port.BatchService, error) {
	lock := r.slot(key)
	lock.Lock()
	defer lock.Unlock()

	if v, ok := r.cache.Load(key); ok {
		return v.(port.BatchService), nil
	}
	if r.closed.Load() {
		return nil, exception.NewServiceLoadError(FullName(key), "", errors.New("registry is closed"))
	}

	full, short := FullName(key), ShortName(key)
	id := r.implementationID(full, short)
	if id == "" {
		return nil, exception.NewServiceLoadError(full, id, errNoBinding)
	}

	r.setupMu.RLock()
	provider, ok := r.providers[id]
	r.setupMu.RUnlock()
	if !ok {
		return nil, exception.NewServiceLoadError(full, id, errUnknownProvider)
	}

	svc, err := r.instantiate(provider)
	if err != nil {
		if fe, ok := exception.AsFatal(err); ok {
			return nil, fe
		}
		return nil, exception.NewServiceLoadError(full, id, err)
	}
	if isNilService(svc) {
		return nil, exception.NewFatalError(moduleName, fmt.Sprintf("provider '%s' returned no instance for %s", id, full), nil)
	}
	if !reflect.TypeOf(svc).Implements(key) {
		return nil, exception.NewServiceLoadError(full, id, fmt.Errorf("%T does not implement %s", svc, full))
	}
	if err := r.initService(svc); err != nil {
		if fe, ok := exception.AsFatal(err); ok {
			return nil, fe
		}
		return nil, exception.NewServiceLoadError(full, id, err)
	}

	r.cache.Store(key, svc)
	r.loadedMu.Lock()
	r.loaded = append(r.loaded, svc)
	r.loadedMu.Unlock()

	if r.settings.ServiceManagerLog {
		logger.Infof("Loaded service '%s' (%T) for %s.", id, svc, full)
	} else {
		logger.Debugf("Loaded service '%s' (%T) for %s.", id, svc, full)
	}
	return svc, nil
}

// implementationID returns the implementation configured for a capability.
// Capabilities without a default binding are not part of the hardened
// configuration unless the resource or an override names them, so their
// environment variables are consulted here.
func (r *Registry) implementationID(full, short string) string {
	for _, name := range []string{full, short} {
		if id := r.props[name]; id != "" {
			return id
		}
	}
	if r.env == nil {
		return ""
	}
	for _, name := range []string{full, short} {
		if id, ok := r.env(config.EnvName(name)); ok && id != "" {
			logger.Debugf("Implementation of %s taken from environment variable %s.", full, config.EnvName(name))
			return id
		}
	}
	return ""
}

func (r *Registry) instantiate(p Provider) (svc port.BatchService, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = exception.FromPanic(moduleName, rec)
		}
	}()
	if p.WithRegistry != nil {
		return p.WithRegistry(r)
	}
	return p.NoArg()
}

func (r *Registry) initService(svc port.BatchService) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = exception.FromPanic(moduleName, rec)
		}
	}()
	return svc.Init(r.props.Clone())
}

// Value returns the hardened configuration value for key, or def.
func (r *Registry) Value(key, def string) string {
	if err := r.Initialize(nil); err != nil {
		logger.Warnf("Registry configuration unavailable, using default for '%s': %v", key, err)
		return def
	}
	return r.props.Get(key, def)
}

// Config returns a copy of the hardened configuration.
func (r *Registry) Config() (config.Properties, error) {
	if err := r.Initialize(nil); err != nil {
		return nil, err
	}
	return r.props.Clone(), nil
}

// Settings returns the typed engine settings of the hardened configuration.
func (r *Registry) Settings() (*config.EngineSettings, error) {
	if err := r.Initialize(nil); err != nil {
		return nil, err
	}
	s := *r.settings
	return &s, nil
}

// Close shuts down every loaded capability implementing port.Shutdowner, in
// reverse load order. Cached singletons stay readable; no new capability is loaded.
func (r *Registry) Close(ctx context.Context) error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	r.loadedMu.Lock()
	loaded := append([]port.BatchService(nil), r.loaded...)
	r.loadedMu.Unlock()

	var result *multierror.Error
	for i := len(loaded) - 1; i >= 0; i-- {
		if s, ok := loaded[i].(port.Shutdowner); ok {
			if err := s.Shutdown(ctx); err != nil {
				logger.Warnf("Failed to shut down service %T: %v", loaded[i], err)
				result = multierror.Append(result, err)
			}
		}
	}
	return result.ErrorOrNil()
}
