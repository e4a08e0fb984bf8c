package services_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/tigerroll/stepcore/pkg/batch/core/application/port"
	"github.com/tigerroll/stepcore/pkg/batch/core/config"
	"github.com/tigerroll/stepcore/pkg/batch/core/services"
	"github.com/tigerroll/stepcore/pkg/batch/support/util/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type GreeterService interface {
	port.BatchService
	Greet() string
}

type ClockService interface {
	port.BatchService
	Now() string
}

type greeter struct {
	prefix   string
	props    config.Properties
	initErr  error
	stopped  *[]string
	name     string
	initCall int32
}

func (g *greeter) Init(props config.Properties) error {
	atomic.AddInt32(&g.initCall, 1)
	g.props = props
	g.prefix = props.Get("greeter.prefix", "hello")
	return g.initErr
}

func (g *greeter) Greet() string { return g.prefix }

func (g *greeter) Shutdown(context.Context) error {
	if g.stopped != nil {
		*g.stopped = append(*g.stopped, g.name)
	}
	return nil
}

type clock struct{ greeterSeen string }

func (c *clock) Init(config.Properties) error { return nil }
func (c *clock) Now() string                  { return "now:" + c.greeterSeen }

type notAGreeter struct{}

func (notAGreeter) Init(config.Properties) error { return nil }

func newTestRegistry(t *testing.T, env map[string]string) *services.Registry {
	t.Helper()
	loader := config.NewLoader(
		config.WithSearchDirs(t.TempDir()),
		config.WithLookupEnv(func(k string) (string, bool) {
			v, ok := env[k]
			return v, ok
		}),
	)
	return services.NewRegistry(services.WithLoader(loader))
}

func TestResolve_DefaultBindingIsInitializedAndCached(t *testing.T) {
	r := newTestRegistry(t, nil)
	var built int32
	r.Provide("greeter.default", services.Provider{NoArg: func() (port.BatchService, error) {
		atomic.AddInt32(&built, 1)
		return &greeter{}, nil
	}})
	services.Bind[GreeterService](r, "greeter.default")

	require.NoError(t, r.Initialize(map[string]string{"greeter.prefix": "hi"}))

	g1, err := services.Resolve[GreeterService](r)
	require.NoError(t, err)
	g2, err := services.Resolve[GreeterService](r)
	require.NoError(t, err)

	assert.Same(t, g1, g2)
	assert.Equal(t, "hi", g1.Greet())
	assert.Equal(t, int32(1), atomic.LoadInt32(&built))
	assert.Equal(t, int32(1), atomic.LoadInt32(&g1.(*greeter).initCall))
}

func TestResolve_ConcurrentFirstResolutionInstantiatesOnce(t *testing.T) {
	r := newTestRegistry(t, nil)
	var built int32
	r.Provide("greeter.default", services.Provider{NoArg: func() (port.BatchService, error) {
		atomic.AddInt32(&built, 1)
		return &greeter{}, nil
	}})
	services.Bind[GreeterService](r, "greeter.default")

	const callers = 64
	results := make([]GreeterService, callers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			g, err := services.Resolve[GreeterService](r)
			assert.NoError(t, err)
			results[i] = g
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&built))
	for _, g := range results {
		assert.Same(t, results[0], g)
	}
}

func TestResolve_UnregisteredIdentifier(t *testing.T) {
	r := newTestRegistry(t, nil)
	services.Bind[GreeterService](r, "acme.MissingGreeter")

	g, err := services.Resolve[GreeterService](r)
	require.Error(t, err)
	assert.Nil(t, g)

	var sle *exception.ServiceLoadError
	require.ErrorAs(t, err, &sle)
	assert.Equal(t, "acme.MissingGreeter", sle.Identifier)
	assert.Contains(t, sle.Capability, "GreeterService")
	assert.False(t, exception.IsFatal(err))
}

func TestResolve_NoBinding(t *testing.T) {
	r := newTestRegistry(t, nil)
	_, err := services.Resolve[ClockService](r)
	assert.True(t, exception.IsServiceLoadError(err))
}

func TestResolve_EnvironmentSelectsUnboundCapability(t *testing.T) {
	r := newTestRegistry(t, map[string]string{"BATCHCORE_CLOCKSERVICE": "clock.env"})
	r.Provide("clock.env", services.Provider{NoArg: func() (port.BatchService, error) {
		return &clock{greeterSeen: "env"}, nil
	}})

	c, err := services.Resolve[ClockService](r)
	require.NoError(t, err)
	assert.Equal(t, "now:env", c.Now())
}

func TestResolve_EnvironmentOutranksOverridesForUnboundCapability(t *testing.T) {
	r := newTestRegistry(t, map[string]string{"BATCHCORE_CLOCKSERVICE": "clock.env"})
	r.Provide("clock.env", services.Provider{NoArg: func() (port.BatchService, error) {
		return &clock{greeterSeen: "env"}, nil
	}})
	r.Provide("clock.override", services.Provider{NoArg: func() (port.BatchService, error) {
		return &clock{greeterSeen: "override"}, nil
	}})
	require.NoError(t, r.Initialize(map[string]string{"ClockService": "clock.override"}))

	c, err := services.Resolve[ClockService](r)
	require.NoError(t, err)
	assert.Equal(t, "now:env", c.Now())
}

func TestResolve_FatalErrorPropagatesUnchanged(t *testing.T) {
	fatal := exception.NewFatalErrorf("greeter", "cannot build greeter")

	cases := map[string]services.Provider{
		"returned": {NoArg: func() (port.BatchService, error) { return nil, fatal }},
		"wrapped": {NoArg: func() (port.BatchService, error) {
			return nil, fmt.Errorf("invocation failed: %w", fatal)
		}},
		"panicked": {NoArg: func() (port.BatchService, error) { panic(fatal) }},
	}
	for name, provider := range cases {
		t.Run(name, func(t *testing.T) {
			r := newTestRegistry(t, nil)
			r.Provide("greeter.fatal", provider)
			services.Bind[GreeterService](r, "greeter.fatal")

			_, err := services.Resolve[GreeterService](r)
			assert.Same(t, fatal, err)
			assert.False(t, exception.IsServiceLoadError(err))
		})
	}
}

func TestResolve_NilInstanceIsFatal(t *testing.T) {
	for name, provider := range map[string]services.Provider{
		"untyped nil": {NoArg: func() (port.BatchService, error) { return nil, nil }},
		"typed nil":   {NoArg: func() (port.BatchService, error) { return (*greeter)(nil), nil }},
	} {
		t.Run(name, func(t *testing.T) {
			r := newTestRegistry(t, nil)
			r.Provide("greeter.nil", provider)
			services.Bind[GreeterService](r, "greeter.nil")

			_, err := services.Resolve[GreeterService](r)
			assert.True(t, exception.IsFatal(err))
		})
	}
}

func TestResolve_WrongTypeIsServiceLoadError(t *testing.T) {
	r := newTestRegistry(t, nil)
	r.Provide("not.a.greeter", services.NoArgProvider(func() port.BatchService { return notAGreeter{} }))
	services.Bind[GreeterService](r, "not.a.greeter")

	_, err := services.Resolve[GreeterService](r)
	var sle *exception.ServiceLoadError
	require.ErrorAs(t, err, &sle)
	assert.Equal(t, "not.a.greeter", sle.Identifier)
	assert.Contains(t, err.Error(), "does not implement")
}

func TestResolve_InitFailureIsNotCached(t *testing.T) {
	r := newTestRegistry(t, nil)
	attempts := 0
	r.Provide("greeter.flaky", services.Provider{NoArg: func() (port.BatchService, error) {
		attempts++
		if attempts == 1 {
			return &greeter{initErr: errors.New("warming up")}, nil
		}
		return &greeter{}, nil
	}})
	services.Bind[GreeterService](r, "greeter.flaky")

	_, err := services.Resolve[GreeterService](r)
	require.True(t, exception.IsServiceLoadError(err))

	g, err := services.Resolve[GreeterService](r)
	require.NoError(t, err)
	assert.Equal(t, "hello", g.Greet())
	assert.Equal(t, 2, attempts)
}

func TestResolve_RegistryConstructorPreferredAndMayResolveOthers(t *testing.T) {
	r := newTestRegistry(t, nil)
	r.Provide("greeter.default", services.NoArgProvider(func() port.BatchService { return &greeter{} }))
	r.Provide("clock.default", services.Provider{
		WithRegistry: func(reg *services.Registry) (port.BatchService, error) {
			g, err := services.Resolve[GreeterService](reg)
			if err != nil {
				return nil, err
			}
			return &clock{greeterSeen: g.Greet()}, nil
		},
		NoArg: func() (port.BatchService, error) { return &clock{greeterSeen: "no-arg"}, nil },
	})
	services.Bind[GreeterService](r, "greeter.default")
	services.Bind[ClockService](r, "clock.default")

	c, err := services.Resolve[ClockService](r)
	require.NoError(t, err)
	assert.Equal(t, "now:hello", c.Now())
}

func TestInitialize_Precedence(t *testing.T) {
	r := newTestRegistry(t, map[string]string{
		config.EnvName("ClockService"): "clock.env",
	})
	for _, id := range []string{"greeter.default", "greeter.override", "greeter.full"} {
		id := id
		r.Provide(id, services.NoArgProvider(func() port.BatchService { return &greeter{name: id} }))
	}
	r.Provide("clock.default", services.NoArgProvider(func() port.BatchService { return &clock{greeterSeen: "default"} }))
	r.Provide("clock.env", services.NoArgProvider(func() port.BatchService { return &clock{greeterSeen: "env"} }))
	services.Bind[GreeterService](r, "greeter.default")
	services.Bind[ClockService](r, "clock.default")

	full := services.FullName(services.CapabilityKey[GreeterService]())
	require.NoError(t, r.Initialize(map[string]string{
		"GreeterService": "greeter.override",
		full:             "greeter.full",
	}))

	g, err := services.Resolve[GreeterService](r)
	require.NoError(t, err)
	assert.Equal(t, "greeter.full", g.(*greeter).name, "fully qualified name is consulted before the short name")

	c, err := services.Resolve[ClockService](r)
	require.NoError(t, err)
	assert.Equal(t, "now:env", c.Now(), "process environment overrides default bindings")
}

func TestInitialize_IsHardenedOnce(t *testing.T) {
	r := newTestRegistry(t, nil)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, r.Initialize(map[string]string{"caller": fmt.Sprint(i)}))
		}(i)
	}
	wg.Wait()

	first := r.Value("caller", "")
	require.NotEmpty(t, first)
	require.NoError(t, r.Initialize(map[string]string{"caller": "late"}))
	assert.Equal(t, first, r.Value("caller", ""))

	services.Bind[GreeterService](r, "ignored")
	assert.Equal(t, "", r.Value("GreeterService", ""))
}

func TestSettingsAndValue(t *testing.T) {
	r := newTestRegistry(t, map[string]string{"BATCHCORE_THREADPOOL_MAX_SIZE": "3"})
	require.NoError(t, r.Initialize(map[string]string{config.KeyServiceManagerLog: "true"}))

	s, err := r.Settings()
	require.NoError(t, err)
	assert.Equal(t, 3, s.ThreadPoolMaxSize)
	assert.True(t, s.ServiceManagerLog)
	assert.Equal(t, "fallback", r.Value("missing.key", "fallback"))

	props, err := r.Config()
	require.NoError(t, err)
	props["mutated"] = "x"
	assert.Equal(t, "", r.Value("mutated", ""))
}

func TestClose_ShutsDownInReverseLoadOrder(t *testing.T) {
	r := newTestRegistry(t, nil)
	var stopped []string
	r.Provide("greeter.default", services.NoArgProvider(func() port.BatchService {
		return &greeter{name: "greeter", stopped: &stopped}
	}))
	r.Provide("clock.default", services.RegistryProvider(func(*services.Registry) port.BatchService { return &clock{} }))
	services.Bind[GreeterService](r, "greeter.default")
	services.Bind[ClockService](r, "clock.default")

	_, err := services.Resolve[GreeterService](r)
	require.NoError(t, err)
	require.NoError(t, r.Close(context.Background()))
	assert.Equal(t, []string{"greeter"}, stopped)

	_, err = services.Resolve[ClockService](r)
	assert.True(t, exception.IsServiceLoadError(err))
	_, err = services.Resolve[GreeterService](r)
	assert.NoError(t, err, "cached singletons remain readable after close")
	assert.NoError(t, r.Close(context.Background()))
}

func TestProvide_Validation(t *testing.T) {
	r := newTestRegistry(t, nil)
	assert.Panics(t, func() { r.Provide("", services.NoArgProvider(func() port.BatchService { return &greeter{} })) })
	assert.Panics(t, func() { r.Provide("x", services.Provider{}) })
}
