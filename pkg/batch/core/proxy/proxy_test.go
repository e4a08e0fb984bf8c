package proxy_test

import (
	"context"
	"errors"
	"testing"

	"github.com/tigerroll/stepcore/pkg/batch/core/application/port"
	"github.com/tigerroll/stepcore/pkg/batch/core/config"
	model "github.com/tigerroll/stepcore/pkg/batch/core/domain/model"
	"github.com/tigerroll/stepcore/pkg/batch/core/proxy"
	"github.com/tigerroll/stepcore/pkg/batch/support/util/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- Mock Implementations ---

// MockArtifactFactory implements port.ArtifactFactory.
type MockArtifactFactory struct {
	mock.Mock
}

func (m *MockArtifactFactory) Init(config.Properties) error { return nil }

func (m *MockArtifactFactory) Load(ctx context.Context, id string) (*port.ArtifactInstance, error) {
	args := m.Called(ctx, id)
	if res, ok := args.Get(0).(*port.ArtifactInstance); ok {
		return res, args.Error(1)
	}
	return nil, args.Error(1)
}

type handle struct{ released []port.Releasable }

func (h *handle) AddReleasable(r port.Releasable) { h.released = append(h.released, r) }

type releasable struct{}

func (releasable) Release() error { return nil }

// baseReader implements ItemReader; csvReader gets it only through embedding.
type baseReader struct {
	items  []interface{}
	pos    int
	opened bool
}

func (r *baseReader) Open(_ context.Context, _ []byte) error {
	if r.opened {
		return errors.New("already open")
	}
	r.opened = true
	return nil
}

func (r *baseReader) ReadItem(context.Context) (interface{}, error) {
	if r.pos >= len(r.items) {
		return nil, port.ErrNoMoreItems
	}
	r.pos++
	return r.items[r.pos-1], nil
}

func (r *baseReader) CheckpointInfo(context.Context) ([]byte, error) { return nil, nil }
func (r *baseReader) Close(context.Context) error                    { return nil }

type csvReader struct {
	*baseReader
	path string
}

func (r *csvReader) DeclaredRoles() []port.Role { return []port.Role{port.RoleItemReader} }

// recordingListener records the injection context seen by each hook.
type recordingListener struct {
	seen   []*proxy.InjectionContext
	before error
	panics interface{}
}

func (l *recordingListener) BeforeStep(ctx context.Context) error {
	ic, _ := proxy.InjectionContextFrom(ctx)
	l.seen = append(l.seen, ic)
	if l.panics != nil {
		panic(l.panics)
	}
	return l.before
}

func (l *recordingListener) AfterStep(ctx context.Context) error {
	ic, _ := proxy.InjectionContextFrom(ctx)
	l.seen = append(l.seen, ic)
	return nil
}

type liar struct{}

func (liar) DeclaredRoles() []port.Role { return []port.Role{port.RoleBatchlet} }

type awareAlgorithm struct {
	sc *model.StepContext
}

func (a *awareAlgorithm) CheckpointTimeout(context.Context) (int, error)    { return 0, nil }
func (a *awareAlgorithm) BeginCheckpoint(context.Context) error             { return nil }
func (a *awareAlgorithm) IsReadyToCheckpoint(context.Context) (bool, error) { return a.sc != nil, nil }
func (a *awareAlgorithm) EndCheckpoint(context.Context) error               { return nil }
func (a *awareAlgorithm) SetStepContext(sc *model.StepContext)              { a.sc = sc }

// awareListener is a StepListener that wants the StepContext of its attempt.
type awareListener struct {
	sc *model.StepContext
}

func (l *awareListener) BeforeStep(context.Context) error     { return nil }
func (l *awareListener) AfterStep(context.Context) error      { return nil }
func (l *awareListener) SetStepContext(sc *model.StepContext) { l.sc = sc }

func newIC() *proxy.InjectionContext {
	job := model.NewJobContext("job", nil, nil)
	return &proxy.InjectionContext{
		JobContext:  job,
		StepContext: model.NewStepContext(job, &model.Step{ID: "step"}),
		Properties:  map[string]string{"k": "v"},
	}
}

// --- Tests ---

func TestLoad_PublishesInjectionContextAndRegistersReleasable(t *testing.T) {
	ic := newIC()
	f := new(MockArtifactFactory)
	var seen *proxy.InjectionContext
	f.On("Load", mock.Anything, "reader").Run(func(args mock.Arguments) {
		seen, _ = proxy.InjectionContextFrom(args.Get(0).(context.Context))
	}).Return(&port.ArtifactInstance{Value: &baseReader{}, Releasable: releasable{}}, nil)

	h := &handle{}
	ctx := context.Background()
	raw, err := proxy.Load(ctx, f, "reader", ic, h)
	require.NoError(t, err)
	assert.IsType(t, &baseReader{}, raw)
	assert.Same(t, ic, seen)
	assert.Len(t, h.released, 1)

	_, present := proxy.InjectionContextFrom(ctx)
	assert.False(t, present, "the caller's context is never modified")
	f.AssertExpectations(t)
}

func TestLoad_NestedLoadSeesInnermostContext(t *testing.T) {
	outer, inner := newIC(), newIC()
	f := new(MockArtifactFactory)
	var innerSeen, outerAfter *proxy.InjectionContext
	f.On("Load", mock.Anything, "leaf").Run(func(args mock.Arguments) {
		innerSeen, _ = proxy.InjectionContextFrom(args.Get(0).(context.Context))
	}).Return(&port.ArtifactInstance{Value: "leaf"}, nil)
	f.On("Load", mock.Anything, "composite").Run(func(args mock.Arguments) {
		ctx := args.Get(0).(context.Context)
		_, err := proxy.Load(ctx, f, "leaf", inner, nil)
		require.NoError(t, err)
		outerAfter, _ = proxy.InjectionContextFrom(ctx)
	}).Return(&port.ArtifactInstance{Value: "composite"}, nil)

	_, err := proxy.Load(context.Background(), f, "composite", outer, nil)
	require.NoError(t, err)
	assert.Same(t, inner, innerSeen)
	assert.Same(t, outer, outerAfter)
}

func TestLoad_EmptyResultIsLegal(t *testing.T) {
	f := new(MockArtifactFactory)
	f.On("Load", mock.Anything, "missing").Return(nil, nil)
	f.On("Load", mock.Anything, "nilValue").Return(&port.ArtifactInstance{}, nil)

	for _, id := range []string{"missing", "nilValue"} {
		raw, err := proxy.Load(context.Background(), f, id, newIC(), &handle{})
		assert.NoError(t, err)
		assert.Nil(t, raw)
	}
}

func TestLoad_FailuresAreFatal(t *testing.T) {
	cause := errors.New("constructor failed")
	fatal := exception.NewFatalErrorf("factory", "boom")

	f := new(MockArtifactFactory)
	f.On("Load", mock.Anything, "broken").Return(nil, cause)
	f.On("Load", mock.Anything, "fatal").Return(nil, fatal)
	f.On("Load", mock.Anything, "panics").Run(func(mock.Arguments) { panic("kaboom") }).Return(nil, nil)

	_, err := proxy.Load(context.Background(), f, "broken", nil, nil)
	require.True(t, exception.IsFatal(err))
	assert.ErrorIs(t, err, cause)

	_, err = proxy.Load(context.Background(), f, "fatal", nil, nil)
	assert.Same(t, fatal, err)

	_, err = proxy.Load(context.Background(), f, "panics", nil, nil)
	require.True(t, exception.IsFatal(err))
	assert.Contains(t, err.Error(), "kaboom")

	_, err = proxy.Load(context.Background(), nil, "any", nil, nil)
	assert.True(t, exception.IsFatal(err))
}

func TestWrap_ExposesRolesPromotedFromEmbeddedType(t *testing.T) {
	raw := &csvReader{baseReader: &baseReader{items: []interface{}{"a"}}, path: "in.csv"}
	a, err := proxy.Wrap(raw, newIC(), "ReadItem")
	require.NoError(t, err)
	assert.True(t, a.Has(port.RoleItemReader))
	assert.Equal(t, []port.Role{port.RoleItemReader}, a.Roles())

	reader, ok := a.AsItemReader()
	require.True(t, ok)
	ctx := context.Background()
	require.NoError(t, reader.Open(ctx, nil))

	item, err := reader.ReadItem(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", item)

	_, err = reader.ReadItem(ctx)
	assert.Same(t, port.ErrNoMoreItems, err, "excluded methods return the delegate's error verbatim")

	err = reader.Open(ctx, nil)
	require.Error(t, err)
	assert.True(t, exception.IsBatchError(err), "other failures are normalized")

	_, ok = a.AsItemWriter()
	assert.False(t, ok)
}

func TestWrap_ValidatesDeclaredRoles(t *testing.T) {
	_, err := proxy.Wrap(liar{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declares role 'Batchlet'")

	_, err = proxy.Wrap(nil, nil)
	assert.Error(t, err)
}

func TestWrap_EveryCallRepublishesContextAndNormalizesFailures(t *testing.T) {
	ic := newIC()
	l := &recordingListener{before: errors.New("listener failed")}
	a, err := proxy.Wrap(l, ic)
	require.NoError(t, err)
	sl, ok := a.AsStepListener()
	require.True(t, ok)

	err = sl.BeforeStep(context.Background())
	require.Error(t, err)
	var be *exception.BatchError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "listener failed", be.OriginalErr.Error())

	require.NoError(t, sl.AfterStep(context.Background()))
	require.Len(t, l.seen, 2)
	assert.Same(t, ic, l.seen[0])
	assert.Same(t, ic, l.seen[1])

	l.before = nil
	l.panics = "listener exploded"
	err = sl.BeforeStep(context.Background())
	require.Error(t, err)
	assert.True(t, exception.IsBatchError(err))

	fatal := exception.NewFatalErrorf("listener", "stop everything")
	l.panics = fatal
	err = sl.BeforeStep(context.Background())
	assert.Same(t, fatal, err)
}

func TestTypedConstructors(t *testing.T) {
	f := new(MockArtifactFactory)
	f.On("Load", mock.Anything, "reader").Return(&port.ArtifactInstance{Value: &csvReader{baseReader: &baseReader{}}}, nil)
	f.On("Load", mock.Anything, "algo").Return(&port.ArtifactInstance{Value: &awareAlgorithm{}}, nil)
	f.On("Load", mock.Anything, "absent").Return(nil, nil)
	ctx := context.Background()
	ic := newIC()

	reader, err := proxy.NewItemReader(ctx, f, "reader", ic, nil)
	require.NoError(t, err)
	_, err = reader.ReadItem(ctx)
	assert.Same(t, port.ErrNoMoreItems, err)

	empty, err := proxy.NewBatchlet(ctx, f, "", ic, nil)
	assert.NoError(t, err)
	assert.Nil(t, empty)

	missing, err := proxy.NewPartitionCollector(ctx, f, "absent", ic, nil)
	assert.NoError(t, err)
	assert.Nil(t, missing)

	_, err = proxy.NewItemWriter(ctx, f, "reader", ic, nil)
	require.Error(t, err)
	assert.True(t, exception.IsFatal(err))

	algo, err := proxy.NewCheckpointAlgorithm(ctx, f, "algo", ic, nil)
	require.NoError(t, err)
	ready, err := algo.IsReadyToCheckpoint(ctx)
	require.NoError(t, err)
	assert.True(t, ready, "the algorithm is bound to the step context")
}

func TestNewStepListeners_PerReferenceProperties(t *testing.T) {
	first, second := &recordingListener{}, &recordingListener{}
	f := new(MockArtifactFactory)
	f.On("Load", mock.Anything, "first").Return(&port.ArtifactInstance{Value: first}, nil)
	f.On("Load", mock.Anything, "second").Return(&port.ArtifactInstance{Value: second}, nil)
	f.On("Load", mock.Anything, "gone").Return(nil, nil)

	refs := []*model.RefElement{
		{Ref: "first", Properties: model.PropertyList{{Name: "name", Value: "one"}}},
		nil,
		{Ref: "gone"},
		{Ref: "second", Properties: model.PropertyList{{Name: "name", Value: "two"}}},
	}
	ls, err := proxy.NewStepListeners(context.Background(), f, refs, newIC(), nil)
	require.NoError(t, err)
	require.Len(t, ls, 2)

	for _, l := range ls {
		require.NoError(t, l.BeforeStep(context.Background()))
	}
	v, _ := first.seen[0].Property("name")
	assert.Equal(t, "one", v)
	v, _ = second.seen[0].Property("name")
	assert.Equal(t, "two", v)
	assert.NotNil(t, first.seen[0].StepContext)
}

func TestNewStepListeners_BindsStepContext(t *testing.T) {
	aware := &awareListener{}
	f := new(MockArtifactFactory)
	f.On("Load", mock.Anything, "aware").Return(&port.ArtifactInstance{Value: aware}, nil)
	ic := newIC()

	ls, err := proxy.NewStepListeners(context.Background(), f, []*model.RefElement{{Ref: "aware"}}, ic, nil)
	require.NoError(t, err)
	require.Len(t, ls, 1)
	assert.Same(t, ic.StepContext, aware.sc)
}
