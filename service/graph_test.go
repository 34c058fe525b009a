package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	deps       []string
	started    bool
	startErr   error
	stopErr    error
	startCalls int
	stopCalls  int
}

func (f *fakeService) Dependencies() []string { return f.deps }
func (f *fakeService) Start() error {
	f.startCalls++
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	return nil
}
func (f *fakeService) Stop() error {
	f.stopCalls++
	f.started = false
	return f.stopErr
}
func (f *fakeService) Started() bool { return f.started }

func TestStart_OrdersDependenciesFirst(t *testing.T) {
	g := New()
	db := &fakeService{}
	cache := &fakeService{deps: []string{"db"}}
	api := &fakeService{deps: []string{"db", "cache"}}

	require.NoError(t, g.RegisterService("api", api))
	require.NoError(t, g.RegisterService("db", db))
	require.NoError(t, g.RegisterService("cache", cache))

	require.NoError(t, g.Start())
	assert.True(t, db.Started())
	assert.True(t, cache.Started())
	assert.True(t, api.Started())
}

func TestStart_DetectsCycle(t *testing.T) {
	g := New()
	a := &fakeService{deps: []string{"b"}}
	b := &fakeService{deps: []string{"a"}}
	require.NoError(t, g.RegisterService("a", a))
	require.NoError(t, g.RegisterService("b", b))

	err := g.Start()
	assert.ErrorIs(t, err, ErrDependencyCycle)
}

func TestStart_FailsOnUnregisteredDependency(t *testing.T) {
	g := New()
	a := &fakeService{deps: []string{"ghost"}}
	require.NoError(t, g.RegisterService("a", a))

	err := g.Start()
	assert.ErrorIs(t, err, ErrUnknownService)
}

func TestStart_StopsSequenceOnFirstFailure(t *testing.T) {
	g := New()
	db := &fakeService{startErr: assert.AnError}
	api := &fakeService{deps: []string{"db"}}
	require.NoError(t, g.RegisterService("api", api))
	require.NoError(t, g.RegisterService("db", db))

	err := g.Start()
	require.Error(t, err)
	assert.False(t, api.Started())
	assert.Zero(t, api.startCalls)
}

func TestStop_ReversesStartOrderAndContinuesOnError(t *testing.T) {
	g := New()
	db := &fakeService{}
	api := &fakeService{deps: []string{"db"}, stopErr: assert.AnError}
	require.NoError(t, g.RegisterService("api", api))
	require.NoError(t, g.RegisterService("db", db))
	require.NoError(t, g.Start())

	g.Stop()
	assert.Equal(t, 1, api.stopCalls)
	assert.Equal(t, 1, db.stopCalls, "db stop must still run despite api.Stop() failing")
}

func TestService_RejectsUnstartedLookup(t *testing.T) {
	g := New()
	db := &fakeService{}
	require.NoError(t, g.RegisterService("db", db))

	_, err := g.Service("db")
	assert.ErrorIs(t, err, ErrDependencyNotStarted)

	require.NoError(t, g.Start())
	svc, err := g.Service("db")
	require.NoError(t, err)
	assert.Same(t, db, svc)
}
