package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	name        string
	initialized bool
	initErr     error
}

func (f *fakeService) Name() string { return f.name }

func (f *fakeService) Initialize() error {
	if f.initErr != nil {
		return f.initErr
	}
	f.initialized = true
	return nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	registry := NewRegistry()

	svc := &fakeService{name: "alpha"}
	require.NoError(t, registry.RegisterService(svc))

	got, err := registry.GetService("alpha")
	require.NoError(t, err)
	assert.Same(t, svc, got.(*fakeService))

	_, err = registry.GetService("missing")
	assert.Error(t, err)
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	registry := NewRegistry()

	require.NoError(t, registry.RegisterService(&fakeService{name: "alpha"}))
	assert.Error(t, registry.RegisterService(&fakeService{name: "alpha"}))
}

func TestRegistry_InitializeAll(t *testing.T) {
	registry := NewRegistry()

	first := &fakeService{name: "first"}
	second := &fakeService{name: "second"}
	require.NoError(t, registry.RegisterService(first))
	require.NoError(t, registry.RegisterService(second))

	require.NoError(t, registry.InitializeAll())
	assert.True(t, first.initialized)
	assert.True(t, second.initialized)
}

func TestRegistry_InitializeAll_PropagatesFailure(t *testing.T) {
	registry := NewRegistry()

	boom := errors.New("boom")
	require.NoError(t, registry.RegisterService(&fakeService{name: "broken", initErr: boom}))

	err := registry.InitializeAll()
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestRegistry_GetAllServices_ReturnsCopy(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.RegisterService(&fakeService{name: "alpha"}))

	all := registry.GetAllServices()
	delete(all, "alpha")

	_, err := registry.GetService("alpha")
	assert.NoError(t, err)
}
