package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"minerva/internal/config"
	"minerva/internal/context"
	"minerva/internal/events"
	"minerva/internal/store"
	"minerva/internal/testutils"
)

// testEnv bundles a fully wired service graph over a throwaway data
// directory, in deterministic test mode.
type testEnv struct {
	ctx           *context.AppContext
	store         *store.Store
	ws            *WorkingSet
	bus           *events.Bus
	concept       *ConceptService
	projects      *ProjectService
	conversations *ConversationService
}

// newTestEnv constructs and initializes the service graph for a test.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	testutils.ResetTestCounters()

	ctx := context.New()
	ctx.SetTestMode(true)

	st := store.New(t.TempDir())
	ws := NewWorkingSet(st)
	bus := events.NewBus()

	concept := NewConceptService(ctx)
	require.NoError(t, concept.Initialize())

	projects := NewProjectService(ctx, ws)
	require.NoError(t, projects.Initialize())

	conversations := NewConversationService(ctx, ws, bus, concept, projects, 30)
	require.NoError(t, conversations.Initialize())

	return &testEnv{
		ctx:           ctx,
		store:         st,
		ws:            ws,
		bus:           bus,
		concept:       concept,
		projects:      projects,
		conversations: conversations,
	}
}

// newTestSync adds an initialized sync service on top of a test environment.
func newTestSync(t *testing.T, env *testEnv) *SyncService {
	t.Helper()

	backend := NewLocalBackend(env.conversations, env.projects)
	sync := NewSyncService(env.ctx, env.ws, env.bus, backend, defaultTestPoll())
	require.NoError(t, sync.Initialize())
	return sync
}

// defaultTestPoll returns backoff parameters small enough for tests that
// compute delays without sleeping on them.
func defaultTestPoll() config.PollConfig {
	return config.PollConfig{
		Base:   15 * time.Second,
		Factor: 1.5,
		Max:    5 * time.Minute,
	}
}

