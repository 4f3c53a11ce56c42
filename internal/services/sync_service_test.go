package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minerva/internal/events"
	"minerva/pkg/minervatypes"
)

func TestSyncService_ImportConversations_CreatesUnknownIDs(t *testing.T) {
	env := newTestEnv(t)
	sync := newTestSync(t, env)

	var storeChanged bool
	env.bus.Subscribe(events.TopicStoreChanged, func(events.Event) { storeChanged = true })

	records := map[string]minervatypes.RemoteRecord{
		"remote-1": {
			ID:    "remote-1",
			Title: "Imported",
			Messages: []minervatypes.RemoteMessage{
				{Sender: "user", Text: "hello"},
				{Sender: "bot", Text: "hi there"},
			},
		},
	}
	require.NoError(t, sync.ImportConversations(records))

	result := env.conversations.Find("remote-1")
	require.NotNil(t, result)
	assert.Equal(t, minervatypes.LocationGeneral, result.Location)
	assert.Equal(t, "Imported", result.Conversation.Title)
	assert.Nil(t, result.Conversation.ExpireAt)
	assert.Equal(t, "hi there", result.Conversation.Summary)
	assert.True(t, storeChanged)

	// The remote sender vocabulary is normalized to local roles.
	require.Len(t, result.Conversation.Messages, 2)
	assert.Equal(t, "user", result.Conversation.Messages[0].Role)
	assert.Equal(t, "assistant", result.Conversation.Messages[1].Role)
}

func TestSyncService_ImportConversations_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	sync := newTestSync(t, env)

	records := map[string]minervatypes.RemoteRecord{
		"remote-1": {
			ID:       "remote-1",
			Title:    "Once",
			Messages: []minervatypes.RemoteMessage{{Sender: "user", Text: "hello"}},
		},
	}
	require.NoError(t, sync.ImportConversations(records))
	require.NoError(t, sync.ImportConversations(records))

	assert.Len(t, env.ws.Doc().General, 1)
	assert.Len(t, env.conversations.Find("remote-1").Conversation.Messages, 1)
}

func TestSyncService_ImportConversations_ReplacesOnlyWhenRemoteLonger(t *testing.T) {
	env := newTestEnv(t)
	sync := newTestSync(t, env)

	require.NoError(t, sync.ImportConversations(map[string]minervatypes.RemoteRecord{
		"remote-1": {
			ID: "remote-1",
			Messages: []minervatypes.RemoteMessage{
				{Sender: "user", Text: "one"},
				{Sender: "bot", Text: "two"},
			},
		},
	}))

	// Same length with different text: local wins.
	require.NoError(t, sync.ImportConversations(map[string]minervatypes.RemoteRecord{
		"remote-1": {
			ID: "remote-1",
			Messages: []minervatypes.RemoteMessage{
				{Sender: "user", Text: "rewritten"},
				{Sender: "bot", Text: "rewritten"},
			},
		},
	}))
	conv := env.conversations.Find("remote-1").Conversation
	assert.Equal(t, "one", conv.Messages[0].Content)

	// Strictly longer remote list: remote wins.
	require.NoError(t, sync.ImportConversations(map[string]minervatypes.RemoteRecord{
		"remote-1": {
			ID: "remote-1",
			Messages: []minervatypes.RemoteMessage{
				{Sender: "user", Text: "one"},
				{Sender: "bot", Text: "two"},
				{Sender: "user", Text: "three"},
			},
		},
	}))
	conv = env.conversations.Find("remote-1").Conversation
	require.Len(t, conv.Messages, 3)
	assert.Equal(t, "three", conv.Messages[2].Content)
	assert.Equal(t, "three", conv.Summary)
}

func TestSyncService_ImportConversations_TitleFallback(t *testing.T) {
	env := newTestEnv(t)
	sync := newTestSync(t, env)

	require.NoError(t, sync.ImportConversations(map[string]minervatypes.RemoteRecord{
		"remote-1": {
			ID:       "remote-1",
			Messages: []minervatypes.RemoteMessage{{Sender: "user", Text: "short question"}},
		},
	}))

	conv := env.conversations.Find("remote-1").Conversation
	assert.Equal(t, "short question", conv.Title)
}

func TestSyncService_ReconcileLegacy(t *testing.T) {
	env := newTestEnv(t)
	sync := newTestSync(t, env)

	existing, err := env.conversations.Create("Already Here", nil, minervatypes.CreateOptions{})
	require.NoError(t, err)

	legacy := []minervatypes.LegacyConversation{
		{
			ID:    "legacy-1",
			Title: "Old Chat",
			Messages: []minervatypes.RemoteMessage{
				{Sender: "user", Text: "from the flat file"},
			},
			Pinned: true,
			Tags:   []string{"archive"},
		},
		{ID: existing, Title: "Duplicate Of Existing"},
	}
	require.NoError(t, sync.ReconcileLegacy(legacy))

	result := env.conversations.Find("legacy-1")
	require.NotNil(t, result)
	assert.Equal(t, minervatypes.LocationGeneral, result.Location)
	assert.Equal(t, "Old Chat", result.Conversation.Title)
	assert.True(t, result.Conversation.Pinned)
	assert.Equal(t, []string{"archive"}, result.Conversation.Tags)
	assert.False(t, result.Conversation.Created.IsZero())

	// The existing conversation kept its own title.
	assert.Equal(t, "Already Here", env.conversations.Find(existing).Conversation.Title)

	// Running reconcile again changes nothing.
	require.NoError(t, sync.ReconcileLegacy(legacy))
	assert.Len(t, env.ws.Doc().General, 2)
}

func TestSyncService_PullRemote_LocalBackendRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	sync := newTestSync(t, env)

	id, err := env.conversations.Create("Mine", []minervatypes.Message{
		{Role: "user", Content: "hello"},
	}, minervatypes.CreateOptions{})
	require.NoError(t, err)

	// Pulling from the local backend re-imports the store's own records and
	// must not duplicate or mutate anything.
	require.NoError(t, sync.PullRemote(context.Background()))
	assert.Len(t, env.ws.Doc().General, 1)
	assert.Len(t, env.conversations.Find(id).Conversation.Messages, 1)
}

func TestSyncService_StartPolling_PublishesAvailability(t *testing.T) {
	env := newTestEnv(t)
	sync := newTestSync(t, env)

	status := make(chan bool, 1)
	env.bus.Subscribe(events.TopicAPIStatusChanged, func(evt events.Event) {
		if available, ok := evt.Payload.(bool); ok {
			select {
			case status <- available:
			default:
			}
		}
	})

	sync.StartPolling()
	defer sync.StopPolling()

	select {
	case available := <-status:
		assert.True(t, available)
	case <-time.After(2 * time.Second):
		t.Fatal("no availability event published")
	}
}

func TestSyncService_NextBackoff(t *testing.T) {
	env := newTestEnv(t)
	sync := newTestSync(t, env)

	assert.Equal(t, 22500*time.Millisecond, sync.NextBackoff(15*time.Second))

	// Growth is capped at the configured maximum.
	assert.Equal(t, 5*time.Minute, sync.NextBackoff(4*time.Minute))
	assert.Equal(t, 5*time.Minute, sync.NextBackoff(5*time.Minute))
}

func TestSyncService_Uninitialized(t *testing.T) {
	sync := &SyncService{}

	assert.Error(t, sync.ImportConversations(nil))
	assert.Error(t, sync.ReconcileLegacy(nil))
	assert.Error(t, sync.PullRemote(context.Background()))
}
