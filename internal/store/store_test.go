package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minerva/pkg/minervatypes"
)

func TestStore_Load_MissingFile(t *testing.T) {
	st := New(t.TempDir())

	doc := st.Load()
	require.NotNil(t, doc)
	assert.Equal(t, minervatypes.CurrentSchemaVersion, doc.SchemaVersion)
	assert.Empty(t, doc.General)
	assert.NotNil(t, doc.Projects)
	assert.NotNil(t, doc.Agents)
	assert.NotNil(t, doc.ProjectIndex)
}

func TestStore_SaveLoad_RoundTrip(t *testing.T) {
	st := New(t.TempDir())

	expireAt := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	doc := minervatypes.NewStoreDocument()
	doc.General = append(doc.General, &minervatypes.Conversation{
		ID:    "conv-1",
		Title: "Round Trip",
		Messages: []minervatypes.Message{
			{ID: "m1", Role: "user", Content: "hello", Timestamp: time.Date(2025, 1, 1, 0, 0, 1, 0, time.UTC)},
		},
		Created:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		LastUpdated: time.Date(2025, 1, 1, 0, 0, 1, 0, time.UTC),
		Pinned:      true,
		Tags:        []string{"keep"},
		ExpireAt:    &expireAt,
		Summary:     "hello",
	})
	doc.Projects["proj-1"] = []*minervatypes.Conversation{{ID: "conv-2", Title: "Scoped", Project: "proj-1"}}
	doc.ProjectIndex["proj-1"] = &minervatypes.Project{
		ID: "proj-1", Name: "Alpha", Conversations: []string{"conv-2"},
	}
	doc.Agents["agent-1"] = []*minervatypes.Conversation{{ID: "conv-3", Title: "Agent Side"}}

	require.NoError(t, st.Save(doc))

	loaded := st.Load()
	assert.Equal(t, doc.General, loaded.General)
	assert.Equal(t, doc.Projects, loaded.Projects)
	assert.Equal(t, doc.Agents, loaded.Agents)
	assert.Equal(t, doc.ProjectIndex, loaded.ProjectIndex)
	assert.Equal(t, doc.Seq, loaded.Seq)
}

func TestStore_Load_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	st := New(dir)
	require.NoError(t, os.WriteFile(st.Path(), []byte("{not json"), 0o600))

	doc := st.Load()
	require.NotNil(t, doc)
	assert.Empty(t, doc.General)
	assert.Equal(t, minervatypes.CurrentSchemaVersion, doc.SchemaVersion)
}

func TestStore_Load_MigratesOlderSchema(t *testing.T) {
	dir := t.TempDir()
	st := New(dir)

	// A 1.x document: no schemaVersion, no seq, no projectIndex.
	old := `{"general":[{"id":"conv-1","title":"Vintage","messages":[]}],"projects":{}}`
	require.NoError(t, os.WriteFile(st.Path(), []byte(old), 0o600))

	doc := st.Load()
	assert.Equal(t, minervatypes.CurrentSchemaVersion, doc.SchemaVersion)
	require.Len(t, doc.General, 1)
	assert.Equal(t, "Vintage", doc.General[0].Title)
	assert.NotNil(t, doc.Agents)
	assert.NotNil(t, doc.ProjectIndex)
	assert.Zero(t, doc.Seq)
}

func TestStore_Save_BumpsSeq(t *testing.T) {
	st := New(t.TempDir())
	doc := st.Load()

	require.NoError(t, st.Save(doc))
	assert.Equal(t, int64(1), doc.Seq)
	require.NoError(t, st.Save(doc))
	assert.Equal(t, int64(2), doc.Seq)
}

func TestStore_Save_LastWriteWins(t *testing.T) {
	dir := t.TempDir()

	// Two instances load the same empty document, then write concurrently.
	first := New(dir)
	second := New(dir)
	docA := first.Load()
	docB := second.Load()

	docB.General = append(docB.General, &minervatypes.Conversation{ID: "from-b", Title: "B"})
	require.NoError(t, second.Save(docB))

	docA.General = append(docA.General, &minervatypes.Conversation{ID: "from-a", Title: "A"})
	require.NoError(t, first.Save(docA))

	// The later writer wins wholesale and its seq moved past the overwritten
	// document's.
	final := first.Load()
	require.Len(t, final.General, 1)
	assert.Equal(t, "from-a", final.General[0].ID)
	assert.Equal(t, int64(2), final.Seq)
}

func TestStore_Save_AtomicNoTempLeftover(t *testing.T) {
	dir := t.TempDir()
	st := New(dir)

	require.NoError(t, st.Save(minervatypes.NewStoreDocument()))

	_, err := os.Stat(st.Path() + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestStore_Save_StorageError(t *testing.T) {
	dir := t.TempDir()

	// Make the data directory path collide with a regular file so MkdirAll
	// fails.
	blocked := filepath.Join(dir, "blocked")
	require.NoError(t, os.WriteFile(blocked, []byte("x"), 0o600))

	st := New(filepath.Join(blocked, "nested"))
	err := st.Save(minervatypes.NewStoreDocument())
	require.Error(t, err)

	var storageErr *StorageError
	require.True(t, errors.As(err, &storageErr))
	assert.Equal(t, "mkdir", storageErr.Op)
	assert.NotNil(t, storageErr.Unwrap())
}
