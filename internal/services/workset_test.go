package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minerva/internal/store"
	"minerva/pkg/minervatypes"
)

func TestWorkingSet_FlushPersists(t *testing.T) {
	st := store.New(t.TempDir())
	ws := NewWorkingSet(st)

	ws.Doc().General = append(ws.Doc().General, &minervatypes.Conversation{ID: "c1", Title: "Unsaved"})
	require.NoError(t, ws.Flush())

	loaded := st.Load()
	require.Len(t, loaded.General, 1)
	assert.Equal(t, "c1", loaded.General[0].ID)
}

func TestWorkingSet_ReloadDiscardsUnsavedState(t *testing.T) {
	dir := t.TempDir()
	st := store.New(dir)
	ws := NewWorkingSet(st)

	// Another instance persists first; our unsaved edit then loses on reload.
	other := store.New(dir)
	otherDoc := other.Load()
	otherDoc.General = append(otherDoc.General, &minervatypes.Conversation{ID: "external", Title: "Theirs"})
	require.NoError(t, other.Save(otherDoc))

	ws.Doc().General = append(ws.Doc().General, &minervatypes.Conversation{ID: "mine", Title: "Ours"})
	ws.Reload()

	require.Len(t, ws.Doc().General, 1)
	assert.Equal(t, "external", ws.Doc().General[0].ID)
}
