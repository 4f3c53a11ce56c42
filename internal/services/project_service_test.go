package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minerva/pkg/minervatypes"
)

func TestProjectService_Create(t *testing.T) {
	env := newTestEnv(t)

	project, err := env.projects.Create("Research", "long-running notes")
	require.NoError(t, err)
	require.NotNil(t, project)

	assert.NotEmpty(t, project.ID)
	assert.Equal(t, "Research", project.Name)
	assert.Equal(t, "long-running notes", project.Description)
	assert.Equal(t, project.Created, project.LastModified)

	// The project's conversation list exists and is empty from the start.
	list, exists := env.ws.Doc().Projects[project.ID]
	assert.True(t, exists)
	assert.Empty(t, list)
}

func TestProjectService_Create_RejectsEmptyName(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.projects.Create("", "desc")
	assert.Error(t, err)

	_, err = env.projects.Create("   ", "desc")
	assert.Error(t, err)

	// Validation failures must not leave partial state behind.
	assert.Empty(t, env.ws.Doc().ProjectIndex)
}

func TestProjectService_Create_TrimsName(t *testing.T) {
	env := newTestEnv(t)

	project, err := env.projects.Create("  Padded  ", "")
	require.NoError(t, err)
	assert.Equal(t, "Padded", project.Name)
}

func TestProjectService_Rename(t *testing.T) {
	env := newTestEnv(t)

	project, err := env.projects.Create("Before", "")
	require.NoError(t, err)

	require.True(t, env.projects.Rename(project.ID, "After"))

	name, ok := env.projects.GetName(project.ID)
	require.True(t, ok)
	assert.Equal(t, "After", name)
	assert.True(t, project.LastModified.After(project.Created))
}

func TestProjectService_Rename_Rejections(t *testing.T) {
	env := newTestEnv(t)

	project, err := env.projects.Create("Stable", "")
	require.NoError(t, err)

	assert.False(t, env.projects.Rename("missing", "Name"))
	assert.False(t, env.projects.Rename(project.ID, "   "))

	name, _ := env.projects.GetName(project.ID)
	assert.Equal(t, "Stable", name)
}

func TestProjectService_Delete_CascadeReassignsToGeneral(t *testing.T) {
	env := newTestEnv(t)

	project, err := env.projects.Create("Doomed", "")
	require.NoError(t, err)

	first, err := env.conversations.Create("One", nil, minervatypes.CreateOptions{ProjectID: project.ID})
	require.NoError(t, err)
	second, err := env.conversations.Create("Two", nil, minervatypes.CreateOptions{ProjectID: project.ID})
	require.NoError(t, err)

	require.True(t, env.projects.Delete(project.ID))

	// Conversations survive the project, back in general with the project
	// reference cleared.
	for _, id := range []string{first, second} {
		result := env.conversations.Find(id)
		require.NotNil(t, result)
		assert.Equal(t, minervatypes.LocationGeneral, result.Location)
		assert.Empty(t, result.Conversation.Project)
	}

	_, exists := env.ws.Doc().Projects[project.ID]
	assert.False(t, exists)
	_, ok := env.projects.GetName(project.ID)
	assert.False(t, ok)
}

func TestProjectService_Delete_UnknownID(t *testing.T) {
	env := newTestEnv(t)
	assert.False(t, env.projects.Delete("missing"))
}

func TestProjectService_ListAll_OrdersByLastModified(t *testing.T) {
	env := newTestEnv(t)

	older, err := env.projects.Create("Older", "")
	require.NoError(t, err)
	newer, err := env.projects.Create("Newer", "")
	require.NoError(t, err)

	projects := env.projects.ListAll()
	require.Len(t, projects, 2)
	assert.Equal(t, newer.ID, projects[0].ID)
	assert.Equal(t, older.ID, projects[1].ID)

	// Renaming bumps a project back to the front.
	require.True(t, env.projects.Rename(older.ID, "Renamed"))
	projects = env.projects.ListAll()
	assert.Equal(t, older.ID, projects[0].ID)
}

func TestProjectService_GetName_Unknown(t *testing.T) {
	env := newTestEnv(t)

	name, ok := env.projects.GetName("missing")
	assert.False(t, ok)
	assert.Empty(t, name)
}

func TestProjectService_UninitializedGuards(t *testing.T) {
	service := &ProjectService{}

	_, err := service.Create("x", "")
	assert.Error(t, err)
	assert.False(t, service.Rename("x", "y"))
	assert.False(t, service.Delete("x"))
	assert.Empty(t, service.ListAll())
}
