package services

import (
	"fmt"
	"sort"
	"strings"

	"minerva/internal/logger"
	"minerva/internal/testutils"
	"minerva/pkg/minervatypes"
)

// ProjectService provides project CRUD and the deletion cascade. Project
// metadata lives in the store document's project index; the per-project
// conversation lists are owned jointly with ConversationService through the
// shared working set.
type ProjectService struct {
	initialized bool
	ctx         minervatypes.Context
	ws          *WorkingSet
}

// NewProjectService creates a new ProjectService instance.
func NewProjectService(ctx minervatypes.Context, ws *WorkingSet) *ProjectService {
	return &ProjectService{ctx: ctx, ws: ws}
}

// Name returns the service name "project" for registration.
func (p *ProjectService) Name() string {
	return "project"
}

// Initialize sets up the ProjectService for operation.
func (p *ProjectService) Initialize() error {
	if p.ws == nil {
		return fmt.Errorf("project service requires a working set")
	}
	p.initialized = true
	return nil
}

// Create allocates a new project. The name is required after trimming;
// validation failures are rejected before any mutation.
func (p *ProjectService) Create(name, description string) (*minervatypes.Project, error) {
	if !p.initialized {
		return nil, fmt.Errorf("project service not initialized")
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("project name cannot be empty")
	}

	p.ws.lock()
	defer p.ws.unlock()

	project := p.createLocked(name, description)
	if err := p.ws.persistLocked(); err != nil {
		return nil, err
	}
	return project, nil
}

// createLocked allocates and indexes a project. Callers hold the working-set
// lock and persist afterwards.
func (p *ProjectService) createLocked(name, description string) *minervatypes.Project {
	now := testutils.GetCurrentTime(p.ctx)
	project := &minervatypes.Project{
		ID:           testutils.GenerateProjectID(p.ctx),
		Name:         name,
		Description:  description,
		Created:      now,
		LastModified: now,
	}

	doc := p.ws.doc
	doc.ProjectIndex[project.ID] = project
	if _, exists := doc.Projects[project.ID]; !exists {
		doc.Projects[project.ID] = make([]*minervatypes.Conversation, 0)
	}

	logger.ServiceOperation("project", "create", "project", project.ID)
	return project
}

// Rename updates a project's display name. Returns false if the project does
// not exist or the new name is empty after trimming.
func (p *ProjectService) Rename(id, newName string) bool {
	if !p.initialized {
		return false
	}

	newName = strings.TrimSpace(newName)
	if newName == "" {
		return false
	}

	p.ws.lock()
	defer p.ws.unlock()

	project, exists := p.ws.doc.ProjectIndex[id]
	if !exists {
		return false
	}

	project.Name = newName
	project.LastModified = testutils.GetCurrentTime(p.ctx)

	if err := p.ws.persistLocked(); err != nil {
		logger.Error("Failed to persist project rename", "project", id, "error", err)
	}
	return true
}

// Delete removes a project. The cascade reassigns every conversation in the
// project back to the general collection with its project reference cleared;
// conversations themselves are never deleted. Returns false when not found.
func (p *ProjectService) Delete(id string) bool {
	if !p.initialized {
		return false
	}

	p.ws.lock()
	defer p.ws.unlock()

	doc := p.ws.doc
	_, inIndex := doc.ProjectIndex[id]
	list, hasList := doc.Projects[id]
	if !inIndex && !hasList {
		return false
	}

	for _, conv := range list {
		conv.Project = ""
		doc.General = append(doc.General, conv)
	}
	delete(doc.Projects, id)
	delete(doc.ProjectIndex, id)

	if err := p.ws.persistLocked(); err != nil {
		logger.Error("Failed to persist project delete", "project", id, "error", err)
	}

	logger.ServiceOperation("project", "delete", "project", id, "reassigned", len(list))
	return true
}

// ListAll returns all projects ordered by last modification, newest first.
// Ties keep insertion order.
func (p *ProjectService) ListAll() []*minervatypes.Project {
	if !p.initialized {
		return make([]*minervatypes.Project, 0)
	}

	p.ws.lock()
	defer p.ws.unlock()

	doc := p.ws.doc
	projects := make([]*minervatypes.Project, 0, len(doc.ProjectIndex))
	ids := make([]string, 0, len(doc.ProjectIndex))
	for id := range doc.ProjectIndex {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		projects = append(projects, doc.ProjectIndex[id])
	}

	sort.SliceStable(projects, func(i, j int) bool {
		return projects[i].LastModified.After(projects[j].LastModified)
	})
	return projects
}

// GetName resolves a project id to its display name. Returns ("", false)
// rather than an error when the project is missing, so callers can fall back
// to showing the raw id.
func (p *ProjectService) GetName(id string) (string, bool) {
	if !p.initialized {
		return "", false
	}

	p.ws.lock()
	defer p.ws.unlock()

	project, exists := p.ws.doc.ProjectIndex[id]
	if !exists {
		return "", false
	}
	return project.Name, true
}

// syncIndexLocked rebuilds a project's denormalized conversation-id index
// from the canonical per-project list. Callers hold the working-set lock.
func (p *ProjectService) syncIndexLocked(projectID string) {
	doc := p.ws.doc
	project, exists := doc.ProjectIndex[projectID]
	if !exists {
		return
	}

	list := doc.Projects[projectID]
	ids := make([]string, 0, len(list))
	for _, conv := range list {
		ids = append(ids, conv.ID)
	}
	project.Conversations = ids
}
