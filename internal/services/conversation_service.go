package services

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"minerva/internal/events"
	"minerva/internal/logger"
	"minerva/internal/testutils"
	"minerva/pkg/minervatypes"
)

// conceptRetitleWindow is the message count up to which an append retries
// concept extraction for the title.
const conceptRetitleWindow = 5

// summaryLimit caps the derived preview string length in runes.
const summaryLimit = 100

// ConversationService provides conversation CRUD and query operations over
// the shared working set. Not-found is surfaced as false/nil returns, never
// as a panic or error, across all repository methods. Every successful
// mutation persists explicitly; durability otherwise waits for the autosaver.
type ConversationService struct {
	initialized       bool
	ctx               minervatypes.Context
	ws                *WorkingSet
	bus               *events.Bus
	concept           *ConceptService
	projects          *ProjectService
	defaultExpiryDays int
}

// NewConversationService creates a new ConversationService instance.
func NewConversationService(ctx minervatypes.Context, ws *WorkingSet, bus *events.Bus,
	concept *ConceptService, projects *ProjectService, defaultExpiryDays int) *ConversationService {
	return &ConversationService{
		ctx:               ctx,
		ws:                ws,
		bus:               bus,
		concept:           concept,
		projects:          projects,
		defaultExpiryDays: defaultExpiryDays,
	}
}

// Name returns the service name "conversation" for registration.
func (s *ConversationService) Name() string {
	return "conversation"
}

// Initialize sets up the ConversationService for operation.
func (s *ConversationService) Initialize() error {
	if s.ws == nil {
		return fmt.Errorf("conversation service requires a working set")
	}
	if s.concept == nil || s.projects == nil {
		return fmt.Errorf("conversation service requires concept and project services")
	}
	if s.defaultExpiryDays <= 0 {
		s.defaultExpiryDays = 30
	}
	s.initialized = true
	return nil
}

// Create allocates a new conversation and routes it into exactly one
// collection: the project's list when ProjectID is set, else the agent's
// list when AgentID is set, else general. Expiry defaults to the configured
// number of days unless NeverExpire is requested. Returns the new id.
func (s *ConversationService) Create(title string, messages []minervatypes.Message, opts minervatypes.CreateOptions) (string, error) {
	if !s.initialized {
		return "", fmt.Errorf("conversation service not initialized")
	}

	s.ws.lock()
	defer s.ws.unlock()

	now := testutils.GetCurrentTime(s.ctx)

	if strings.TrimSpace(title) == "" {
		// Placeholder until enough messages exist for a concept title.
		title, _ = s.concept.ExtractTitle(messages)
	}

	conv := &minervatypes.Conversation{
		ID:          testutils.GenerateConversationID(s.ctx),
		Title:       title,
		Messages:    append([]minervatypes.Message(nil), messages...),
		Created:     now,
		LastUpdated: now,
		Pinned:      opts.Pinned,
		Tags:        append([]string(nil), opts.Tags...),
		Summary:     deriveSummary(messages),
	}

	if !opts.NeverExpire {
		days := opts.ExpiryDays
		if days <= 0 {
			days = s.defaultExpiryDays
		}
		expireAt := now.Add(time.Duration(days) * 24 * time.Hour)
		conv.ExpireAt = &expireAt
	}

	doc := s.ws.doc
	switch {
	case opts.ProjectID != "":
		conv.Project = opts.ProjectID
		doc.Projects[opts.ProjectID] = append(doc.Projects[opts.ProjectID], conv)
		s.projects.syncIndexLocked(opts.ProjectID)
	case opts.AgentID != "":
		doc.Agents[opts.AgentID] = append(doc.Agents[opts.AgentID], conv)
	default:
		doc.General = append(doc.General, conv)
	}

	if err := s.ws.persistLocked(); err != nil {
		return "", err
	}

	logger.ServiceOperation("conversation", "create", "conversation", conv.ID)
	return conv.ID, nil
}

// AddMessage appends a message to a conversation, refreshes lastUpdated,
// recomputes the summary, and while the conversation is still short retries
// concept titling, overwriting only when extraction yields a non-default
// result. Returns false when the id is unknown.
func (s *ConversationService) AddMessage(id string, msg minervatypes.Message) bool {
	if !s.initialized {
		return false
	}

	s.ws.lock()
	defer s.ws.unlock()

	result := s.findLocked(id)
	if result == nil {
		return false
	}
	conv := result.Conversation

	if msg.ID == "" {
		msg.ID = testutils.GenerateUUID(s.ctx)
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = testutils.GetCurrentTime(s.ctx)
	}

	conv.Messages = append(conv.Messages, msg)
	conv.LastUpdated = testutils.GetCurrentTime(s.ctx)
	conv.Summary = deriveSummary(conv.Messages)

	if len(conv.Messages) <= conceptRetitleWindow {
		if title, ok := s.concept.ExtractTitle(conv.Messages); ok {
			conv.Title = title
		}
	}

	if err := s.ws.persistLocked(); err != nil {
		logger.Error("Failed to persist message append", "conversation", id, "error", err)
	}
	return true
}

// Find locates a conversation by id across general, project, and agent
// collections, returning it with its location. Returns nil when not found.
func (s *ConversationService) Find(id string) *minervatypes.FindResult {
	if !s.initialized {
		return nil
	}

	s.ws.lock()
	defer s.ws.unlock()
	return s.findLocked(id)
}

// Update applies a partial field merge and refreshes lastUpdated. Returns
// false when the id is unknown.
func (s *ConversationService) Update(id string, updates minervatypes.ConversationUpdates) bool {
	if !s.initialized {
		return false
	}

	s.ws.lock()
	defer s.ws.unlock()

	result := s.findLocked(id)
	if result == nil {
		return false
	}
	conv := result.Conversation

	if updates.Title != nil {
		conv.Title = *updates.Title
	}
	if updates.Messages != nil {
		conv.Messages = append([]minervatypes.Message(nil), (*updates.Messages)...)
		conv.Summary = deriveSummary(conv.Messages)
	}
	if updates.Pinned != nil {
		conv.Pinned = *updates.Pinned
	}
	if updates.Tags != nil {
		conv.Tags = append([]string(nil), (*updates.Tags)...)
	}
	conv.LastUpdated = testutils.GetCurrentTime(s.ctx)

	if err := s.ws.persistLocked(); err != nil {
		logger.Error("Failed to persist conversation update", "conversation", id, "error", err)
	}
	return true
}

// Delete removes a conversation from whichever collection holds it. No-op
// (false) when the id is unknown.
func (s *ConversationService) Delete(id string) bool {
	if !s.initialized {
		return false
	}

	s.ws.lock()
	defer s.ws.unlock()

	conv, loc := s.removeLocked(id)
	if conv == nil {
		return false
	}
	if loc.Location == minervatypes.LocationProject {
		s.projects.syncIndexLocked(loc.ProjectID)
	}

	if err := s.ws.persistLocked(); err != nil {
		logger.Error("Failed to persist conversation delete", "conversation", id, "error", err)
	}

	logger.ServiceOperation("conversation", "delete", "conversation", id)
	return true
}

// TogglePin flips the pinned flag. No-op (false) when the id is unknown.
func (s *ConversationService) TogglePin(id string) bool {
	if !s.initialized {
		return false
	}

	s.ws.lock()
	defer s.ws.unlock()

	result := s.findLocked(id)
	if result == nil {
		return false
	}
	result.Conversation.Pinned = !result.Conversation.Pinned
	result.Conversation.LastUpdated = testutils.GetCurrentTime(s.ctx)

	if err := s.ws.persistLocked(); err != nil {
		logger.Error("Failed to persist pin toggle", "conversation", id, "error", err)
	}
	return true
}

// AssignToProject moves a conversation into the given project's collection,
// removing it from its current collection first so it lives in exactly one.
// Idempotent when already assigned to that project. Returns false when the
// conversation is unknown.
func (s *ConversationService) AssignToProject(conversationID, projectID string) bool {
	if !s.initialized {
		return false
	}

	s.ws.lock()
	defer s.ws.unlock()

	result := s.findLocked(conversationID)
	if result == nil {
		return false
	}
	if result.Location == minervatypes.LocationProject && result.ProjectID == projectID {
		return true
	}

	conv, prev := s.removeLocked(conversationID)
	if conv == nil {
		return false
	}
	if prev.Location == minervatypes.LocationProject {
		s.projects.syncIndexLocked(prev.ProjectID)
	}

	doc := s.ws.doc
	conv.Project = projectID
	doc.Projects[projectID] = append(doc.Projects[projectID], conv)
	s.projects.syncIndexLocked(projectID)

	if err := s.ws.persistLocked(); err != nil {
		logger.Error("Failed to persist project assignment", "conversation", conversationID, "error", err)
	}

	s.bus.Publish(events.TopicConversationAssigned, map[string]string{
		"conversationId": conversationID,
		"projectId":      projectID,
	})
	return true
}

// Search returns conversations matching the query case-insensitively against
// title, message content, and tags, within the scope's candidate set.
// Results are deduplicated by id and ordered by lastUpdated, newest first.
func (s *ConversationService) Search(query string, scope minervatypes.SearchScope) []*minervatypes.Conversation {
	if !s.initialized {
		return make([]*minervatypes.Conversation, 0)
	}

	s.ws.lock()
	defer s.ws.unlock()

	q := strings.ToLower(strings.TrimSpace(query))
	matched := make([]*minervatypes.Conversation, 0)
	for _, conv := range s.candidatesLocked(scope) {
		if q == "" || matchesQuery(conv, q) {
			matched = append(matched, conv)
		}
	}

	matched = dedupeByID(matched)
	sortByLastUpdated(matched)
	return matched
}

// List returns the scope's conversations ordered by lastUpdated, newest
// first, with ties keeping insertion order.
func (s *ConversationService) List(scope minervatypes.SearchScope) []*minervatypes.Conversation {
	return s.Search("", scope)
}

// CleanupExpired removes, from every collection, conversations that are
// unpinned, carry an expiry, and have expired at the given time. Pinned
// conversations are never removed regardless of expireAt. Returns the number
// removed.
func (s *ConversationService) CleanupExpired(now time.Time) int {
	if !s.initialized {
		return 0
	}

	s.ws.lock()
	defer s.ws.unlock()

	doc := s.ws.doc
	removed := 0

	doc.General, removed = filterExpired(doc.General, now, removed)
	for id, list := range doc.Projects {
		doc.Projects[id], removed = filterExpired(list, now, removed)
	}
	for id, list := range doc.Agents {
		doc.Agents[id], removed = filterExpired(list, now, removed)
	}

	if removed > 0 {
		for id := range doc.Projects {
			s.projects.syncIndexLocked(id)
		}
		if err := s.ws.persistLocked(); err != nil {
			logger.Error("Failed to persist expiry cleanup", "error", err)
		}
		logger.ServiceOperation("conversation", "cleanup-expired", "removed", removed)
	}
	return removed
}

// ConvertToProject creates a project seeded from the conversation's title and
// summary, tags both sides auto-converted, and moves the conversation into
// the new project's collection. Returns the new project id.
func (s *ConversationService) ConvertToProject(conversationID string) (string, error) {
	if !s.initialized {
		return "", fmt.Errorf("conversation service not initialized")
	}

	s.ws.lock()
	defer s.ws.unlock()

	result := s.findLocked(conversationID)
	if result == nil {
		return "", fmt.Errorf("conversation '%s' not found", conversationID)
	}
	conv := result.Conversation

	name := strings.TrimSpace(conv.Title)
	if name == "" {
		return "", fmt.Errorf("conversation '%s' has no title to derive a project name from", conversationID)
	}

	project := s.projects.createLocked(name, conv.Summary)
	project.Tags = append(project.Tags, minervatypes.AutoConvertedTag)

	removed, prev := s.removeLocked(conversationID)
	if removed == nil {
		return "", fmt.Errorf("conversation '%s' not found", conversationID)
	}
	if prev.Location == minervatypes.LocationProject {
		s.projects.syncIndexLocked(prev.ProjectID)
	}

	doc := s.ws.doc
	removed.Project = project.ID
	if !containsTag(removed.Tags, minervatypes.AutoConvertedTag) {
		removed.Tags = append(removed.Tags, minervatypes.AutoConvertedTag)
	}
	doc.Projects[project.ID] = append(doc.Projects[project.ID], removed)
	s.projects.syncIndexLocked(project.ID)

	if err := s.ws.persistLocked(); err != nil {
		return "", err
	}

	s.bus.Publish(events.TopicConversationAssigned, map[string]string{
		"conversationId": conversationID,
		"projectId":      project.ID,
	})

	logger.ServiceOperation("conversation", "convert-to-project",
		"conversation", conversationID, "project", project.ID)
	return project.ID, nil
}

// findLocked searches general first, then each project's list, then each
// agent's list, returning the first match with its location. Map keys are
// visited in sorted order so lookups are deterministic.
func (s *ConversationService) findLocked(id string) *minervatypes.FindResult {
	doc := s.ws.doc

	for _, conv := range doc.General {
		if conv.ID == id {
			return &minervatypes.FindResult{Conversation: conv, Location: minervatypes.LocationGeneral}
		}
	}
	for _, pid := range sortedKeys(doc.Projects) {
		for _, conv := range doc.Projects[pid] {
			if conv.ID == id {
				return &minervatypes.FindResult{Conversation: conv, Location: minervatypes.LocationProject, ProjectID: pid}
			}
		}
	}
	for _, aid := range sortedKeys(doc.Agents) {
		for _, conv := range doc.Agents[aid] {
			if conv.ID == id {
				return &minervatypes.FindResult{Conversation: conv, Location: minervatypes.LocationAgent, AgentID: aid}
			}
		}
	}
	return nil
}

// removeLocked splices a conversation out of whichever collection holds it,
// returning the conversation and where it was. Returns nil when not found.
func (s *ConversationService) removeLocked(id string) (*minervatypes.Conversation, *minervatypes.FindResult) {
	doc := s.ws.doc

	for i, conv := range doc.General {
		if conv.ID == id {
			doc.General = append(doc.General[:i], doc.General[i+1:]...)
			return conv, &minervatypes.FindResult{Location: minervatypes.LocationGeneral}
		}
	}
	for _, pid := range sortedKeys(doc.Projects) {
		for i, conv := range doc.Projects[pid] {
			if conv.ID == id {
				doc.Projects[pid] = append(doc.Projects[pid][:i], doc.Projects[pid][i+1:]...)
				return conv, &minervatypes.FindResult{Location: minervatypes.LocationProject, ProjectID: pid}
			}
		}
	}
	for _, aid := range sortedKeys(doc.Agents) {
		for i, conv := range doc.Agents[aid] {
			if conv.ID == id {
				doc.Agents[aid] = append(doc.Agents[aid][:i], doc.Agents[aid][i+1:]...)
				return conv, &minervatypes.FindResult{Location: minervatypes.LocationAgent, AgentID: aid}
			}
		}
	}
	return nil, nil
}

// candidatesLocked selects the scope's candidate conversations. The pinned
// tab flattens across all collections and ignores project/agent scoping.
func (s *ConversationService) candidatesLocked(scope minervatypes.SearchScope) []*minervatypes.Conversation {
	doc := s.ws.doc

	switch scope.Tab {
	case minervatypes.TabPinned:
		var pinned []*minervatypes.Conversation
		for _, conv := range s.allLocked() {
			if conv.Pinned {
				pinned = append(pinned, conv)
			}
		}
		return pinned
	case minervatypes.TabProject:
		return doc.Projects[scope.ProjectID]
	case minervatypes.TabAgent:
		return doc.Agents[scope.AgentID]
	default:
		return s.allLocked()
	}
}

// allLocked flattens every collection, general first, then projects and
// agents in sorted key order.
func (s *ConversationService) allLocked() []*minervatypes.Conversation {
	doc := s.ws.doc
	out := make([]*minervatypes.Conversation, 0, len(doc.General))
	out = append(out, doc.General...)
	for _, pid := range sortedKeys(doc.Projects) {
		out = append(out, doc.Projects[pid]...)
	}
	for _, aid := range sortedKeys(doc.Agents) {
		out = append(out, doc.Agents[aid]...)
	}
	return out
}

func matchesQuery(conv *minervatypes.Conversation, q string) bool {
	if strings.Contains(strings.ToLower(conv.Title), q) {
		return true
	}
	for _, tag := range conv.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	for _, msg := range conv.Messages {
		if strings.Contains(strings.ToLower(msg.Content), q) {
			return true
		}
	}
	return false
}

// dedupeByID keeps the first occurrence of each conversation id. A
// conversation must not appear twice in one result set even if collection
// state has drifted.
func dedupeByID(list []*minervatypes.Conversation) []*minervatypes.Conversation {
	seen := make(map[string]struct{}, len(list))
	out := list[:0]
	for _, conv := range list {
		if _, dup := seen[conv.ID]; dup {
			continue
		}
		seen[conv.ID] = struct{}{}
		out = append(out, conv)
	}
	return out
}

// sortByLastUpdated orders newest first; the stable sort keeps insertion
// order for equal timestamps.
func sortByLastUpdated(list []*minervatypes.Conversation) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].LastUpdated.After(list[j].LastUpdated)
	})
}

func filterExpired(list []*minervatypes.Conversation, now time.Time, removed int) ([]*minervatypes.Conversation, int) {
	kept := list[:0]
	for _, conv := range list {
		if !conv.Pinned && conv.ExpireAt != nil && !conv.ExpireAt.After(now) {
			removed++
			continue
		}
		kept = append(kept, conv)
	}
	return kept, removed
}

// deriveSummary builds the short preview string from the latest message.
func deriveSummary(messages []minervatypes.Message) string {
	if len(messages) == 0 {
		return ""
	}
	content := strings.TrimSpace(messages[len(messages)-1].Content)
	runes := []rune(content)
	if len(runes) > summaryLimit {
		return string(runes[:summaryLimit]) + "..."
	}
	return content
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string][]*minervatypes.Conversation) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
