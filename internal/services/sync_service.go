package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/sergi/go-diff/diffmatchpatch"

	"minerva/internal/config"
	"minerva/internal/events"
	"minerva/internal/logger"
	"minerva/internal/testutils"
	"minerva/pkg/minervatypes"
)

// SyncService is the bridge between the local store, the legacy flat file,
// and the remote backend. Imports are idempotent: running the same import
// twice produces no further change.
//
// Conflict policy: an existing local conversation's messages are replaced
// only when the remote list is strictly longer. Local-only edits that do not
// add messages can be lost; replacements are diffed into the debug log so
// the loss is at least observable.
type SyncService struct {
	initialized bool
	ctx         minervatypes.Context
	ws          *WorkingSet
	bus         *events.Bus
	backend     minervatypes.ConversationBackend
	poll        config.PollConfig
	log         *charmlog.Logger

	mu         sync.Mutex
	pollCancel context.CancelFunc
	pollDone   chan struct{}
	available  bool
	hasStatus  bool
}

// NewSyncService creates a new SyncService instance.
func NewSyncService(ctx minervatypes.Context, ws *WorkingSet, bus *events.Bus,
	backend minervatypes.ConversationBackend, poll config.PollConfig) *SyncService {
	return &SyncService{
		ctx:     ctx,
		ws:      ws,
		bus:     bus,
		backend: backend,
		poll:    poll,
	}
}

// Name returns the service name "sync" for registration.
func (s *SyncService) Name() string {
	return "sync"
}

// Initialize sets up the SyncService for operation.
func (s *SyncService) Initialize() error {
	if s.ws == nil || s.backend == nil {
		return fmt.Errorf("sync service requires a working set and a backend")
	}
	if s.poll.Base <= 0 {
		s.poll.Base = 15 * time.Second
	}
	if s.poll.Factor < 1 {
		s.poll.Factor = 1.5
	}
	if s.poll.Max <= 0 {
		s.poll.Max = 5 * time.Minute
	}
	s.log = logger.NewStyledLogger("SyncBridge")
	s.initialized = true
	return nil
}

// ImportConversations merges remote records into the local store. Unknown
// ids are created in the general collection with remote ids preserved;
// existing conversations have their message list replaced only when the
// remote list is strictly longer.
func (s *SyncService) ImportConversations(records map[string]minervatypes.RemoteRecord) error {
	if !s.initialized {
		return fmt.Errorf("sync service not initialized")
	}

	s.ws.lock()
	defer s.ws.unlock()

	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	doc := s.ws.doc
	changed := 0
	for _, id := range ids {
		record := records[id]
		local := findConversation(doc, id)
		if local == nil {
			doc.General = append(doc.General, s.remoteToConversation(record))
			changed++
			continue
		}

		if len(record.Messages) <= len(local.Messages) {
			continue
		}

		if s.log.GetLevel() <= charmlog.DebugLevel {
			dmp := diffmatchpatch.New()
			diffs := dmp.DiffMain(flattenMessages(local.Messages), flattenRemoteMessages(record.Messages), false)
			s.log.Debug("Replacing local messages with longer remote list",
				"conversation", id, "diff", dmp.DiffPrettyText(diffs))
		}

		local.Messages = mapRemoteMessages(s.ctx, record.Messages)
		local.LastUpdated = recordUpdatedAt(s.ctx, record)
		local.Summary = deriveSummary(local.Messages)
		changed++
	}

	if changed == 0 {
		return nil
	}

	if err := s.ws.persistLocked(); err != nil {
		return err
	}

	logger.ServiceOperation("sync", "import", "records", len(records), "changed", changed)
	s.bus.Publish(events.TopicStoreChanged, "import")
	return nil
}

// ReconcileLegacy imports conversations from the legacy flat file that do
// not yet exist in the categorized store. The legacy file itself is left in
// place for the remainder of the migration window.
func (s *SyncService) ReconcileLegacy(legacy []minervatypes.LegacyConversation) error {
	if !s.initialized {
		return fmt.Errorf("sync service not initialized")
	}

	s.ws.lock()
	defer s.ws.unlock()

	doc := s.ws.doc
	imported := 0
	for _, old := range legacy {
		if findConversation(doc, old.ID) != nil {
			continue
		}

		conv := &minervatypes.Conversation{
			ID:          old.ID,
			Title:       old.Title,
			Messages:    mapRemoteMessages(s.ctx, old.Messages),
			Created:     old.Created,
			LastUpdated: old.LastUpdated,
			Pinned:      old.Pinned,
			Tags:        append([]string(nil), old.Tags...),
		}
		if conv.Created.IsZero() {
			conv.Created = testutils.GetCurrentTime(s.ctx)
		}
		if conv.LastUpdated.IsZero() {
			conv.LastUpdated = conv.Created
		}
		if strings.TrimSpace(conv.Title) == "" {
			conv.Title = legacyFallbackTitle(s.ctx, conv.Messages)
		}
		conv.Summary = deriveSummary(conv.Messages)

		doc.General = append(doc.General, conv)
		imported++
	}

	if imported == 0 {
		return nil
	}

	if err := s.ws.persistLocked(); err != nil {
		return err
	}

	logger.ServiceOperation("sync", "reconcile-legacy", "imported", imported)
	return nil
}

// PullRemote fetches the backend's conversations and imports them. Network
// failure is logged and returned; callers fall back to local-only behavior.
func (s *SyncService) PullRemote(ctx context.Context) error {
	if !s.initialized {
		return fmt.Errorf("sync service not initialized")
	}

	records, err := s.backend.ListConversations(ctx)
	if err != nil {
		logger.Warn("Remote pull failed, staying local", "backend", s.backend.Name(), "error", err)
		return err
	}

	return s.ImportConversations(records)
}

// StartPolling begins API status polling with exponential backoff. A second
// call supersedes the first: the in-flight poll loop is aborted through its
// context before the new one starts.
func (s *SyncService) StartPolling() {
	if !s.initialized {
		return
	}

	s.mu.Lock()
	if s.pollCancel != nil {
		s.pollCancel()
		done := s.pollDone
		s.mu.Unlock()
		<-done
		s.mu.Lock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.pollCancel = cancel
	s.pollDone = done
	s.mu.Unlock()

	go s.pollLoop(ctx, done)
}

// StopPolling aborts the poll loop, if any.
func (s *SyncService) StopPolling() {
	s.mu.Lock()
	cancel := s.pollCancel
	done := s.pollDone
	s.pollCancel = nil
	s.pollDone = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (s *SyncService) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	delay := s.poll.Base
	for {
		err := s.backend.Ping(ctx)
		if ctx.Err() != nil {
			return
		}

		available := err == nil
		s.publishStatus(available)

		if available {
			delay = s.poll.Base
		} else {
			delay = time.Duration(float64(delay) * s.poll.Factor)
			if delay > s.poll.Max {
				delay = s.poll.Max
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// publishStatus emits an api-status event when availability changes.
func (s *SyncService) publishStatus(available bool) {
	s.mu.Lock()
	changed := !s.hasStatus || s.available != available
	s.available = available
	s.hasStatus = true
	s.mu.Unlock()

	if changed {
		s.log.Info("Backend availability changed", "backend", s.backend.Name(), "available", available)
		s.bus.Publish(events.TopicAPIStatusChanged, available)
	}
}

// NextBackoff computes the delay following the given one under the service's
// backoff policy: multiply by the factor, capped at the maximum.
func (s *SyncService) NextBackoff(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * s.poll.Factor)
	if next > s.poll.Max {
		return s.poll.Max
	}
	return next
}

// remoteToConversation maps a remote record into the local schema. Imported
// conversations never expire locally; the backend owns their lifecycle.
func (s *SyncService) remoteToConversation(record minervatypes.RemoteRecord) *minervatypes.Conversation {
	conv := &minervatypes.Conversation{
		ID:          record.ID,
		Title:       record.Title,
		Messages:    mapRemoteMessages(s.ctx, record.Messages),
		Created:     record.CreatedAt,
		LastUpdated: recordUpdatedAt(s.ctx, record),
	}
	if conv.Created.IsZero() {
		conv.Created = testutils.GetCurrentTime(s.ctx)
	}
	if strings.TrimSpace(conv.Title) == "" {
		conv.Title = legacyFallbackTitle(s.ctx, conv.Messages)
	}
	conv.Summary = deriveSummary(conv.Messages)
	return conv
}

func recordUpdatedAt(ctx minervatypes.Context, record minervatypes.RemoteRecord) time.Time {
	if !record.UpdatedAt.IsZero() {
		return record.UpdatedAt
	}
	return testutils.GetCurrentTime(ctx)
}

// mapRemoteMessages converts sender/text messages into the local role/content
// schema, normalizing roles and assigning ids where the remote had none.
func mapRemoteMessages(ctx minervatypes.Context, messages []minervatypes.RemoteMessage) []minervatypes.Message {
	out := make([]minervatypes.Message, 0, len(messages))
	for _, msg := range messages {
		out = append(out, minervatypes.Message{
			ID:        testutils.GenerateUUID(ctx),
			Role:      normalizeRole(msg.Sender),
			Content:   msg.Text,
			Timestamp: msg.Timestamp,
			Model:     msg.Model,
		})
	}
	return out
}

// normalizeRole converts a sender label to the local role vocabulary.
func normalizeRole(sender string) string {
	switch strings.ToLower(sender) {
	case "assistant", "bot", "model", "ai":
		return "assistant"
	case "system":
		return "system"
	default:
		return "user"
	}
}

// legacyFallbackTitle derives a title for an imported conversation that has
// none: the truncated first user message, else a timestamp placeholder.
func legacyFallbackTitle(ctx minervatypes.Context, messages []minervatypes.Message) string {
	if title := firstUserMessageTitle(messages); title != "" {
		return title
	}
	return "Chat - " + testutils.GetCurrentTime(ctx).Format("Jan 2, 2006")
}

// findConversation scans every collection for an id. Shared by the sync
// bridge, which operates on the document directly.
func findConversation(doc *minervatypes.StoreDocument, id string) *minervatypes.Conversation {
	for _, conv := range doc.AllConversations() {
		if conv.ID == id {
			return conv
		}
	}
	return nil
}

func flattenMessages(messages []minervatypes.Message) string {
	var sb strings.Builder
	for _, msg := range messages {
		sb.WriteString(msg.Role)
		sb.WriteString(": ")
		sb.WriteString(msg.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}

func flattenRemoteMessages(messages []minervatypes.RemoteMessage) string {
	var sb strings.Builder
	for _, msg := range messages {
		sb.WriteString(normalizeRole(msg.Sender))
		sb.WriteString(": ")
		sb.WriteString(msg.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}
