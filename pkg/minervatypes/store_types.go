package minervatypes

// StoreDocument is the single serialized document owned by the local store.
// Conversations are partitioned into the general collection, per-project
// lists, and per-agent lists; project metadata lives in ProjectIndex keyed by
// project id.
//
// SchemaVersion is a semantic version used by the load-time migration, and
// Seq increases monotonically with every successful save so that a stale
// overwrite from another process can be detected and logged.
type StoreDocument struct {
	SchemaVersion string                     `json:"schemaVersion"`
	Seq           int64                      `json:"seq"`
	General       []*Conversation            `json:"general"`
	Projects      map[string][]*Conversation `json:"projects"`
	Agents        map[string][]*Conversation `json:"agents"`
	ProjectIndex  map[string]*Project        `json:"projectIndex"`
}

// NewStoreDocument returns an empty document at the current schema version.
func NewStoreDocument() *StoreDocument {
	return &StoreDocument{
		SchemaVersion: CurrentSchemaVersion,
		General:       make([]*Conversation, 0),
		Projects:      make(map[string][]*Conversation),
		Agents:        make(map[string][]*Conversation),
		ProjectIndex:  make(map[string]*Project),
	}
}

// CurrentSchemaVersion is the schema version written by this build. Documents
// with an older version are migrated once at load time.
const CurrentSchemaVersion = "2.0.0"

// AllConversations returns every conversation across all collections, general
// first, then project lists, then agent lists. Order within each collection
// is preserved; map iteration order between collections is not guaranteed.
func (d *StoreDocument) AllConversations() []*Conversation {
	out := make([]*Conversation, 0, len(d.General))
	out = append(out, d.General...)
	for _, list := range d.Projects {
		out = append(out, list...)
	}
	for _, list := range d.Agents {
		out = append(out, list...)
	}
	return out
}
