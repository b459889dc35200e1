package store

// Memory represents one long-term memory record about a user. Records
// are append-only: an "update" is a new record, and deletion cascades
// from user deletion.
type Memory struct {
	ID         int32
	UID        string
	CreatorID  int32
	MemoryType string
	// Content is the canonical JSON encoding of the memory payload,
	// e.g. {"text": "likes morning study sessions"} or an arbitrary
	// key/value object.
	Content string
	// Context is optional auxiliary metadata as JSON. It is stored but
	// never embedded.
	Context   string
	CreatedTs int64
}

// FindMemory specifies the conditions for finding memories.
type FindMemory struct {
	ID         *int32
	CreatorID  *int32
	MemoryType *string
	// Keyword filters by case-insensitive substring match on content.
	Keyword *string
	Limit   int
	Offset  int
}

// DeleteMemory specifies the conditions for deleting memories.
type DeleteMemory struct {
	ID        *int32
	CreatorID *int32
}
