package model

// BacklogItem is a human-submitted request tracked separately from the
// generated feature list. Items are never deleted, only marked done.
type BacklogItem struct {
	ID          string          `json:"id"`
	Type        BacklogType     `json:"type"`
	Priority    BacklogPriority `json:"priority"`
	Status      BacklogStatus   `json:"status"`
	Description string          `json:"description"`
	Details     string          `json:"details,omitempty"`
	Comments    []Comment       `json:"comments,omitempty"`
	CreatedAt   string          `json:"created_at"`
	Completed   bool            `json:"completed"`
	CompletedAt *string         `json:"completed_at,omitempty"`
	RefNumber   *int            `json:"ref_number,omitempty"`
	Votes       int             `json:"votes,omitempty"`
}

// Comment is an append-only note on a backlog item.
type Comment struct {
	Author    Setter `json:"author"`
	Timestamp string `json:"timestamp"`
	Text      string `json:"text"`
}
