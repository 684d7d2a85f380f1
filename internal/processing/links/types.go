package links

import "time"

type Link struct {
	ID           string
	ShortCode    string
	OriginalURL  string
	CreatedBy    uint64
	CreatedAt    time.Time
	ClickCount   int64
	LastAccessed *time.Time
}

// DeleteOutcome tells apart the reasons a delete request can end with.
type DeleteOutcome int

const (
	DeleteOutcomeDeleted DeleteOutcome = iota + 1
	DeleteOutcomeNotFound
	DeleteOutcomeForbidden
)

func (o DeleteOutcome) String() string {
	switch o {
	case DeleteOutcomeDeleted:
		return "deleted"
	case DeleteOutcomeNotFound:
		return "not_found"
	case DeleteOutcomeForbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}
