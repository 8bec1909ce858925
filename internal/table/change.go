package table

// Operation tags a change feed event.
type Operation string

const (
	OpInsert Operation = "INSERT"
	OpModify Operation = "MODIFY"
	OpRemove Operation = "REMOVE"
)

// Change is one committed row mutation as delivered by a change feed. Events
// of one partition arrive in SequenceNumber order.
type Change struct {
	EventID        string
	Table          string
	Operation      Operation
	Keys           Item
	OldImage       Item
	NewImage       Item
	SequenceNumber string
}

// Image returns the row image that describes the mutated row: the new image
// for inserts and modifications, the old one for removals.
func (c Change) Image() Item {
	if c.Operation == OpRemove {
		return c.OldImage
	}
	return c.NewImage
}
