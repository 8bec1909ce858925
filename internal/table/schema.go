package table

// Schema describes the key layout of a table for the in-memory client.
type Schema struct {
	Name         string
	PartitionKey string
	SortKey      string
	Indexes      map[string]IndexSchema
	// Stream enables change feed events for the table.
	Stream bool
}

// IndexSchema is the key pair of a secondary index. A row belongs to the
// index only when it carries both attributes.
type IndexSchema struct {
	PartitionKey string
	SortKey      string
}
