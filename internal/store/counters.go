package store

// Counters accumulate what one session wrote to one collection.
type Counters struct {
	Inserted int64
	Updated  int64
	Deleted  int64
	Purged   int64
	Bytes    int64

	// Disabled stops the writer from counting, e.g. for the transaction log.
	Disabled bool
}

// IsZero reports whether nothing was counted.
func (c *Counters) IsZero() bool {
	return c.Inserted == 0 && c.Updated == 0 && c.Deleted == 0 && c.Purged == 0 && c.Bytes == 0
}

// Properties renders the counters as feature properties.
func (c *Counters) Properties() map[string]any {
	return map[string]any{
		"inserted": c.Inserted,
		"updated":  c.Updated,
		"deleted":  c.Deleted,
		"purged":   c.Purged,
		"bytes":    c.Bytes,
	}
}
