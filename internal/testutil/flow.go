package testutil

// FixedStreamID generates the same session stream id every time.
//
// Sessions stamp the transaction record with their stream id; a fixed id keeps
// transaction records byte-identical across test runs.
//
// Thread-safety: FixedStreamID is stateless and safe for concurrent use.
type FixedStreamID struct {
	id string
}

// NewFixedStreamID creates a generator returning id.
// If id is empty, Generate() returns "test-stream-default".
func NewFixedStreamID(id string) *FixedStreamID {
	if id == "" {
		id = "test-stream-default"
	}
	return &FixedStreamID{id: id}
}

// Generate returns the fixed id.
func (g *FixedStreamID) Generate() string {
	return g.id
}
