package types

// Event is a typed audit record emitted by the vault on every state
// transition. Attributes are rendered as strings (hex for addresses and
// checksums, decimal for amounts) so downstream indexers can reconstruct
// history without knowing the module's internal types.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
