package indexer

// Metadata identifies where a chunk came from.
type Metadata struct {
	Source string `json:"source"` // Base filename of the uploaded document
	Page   int    `json:"page"`   // 1-indexed page number
	Domain string `json:"domain"` // Vault/topic the document was uploaded to
}

// ChunkRecord is one window of normalized page text with its origin.
// Records are produced by the Extractor and never mutated afterwards.
type ChunkRecord struct {
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// Map returns the metadata as a payload map for the vector index.
func (m Metadata) Map() map[string]any {
	return map[string]any{
		"source": m.Source,
		"page":   m.Page,
		"domain": m.Domain,
	}
}

// MetadataFromMap rebuilds Metadata from a vector index payload.
// Numeric values may arrive as any integer or float type depending on the backend.
func MetadataFromMap(m map[string]any) Metadata {
	var md Metadata
	if v, ok := m["source"].(string); ok {
		md.Source = v
	}
	if v, ok := m["domain"].(string); ok {
		md.Domain = v
	}
	switch v := m["page"].(type) {
	case int:
		md.Page = v
	case int32:
		md.Page = int(v)
	case int64:
		md.Page = int(v)
	case float32:
		md.Page = int(v)
	case float64:
		md.Page = int(v)
	}
	return md
}
