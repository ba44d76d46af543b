package vectorstore

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

func TestGrpcEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		urlStr   string
		wantErr  bool
		wantHost string
		wantPort int
	}{
		{
			name:     "valid URL",
			urlStr:   "http://localhost:6333",
			wantHost: "localhost",
			wantPort: 6334, // gRPC port is HTTP port + 1
		},
		{
			name:     "URL with custom port",
			urlStr:   "http://qdrant.internal:9000",
			wantHost: "qdrant.internal",
			wantPort: 9001,
		},
		{
			name:    "invalid URL",
			urlStr:  "://invalid",
			wantErr: true,
		},
		{
			name:     "URL without port",
			urlStr:   "http://localhost",
			wantHost: "localhost",
			wantPort: 6334, // Default
		},
		{
			name:     "URL without hostname",
			urlStr:   "http://:6333",
			wantHost: "localhost", // Defaults to localhost
			wantPort: 6334,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, port, err := grpcEndpoint(tt.urlStr)
			if (err != nil) != tt.wantErr {
				t.Fatalf("grpcEndpoint() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if host != tt.wantHost {
				t.Errorf("Host = %v, want %v", host, tt.wantHost)
			}
			if port != tt.wantPort {
				t.Errorf("Port = %v, want %v", port, tt.wantPort)
			}
		})
	}
}

func TestNewQdrantIndex_InvalidURL(t *testing.T) {
	_, err := NewQdrantIndex("://invalid", nil, 768, "vault_")
	if err == nil {
		t.Error("NewQdrantIndex() with invalid URL should return error")
	}
}

func TestPointID(t *testing.T) {
	a := PointID("paper.pdf_chunk_0")
	if a != PointID("paper.pdf_chunk_0") {
		t.Error("PointID() should be deterministic")
	}
	if a == PointID("paper.pdf_chunk_1") {
		t.Error("PointID() should differ for different chunk ids")
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Errorf("PointID() = %q is not a UUID: %v", a, err)
	}
}

func TestWhereFilter(t *testing.T) {
	if _, err := whereFilter(nil); err != ErrEmptyFilter {
		t.Errorf("whereFilter(nil) error = %v, want ErrEmptyFilter", err)
	}

	filter, err := whereFilter(map[string]string{"source": "a.pdf", "domain": "physics"})
	if err != nil {
		t.Fatalf("whereFilter() error = %v", err)
	}
	if len(filter.Must) != 2 {
		t.Fatalf("whereFilter() produced %d conditions, want 2", len(filter.Must))
	}
	// Keys are sorted so the filter is stable
	if got := filter.Must[0].GetField().GetKey(); got != "domain" {
		t.Errorf("first condition key = %q, want domain", got)
	}
	if got := filter.Must[1].GetField().GetMatch().GetKeyword(); got != "a.pdf" {
		t.Errorf("second condition keyword = %q, want a.pdf", got)
	}
}

func TestPointPayload(t *testing.T) {
	in := map[string]any{"source": "a.pdf", "page": 2}
	payload := pointPayload("a.pdf_chunk_3", "text", in)

	if payload[payloadChunkID] != "a.pdf_chunk_3" || payload[payloadDocument] != "text" {
		t.Errorf("pointPayload() = %v, missing chunk id or document", payload)
	}
	if payload["page"] != 2 {
		t.Errorf("pointPayload() page = %v, want 2", payload["page"])
	}
	if _, ok := in[payloadChunkID]; ok {
		t.Error("pointPayload() should not modify the input metadata")
	}
}

func TestConvertPayloadToMap(t *testing.T) {
	result := convertPayloadToMap(nil)
	if result == nil {
		t.Error("convertPayloadToMap() should return empty map, not nil")
	}

	payload := qdrant.NewValueMap(map[string]any{
		"source": "a.pdf",
		"page":   3,
		"tags":   []any{"x", "y"},
	})
	got := convertPayloadToMap(payload)
	if got["source"] != "a.pdf" {
		t.Errorf("source = %v, want a.pdf", got["source"])
	}
	if got["page"] != int64(3) {
		t.Errorf("page = %v (%T), want int64(3)", got["page"], got["page"])
	}
	if tags, ok := got["tags"].([]any); !ok || len(tags) != 2 {
		t.Errorf("tags = %v, want two items", got["tags"])
	}
}

func TestQdrantCollection_ReplaceSourceEmbedFailure(t *testing.T) {
	// Nothing listens on this port; any server call would fail with a connection error.
	client, err := qdrant.NewClient(&qdrant.Config{Host: "127.0.0.1", Port: 1, SkipCompatibilityCheck: true})
	if err != nil {
		t.Fatalf("qdrant.NewClient() error = %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	index := &QdrantIndex{client: client, embedder: &tableEmbedder{err: errors.New("model offline")}, vectorSize: 3, prefix: "vault_"}
	coll := &qdrantCollection{index: index, name: "vault_physics"}
	err = coll.ReplaceSource(context.Background(), "a.pdf",
		[]string{"a.pdf_chunk_0"}, []string{"text"}, []map[string]any{{"source": "a.pdf"}})
	if err == nil {
		t.Fatal("ReplaceSource() should fail when embedding fails")
	}
	if got := err.Error(); got != "failed to embed documents: model offline" {
		t.Errorf("ReplaceSource() error = %q, want the embedding error before any delete", got)
	}
}

func TestQdrantCollection_ReplaceSourceLengthMismatch(t *testing.T) {
	coll := &qdrantCollection{name: "vault_physics"}
	err := coll.ReplaceSource(context.Background(), "a.pdf", []string{"a"}, nil, nil)
	if !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("ReplaceSource() error = %v, want ErrLengthMismatch", err)
	}
}
