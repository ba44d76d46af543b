package vectorstore

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"vault-ai/internal/contextutil"
)

const (
	payloadChunkID  = "chunk_id"
	payloadDocument = "document"
	payloadSource   = "source"
)

var (
	_ Index          = (*QdrantIndex)(nil)
	_ SourceReplacer = (*qdrantCollection)(nil)
)

// QdrantIndex implements Index using Qdrant. Each collection maps to one
// Qdrant collection named prefix+name.
type QdrantIndex struct {
	client     *qdrant.Client
	embedder   Embedder
	vectorSize int
	prefix     string

	ensured sync.Map
}

// grpcEndpoint derives the gRPC host and port from a Qdrant HTTP URL.
// urlStr should be in the format "http://host:port" (e.g., "http://localhost:6333").
// The gRPC port is the HTTP port + 1, or 6334 when no port is given.
func grpcEndpoint(urlStr string) (string, int, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid Qdrant URL: %w", err)
	}

	host := parsedURL.Hostname()
	if host == "" {
		host = "localhost"
	}

	port := 6334 // Default gRPC port
	if parsedURL.Port() != "" {
		httpPort, err := strconv.Atoi(parsedURL.Port())
		if err == nil {
			port = httpPort + 1
		}
	}

	return host, port, nil
}

// NewQdrantIndex creates a Qdrant-backed index.
func NewQdrantIndex(urlStr string, embedder Embedder, vectorSize int, prefix string) (*QdrantIndex, error) {
	host, port, err := grpcEndpoint(urlStr)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
	}

	return &QdrantIndex{
		client:     client,
		embedder:   embedder,
		vectorSize: vectorSize,
		prefix:     prefix,
	}, nil
}

// Collection implements Index.
func (s *QdrantIndex) Collection(ctx context.Context, name string) (Collection, error) {
	full := s.prefix + name
	if _, ok := s.ensured.Load(full); !ok {
		if err := s.EnsureCollection(ctx, full); err != nil {
			return nil, err
		}
		s.ensured.Store(full, struct{}{})
	}
	return &qdrantCollection{index: s, name: full}, nil
}

// Ping implements Index.
func (s *QdrantIndex) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant health check failed: %w", err)
	}
	return nil
}

// Close releases the gRPC connection.
func (s *QdrantIndex) Close() error {
	return s.client.Close()
}

// EnsureCollection ensures a collection exists with the configured vector size
// and a keyword index on the source payload field.
// If the collection exists, validates that the vector size matches.
func (s *QdrantIndex) EnsureCollection(ctx context.Context, collection string) error {
	logger := contextutil.LoggerFromContext(ctx)

	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}

	if !exists {
		logger.InfoContext(ctx, "creating collection", "collection", collection, "vector_size", s.vectorSize)
		err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(s.vectorSize),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}

		// Deletes filter on source, so index it
		_, err = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: collection,
			FieldName:      payloadSource,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
			Wait:           qdrant.PtrOf(true),
		})
		if err != nil {
			return fmt.Errorf("failed to create source index: %w", err)
		}
		logger.InfoContext(ctx, "collection created", "collection", collection, "vector_size", s.vectorSize)
		return nil
	}

	// Collection exists, validate vector size
	info, err := s.client.GetCollectionInfo(ctx, collection)
	if err != nil {
		return fmt.Errorf("failed to get collection info: %w", err)
	}

	config := info.Config
	if config == nil || config.Params == nil {
		return fmt.Errorf("collection config is invalid")
	}

	vectorsConfig := config.Params.GetVectorsConfig()
	if vectorsConfig == nil {
		return fmt.Errorf("collection vectors config is invalid")
	}

	params := vectorsConfig.GetParams()
	if params == nil {
		return fmt.Errorf("collection vector params are invalid")
	}

	if int(params.Size) != s.vectorSize {
		return fmt.Errorf("collection vector size mismatch: expected %d, got %d", s.vectorSize, params.Size)
	}

	logger.DebugContext(ctx, "collection validated", "collection", collection, "vector_size", s.vectorSize)
	return nil
}

type qdrantCollection struct {
	index *QdrantIndex
	name  string
}

func (c *qdrantCollection) Name() string {
	return c.name
}

// Delete removes all points whose payload matches where.
func (c *qdrantCollection) Delete(ctx context.Context, where map[string]string) error {
	logger := contextutil.LoggerFromContext(ctx)

	filter, err := whereFilter(where)
	if err != nil {
		return err
	}

	_, err = c.index.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: c.name,
		Points:         qdrant.NewPointsSelectorFilter(filter),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to delete points", "collection", c.name, "where", where, "error", err)
		return fmt.Errorf("failed to delete points: %w", err)
	}

	logger.DebugContext(ctx, "deleted points", "collection", c.name, "where", where)
	return nil
}

// Add embeds documents and upserts them as points.
func (c *qdrantCollection) Add(ctx context.Context, ids, documents []string, metadatas []map[string]any) error {
	if err := checkLengths(ids, documents, metadatas); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	vectors, err := embed(ctx, c.index.embedder, documents, c.index.vectorSize)
	if err != nil {
		return fmt.Errorf("failed to embed documents: %w", err)
	}
	return c.upsert(ctx, ids, documents, metadatas, vectors)
}

// ReplaceSource embeds the new documents before deleting the points of source,
// so an embedding failure leaves the existing points in place.
func (c *qdrantCollection) ReplaceSource(ctx context.Context, source string, ids, documents []string, metadatas []map[string]any) error {
	if err := checkLengths(ids, documents, metadatas); err != nil {
		return err
	}

	var vectors [][]float32
	if len(ids) > 0 {
		var err error
		vectors, err = embed(ctx, c.index.embedder, documents, c.index.vectorSize)
		if err != nil {
			return fmt.Errorf("failed to embed documents: %w", err)
		}
	}

	if err := c.Delete(ctx, map[string]string{payloadSource: source}); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	return c.upsert(ctx, ids, documents, metadatas, vectors)
}

func (c *qdrantCollection) upsert(ctx context.Context, ids, documents []string, metadatas []map[string]any, vectors [][]float32) error {
	logger := contextutil.LoggerFromContext(ctx)

	points := make([]*qdrant.PointStruct, 0, len(ids))
	for i, id := range ids {
		payload, err := qdrant.TryValueMap(pointPayload(id, documents[i], metadatas[i]))
		if err != nil {
			return fmt.Errorf("invalid metadata for %s: %w", id, err)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(PointID(id)),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: payload,
		})
	}

	_, err := c.index.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: c.name,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to upsert points", "collection", c.name, "count", len(points), "error", err)
		return fmt.Errorf("failed to upsert points: %w", err)
	}

	logger.InfoContext(ctx, "upserted points", "collection", c.name, "count", len(points))
	return nil
}

// Query embeds each query text and searches the collection. Qdrant reports
// cosine similarity, which is converted to cosine distance.
func (c *qdrantCollection) Query(ctx context.Context, queryTexts []string, nResults int) (QueryResult, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if nResults <= 0 {
		return QueryResult{}, fmt.Errorf("nResults must be greater than 0")
	}
	if len(queryTexts) == 0 {
		return QueryResult{}, nil
	}

	vectors, err := embed(ctx, c.index.embedder, queryTexts, c.index.vectorSize)
	if err != nil {
		return QueryResult{}, fmt.Errorf("failed to embed query: %w", err)
	}

	result := newQueryResult(len(queryTexts))
	limit := uint64(nResults)
	for qi, vec := range vectors {
		scoredPoints, err := c.index.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: c.name,
			Query:          qdrant.NewQuery(vec...),
			Limit:          &limit,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			logger.ErrorContext(ctx, "failed to search points", "collection", c.name, "n_results", nResults, "error", err)
			return QueryResult{}, fmt.Errorf("failed to search points: %w", err)
		}

		for _, point := range scoredPoints {
			meta := convertPayloadToMap(point.Payload)
			id, _ := meta[payloadChunkID].(string)
			doc, _ := meta[payloadDocument].(string)
			delete(meta, payloadChunkID)
			delete(meta, payloadDocument)

			result.IDs[qi] = append(result.IDs[qi], id)
			result.Documents[qi] = append(result.Documents[qi], doc)
			result.Metadatas[qi] = append(result.Metadatas[qi], meta)
			result.Distances[qi] = append(result.Distances[qi], 1-float64(point.Score))
		}
	}

	logger.DebugContext(ctx, "search completed", "collection", c.name, "n_results", nResults, "queries", len(queryTexts))
	return result, nil
}

// Count returns the exact number of points in the collection.
func (c *qdrantCollection) Count(ctx context.Context) (int, error) {
	count, err := c.index.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: c.name,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return int(count), nil
}

// PointID maps a chunk id onto the UUID Qdrant requires. The mapping is
// deterministic so re-adding a chunk id overwrites the same point.
func PointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("vault-ai:chunk:"+chunkID)).String()
}

func pointPayload(id, document string, metadata map[string]any) map[string]any {
	payload := make(map[string]any, len(metadata)+2)
	for k, v := range metadata {
		payload[k] = v
	}
	payload[payloadChunkID] = id
	payload[payloadDocument] = document
	return payload
}

// whereFilter builds a filter that requires every key to match its value.
func whereFilter(where map[string]string) (*qdrant.Filter, error) {
	if len(where) == 0 {
		return nil, ErrEmptyFilter
	}

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	must := make([]*qdrant.Condition, 0, len(keys))
	for _, k := range keys {
		must = append(must, qdrant.NewMatch(k, where[k]))
	}
	return &qdrant.Filter{Must: must}, nil
}

func newQueryResult(n int) QueryResult {
	return QueryResult{
		IDs:       make([][]string, n),
		Documents: make([][]string, n),
		Metadatas: make([][]map[string]any, n),
		Distances: make([][]float64, n),
	}
}

// convertPayloadToMap converts Qdrant payload to map[string]any.
func convertPayloadToMap(payload map[string]*qdrant.Value) map[string]any {
	result := make(map[string]any, len(payload))
	for k, v := range payload {
		if v == nil {
			continue
		}
		result[k] = convertValue(v)
	}
	return result
}

// convertValue converts a Qdrant Value to Go any type.
func convertValue(v *qdrant.Value) any {
	switch val := v.Kind.(type) {
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_ListValue:
		list := make([]any, len(val.ListValue.Values))
		for i, item := range val.ListValue.Values {
			list[i] = convertValue(item)
		}
		return list
	case *qdrant.Value_StructValue:
		return convertPayloadToMap(val.StructValue.Fields)
	default:
		return nil
	}
}
