package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// VectorBackendQdrant stores vectors in a Qdrant server.
	VectorBackendQdrant = "qdrant"
	// VectorBackendSQLite stores vectors in a local SQLite file.
	VectorBackendSQLite = "sqlite"

	// PDFBackendNative extracts PDF text in-process.
	PDFBackendNative = "native"
	// PDFBackendPdftotext extracts PDF text with poppler's pdftotext.
	PDFBackendPdftotext = "pdftotext"
)

// Config holds all configuration for the application.
type Config struct {
	APIPort   string
	LogLevel  slog.Level
	LogFormat string

	DBPath     string
	ScratchDir string

	VectorBackend          string
	QdrantURL              string
	QdrantCollectionPrefix string
	VectorDBPath           string
	VectorSize             int

	EmbeddingBaseURL   string
	EmbeddingModelName string
	EmbeddingAPIKey    string

	ChunkSize     int
	ChunkOverlap  int
	SearchTopK    int
	SearchMaxTopK int

	PDFBackend     string
	ExtractWorkers int
	MaxUploadBytes int64
}

// Load reads configuration from environment variables and returns a Config struct.
// It applies defaults for optional fields and validates required fields.
// If a .env file exists in the current directory or project root, it will be loaded automatically.
// Environment variables already set take precedence over .env file values.
// When CONFIG_FILE names a YAML file, its keys (lower-cased variable names,
// e.g. chunk_size) supply values for variables that are not set.
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load() // Try current directory

	wd, err := os.Getwd()
	if err == nil {
		dir := wd
		for i := 0; i < 5; i++ { // Limit search depth
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break // Reached filesystem root
			}
			dir = parent
		}
	}

	src := source{}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		file, err := readFile(path)
		if err != nil {
			return nil, err
		}
		src.file = file
	}

	cfg := &Config{
		APIPort:                src.get("API_PORT", "9000"),
		LogFormat:              strings.ToLower(src.get("LOG_FORMAT", "text")),
		DBPath:                 src.get("DB_PATH", "./data/vault-ai.db"),
		ScratchDir:             src.get("SCRATCH_DIR", "./data/scratch"),
		VectorBackend:          strings.ToLower(src.get("VECTOR_BACKEND", VectorBackendQdrant)),
		QdrantURL:              src.get("QDRANT_URL", "http://localhost:6333"),
		QdrantCollectionPrefix: src.get("QDRANT_COLLECTION_PREFIX", "vault_"),
		VectorDBPath:           src.get("VECTOR_DB_PATH", "./data/vectors.db"),
		EmbeddingBaseURL:       src.get("EMBEDDING_BASE_URL", "http://localhost:8081"),
		EmbeddingModelName:     src.get("EMBEDDING_MODEL_NAME", "granite-embedding-278m-multilingual"),
		EmbeddingAPIKey:        src.get("EMBEDDING_API_KEY", "dummy-key"),
		PDFBackend:             strings.ToLower(src.get("PDF_BACKEND", PDFBackendNative)),
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(src.get("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL is invalid: %w", err)
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}

	// VECTOR_SIZE must match the output size of the embeddings model.
	// If it changes, existing collections must be recreated.
	vectorSizeStr := src.get("VECTOR_SIZE", "")
	if vectorSizeStr == "" {
		return nil, fmt.Errorf("VECTOR_SIZE is required")
	}
	if cfg.VectorSize, err = strconv.Atoi(vectorSizeStr); err != nil {
		return nil, fmt.Errorf("VECTOR_SIZE must be a valid integer: %w", err)
	}
	if cfg.VectorSize <= 0 {
		return nil, fmt.Errorf("VECTOR_SIZE must be greater than 0")
	}

	ints := []struct {
		key  string
		def  int
		dest *int
	}{
		{"CHUNK_SIZE", 1000, &cfg.ChunkSize},
		{"CHUNK_OVERLAP", 200, &cfg.ChunkOverlap},
		{"SEARCH_TOP_K", 5, &cfg.SearchTopK},
		{"SEARCH_MAX_TOP_K", 20, &cfg.SearchMaxTopK},
		{"EXTRACT_WORKERS", runtime.NumCPU(), &cfg.ExtractWorkers},
	}
	for _, v := range ints {
		if *v.dest, err = src.getInt(v.key, v.def); err != nil {
			return nil, err
		}
	}
	maxUpload, err := src.getInt("MAX_UPLOAD_BYTES", 32<<20)
	if err != nil {
		return nil, err
	}
	cfg.MaxUploadBytes = int64(maxUpload)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// Create data directories if they don't exist
	dirs := []string{filepath.Dir(cfg.DBPath), cfg.ScratchDir}
	if cfg.VectorBackend == VectorBackendSQLite {
		dirs = append(dirs, filepath.Dir(cfg.VectorDBPath))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.VectorBackend {
	case VectorBackendQdrant, VectorBackendSQLite:
	default:
		return fmt.Errorf("VECTOR_BACKEND must be %s or %s, got %q", VectorBackendQdrant, VectorBackendSQLite, c.VectorBackend)
	}
	switch c.PDFBackend {
	case PDFBackendNative, PDFBackendPdftotext:
	default:
		return fmt.Errorf("PDF_BACKEND must be %s or %s, got %q", PDFBackendNative, PDFBackendPdftotext, c.PDFBackend)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be greater than 0")
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE)")
	}
	if c.SearchTopK <= 0 {
		return fmt.Errorf("SEARCH_TOP_K must be greater than 0")
	}
	if c.SearchMaxTopK < c.SearchTopK {
		return fmt.Errorf("SEARCH_MAX_TOP_K must be at least SEARCH_TOP_K")
	}
	if c.ExtractWorkers <= 0 {
		return fmt.Errorf("EXTRACT_WORKERS must be greater than 0")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be greater than 0")
	}
	return nil
}

// source resolves a setting from the environment, then the config file.
type source struct {
	file map[string]string
}

func (s source) get(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	if value, ok := s.file[strings.ToLower(key)]; ok && value != "" {
		return value
	}
	return defaultValue
}

func (s source) getInt(key string, defaultValue int) (int, error) {
	raw := s.get(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return n, nil
}

// readFile loads a flat YAML mapping. Scalar values of any type are kept as strings.
func readFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	values := make(map[string]string, len(raw))
	for key, node := range raw {
		if node.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("config file %s: %s must be a scalar value", path, key)
		}
		values[strings.ToLower(key)] = node.Value
	}
	return values, nil
}
