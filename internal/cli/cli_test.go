package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"vault-ai/internal/indexer"
	"vault-ai/internal/service"
	"vault-ai/internal/service/mocks"
	"vault-ai/internal/storage"
	"vault-ai/internal/vault"
)

// setupTestServices injects a mock document service and restores globals afterwards.
func setupTestServices(t *testing.T) *mocks.MockDocumentService {
	t.Helper()
	ctrl := gomock.NewController(t)
	m := mocks.NewMockDocumentService(ctrl)

	oldService, oldSupports, oldClose := documentService, supportsFile, closeServices
	documentService = m
	supportsFile = func(name string) bool { return strings.HasSuffix(name, ".md") }
	closeServices = nil

	t.Cleanup(func() {
		documentService, supportsFile, closeServices = oldService, oldSupports, oldClose
		rootCmd.SetArgs(nil)
		queryTopK, queryJSON, vaultsJSON = 0, false, false
		ingestVault, ingestUser = "", "anonymous"
		ingestCmd.Flags().Lookup("vault").Changed = false
	})
	return m
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := Execute(context.Background())
	return buf.String(), err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestRootCmd_HasCommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"ingest", "query", "vaults", "files"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestIngestCmd_Flags(t *testing.T) {
	flag := ingestCmd.Flags().Lookup("vault")
	require.NotNil(t, flag, "vault flag should exist")
	assert.Equal(t, "v", flag.Shorthand)

	user := ingestCmd.Flags().Lookup("user")
	require.NotNil(t, user, "user flag should exist")
	assert.Equal(t, "anonymous", user.DefValue)
}

func TestIngestCmd_RequiresVault(t *testing.T) {
	setupTestServices(t)

	_, err := execute(t, "ingest", "notes.md")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestIngestCmd_Directory(t *testing.T) {
	m := setupTestServices(t)

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.md"), "# A")
	writeFile(t, filepath.Join(root, "sub", "b.md"), "# B")
	writeFile(t, filepath.Join(root, ".obsidian", "c.md"), "# hidden")
	writeFile(t, filepath.Join(root, "notes.txt"), "plain")

	var uploaded []string
	m.EXPECT().
		Upload(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, req service.UploadRequest) (service.UploadResponse, error) {
			assert.Equal(t, "physics", req.Vault)
			assert.Equal(t, "alice", req.UserID)
			uploaded = append(uploaded, req.Filename)
			return service.UploadResponse{Message: "Processed 1 chunks from " + req.Filename}, nil
		}).
		Times(2)

	out, err := execute(t, "ingest", "--vault", "physics", "--user", "alice", root)

	require.NoError(t, err)
	assert.Equal(t, []string{"a.md", "sub/b.md"}, uploaded)
	assert.Contains(t, out, "Ingested 2, skipped 0, failed 0 into vault physics")
}

func TestIngestCmd_SkipsDuplicatesAndReportsFailures(t *testing.T) {
	m := setupTestServices(t)

	root := t.TempDir()
	dup := filepath.Join(root, "dup.md")
	bad := filepath.Join(root, "bad.md")
	writeFile(t, dup, "# dup")
	writeFile(t, bad, "# bad")

	gomock.InOrder(
		m.EXPECT().
			Upload(gomock.Any(), gomock.Any()).
			Return(service.UploadResponse{}, &service.ConflictError{UserID: "anonymous", Vault: "physics", Filename: "dup.md"}),
		m.EXPECT().
			Upload(gomock.Any(), gomock.Any()).
			Return(service.UploadResponse{}, &service.ValidationError{Field: "file", Message: "no extractable text", Err: service.ErrEmptyDocument}),
	)

	out, err := execute(t, "ingest", "-v", "physics", dup, bad)

	assert.Error(t, err)
	assert.Contains(t, out, "skip  "+dup)
	assert.Contains(t, out, "fail  "+bad)
	assert.Contains(t, out, "Ingested 0, skipped 1, failed 1")
}

func TestIngestCmd_DuplicateBaseNames(t *testing.T) {
	m := setupTestServices(t)

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a", "intro.md"), "# A")
	writeFile(t, filepath.Join(root, "b", "intro.md"), "# B")

	m.EXPECT().
		Upload(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, req service.UploadRequest) (service.UploadResponse, error) {
			assert.Equal(t, "a/intro.md", req.Filename)
			return service.UploadResponse{Message: "Processed 1 chunks from intro.md"}, nil
		}).
		Times(1)

	out, err := execute(t, "ingest", "-v", "physics", root)

	assert.Error(t, err)
	assert.Contains(t, out, "ok    a/intro.md")
	assert.Contains(t, out, "fail  b/intro.md: duplicate file name intro.md (already ingested from a/intro.md)")
	assert.NotContains(t, out, "skip")
	assert.Contains(t, out, "Ingested 1, skipped 0, failed 1 into vault physics")
}

func TestIngestCmd_MissingPath(t *testing.T) {
	setupTestServices(t)

	_, err := execute(t, "ingest", "-v", "physics", filepath.Join(t.TempDir(), "missing.md"))

	assert.Error(t, err)
}

func TestQueryCmd_RequiresTwoArgs(t *testing.T) {
	setupTestServices(t)

	_, err := execute(t, "query", "physics")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 2 arg(s)")
}

func TestQueryCmd_Output(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		topK     int
		resp     service.QueryResponse
		contains []string
	}{
		{
			name: "results",
			args: []string{"query", "-k", "3", "physics", "entropy"},
			topK: 3,
			resp: service.QueryResponse{
				Status: service.StatusOK,
				Results: []vault.ScoredResult{
					{Content: "Entropy of an isolated\nsystem never decreases.", Metadata: indexer.Metadata{Source: "thermo.pdf", Page: 4}, Score: 0.8123},
				},
			},
			contains: []string{"Results:", "[1] thermo.pdf p.4 (0.8123)", "Entropy of an isolated system never decreases."},
		},
		{
			name:     "no matches",
			args:     []string{"query", "physics", "entropy"},
			resp:     service.QueryResponse{Status: service.StatusNoMatches, Results: []vault.ScoredResult{}},
			contains: []string{"No results found."},
		},
		{
			name:     "degraded",
			args:     []string{"query", "physics", "entropy"},
			resp:     service.QueryResponse{Status: service.StatusNoMatches, Results: []vault.ScoredResult{}, Degraded: true},
			contains: []string{"vector index unavailable"},
		},
		{
			name:     "json",
			args:     []string{"query", "--json", "physics", "entropy"},
			resp:     service.QueryResponse{Status: service.StatusNoMatches, Vault: "physics", Results: []vault.ScoredResult{}},
			contains: []string{`"status": "no_matches"`, `"vault": "physics"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := setupTestServices(t)
			m.EXPECT().
				Query(gomock.Any(), service.QueryRequest{Vault: "physics", Query: "entropy", TopK: tt.topK}).
				Return(tt.resp, nil)

			out, err := execute(t, tt.args...)

			require.NoError(t, err)
			for _, want := range tt.contains {
				assert.Contains(t, out, want)
			}
		})
	}
}

func TestQueryCmd_Error(t *testing.T) {
	m := setupTestServices(t)
	m.EXPECT().
		Query(gomock.Any(), gomock.Any()).
		Return(service.QueryResponse{}, &service.ValidationError{Field: "vault", Message: "invalid vault name"})

	_, err := execute(t, "query", "x", "entropy")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "query failed")
}

func TestVaultsCmd(t *testing.T) {
	m := setupTestServices(t)
	created := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	m.EXPECT().ListVaults(gomock.Any()).Return([]storage.VaultRecord{{ID: 1, Name: "physics", CreatedAt: created}}, nil)

	out, err := execute(t, "vaults")

	require.NoError(t, err)
	assert.Contains(t, out, "physics (created 2026-03-14)")
}

func TestVaultsCmd_Empty(t *testing.T) {
	m := setupTestServices(t)
	m.EXPECT().ListVaults(gomock.Any()).Return([]storage.VaultRecord{}, nil)

	out, err := execute(t, "vaults")

	require.NoError(t, err)
	assert.Contains(t, out, "No vaults.")
}

func TestFilesCmd(t *testing.T) {
	m := setupTestServices(t)
	m.EXPECT().
		ListFiles(gomock.Any(), "physics").
		Return([]storage.FileRecord{{Filename: "thermo.pdf", ChunkCount: 12, UserID: "alice"}}, nil)

	out, err := execute(t, "files", "physics")

	require.NoError(t, err)
	assert.Contains(t, out, "thermo.pdf  12 chunks  by alice")
}

func TestFilesCmd_Error(t *testing.T) {
	m := setupTestServices(t)
	m.EXPECT().
		ListFiles(gomock.Any(), "physics").
		Return(nil, &service.DependencyError{Op: "list files", Err: errors.New("database is locked")})

	_, err := execute(t, "files", "physics")

	assert.Error(t, err)
}

func TestExecute_ClosesServicesOnCommandError(t *testing.T) {
	m := setupTestServices(t)
	closed := 0
	closeServices = func() error {
		closed++
		return nil
	}
	m.EXPECT().
		ListFiles(gomock.Any(), "physics").
		Return(nil, &service.DependencyError{Op: "list files", Err: errors.New("database is locked")})

	_, err := execute(t, "files", "physics")

	assert.Error(t, err)
	assert.Equal(t, 1, closed)
	assert.Nil(t, closeServices)
}

func TestExecute_ReportsCloseError(t *testing.T) {
	m := setupTestServices(t)
	errClose := errors.New("flush failed")
	closeServices = func() error { return errClose }
	m.EXPECT().ListVaults(gomock.Any()).Return(nil, nil)

	_, err := execute(t, "vaults")

	assert.ErrorIs(t, err, errClose)
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "a b c", snippet("a\n b\t c", 10))
	assert.Equal(t, "abc...", snippet("abcdef", 3))
}
