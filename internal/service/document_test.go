package service_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"vault-ai/internal/indexer"
	"vault-ai/internal/service"
	"vault-ai/internal/service/mocks"
	"vault-ai/internal/storage"
	storagemocks "vault-ai/internal/storage/mocks"
	"vault-ai/internal/vault"
)

func init() {
	// Set default logger to discard output for cleaner test output
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type fixture struct {
	extractor *mocks.MockExtractor
	index     *mocks.MockVaultIndex
	vaults    *storagemocks.MockVaultStore
	files     *storagemocks.MockFileStore
	scratch   string
	svc       service.DocumentService
}

func newFixture(t *testing.T, cfg service.DocumentConfig) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	f := &fixture{
		extractor: mocks.NewMockExtractor(ctrl),
		index:     mocks.NewMockVaultIndex(ctrl),
		vaults:    storagemocks.NewMockVaultStore(ctrl),
		files:     storagemocks.NewMockFileStore(ctrl),
		scratch:   t.TempDir(),
	}
	cfg.ScratchDir = f.scratch
	f.svc = service.NewDocumentService(f.extractor, f.index, f.vaults, f.files, cfg)
	f.extractor.EXPECT().Supports(gomock.Any()).DoAndReturn(func(name string) bool {
		ext := filepath.Ext(name)
		return ext == ".pdf" || ext == ".md"
	}).AnyTimes()
	return f
}

func (f *fixture) assertScratchEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.scratch)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch directory should be cleaned up")
}

func sampleRecords(source string) []indexer.ChunkRecord {
	return []indexer.ChunkRecord{
		{Content: "Gravity bends light.", Metadata: indexer.Metadata{Source: source, Page: 1, Domain: "physics"}},
		{Content: "Mass curves spacetime.", Metadata: indexer.Metadata{Source: source, Page: 2, Domain: "physics"}},
	}
}

func uploadRequest(filename, body string) service.UploadRequest {
	return service.UploadRequest{
		UserID:   "alice",
		Vault:    "physics",
		Filename: filename,
		Body:     strings.NewReader(body),
	}
}

func TestDocumentService_Upload(t *testing.T) {
	f := newFixture(t, service.DocumentConfig{})
	ctx := context.Background()
	records := sampleRecords("paper.pdf")

	f.files.EXPECT().Exists(gomock.Any(), "alice", "physics", "paper.pdf").Return(false, nil)
	f.extractor.EXPECT().Extract(gomock.Any(), gomock.Any(), "physics").
		DoAndReturn(func(_ context.Context, path, _ string) ([]indexer.ChunkRecord, error) {
			assert.Equal(t, "paper.pdf", filepath.Base(path))
			assert.Equal(t, f.scratch, filepath.Dir(filepath.Dir(path)))
			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, "%PDF-1.4 body", string(data))
			return records, nil
		})
	f.vaults.EXPECT().GetOrCreateByName(gomock.Any(), "physics").Return(storage.VaultRecord{ID: 1, Name: "physics"}, nil)
	f.index.EXPECT().Ingest(gomock.Any(), "physics", records).Return(nil)
	f.files.EXPECT().Record(gomock.Any(), storage.FileRecord{
		UserID: "alice", Vault: "physics", Filename: "paper.pdf", ChunkCount: 2,
	}).Return(nil)

	resp, err := f.svc.Upload(ctx, uploadRequest("paper.pdf", "%PDF-1.4 body"))
	require.NoError(t, err)
	assert.Equal(t, "physics", resp.Vault)
	assert.Equal(t, "paper.pdf", resp.Filename)
	assert.Equal(t, 2, resp.Chunks)
	assert.Equal(t, 2, resp.Stats.Pages)
	assert.Equal(t, "Processed 2 chunks from paper.pdf", resp.Message)
	f.assertScratchEmpty(t)
}

func TestDocumentService_Upload_DuplicateSkipsExtraction(t *testing.T) {
	f := newFixture(t, service.DocumentConfig{})

	f.files.EXPECT().Exists(gomock.Any(), "alice", "physics", "paper.pdf").Return(true, nil)
	f.extractor.EXPECT().Extract(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	f.index.EXPECT().Ingest(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	_, err := f.svc.Upload(context.Background(), uploadRequest("paper.pdf", "data"))
	require.Error(t, err)
	assert.ErrorIs(t, err, service.ErrDuplicate)

	var conflict *service.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "paper.pdf", conflict.Filename)
	f.assertScratchEmpty(t)
}

func TestDocumentService_Upload_Failures(t *testing.T) {
	errBoom := errors.New("boom")

	tests := []struct {
		name      string
		req       service.UploadRequest
		cfg       service.DocumentConfig
		setup     func(f *fixture)
		wantIs    error
		checkType func(error) bool
	}{
		{
			name:   "unsupported format rejected before duplicate check",
			req:    uploadRequest("slides.pptx", "data"),
			setup:  func(f *fixture) {},
			wantIs: indexer.ErrUnsupportedFormat,
		},
		{
			name: "invalid vault name",
			req: service.UploadRequest{
				UserID: "alice", Vault: "a", Filename: "paper.pdf", Body: strings.NewReader("x"),
			},
			setup:  func(f *fixture) {},
			wantIs: vault.ErrInvalidVaultName,
		},
		{
			name: "missing user",
			req: service.UploadRequest{
				Vault: "physics", Filename: "paper.pdf", Body: strings.NewReader("x"),
			},
			setup:  func(f *fixture) {},
			wantIs: service.ErrInvalidInput,
		},
		{
			name:   "missing filename",
			req:    uploadRequest("", "x"),
			setup:  func(f *fixture) {},
			wantIs: service.ErrInvalidInput,
		},
		{
			name: "duplicate check failure",
			req:  uploadRequest("paper.pdf", "x"),
			setup: func(f *fixture) {
				f.files.EXPECT().Exists(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(false, errBoom)
			},
			wantIs: service.ErrExternalService,
		},
		{
			name: "upload too large",
			req:  uploadRequest("paper.pdf", "0123456789A"),
			cfg:  service.DocumentConfig{MaxUploadBytes: 10},
			setup: func(f *fixture) {
				f.files.EXPECT().Exists(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(false, nil)
			},
			wantIs: service.ErrInvalidInput,
		},
		{
			name: "unreadable document",
			req:  uploadRequest("paper.pdf", "x"),
			setup: func(f *fixture) {
				f.files.EXPECT().Exists(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(false, nil)
				f.extractor.EXPECT().Extract(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errBoom)
			},
			wantIs: errBoom,
			checkType: func(err error) bool {
				var v *service.ValidationError
				return errors.As(err, &v) && v.Field == "file"
			},
		},
		{
			name: "no extractable text",
			req:  uploadRequest("scan.pdf", "x"),
			setup: func(f *fixture) {
				f.files.EXPECT().Exists(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(false, nil)
				f.extractor.EXPECT().Extract(gomock.Any(), gomock.Any(), gomock.Any()).Return([]indexer.ChunkRecord{}, nil)
			},
			wantIs: service.ErrEmptyDocument,
		},
		{
			name: "ingest failure leaves no file record",
			req:  uploadRequest("paper.pdf", "x"),
			setup: func(f *fixture) {
				f.files.EXPECT().Exists(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(false, nil)
				f.extractor.EXPECT().Extract(gomock.Any(), gomock.Any(), gomock.Any()).Return(sampleRecords("paper.pdf"), nil)
				f.vaults.EXPECT().GetOrCreateByName(gomock.Any(), "physics").Return(storage.VaultRecord{ID: 1}, nil)
				f.index.EXPECT().Ingest(gomock.Any(), gomock.Any(), gomock.Any()).Return(errBoom)
				f.files.EXPECT().Record(gomock.Any(), gomock.Any()).Times(0)
			},
			wantIs: errBoom,
			checkType: func(err error) bool {
				var d *service.DependencyError
				return errors.As(err, &d)
			},
		},
		{
			name: "concurrent duplicate detected on record",
			req:  uploadRequest("paper.pdf", "x"),
			setup: func(f *fixture) {
				f.files.EXPECT().Exists(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(false, nil)
				f.extractor.EXPECT().Extract(gomock.Any(), gomock.Any(), gomock.Any()).Return(sampleRecords("paper.pdf"), nil)
				f.vaults.EXPECT().GetOrCreateByName(gomock.Any(), "physics").Return(storage.VaultRecord{ID: 1}, nil)
				f.index.EXPECT().Ingest(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
				f.files.EXPECT().Record(gomock.Any(), gomock.Any()).Return(storage.ErrAlreadyExists)
			},
			wantIs: service.ErrDuplicate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.cfg)
			tt.setup(f)

			_, err := f.svc.Upload(context.Background(), tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantIs)
			if tt.checkType != nil {
				assert.True(t, tt.checkType(err), "unexpected error type: %v", err)
			}
			f.assertScratchEmpty(t)
		})
	}
}

func TestDocumentService_Upload_SanitizesFilename(t *testing.T) {
	f := newFixture(t, service.DocumentConfig{})

	f.files.EXPECT().Exists(gomock.Any(), "alice", "physics", "evil.pdf").Return(true, nil)

	_, err := f.svc.Upload(context.Background(), uploadRequest("../../etc/evil.pdf", "x"))
	assert.ErrorIs(t, err, service.ErrDuplicate)
}

func TestDocumentService_Upload_BoundsConcurrentExtraction(t *testing.T) {
	f := newFixture(t, service.DocumentConfig{Workers: 1})

	var active, maxActive int32
	f.files.EXPECT().Exists(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(false, nil).Times(3)
	f.extractor.EXPECT().Extract(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, path, _ string) ([]indexer.ChunkRecord, error) {
			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			return sampleRecords(filepath.Base(path)), nil
		}).Times(3)
	f.vaults.EXPECT().GetOrCreateByName(gomock.Any(), "physics").Return(storage.VaultRecord{ID: 1}, nil).Times(3)
	f.index.EXPECT().Ingest(gomock.Any(), "physics", gomock.Any()).Return(nil).Times(3)
	f.files.EXPECT().Record(gomock.Any(), gomock.Any()).Return(nil).Times(3)

	var wg sync.WaitGroup
	for _, name := range []string{"a.pdf", "b.pdf", "c.pdf"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			_, err := f.svc.Upload(context.Background(), uploadRequest(name, "x"))
			assert.NoError(t, err)
		}(name)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxActive))
	f.assertScratchEmpty(t)
}

func TestDocumentService_Query(t *testing.T) {
	results := []vault.ScoredResult{
		{Content: "Gravity bends light.", Metadata: indexer.Metadata{Source: "a.pdf", Page: 1, Domain: "physics"}, Score: 0.91},
		{Content: "Mass curves spacetime.", Metadata: indexer.Metadata{Source: "a.pdf", Page: 2, Domain: "physics"}, Score: 0.52},
	}

	tests := []struct {
		name         string
		req          service.QueryRequest
		setup        func(f *fixture)
		wantErr      error
		wantStatus   string
		wantResults  int
		wantContext  string
		wantDegraded bool
	}{
		{
			name: "ranked results",
			req:  service.QueryRequest{Vault: "physics", Query: "  what bends light? ", TopK: 2},
			setup: func(f *fixture) {
				f.index.EXPECT().Search(gomock.Any(), "physics", "what bends light?", 2).
					Return(vault.SearchOutcome{Results: results})
			},
			wantStatus:  service.StatusOK,
			wantResults: 2,
			wantContext: "Gravity bends light.\n\nMass curves spacetime.",
		},
		{
			name: "no matches",
			req:  service.QueryRequest{Vault: "physics", Query: "anything"},
			setup: func(f *fixture) {
				f.index.EXPECT().Search(gomock.Any(), "physics", "anything", 0).
					Return(vault.SearchOutcome{Results: []vault.ScoredResult{}})
			},
			wantStatus: service.StatusNoMatches,
		},
		{
			name: "degraded search",
			req:  service.QueryRequest{Vault: "physics", Query: "anything", TopK: 3},
			setup: func(f *fixture) {
				f.index.EXPECT().Search(gomock.Any(), "physics", "anything", 3).
					Return(vault.SearchOutcome{Degraded: true})
			},
			wantStatus:   service.StatusNoMatches,
			wantDegraded: true,
		},
		{
			name:    "empty query",
			req:     service.QueryRequest{Vault: "physics", Query: "   "},
			setup:   func(f *fixture) {},
			wantErr: service.ErrInvalidInput,
		},
		{
			name:    "negative top_k",
			req:     service.QueryRequest{Vault: "physics", Query: "q", TopK: -1},
			setup:   func(f *fixture) {},
			wantErr: service.ErrInvalidInput,
		},
		{
			name:    "invalid vault",
			req:     service.QueryRequest{Vault: "no spaces allowed", Query: "q"},
			setup:   func(f *fixture) {},
			wantErr: vault.ErrInvalidVaultName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, service.DocumentConfig{})
			tt.setup(f)

			resp, err := f.svc.Query(context.Background(), tt.req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.NotNil(t, resp.Results)
			assert.Len(t, resp.Results, tt.wantResults)
			assert.Equal(t, tt.wantContext, resp.Context)
			assert.Equal(t, tt.wantDegraded, resp.Degraded)
		})
	}
}

func TestDocumentService_ListVaults(t *testing.T) {
	f := newFixture(t, service.DocumentConfig{})
	ctx := context.Background()

	want := []storage.VaultRecord{{ID: 1, Name: "history"}, {ID: 2, Name: "physics"}}
	f.vaults.EXPECT().ListAll(gomock.Any()).Return(want, nil)

	got, err := f.svc.ListVaults(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	f.vaults.EXPECT().ListAll(gomock.Any()).Return(nil, errors.New("db locked"))
	_, err = f.svc.ListVaults(ctx)
	assert.ErrorIs(t, err, service.ErrExternalService)
}

func TestDocumentService_ListFiles(t *testing.T) {
	f := newFixture(t, service.DocumentConfig{})
	ctx := context.Background()

	want := []storage.FileRecord{{ID: 1, UserID: "alice", Vault: "physics", Filename: "a.pdf", ChunkCount: 4}}
	f.files.EXPECT().ListByVault(gomock.Any(), "physics").Return(want, nil)

	got, err := f.svc.ListFiles(ctx, "physics")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = f.svc.ListFiles(ctx, "-bad-")
	assert.ErrorIs(t, err, service.ErrInvalidInput)
}
