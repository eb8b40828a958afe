package generation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"storefront/internal/domain"
	"storefront/internal/retry"
)

// memStore mirrors the guarded update semantics of the Postgres store.
type memStore struct {
	mu        sync.Mutex
	jobs      map[string]*domain.GenerationJob
	updates   int
	calls     int
	insertErr error
	// updateErr, when set, may fail the n-th Update call (1-based).
	updateErr func(n int, patch domain.JobPatch) error
	now       func() time.Time
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{jobs: map[string]*domain.GenerationJob{}, now: now}
}

func (m *memStore) Insert(ctx context.Context, job *domain.GenerationJob) (string, error) {
	if m.insertErr != nil {
		return "", m.insertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.CreatedAt = m.now()
	job.UpdatedAt = job.CreatedAt
	if job.Metadata == nil {
		job.Metadata = map[string]any{}
	}
	job.Metadata[domain.MetaClientToken] = job.ClientToken
	m.jobs[job.ID] = cloneJob(job)
	return job.ID, nil
}

func (m *memStore) Get(ctx context.Context, id string) (*domain.GenerationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneJob(job), nil
}

func (m *memStore) Update(ctx context.Context, id string, patch domain.JobPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.updateErr != nil {
		if err := m.updateErr(m.calls, patch); err != nil {
			return err
		}
	}
	job, ok := m.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if job.Status.Terminal() {
		return domain.ErrJobFinalized
	}
	m.updates++
	patch.Apply(job)
	job.UpdatedAt = m.now()
	return nil
}

func (m *memStore) BulkReassign(ctx context.Context, clientToken, owner string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, job := range m.jobs {
		if job.Owner == nil && job.ClientToken == clientToken {
			o := owner
			job.Owner = &o
			n++
		}
	}
	return n, nil
}

func (m *memStore) ListPendingBatch(ctx context.Context, limit int) ([]*domain.GenerationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.GenerationJob
	for _, job := range m.jobs {
		if NeedsFinalize(job) {
			out = append(out, cloneJob(job))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) put(job *domain.GenerationJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = cloneJob(job)
}

func (m *memStore) updateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updates
}

type fakeBlobs struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (b *fakeBlobs) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if b.err != nil {
		return "", b.err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.keys = append(b.keys, key)
	return "https://cdn.test/" + key, nil
}

type fakeProvider struct {
	mu          sync.Mutex
	generate    func(call int, req domain.GenerateRequest) (*domain.GeneratedImage, error)
	genCalls    int
	prompts     []string
	batchReqs   []domain.GenerateRequest
	uploadErr   error
	uploaded    []byte
	submitErr   error
	submitCalls int
	op          *domain.BatchOperation
	pollErr     error
	pollCalls   int
	resultFile  []byte
}

func (p *fakeProvider) Generate(ctx context.Context, req domain.GenerateRequest) (*domain.GeneratedImage, error) {
	p.mu.Lock()
	p.genCalls++
	call := p.genCalls
	p.prompts = append(p.prompts, req.Prompt)
	p.mu.Unlock()
	if p.generate != nil {
		return p.generate(call, req)
	}
	return &domain.GeneratedImage{Data: []byte(fmt.Sprintf("img-%d", call)), MIMEType: "image/png"}, nil
}

func (p *fakeProvider) EncodeBatchInput(reqs []domain.GenerateRequest) ([]byte, error) {
	p.batchReqs = append([]domain.GenerateRequest(nil), reqs...)
	var out []byte
	for _, r := range reqs {
		out = append(out, r.RequestID+"\t"+r.Prompt+"\n"...)
	}
	return out, nil
}

func (p *fakeProvider) UploadFile(ctx context.Context, data []byte, contentType, displayName string) (string, error) {
	if p.uploadErr != nil {
		return "", p.uploadErr
	}
	p.uploaded = append([]byte(nil), data...)
	return "files/input-1", nil
}

func (p *fakeProvider) SubmitBatch(ctx context.Context, fileHandle string, variantCount int) (string, error) {
	p.submitCalls++
	if p.submitErr != nil {
		return "", p.submitErr
	}
	return "batches/op-1", nil
}

func (p *fakeProvider) PollOperation(ctx context.Context, handle string) (*domain.BatchOperation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pollCalls++
	if p.pollErr != nil {
		return nil, p.pollErr
	}
	if p.op == nil {
		return &domain.BatchOperation{Name: handle, State: "BATCH_STATE_RUNNING"}, nil
	}
	return p.op, nil
}

func (p *fakeProvider) DownloadFile(ctx context.Context, fileHandle string) ([]byte, error) {
	if p.resultFile == nil {
		return nil, errors.New("no such file")
	}
	return p.resultFile, nil
}

func (p *fakeProvider) Model() string { return "fake-image-model" }

func (p *fakeProvider) pollCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pollCalls
}

type instantTimer struct {
	c chan time.Time
}

func (t *instantTimer) Start(d time.Duration) {
	t.c = make(chan time.Time, 1)
	t.c <- time.Now()
}

func (t *instantTimer) Stop() {}

func (t *instantTimer) C() <-chan time.Time { return t.c }

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	svc      *Service
	store    *memStore
	blobs    *fakeBlobs
	provider *fakeProvider
	clock    *testClock
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	clock := &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	h := &harness{
		store:    newMemStore(clock.Now),
		blobs:    &fakeBlobs{},
		provider: &fakeProvider{},
		clock:    clock,
	}
	if cfg.Retry.Timer == nil {
		cfg.Retry = retry.Default(nil)
		cfg.Retry.Timer = &instantTimer{}
	}
	svc, err := New(cfg, Deps{Store: h.store, Blobs: h.blobs, Provider: h.provider, Clock: clock.Now})
	require.NoError(t, err)
	h.svc = svc
	return h
}

// seedBatchJob stores an in-flight batch job and returns it.
func (h *harness) seedBatchJob(t *testing.T, handle *string, startedAgo time.Duration) *domain.GenerationJob {
	t.Helper()
	started := h.clock.Now().Add(-startedAgo)
	job := &domain.GenerationJob{
		ID:              uuid.NewString(),
		ClientToken:     "tok-batch",
		Prompt:          "a fox",
		Variants:        []string{"a", "b", "c"},
		Status:          domain.JobStatusProcessing,
		Provider:        domain.ProviderBatch,
		OperationHandle: handle,
		Metadata:        map[string]any{domain.MetaVariantCount: 3, domain.MetaClientToken: "tok-batch"},
		CreatedAt:       started,
		StartedAt:       &started,
	}
	h.store.put(job)
	return job
}

// requireConsistent checks the status/result/error invariants of a stored job.
func requireConsistent(t *testing.T, job *domain.GenerationJob) {
	t.Helper()
	if job.Status == domain.JobStatusCompleted {
		require.NotNil(t, job.ResultURL, "completed job must have a result url")
		require.Nil(t, job.ErrorMessage)
	}
	if job.ErrorMessage != nil {
		require.Equal(t, domain.JobStatusFailed, job.Status)
	}
	require.LessOrEqual(t, len(job.ExtraURLs), job.VariantCount()-1)
	if job.Status.Terminal() {
		require.NotNil(t, job.CompletedAt)
	}
}

func jobWith(owner *string, token string) *domain.GenerationJob {
	return &domain.GenerationJob{ID: "job-1", Owner: owner, ClientToken: token}
}
