package generation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/domain"
)

var errUnavailable = fmt.Errorf("gemini status 503: %w", domain.ErrProviderTransient)

func TestCreateRejectsAnonymousWhenDisabled(t *testing.T) {
	h := newHarness(t, Config{Mode: ModeDirect, AllowAnonymous: false})
	_, err := h.svc.Create(context.Background(), CreateRequest{Prompt: "a fox", ClientToken: "tok"})
	require.ErrorIs(t, err, domain.ErrUnauthenticated)
	assert.Empty(t, h.store.jobs)
}

func TestCreateRequiresPrompt(t *testing.T) {
	h := newHarness(t, Config{Mode: ModeDirect, AllowAnonymous: true})
	_, err := h.svc.Create(context.Background(), CreateRequest{Prompt: "   ", ClientToken: "tok"})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = h.svc.Create(context.Background(), CreateRequest{Prompt: "x", Width: 9000, ClientToken: "tok"})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCreateSurfacesInsertFailure(t *testing.T) {
	h := newHarness(t, Config{Mode: ModeDirect, AllowAnonymous: true})
	h.store.insertErr = errors.New("connection refused")
	_, err := h.svc.Create(context.Background(), CreateRequest{Prompt: "a fox"})
	require.ErrorIs(t, err, domain.ErrStorageFailure)
	assert.Zero(t, h.provider.genCalls)
}

func TestCreateDirectCompletesAllVariants(t *testing.T) {
	h := newHarness(t, Config{Mode: ModeDirect, AllowAnonymous: true})
	job, err := h.svc.Create(context.Background(), CreateRequest{Prompt: "a fox", Width: 1024, Height: 1820})
	require.NoError(t, err)

	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Equal(t, domain.ProviderDirect, job.Provider)
	assert.NotEmpty(t, job.ClientToken, "a client token is minted when absent")
	require.NotNil(t, job.ResultURL)
	assert.Len(t, job.ExtraURLs, 2)
	assert.Equal(t, 3, h.provider.genCalls)

	stored, err := h.store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	requireConsistent(t, stored)
	assert.Equal(t, *job.ResultURL, *stored.ResultURL)
	assert.NotNil(t, stored.StartedAt)
	assert.Contains(t, stored.Metadata, domain.MetaProcessingMS)
}

func TestDirectPersistsAfterEveryVariant(t *testing.T) {
	h := newHarness(t, Config{Mode: ModeDirect, AllowAnonymous: true})
	var seen []int
	h.provider.generate = func(call int, req domain.GenerateRequest) (*domain.GeneratedImage, error) {
		for _, j := range h.store.jobs {
			n := len(j.ExtraURLs)
			if j.ResultURL != nil {
				n++
			}
			seen = append(seen, n)
		}
		assert.Equal(t, "9:16", req.AspectRatio)
		return &domain.GeneratedImage{Data: []byte{byte(call)}, MIMEType: "image/png"}, nil
	}
	_, err := h.svc.Create(context.Background(), CreateRequest{Prompt: "a fox", Width: 1024, Height: 1820})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, seen)
}

func TestDirectPartialFailureKeepsFirstResult(t *testing.T) {
	h := newHarness(t, Config{Mode: ModeDirect, AllowAnonymous: true})
	h.provider.generate = func(call int, req domain.GenerateRequest) (*domain.GeneratedImage, error) {
		if call == 2 {
			return nil, fmt.Errorf("gemini status 400: %w", domain.ErrProviderPermanent)
		}
		return &domain.GeneratedImage{Data: []byte("ok"), MIMEType: "image/png"}, nil
	}

	job, err := h.svc.Create(context.Background(), CreateRequest{Prompt: "a fox"})
	require.NoError(t, err)

	stored, err := h.store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, stored.Status)
	require.NotNil(t, stored.ResultURL, "variant 1 result survives the failure")
	assert.Empty(t, stored.ExtraURLs)
	require.NotNil(t, stored.ErrorMessage)
	assert.Contains(t, *stored.ErrorMessage, "variant 2 of 3")
	assert.Equal(t, 2, h.provider.genCalls, "remaining variants are abandoned")
	requireConsistent(t, stored)
}

func TestDirectRetriesTransientFailures(t *testing.T) {
	h := newHarness(t, Config{Mode: ModeDirect, AllowAnonymous: true})
	h.provider.generate = func(call int, req domain.GenerateRequest) (*domain.GeneratedImage, error) {
		if call <= 2 {
			return nil, errUnavailable
		}
		return &domain.GeneratedImage{Data: []byte("ok"), MIMEType: "image/png"}, nil
	}

	job, err := h.svc.Create(context.Background(), CreateRequest{Prompt: "a fox", Variants: []string{"only one"}})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Equal(t, 3, h.provider.genCalls)
	assert.Empty(t, job.ExtraURLs)
}

func TestDirectGivesUpAfterThreeAttempts(t *testing.T) {
	h := newHarness(t, Config{Mode: ModeDirect, AllowAnonymous: true})
	h.provider.generate = func(call int, req domain.GenerateRequest) (*domain.GeneratedImage, error) {
		return nil, errUnavailable
	}

	job, err := h.svc.Create(context.Background(), CreateRequest{Prompt: "a fox"})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Nil(t, job.ResultURL)
	assert.Equal(t, 3, h.provider.genCalls)
	requireConsistent(t, job)
}

func TestDirectUploadFailureFailsJob(t *testing.T) {
	h := newHarness(t, Config{Mode: ModeDirect, AllowAnonymous: true})
	h.blobs.err = fmt.Errorf("disk full: %w", domain.ErrStorageFailure)

	job, err := h.svc.Create(context.Background(), CreateRequest{Prompt: "a fox"})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	require.NotNil(t, job.ErrorMessage)
	assert.Contains(t, *job.ErrorMessage, "upload failed")
}

var errConnReset = errors.New("write tcp 10.0.0.4:5432: connection reset by peer")

func TestDirectRetriesFailedStoreWrite(t *testing.T) {
	h := newHarness(t, Config{Mode: ModeDirect, AllowAnonymous: true})
	h.store.updateErr = func(n int, patch domain.JobPatch) error {
		if n == 2 {
			return errConnReset
		}
		return nil
	}

	job, err := h.svc.Create(context.Background(), CreateRequest{Prompt: "a fox"})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)

	stored, err := h.store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, stored.Status)
	assert.Len(t, stored.ExtraURLs, 2)
	assert.Equal(t, 3, h.provider.genCalls, "a failed write does not regenerate the variant")
	requireConsistent(t, stored)
}

func TestDirectFailsJobWhenStoreKeepsFailing(t *testing.T) {
	h := newHarness(t, Config{Mode: ModeDirect, AllowAnonymous: true})
	h.store.updateErr = func(n int, patch domain.JobPatch) error {
		if patch.ResultURL != nil {
			return errConnReset
		}
		return nil
	}

	job, err := h.svc.Create(context.Background(), CreateRequest{Prompt: "a fox"})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, job.Status)

	stored, err := h.store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Contains(t, *stored.ErrorMessage, "variant 1 of 3: persist failed")
	assert.Equal(t, 1, h.provider.genCalls)
	requireConsistent(t, stored)
}

func TestDirectFailsJobWhenStartCannotPersist(t *testing.T) {
	h := newHarness(t, Config{Mode: ModeDirect, AllowAnonymous: true})
	h.store.updateErr = func(n int, patch domain.JobPatch) error {
		if patch.StartedAt != nil {
			return errConnReset
		}
		return nil
	}

	job, err := h.svc.Create(context.Background(), CreateRequest{Prompt: "a fox"})
	require.NoError(t, err)

	stored, err := h.store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, stored.Status)
	assert.Contains(t, *stored.ErrorMessage, "start processing")
	assert.Zero(t, h.provider.genCalls)
	requireConsistent(t, stored)
}

func TestBatchFailsJobWhenHandleCannotPersist(t *testing.T) {
	h := newHarness(t, Config{Mode: ModeBatch, AllowAnonymous: true})
	h.store.updateErr = func(n int, patch domain.JobPatch) error {
		if patch.OperationHandle != nil {
			return errConnReset
		}
		return nil
	}

	job, err := h.svc.Create(context.Background(), CreateRequest{Prompt: "a fox"})
	require.NoError(t, err)

	stored, err := h.store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, stored.Status)
	assert.Contains(t, *stored.ErrorMessage, "record batch operation")
	assert.Equal(t, 1, h.provider.submitCalls)
}

func TestCreateDirectAsyncReturnsBeforeExecution(t *testing.T) {
	h := newHarness(t, Config{Mode: ModeDirect, AllowAnonymous: true, DirectAsync: true})
	ctx, cancel := context.WithCancel(context.Background())
	job, err := h.svc.Create(ctx, CreateRequest{Prompt: "a fox", UserID: "user-1"})
	require.NoError(t, err)
	cancel()
	assert.Equal(t, domain.JobStatusQueued, job.Status)

	h.svc.Wait()
	stored, err := h.store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, stored.Status, "request cancellation does not stop execution")
	assert.Equal(t, "user-1", stored.OwnerID())
}

func TestCreateBatchSubmitsJSONL(t *testing.T) {
	h := newHarness(t, Config{Mode: ModeBatch, AllowAnonymous: true})
	job, err := h.svc.Create(context.Background(), CreateRequest{Prompt: "a fox", Width: 1920, Height: 1080})
	require.NoError(t, err)

	assert.Equal(t, domain.JobStatusProcessing, job.Status)
	assert.Equal(t, domain.ProviderBatch, job.Provider)
	require.NotNil(t, job.OperationHandle)
	assert.Equal(t, "batches/op-1", *job.OperationHandle)
	require.NotNil(t, job.SourceFileHandle)
	assert.Equal(t, "files/input-1", *job.SourceFileHandle)
	assert.Contains(t, job.Metadata, domain.MetaSubmittedAt)

	var keys []string
	for _, req := range h.provider.batchReqs {
		keys = append(keys, req.RequestID)
		assert.Equal(t, "16:9", req.AspectRatio)
	}
	assert.Equal(t, []string{"variant-0", "variant-1", "variant-2"}, keys)
	assert.Contains(t, string(h.provider.uploaded), "variant-0\t")
}

func TestBatchUploadFailureMarksFailed(t *testing.T) {
	h := newHarness(t, Config{Mode: ModeBatch, AllowAnonymous: true})
	h.provider.uploadErr = fmt.Errorf("gemini status 400: %w", domain.ErrProviderPermanent)

	job, err := h.svc.Create(context.Background(), CreateRequest{Prompt: "a fox"})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Nil(t, job.OperationHandle)
	assert.Zero(t, h.provider.submitCalls)
	requireConsistent(t, job)
}

func TestBatchSubmitFailureMarksFailed(t *testing.T) {
	h := newHarness(t, Config{Mode: ModeBatch, AllowAnonymous: true})
	h.provider.submitErr = errUnavailable

	job, err := h.svc.Create(context.Background(), CreateRequest{Prompt: "a fox"})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Equal(t, 3, h.provider.submitCalls, "transient submit failures are retried")
	require.NotNil(t, job.ErrorMessage)
	assert.Contains(t, *job.ErrorMessage, "submit batch")
}

func inlinePayload(images ...string) map[string]any {
	var responses []any
	for _, img := range images {
		responses = append(responses, map[string]any{
			"response": map[string]any{"candidates": []any{map[string]any{"content": map[string]any{"parts": []any{
				map[string]any{"inlineData": map[string]any{"mimeType": "image/png", "data": b64(img)}},
			}}}}},
		})
	}
	return map[string]any{"inlinedResponses": responses}
}

func TestFinalizeLeavesRunningBatchUntouched(t *testing.T) {
	h := newHarness(t, Config{Mode: ModeBatch})
	job := h.seedBatchJob(t, domain.Ptr("batches/op-1"), time.Minute)

	out, err := h.svc.Finalize(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusProcessing, out.Status)
	assert.Equal(t, 1, h.provider.pollCount())
	assert.Zero(t, h.store.updateCount())
}

func TestFinalizeCompletesFromInlinePayloadOnce(t *testing.T) {
	h := newHarness(t, Config{Mode: ModeBatch})
	job := h.seedBatchJob(t, domain.Ptr("batches/op-1"), time.Minute)
	h.provider.op = &domain.BatchOperation{Done: true, Succeeded: true, Payload: inlinePayload("a", "b", "c", "d")}

	out, err := h.svc.Finalize(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, out.Status)
	require.NotNil(t, out.ResultURL)
	assert.Len(t, out.ExtraURLs, 2, "at most three images are kept")
	assert.Equal(t, 1, h.store.updateCount(), "completion is a single write")
	requireConsistent(t, out)

	again, err := h.svc.Finalize(context.Background(), out)
	require.NoError(t, err)
	assert.Equal(t, out, again)
	assert.Equal(t, 1, h.provider.pollCount(), "no provider call on a terminal job")
	assert.Equal(t, 1, h.store.updateCount(), "no write on a terminal job")
}

func TestFinalizeDownloadsResultFile(t *testing.T) {
	h := newHarness(t, Config{Mode: ModeBatch})
	job := h.seedBatchJob(t, domain.Ptr("batches/op-1"), time.Minute)
	h.provider.op = &domain.BatchOperation{Done: true, Succeeded: true, ResultFile: "files/out"}
	h.provider.resultFile = []byte(
		`{"key":"variant-1","response":{"candidates":[{"content":{"parts":[{"inlineData":{"data":"` + b64("second") + `"}}]}}]}}` + "\n" +
			`{"key":"variant-0","response":{"candidates":[{"content":{"parts":[{"inlineData":{"data":"` + b64("first") + `"}}]}}]}}` + "\n")

	out, err := h.svc.Finalize(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, out.Status)
	require.Len(t, h.blobs.keys, 2)
	assert.Contains(t, h.blobs.keys[0], "/variant-0-")
	assert.Contains(t, *out.ResultURL, h.blobs.keys[0])
}

func TestFinalizeFailedOperation(t *testing.T) {
	h := newHarness(t, Config{Mode: ModeBatch})
	job := h.seedBatchJob(t, domain.Ptr("batches/op-1"), time.Minute)
	h.provider.op = &domain.BatchOperation{Done: true, State: "BATCH_STATE_EXPIRED"}

	out, err := h.svc.Finalize(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, out.Status)
	require.NotNil(t, out.ErrorMessage)
	assert.Contains(t, *out.ErrorMessage, "BATCH_STATE_EXPIRED")
	requireConsistent(t, out)
}

func TestFinalizeTransientPollKeepsJob(t *testing.T) {
	h := newHarness(t, Config{Mode: ModeBatch})
	job := h.seedBatchJob(t, domain.Ptr("batches/op-1"), time.Minute)
	h.provider.pollErr = errUnavailable

	out, err := h.svc.Finalize(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusProcessing, out.Status)
	assert.Zero(t, h.store.updateCount())
}

func TestFinalizeMissingOperationTimeout(t *testing.T) {
	h := newHarness(t, Config{Mode: ModeBatch})

	young := h.seedBatchJob(t, nil, 10*time.Minute)
	out, err := h.svc.Finalize(context.Background(), young)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusProcessing, out.Status)

	old := h.seedBatchJob(t, nil, 20*time.Minute)
	out, err = h.svc.Finalize(context.Background(), old)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, out.Status)
	require.NotNil(t, out.ErrorMessage)
	assert.Contains(t, *out.ErrorMessage, "timed out")
	assert.Zero(t, h.provider.pollCount())
}

func TestFinalizeIgnoresDirectJobs(t *testing.T) {
	h := newHarness(t, Config{Mode: ModeDirect})
	job := h.seedBatchJob(t, domain.Ptr("batches/op-1"), time.Hour)
	job.Provider = domain.ProviderDirect

	out, err := h.svc.Finalize(context.Background(), job)
	require.NoError(t, err)
	assert.Same(t, job, out)
	assert.Zero(t, h.provider.pollCount())
}

func TestGetEnforcesAccessAndFinalizes(t *testing.T) {
	h := newHarness(t, Config{Mode: ModeBatch})
	job := h.seedBatchJob(t, domain.Ptr("batches/op-1"), time.Minute)
	h.provider.op = &domain.BatchOperation{Done: true, Succeeded: true, Payload: inlinePayload("a")}

	_, err := h.svc.Get(context.Background(), job.ID, "", "someone-else")
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Zero(t, h.provider.pollCount())

	out, err := h.svc.Get(context.Background(), job.ID, "", "tok-batch")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, out.Status)

	_, err = h.svc.Get(context.Background(), "missing", "", "tok-batch")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWebhookCompletesWithInlineBytes(t *testing.T) {
	h := newHarness(t, Config{Mode: ModeBatch})
	job := h.seedBatchJob(t, domain.Ptr("batches/op-1"), time.Minute)
	ms := int64(4200)

	out, err := h.svc.CompleteFromWebhook(context.Background(), WebhookEvent{
		JobID: job.ID, Status: "completed", ImageBase64: b64("png-bytes"), ContentType: "image/png", ProcessingMS: &ms,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, out.Status)
	require.Len(t, h.blobs.keys, 1)
	assert.Contains(t, h.blobs.keys[0], "designs/anon-tok-batch/"+job.ID+"/webhook-")
	assert.EqualValues(t, 4200, out.Metadata[domain.MetaProcessingMS])
	requireConsistent(t, out)
}

func TestWebhookRejectsLateCompletion(t *testing.T) {
	h := newHarness(t, Config{Mode: ModeBatch})
	job := h.seedBatchJob(t, domain.Ptr("batches/op-1"), time.Minute)
	_, err := h.svc.CompleteFromWebhook(context.Background(), WebhookEvent{JobID: job.ID, Status: "completed", ImageURL: "https://img.test/first.png"})
	require.NoError(t, err)

	_, err = h.svc.CompleteFromWebhook(context.Background(), WebhookEvent{JobID: job.ID, Status: "failed", Error: "late"})
	require.ErrorIs(t, err, domain.ErrJobFinalized)

	stored, err := h.store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, stored.Status)
	assert.Equal(t, "https://img.test/first.png", *stored.ResultURL)
	assert.Nil(t, stored.ErrorMessage)
}

func TestWebhookKeepsImageForPartialDirectJob(t *testing.T) {
	h := newHarness(t, Config{Mode: ModeDirect})
	job := h.seedBatchJob(t, nil, time.Minute)
	job.Provider = domain.ProviderDirect
	job.ResultURL = domain.Ptr("https://cdn.test/variant-0.png")
	h.store.put(job)

	out, err := h.svc.CompleteFromWebhook(context.Background(), WebhookEvent{JobID: job.ID, Status: "completed", ImageURL: "https://img.test/hook.png"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/variant-0.png", *out.ResultURL)
	assert.Equal(t, []string{"https://img.test/hook.png"}, out.ExtraURLs)
	requireConsistent(t, out)

	full := h.seedBatchJob(t, nil, time.Minute)
	full.Provider = domain.ProviderDirect
	full.ResultURL = domain.Ptr("https://cdn.test/variant-0.png")
	full.ExtraURLs = []string{"https://cdn.test/variant-1.png", "https://cdn.test/variant-2.png"}
	h.store.put(full)

	out, err = h.svc.CompleteFromWebhook(context.Background(), WebhookEvent{JobID: full.ID, Status: "completed", ImageURL: "https://img.test/late.png"})
	require.NoError(t, err)
	assert.Len(t, out.ExtraURLs, 2)
	assert.Equal(t, "https://img.test/late.png", out.Metadata[domain.MetaWebhookResultURL])
	requireConsistent(t, out)
}

func TestWebhookFailureAndValidation(t *testing.T) {
	h := newHarness(t, Config{Mode: ModeBatch})
	job := h.seedBatchJob(t, domain.Ptr("batches/op-1"), time.Minute)

	_, err := h.svc.CompleteFromWebhook(context.Background(), WebhookEvent{JobID: job.ID, Status: "done"})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = h.svc.CompleteFromWebhook(context.Background(), WebhookEvent{JobID: job.ID, Status: "completed"})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = h.svc.CompleteFromWebhook(context.Background(), WebhookEvent{JobID: "unknown", Status: "failed"})
	require.ErrorIs(t, err, domain.ErrNotFound)

	out, err := h.svc.CompleteFromWebhook(context.Background(), WebhookEvent{JobID: job.ID, Status: "failed", Error: "worker crashed"})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, out.Status)
	assert.Equal(t, "worker crashed", *out.ErrorMessage)
}

func TestWebhookBeatsFinalizer(t *testing.T) {
	h := newHarness(t, Config{Mode: ModeBatch})
	job := h.seedBatchJob(t, domain.Ptr("batches/op-1"), time.Minute)
	h.provider.op = &domain.BatchOperation{Done: true, Succeeded: true, Payload: inlinePayload("from-batch")}

	stale := cloneJob(job)
	_, err := h.svc.CompleteFromWebhook(context.Background(), WebhookEvent{JobID: job.ID, Status: "completed", ImageURL: "https://img.test/hook.png"})
	require.NoError(t, err)

	out, err := h.svc.Finalize(context.Background(), stale)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, out.Status)
	assert.Equal(t, "https://img.test/hook.png", *out.ResultURL, "first terminal write wins")
}

func TestVerifyWebhookSecret(t *testing.T) {
	open := newHarness(t, Config{})
	assert.True(t, open.svc.VerifyWebhookSecret(""))

	locked := newHarness(t, Config{WebhookSecret: "s3cret"})
	assert.True(t, locked.svc.VerifyWebhookSecret("s3cret"))
	assert.False(t, locked.svc.VerifyWebhookSecret("nope"))
	assert.False(t, locked.svc.VerifyWebhookSecret(""))
}

func TestClaimReassignsMatchingJobsOnce(t *testing.T) {
	h := newHarness(t, Config{Mode: ModeDirect, AllowAnonymous: true})
	for i := 0; i < 3; i++ {
		_, err := h.svc.Create(context.Background(), CreateRequest{Prompt: "mine", ClientToken: "tok-a"})
		require.NoError(t, err)
	}
	other, err := h.svc.Create(context.Background(), CreateRequest{Prompt: "theirs", ClientToken: "tok-b"})
	require.NoError(t, err)

	_, err = h.svc.Claim(context.Background(), "", "tok-a")
	require.ErrorIs(t, err, domain.ErrUnauthenticated)

	n, err := h.svc.Claim(context.Background(), "user-1", "tok-a")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	n, err = h.svc.Claim(context.Background(), "user-1", "tok-a")
	require.NoError(t, err)
	assert.Zero(t, n)

	stored, err := h.store.Get(context.Background(), other.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Owner)
	for _, j := range h.store.jobs {
		if j.ClientToken == "tok-a" {
			assert.Equal(t, "user-1", j.OwnerID())
			assert.Equal(t, domain.JobStatusCompleted, j.Status, "claim leaves status alone")
		}
	}
}

func TestSweepPendingFinalizesUnreadBatches(t *testing.T) {
	h := newHarness(t, Config{Mode: ModeBatch})
	h.seedBatchJob(t, domain.Ptr("batches/op-1"), time.Minute)
	h.seedBatchJob(t, domain.Ptr("batches/op-1"), time.Minute)
	h.seedBatchJob(t, nil, time.Minute)
	h.provider.op = &domain.BatchOperation{Done: true, Succeeded: true, Payload: inlinePayload("a")}

	n, err := h.svc.SweepPending(context.Background(), 10, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	pending, err := h.store.ListPendingBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1, "job without an operation handle is still inside its grace period")
}

func TestNewValidatesDependencies(t *testing.T) {
	_, err := New(Config{}, Deps{})
	require.Error(t, err)

	_, err = ParseMode("stream")
	require.Error(t, err)
}
