package render

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/slideshow/internal/apperr"
	"github.com/maauso/slideshow/internal/job"
	"github.com/maauso/slideshow/internal/storage"
)

// blockingRunner holds every job until released or cancelled.
type blockingRunner struct {
	started chan *job.Job
	release chan struct{}
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{started: make(chan *job.Job, 4), release: make(chan struct{})}
}

func (b *blockingRunner) Run(ctx context.Context, j *job.Job, _ Observer) error {
	_ = j.TransitionTo(job.StatusProbing)
	b.started <- j
	select {
	case <-b.release:
		for _, s := range []job.Status{job.StatusPlanning, job.StatusComposing, job.StatusAssembling, job.StatusEncoding, job.StatusVerifying} {
			_ = j.TransitionTo(s)
		}
		return j.Complete(j.Params.OutputPath, 1, "done")
	case <-ctx.Done():
		_ = j.Cancel()
		return apperr.ErrCancelled
	}
}

// mockStorage implements storage.Storage for testing.
type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) CreateWorkspace(ctx context.Context, jobID string) (string, error) {
	args := m.Called(ctx, jobID)
	return args.String(0), args.Error(1)
}

func (m *mockStorage) RemoveWorkspace(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

func (m *mockStorage) Promote(ctx context.Context, src, dst string) (int64, error) {
	args := m.Called(ctx, src, dst)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStorage) UploadToS3(ctx context.Context, key string, data io.Reader) (string, error) {
	args := m.Called(ctx, key, data)
	return args.String(0), args.Error(1)
}

func newTestService(t *testing.T, runner Runner, store storage.Storage) (*Service, *job.MemoryRepository) {
	t.Helper()
	repo := job.NewMemoryRepository()
	if store == nil {
		local, err := storage.NewLocalStorage(filepath.Join(t.TempDir(), "work"))
		require.NoError(t, err)
		store = local
	}
	return NewService(runner, repo, store, DefaultDefaults(), quietLogger()), repo
}

func silentParams(t *testing.T) job.Params {
	t.Helper()
	dir := t.TempDir()
	writeImages(t, filepath.Join(dir, "images"), 2)
	return job.Params{
		ImageDir:   filepath.Join(dir, "images"),
		OutputPath: filepath.Join(dir, "show.mp4"),
		Silent:     true,
	}
}

func TestService_Normalize(t *testing.T) {
	svc, _ := newTestService(t, newBlockingRunner(), nil)

	p, err := svc.Normalize(job.Params{ImageDir: "/in", Silent: true, AudioPath: "ignored.mp3"})
	require.NoError(t, err)
	assert.Equal(t, 1920, p.Width)
	assert.Equal(t, 1080, p.Height)
	assert.Equal(t, DefaultOutputPath, p.OutputPath)
	assert.Equal(t, 3.0, p.ImageDurationSec)
	assert.Empty(t, p.AudioPath)

	tests := []struct {
		name   string
		params job.Params
	}{
		{"missing image dir", job.Params{Silent: true}},
		{"missing audio", job.Params{ImageDir: "/in"}},
		{"negative transition", job.Params{ImageDir: "/in", Silent: true, TransitionSec: -1}},
		{"negative image duration", job.Params{ImageDir: "/in", Silent: true, ImageDurationSec: -2}},
		{"half a resolution", job.Params{ImageDir: "/in", Silent: true, Width: 640}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Normalize(tt.params)
			assert.ErrorIs(t, err, apperr.ErrInvalidInput)
			assert.True(t, apperr.IsValidation(err))
		})
	}
}

func TestService_Submit_Validation(t *testing.T) {
	svc, repo := newTestService(t, newBlockingRunner(), nil)
	ctx := context.Background()
	dir := t.TempDir()

	_, err := svc.Submit(ctx, job.Params{ImageDir: filepath.Join(dir, "missing"), Silent: true}, nil)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	file := filepath.Join(dir, "file.png")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0600))
	_, err = svc.Submit(ctx, job.Params{ImageDir: file, Silent: true}, nil)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = svc.Submit(ctx, job.Params{ImageDir: dir, AudioPath: filepath.Join(dir, "missing.mp3")}, nil)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = svc.Submit(ctx, job.Params{ImageDir: dir, AudioPath: dir}, nil)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	jobs, _ := repo.List(ctx)
	assert.Empty(t, jobs, "rejected requests create no job")
}

func TestService_SingleActiveJob(t *testing.T) {
	runner := newBlockingRunner()
	svc, _ := newTestService(t, runner, nil)
	ctx := context.Background()

	first, err := svc.Submit(ctx, silentParams(t), nil)
	require.NoError(t, err)
	assert.Equal(t, job.StatusIdle, first.Status)
	<-runner.started

	active, ok := svc.Active()
	require.True(t, ok)
	assert.Equal(t, first.ID, active.ID)

	_, err = svc.Submit(ctx, silentParams(t), nil)
	assert.ErrorIs(t, err, ErrJobActive)

	close(runner.release)
	snap, err := svc.Wait(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, snap.Status)

	_, ok = svc.Active()
	assert.False(t, ok)

	second, err := svc.Submit(ctx, silentParams(t), nil)
	require.NoError(t, err, "a new job is accepted once the previous one finished")
	<-runner.started
	_, err = svc.Wait(ctx, second.ID)
	require.NoError(t, err)

	jobs, err := svc.ListJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, first.ID, jobs[0].ID)
}

func TestService_Cancel(t *testing.T) {
	runner := newBlockingRunner()
	svc, _ := newTestService(t, runner, nil)
	ctx := context.Background()

	j, err := svc.Submit(ctx, silentParams(t), nil)
	require.NoError(t, err)
	<-runner.started

	require.NoError(t, svc.Cancel(ctx, j.ID))

	snap, err := svc.Wait(ctx, j.ID)
	assert.True(t, apperr.IsCancelled(err))
	assert.Equal(t, job.StatusCancelled, snap.Status)
	assert.True(t, snap.CancelRequested())

	assert.ErrorIs(t, svc.Cancel(ctx, j.ID), ErrJobNotActive)
	assert.ErrorIs(t, svc.Cancel(ctx, "render-unknown"), job.ErrJobNotFound)
}

func TestService_SubmitOutlivesRequestContext(t *testing.T) {
	runner := newBlockingRunner()
	svc, _ := newTestService(t, runner, nil)

	reqCtx, cancel := context.WithCancel(context.Background())
	j, err := svc.Submit(reqCtx, silentParams(t), nil)
	require.NoError(t, err)
	<-runner.started
	cancel()

	close(runner.release)
	snap, err := svc.Wait(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, snap.Status)
}

func TestService_Wait(t *testing.T) {
	runner := newBlockingRunner()
	svc, _ := newTestService(t, runner, nil)

	_, err := svc.Wait(context.Background(), "render-unknown")
	assert.ErrorIs(t, err, job.ErrJobNotFound)

	j, err := svc.Submit(context.Background(), silentParams(t), nil)
	require.NoError(t, err)
	<-runner.started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = svc.Wait(ctx, j.ID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, svc.Shutdown(context.Background()))
	snap, err := svc.GetJob(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCancelled, snap.Status)
}

func TestService_FinishedRunsAreBounded(t *testing.T) {
	runner := newBlockingRunner()
	close(runner.release)
	svc, _ := newTestService(t, runner, nil)
	ctx := context.Background()
	params := silentParams(t)

	var ids []string
	for i := 0; i < retainedRuns+5; i++ {
		j, err := svc.Submit(ctx, params, nil)
		require.NoError(t, err)
		<-runner.started
		_, err = svc.Wait(ctx, j.ID)
		require.NoError(t, err)
		ids = append(ids, j.ID)
	}

	svc.mu.Lock()
	retained := len(svc.runs)
	_, oldestKept := svc.runs[ids[0]]
	svc.mu.Unlock()
	assert.Equal(t, retainedRuns, retained)
	assert.False(t, oldestKept)

	snap, err := svc.Wait(ctx, ids[0])
	require.NoError(t, err, "pruned runs are answered from the repository")
	assert.Equal(t, job.StatusCompleted, snap.Status)

	jobs, err := svc.ListJobs(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, retainedRuns+5)
}

func TestService_WaitOnPrunedCancelledRun(t *testing.T) {
	runner := newBlockingRunner()
	svc, repo := newTestService(t, runner, nil)
	ctx := context.Background()

	j := job.New(job.Params{})
	require.NoError(t, j.TransitionTo(job.StatusProbing))
	require.NoError(t, j.Cancel())
	require.NoError(t, repo.Save(ctx, j))

	snap, err := svc.Wait(ctx, j.ID)
	assert.True(t, apperr.IsCancelled(err))
	assert.Equal(t, job.StatusCancelled, snap.Status)
}

func TestService_EndToEnd(t *testing.T) {
	f := newPipelineFixture(t)
	svc := NewService(f.pipeline, f.repo, f.storage, DefaultDefaults(), quietLogger())
	ctx := context.Background()

	params := silentParams(t)
	params.Width, params.Height = 32, 18
	params.ImageDurationSec = 0.25

	events := NewChannelObserver(128)
	j, err := svc.Submit(ctx, params, events)
	require.NoError(t, err)

	snap, err := svc.Wait(ctx, j.ID)
	require.NoError(t, err)
	events.Close()

	assert.Equal(t, job.StatusCompleted, snap.Status)
	assert.Equal(t, 100, snap.Progress)
	assert.FileExists(t, params.OutputPath)

	var last Event
	for e := range events.Events() {
		last = e
	}
	assert.Equal(t, 100, last.Percent)
	assert.Equal(t, j.ID, last.JobID)
}

func TestService_Publish(t *testing.T) {
	ctx := context.Background()

	completedJob := func(t *testing.T, repo job.Repository) *job.Job {
		t.Helper()
		out := filepath.Join(t.TempDir(), "show.mp4")
		require.NoError(t, os.WriteFile(out, []byte("video"), 0600))
		j := job.New(job.Params{OutputPath: out})
		for _, s := range []job.Status{job.StatusProbing, job.StatusPlanning, job.StatusComposing, job.StatusAssembling, job.StatusEncoding, job.StatusVerifying} {
			require.NoError(t, j.TransitionTo(s))
		}
		require.NoError(t, j.Complete(out, 5, "done"))
		require.NoError(t, repo.Save(ctx, j))
		return j
	}

	t.Run("uploads and records url", func(t *testing.T) {
		store := &mockStorage{}
		svc, repo := newTestService(t, newBlockingRunner(), store)
		j := completedJob(t, repo)

		key := "renders/" + j.ID + "/show.mp4"
		store.On("UploadToS3", mock.Anything, key, mock.Anything).Return("https://bucket.s3/"+key, nil).Once()

		url, err := svc.Publish(ctx, j.ID)
		require.NoError(t, err)
		assert.Equal(t, "https://bucket.s3/"+key, url)

		saved, _ := repo.FindByID(ctx, j.ID)
		assert.Equal(t, url, saved.VideoURL)

		again, err := svc.Publish(ctx, j.ID)
		require.NoError(t, err)
		assert.Equal(t, url, again, "a published job is not uploaded twice")
		store.AssertExpectations(t)
	})

	t.Run("s3 not configured", func(t *testing.T) {
		svc, repo := newTestService(t, newBlockingRunner(), nil)
		j := completedJob(t, repo)

		_, err := svc.Publish(ctx, j.ID)
		assert.ErrorIs(t, err, storage.ErrS3NotConfigured)
	})

	t.Run("not completed", func(t *testing.T) {
		svc, repo := newTestService(t, newBlockingRunner(), nil)
		j := job.New(job.Params{})
		require.NoError(t, repo.Save(ctx, j))

		_, err := svc.Publish(ctx, j.ID)
		assert.ErrorIs(t, err, ErrJobNotCompleted)
	})

	t.Run("unknown job", func(t *testing.T) {
		svc, _ := newTestService(t, newBlockingRunner(), nil)
		_, err := svc.Publish(ctx, "render-unknown")
		assert.True(t, errors.Is(err, job.ErrJobNotFound))
	})
}
