package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/user/doorplate-crawler/internal/crawler"
	"github.com/user/doorplate-crawler/internal/entity"
	"github.com/user/doorplate-crawler/internal/repository"
)

type fakeRunner struct {
	outcome  crawler.BatchOutcome
	err      error
	gotCity  string
	gotReq   crawler.BatchRequest
	gotSink  crawler.Sink
	calls    int
	duringFn func()
}

func (f *fakeRunner) RunBatch(_ context.Context, cityCode string, req crawler.BatchRequest, sink crawler.Sink) (crawler.BatchOutcome, error) {
	f.calls++
	f.gotCity = cityCode
	f.gotReq = req
	f.gotSink = sink
	if f.duringFn != nil {
		f.duringFn()
	}
	return f.outcome, f.err
}

type fakeLocks struct {
	mu       sync.Mutex
	held     map[string]bool
	err      error
	released []string
}

func (f *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if f.held == nil {
		f.held = map[string]bool{}
	}
	if f.held[key] {
		return false, nil
	}
	f.held[key] = true
	return true, nil
}

func (f *fakeLocks) Release(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.held, key)
	f.released = append(f.released, key)
	return nil
}

type finishedBatch struct {
	id      int64
	status  entity.BatchStatus
	records int
	errMsg  string
}

type fakeBatches struct {
	nextID   int64
	triggers []string
	finished []finishedBatch
}

func (f *fakeBatches) Start(_ context.Context, trigger string) (int64, error) {
	f.nextID++
	f.triggers = append(f.triggers, trigger)
	return f.nextID, nil
}

func (f *fakeBatches) Finish(_ context.Context, id int64, status entity.BatchStatus, records int, errMsg string) error {
	f.finished = append(f.finished, finishedBatch{id, status, records, errMsg})
	return nil
}

func (f *fakeBatches) Recent(context.Context, int) ([]*entity.Batch, error) { return nil, nil }

type fakeRecords struct {
	saved   map[string]int
	results []entity.DistrictResult
}

func (f *fakeRecords) SaveRecords(_ context.Context, _ int64, _, district string, records []entity.RawRecord) (int, error) {
	if f.saved == nil {
		f.saved = map[string]int{}
	}
	f.saved[district] += len(records)
	return len(records), nil
}

func (f *fakeRecords) SaveDistrictResult(_ context.Context, r entity.DistrictResult) error {
	f.results = append(f.results, r)
	return nil
}

func (f *fakeRecords) Search(context.Context, entity.RecordFilter) ([]*entity.StoredRecord, error) {
	return nil, nil
}

type fakeRecipients struct{ list []entity.Recipient }

func (f *fakeRecipients) ListActive(context.Context) ([]entity.Recipient, error) { return f.list, nil }
func (f *fakeRecipients) Add(_ context.Context, r entity.Recipient) error {
	f.list = append(f.list, r)
	return nil
}

type sentAlert struct {
	kind    string
	to      []string
	body    string
	batchID int64
}

type fakeNotifier struct{ sent []sentAlert }

func (f *fakeNotifier) NotifyCrawlerError(_ context.Context, to []string, message string, batchID int64) (bool, error) {
	f.sent = append(f.sent, sentAlert{"error", to, message, batchID})
	return true, nil
}

func (f *fakeNotifier) NotifyEmptyData(_ context.Context, to []string, info string, batchID int64) (bool, error) {
	f.sent = append(f.sent, sentAlert{"empty", to, info, batchID})
	return true, nil
}

type fakeQueue struct {
	mu     sync.Mutex
	jobs   []*entity.BatchJob
	states map[string]entity.JobState
	popErr error
}

func (f *fakeQueue) Push(_ context.Context, job *entity.BatchJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *fakeQueue) Pop(context.Context) (*entity.BatchJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.popErr != nil {
		return nil, f.popErr
	}
	if len(f.jobs) == 0 {
		return nil, nil
	}
	job := f.jobs[0]
	f.jobs = f.jobs[1:]
	return job, nil
}

func (f *fakeQueue) Size(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.jobs)), nil
}

func (f *fakeQueue) SaveStatus(_ context.Context, s *entity.JobState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.states == nil {
		f.states = map[string]entity.JobState{}
	}
	f.states[s.ID] = *s
	return nil
}

func (f *fakeQueue) GetStatus(_ context.Context, id string) (*entity.JobState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.states[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}
