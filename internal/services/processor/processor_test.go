package processor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/easyvinted/publisher/internal/common"
	"github.com/easyvinted/publisher/internal/interfaces"
	"github.com/easyvinted/publisher/internal/models"
	"github.com/easyvinted/publisher/internal/storage/badger"
)

type staticAccounts struct {
	account *models.Account
	err     error
}

func (s staticAccounts) Resolve(ctx context.Context) (*models.Account, error) {
	return s.account, s.err
}

type fakePage struct{ interfaces.Page }

type fakeSession struct {
	initErr       error
	authenticated bool
	loginErr      error

	mu         sync.Mutex
	closed     int
	loginCalls int
}

func (s *fakeSession) Initialize(ctx context.Context) error { return s.initErr }
func (s *fakeSession) CheckAuthentication(ctx context.Context) (bool, error) {
	return s.authenticated, nil
}
func (s *fakeSession) LoginWithCredentials(ctx context.Context, email, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loginCalls++
	if s.loginErr == nil {
		s.authenticated = true
	}
	return s.loginErr
}
func (s *fakeSession) SaveSession(ctx context.Context) error { return nil }
func (s *fakeSession) Page() interfaces.Page                 { return fakePage{} }
func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

// fakePublisher scripts one outcome per article id and records call order
type fakePublisher struct {
	mu       sync.Mutex
	calls    []string
	outcomes map[string]func() models.ListingResult
}

func (f *fakePublisher) Publish(ctx context.Context, page interfaces.Page, article *models.Article) models.ListingResult {
	f.mu.Lock()
	f.calls = append(f.calls, article.ID)
	outcome := f.outcomes[article.ID]
	f.mu.Unlock()
	if outcome == nil {
		return models.ListingResult{Success: true, VintedURL: "https://www.vinted.fr/items/" + article.ID}
	}
	return outcome()
}

type harness struct {
	storage   interfaces.StorageManager
	session   *fakeSession
	publisher *fakePublisher
	factoryN  int
	processor *Processor
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	logger := arbor.NewLogger()
	storage, err := badger.NewManager(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })

	h := &harness{
		storage:   storage,
		session:   &fakeSession{authenticated: true},
		publisher: &fakePublisher{outcomes: map[string]func() models.ListingResult{}},
	}
	factory := func() interfaces.BrowserSession {
		h.factoryN++
		return h.session
	}
	if opts.MaxArticlesPerRun == 0 {
		opts.MaxArticlesPerRun = 10
	}
	accounts := staticAccounts{account: &models.Account{UserID: "u1", Email: "me@example.com", Password: "pw"}}
	h.processor = NewProcessor(opts, storage, accounts, factory, h.publisher, nil, logger)
	return h
}

func (h *harness) addArticle(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, h.storage.ArticleStore().SaveArticle(context.Background(), &models.Article{
		ID:        id,
		UserID:    "u1",
		Title:     "Article " + id,
		Condition: models.ConditionGood,
		Price:     15,
		Photos:    []string{"https://cdn.example.com/" + id + ".jpg"},
		Status:    models.ArticleStatusScheduled,
	}))
}

func (h *harness) addJob(t *testing.T, articleID string, runAt time.Time) *models.PublicationJob {
	t.Helper()
	h.addArticle(t, articleID)
	job := models.NewPublicationJob(articleID, runAt)
	require.NoError(t, h.storage.JobQueue().Enqueue(context.Background(), job))
	return job
}

func (h *harness) job(t *testing.T, id string) *models.PublicationJob {
	t.Helper()
	job, err := h.storage.JobQueue().GetJob(context.Background(), id)
	require.NoError(t, err)
	return job
}

func (h *harness) article(t *testing.T, id string) *models.Article {
	t.Helper()
	article, err := h.storage.ArticleStore().GetArticle(context.Background(), id)
	require.NoError(t, err)
	return article
}

func TestRunBatch_PanicInOneJobDoesNotStopTheBatch(t *testing.T) {
	h := newHarness(t, Options{RevertOnFailure: true})
	now := time.Now().UTC()
	j1 := h.addJob(t, "a1", now.Add(-3*time.Minute))
	j2 := h.addJob(t, "a2", now.Add(-2*time.Minute))
	j3 := h.addJob(t, "a3", now.Add(-1*time.Minute))
	h.publisher.outcomes["a2"] = func() models.ListingResult { panic("page crashed") }

	report, err := h.processor.RunBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Processed)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Failed)

	assert.Equal(t, models.JobStatusSuccess, h.job(t, j1.ID).Status)
	assert.Equal(t, models.JobStatusSuccess, h.job(t, j3.ID).Status)
	failed := h.job(t, j2.ID)
	assert.Equal(t, models.JobStatusFailed, failed.Status)
	assert.Contains(t, *failed.ErrorMessage, "page crashed")

	running, err := h.storage.JobQueue().ListJobs(context.Background(), &interfaces.JobListOptions{Status: models.JobStatusRunning})
	require.NoError(t, err)
	assert.Empty(t, running)
	assert.Equal(t, 1, h.session.closed)
}

func TestRunBatch_RerunProcessesNothing(t *testing.T) {
	h := newHarness(t, Options{})
	h.addJob(t, "a1", time.Time{})
	h.publisher.outcomes["a1"] = func() models.ListingResult {
		return models.ListingResult{Error: "submit timeout"}
	}

	first, err := h.processor.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Processed)

	second, err := h.processor.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Due)
	assert.Equal(t, 0, second.Processed)
	assert.Equal(t, 1, h.factoryN, "no browser is started when nothing is due")
	assert.Len(t, h.publisher.calls, 1)
}

func TestRunBatch_SubmitsInRunAtOrder(t *testing.T) {
	h := newHarness(t, Options{})
	now := time.Now().UTC()
	h.addJob(t, "t3", now.Add(-1*time.Minute))
	h.addJob(t, "t1", now.Add(-3*time.Minute))
	h.addJob(t, "t2", now.Add(-2*time.Minute))

	_, err := h.processor.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2", "t3"}, h.publisher.calls)
}

func TestRunBatch_RespectsMaxArticlesPerRun(t *testing.T) {
	h := newHarness(t, Options{MaxArticlesPerRun: 2})
	now := time.Now().UTC()
	h.addJob(t, "a1", now.Add(-3*time.Minute))
	h.addJob(t, "a2", now.Add(-2*time.Minute))
	late := h.addJob(t, "a3", now.Add(-1*time.Minute))

	report, err := h.processor.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, models.JobStatusPending, h.job(t, late.ID).Status)
}

func TestRunBatch_InitializeFailureLeavesJobsPending(t *testing.T) {
	h := newHarness(t, Options{})
	j1 := h.addJob(t, "a1", time.Time{})
	j2 := h.addJob(t, "a2", time.Time{})
	h.session.initErr = errors.New("chrome not found")

	_, err := h.processor.RunBatch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chrome not found")

	assert.Equal(t, models.JobStatusPending, h.job(t, j1.ID).Status)
	assert.Equal(t, models.JobStatusPending, h.job(t, j2.ID).Status)
	assert.Equal(t, 1, h.session.closed)
	assert.Empty(t, h.publisher.calls)
}

func TestRunBatch_LoginFailureIsBatchFatal(t *testing.T) {
	h := newHarness(t, Options{})
	job := h.addJob(t, "a1", time.Time{})
	h.session.authenticated = false
	h.session.loginErr = models.ErrAuthentication

	_, err := h.processor.RunBatch(context.Background())
	assert.ErrorIs(t, err, models.ErrAuthentication)
	assert.Equal(t, models.JobStatusPending, h.job(t, job.ID).Status)
	assert.Equal(t, 1, h.session.loginCalls)
	assert.Equal(t, 1, h.session.closed)
}

func TestRunBatch_ValidSessionSkipsLogin(t *testing.T) {
	h := newHarness(t, Options{})
	h.addJob(t, "a1", time.Time{})

	_, err := h.processor.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, h.session.loginCalls)
}

func TestRunBatch_MissingCredentialsTouchesNothing(t *testing.T) {
	h := newHarness(t, Options{})
	job := h.addJob(t, "a1", time.Time{})
	h.processor.accounts = staticAccounts{err: models.ErrMissingCredentials}

	_, err := h.processor.RunBatch(context.Background())
	assert.ErrorIs(t, err, models.ErrMissingCredentials)
	assert.Equal(t, 0, h.factoryN)
	assert.Equal(t, models.JobStatusPending, h.job(t, job.ID).Status)
}

func TestRunBatch_EndToEnd(t *testing.T) {
	h := newHarness(t, Options{RevertOnFailure: true})
	now := time.Now().UTC()
	a := h.addJob(t, "A", now.Add(-2*time.Second))
	b := h.addJob(t, "B", now.Add(-time.Second))
	c := h.addJob(t, "C", now.Add(time.Hour))

	h.publisher.outcomes["A"] = func() models.ListingResult {
		return models.ListingResult{Success: true, VintedURL: "https://www.vinted.fr/items/111"}
	}
	h.publisher.outcomes["B"] = func() models.ListingResult {
		return models.ListingResult{Error: "listing was not published within 1m0s"}
	}

	report, err := h.processor.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, h.publisher.calls)
	assert.Equal(t, 2, report.Processed)

	jobA := h.job(t, a.ID)
	assert.Equal(t, models.JobStatusSuccess, jobA.Status)
	assert.Equal(t, "https://www.vinted.fr/items/111", *jobA.VintedURL)
	articleA := h.article(t, "A")
	assert.Equal(t, models.ArticleStatusPublished, articleA.Status)
	assert.Equal(t, "https://www.vinted.fr/items/111", *articleA.VintedURL)
	assert.NotNil(t, articleA.PublishedAt)

	jobB := h.job(t, b.ID)
	assert.Equal(t, models.JobStatusFailed, jobB.Status)
	assert.Equal(t, "listing was not published within 1m0s", *jobB.ErrorMessage)
	articleB := h.article(t, "B")
	assert.Equal(t, models.ArticleStatusDraft, articleB.Status)
	assert.Equal(t, "listing was not published within 1m0s", *articleB.ErrorMessage)
	assert.Nil(t, articleB.VintedURL)

	assert.Equal(t, models.JobStatusPending, h.job(t, c.ID).Status)
	assert.Equal(t, models.ArticleStatusScheduled, h.article(t, "C").Status)
}

func TestRunBatch_KeepStatusPolicy(t *testing.T) {
	h := newHarness(t, Options{RevertOnFailure: false})
	h.addJob(t, "a1", time.Time{})
	h.publisher.outcomes["a1"] = func() models.ListingResult {
		return models.ListingResult{Error: "boom"}
	}

	_, err := h.processor.RunBatch(context.Background())
	require.NoError(t, err)

	article := h.article(t, "a1")
	assert.Equal(t, models.ArticleStatusScheduled, article.Status)
	assert.Equal(t, "boom", *article.ErrorMessage)
}

func TestRunBatch_MissingArticleFailsOnlyThatJob(t *testing.T) {
	h := newHarness(t, Options{})
	orphan := models.NewPublicationJob("ghost", time.Now().Add(-time.Minute))
	require.NoError(t, h.storage.JobQueue().Enqueue(context.Background(), orphan))
	ok := h.addJob(t, "a1", time.Time{})

	report, err := h.processor.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Succeeded)

	failed := h.job(t, orphan.ID)
	assert.Equal(t, models.JobStatusFailed, failed.Status)
	assert.Contains(t, *failed.ErrorMessage, "article not found")
	assert.Equal(t, models.JobStatusSuccess, h.job(t, ok.ID).Status)
}

func TestRunBatch_RejectsConcurrentRun(t *testing.T) {
	h := newHarness(t, Options{})
	h.processor.running.Lock()
	defer h.processor.running.Unlock()

	_, err := h.processor.RunBatch(context.Background())
	assert.ErrorIs(t, err, models.ErrBatchRunning)
}

func TestRunBatch_SkipsJobClaimedElsewhere(t *testing.T) {
	h := newHarness(t, Options{})
	job := h.addJob(t, "a1", time.Time{})

	// another worker claims between ListDue and Claim
	due, err := h.storage.JobQueue().ListDue(context.Background(), time.Now().UTC(), 10)
	require.NoError(t, err)
	_, err = h.storage.JobQueue().Claim(context.Background(), job.ID, "other")
	require.NoError(t, err)

	report, err := h.processor.run(context.Background(), &models.Account{Email: "e", Password: "p"}, due)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Empty(t, h.publisher.calls)
}

func TestPublishOne(t *testing.T) {
	h := newHarness(t, Options{})
	h.addArticle(t, "solo")

	job, report, err := h.processor.PublishOne(context.Background(), "solo")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, models.JobStatusSuccess, job.Status)
	assert.Equal(t, "https://www.vinted.fr/items/solo", *job.VintedURL)

	_, _, err = h.processor.PublishOne(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrArticleNotFound)
}

func TestRunBatch_ThrottlesBetweenPosts(t *testing.T) {
	h := newHarness(t, Options{PostDelay: 150 * time.Millisecond})
	now := time.Now().UTC()
	h.addJob(t, "a1", now.Add(-2*time.Minute))
	h.addJob(t, "a2", now.Add(-time.Minute))

	start := time.Now()
	report, err := h.processor.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Succeeded)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestOptionsFromConfig(t *testing.T) {
	config := common.NewDefaultConfig()
	config.Worker.PostDelay = "2s"
	config.Worker.FailurePolicy = common.FailurePolicyKeepStatus

	opts := OptionsFromConfig(config)
	assert.Equal(t, 2*time.Second, opts.PostDelay)
	assert.False(t, opts.RevertOnFailure)
	assert.Equal(t, config.Worker.MaxArticlesPerRun, opts.MaxArticlesPerRun)
	assert.NotEmpty(t, opts.WorkerID)

	config.Worker.FailurePolicy = common.FailurePolicyRevertToDraft
	assert.True(t, OptionsFromConfig(config).RevertOnFailure)
}

func TestIsRunning(t *testing.T) {
	h := newHarness(t, Options{})
	h.addJob(t, "a1", time.Time{})
	assert.False(t, h.processor.IsRunning())

	release := make(chan struct{})
	started := make(chan struct{})
	h.publisher.outcomes["a1"] = func() models.ListingResult {
		close(started)
		<-release
		return models.ListingResult{Success: true, VintedURL: "https://www.vinted.fr/items/1"}
	}

	done := make(chan error, 1)
	go func() {
		_, err := h.processor.RunBatch(context.Background())
		done <- err
	}()

	<-started
	assert.True(t, h.processor.IsRunning())
	close(release)
	require.NoError(t, <-done)
	assert.False(t, h.processor.IsRunning())
}

func TestIsRunning_PollingNeverBlocksARun(t *testing.T) {
	h := newHarness(t, Options{})

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					h.processor.IsRunning()
				}
			}
		}()
	}

	for i := 0; i < 200; i++ {
		_, err := h.processor.RunBatch(context.Background())
		if !assert.NoError(t, err, "run %d", i) {
			break
		}
	}
	close(stop)
	wg.Wait()
}

// flakyQueue injects store errors into the terminal status writes
type flakyQueue struct {
	interfaces.JobQueue

	mu       sync.Mutex
	failures int  // injected errors left; negative never recovers
	land     bool // apply the write before reporting the error
	calls    int
}

func (q *flakyQueue) inject(write func() error) error {
	q.mu.Lock()
	q.calls++
	inject := q.failures != 0
	if q.failures > 0 {
		q.failures--
	}
	q.mu.Unlock()

	if !inject {
		return write()
	}
	if q.land {
		if err := write(); err != nil {
			return err
		}
	}
	return errors.New("connection reset by peer")
}

func (q *flakyQueue) Fail(ctx context.Context, id string, message string) error {
	return q.inject(func() error { return q.JobQueue.Fail(ctx, id, message) })
}

func (q *flakyQueue) Complete(ctx context.Context, id string, vintedURL string) error {
	return q.inject(func() error { return q.JobQueue.Complete(ctx, id, vintedURL) })
}

func (q *flakyQueue) callCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.calls
}

func TestRunBatch_RetriesFailedStatusWrite(t *testing.T) {
	h := newHarness(t, Options{PersistBackoff: time.Millisecond})
	queue := &flakyQueue{JobQueue: h.storage.JobQueue(), failures: 1}
	h.processor.jobs = queue

	job := h.addJob(t, "a1", time.Time{})
	h.publisher.outcomes["a1"] = func() models.ListingResult {
		return models.ListingResult{Error: "photo upload timed out"}
	}

	report, err := h.processor.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 0, report.Unpersisted)
	assert.Equal(t, 2, queue.callCount())

	saved := h.job(t, job.ID)
	assert.Equal(t, models.JobStatusFailed, saved.Status)
	assert.Equal(t, "photo upload timed out", *saved.ErrorMessage)
}

func TestRunBatch_UnsavedStatusIsReportedSeparately(t *testing.T) {
	h := newHarness(t, Options{PersistAttempts: 3, PersistBackoff: time.Millisecond})
	queue := &flakyQueue{JobQueue: h.storage.JobQueue(), failures: -1}
	h.processor.jobs = queue

	job := h.addJob(t, "a1", time.Time{})

	report, err := h.processor.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Unpersisted)
	assert.Equal(t, 0, report.Succeeded)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, 0, report.Processed)
	assert.Equal(t, 3, queue.callCount())

	assert.Equal(t, models.JobStatusRunning, h.job(t, job.ID).Status)
	assert.Equal(t, models.ArticleStatusPublished, h.article(t, "a1").Status)
}

func TestRunBatch_StatusWriteThatLandedCountsOnce(t *testing.T) {
	h := newHarness(t, Options{PersistBackoff: time.Millisecond})
	queue := &flakyQueue{JobQueue: h.storage.JobQueue(), failures: 1, land: true}
	h.processor.jobs = queue

	job := h.addJob(t, "a1", time.Time{})

	report, err := h.processor.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 0, report.Unpersisted)
	assert.Equal(t, models.JobStatusSuccess, h.job(t, job.ID).Status)
}

func TestRunBatch_SkippedJobDoesNotUseAThrottleSlot(t *testing.T) {
	h := newHarness(t, Options{PostDelay: 300 * time.Millisecond})
	now := time.Now().UTC()
	taken := h.addJob(t, "a1", now.Add(-3*time.Minute))
	h.addJob(t, "a2", now.Add(-2*time.Minute))
	h.addJob(t, "a3", now.Add(-time.Minute))

	due, err := h.storage.JobQueue().ListDue(context.Background(), now, 10)
	require.NoError(t, err)
	_, err = h.storage.JobQueue().Claim(context.Background(), taken.ID, "other")
	require.NoError(t, err)

	start := time.Now()
	report, err := h.processor.run(context.Background(), &models.Account{Email: "e", Password: "p"}, due)
	elapsed := time.Since(start)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, []string{"a2", "a3"}, h.publisher.calls)
	// one gap between the two attempts, none for the skipped job
	assert.GreaterOrEqual(t, elapsed, 250*time.Millisecond)
	assert.Less(t, elapsed, 550*time.Millisecond)
}

func TestRunBatch_CancelDuringThrottleLeavesJobPending(t *testing.T) {
	h := newHarness(t, Options{PostDelay: time.Hour})
	now := time.Now().UTC()
	h.addJob(t, "a1", now.Add(-2*time.Minute))
	second := h.addJob(t, "a2", now.Add(-time.Minute))

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	report, err := h.processor.RunBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, models.JobStatusPending, h.job(t, second.ID).Status)
}
