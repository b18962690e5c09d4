package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"tolkflow/user"
)

var testNow = time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC)

func testService(repo *fakeRepo, users *fakeUsers, notifier *fakeNotifier) (*Service, *fakePool) {
	pool := &fakePool{}
	outbox := &fakeOutbox{}
	svc := NewService(pool, repo, users, notifier, outbox, discardLogger()).
		WithClock(func() time.Time { return testNow }).
		WithIDGenerator(sequenceIDs("job"))
	return svc, pool
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(nopWriter{}, nil))
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func sequenceIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func pendingJob() Job {
	return Job{
		ID:           "job-0",
		UserID:       "cust-1",
		LanguageID:   3,
		Due:          testNow.Add(48 * time.Hour),
		Duration:     30,
		Status:       StatusPending,
		JobType:      JobTypePaid,
		CreatedAt:    testNow.Add(-time.Hour),
		WillExpireAt: testNow.Add(24 * time.Hour),
	}
}

func customerProfile() user.Profile {
	return user.Profile{
		ID:           "cust-1",
		Email:        "kund@example.se",
		Name:         "Kund Kundsson",
		Role:         user.RoleCustomer,
		City:         "Stockholm",
		ConsumerType: "paid",
		CustomerType: "company",
	}
}

func translatorProfile() user.Profile {
	return user.Profile{
		ID:    "tr-1",
		Email: "tolk@example.se",
		Name:  "Tolk Tolksson",
		Role:  user.RoleTranslator,
	}
}

type fakeRepo struct {
	jobs        map[string]Job
	assignments map[string]Assignment

	overlap      bool
	getErr       error
	createErr    error
	updateErr    error
	assignErr    error
	nextAssignID int

	deletedAssignments   []string
	cancelledAssignments []string
	completedAssignments []string
	completedBy          []string
}

func newFakeRepo(jobs ...Job) *fakeRepo {
	r := &fakeRepo{
		jobs:        make(map[string]Job),
		assignments: make(map[string]Assignment),
	}
	for _, j := range jobs {
		r.jobs[j.ID] = j
	}
	return r
}

func (r *fakeRepo) assign(jobID, userID string) Assignment {
	r.nextAssignID++
	a := Assignment{
		ID:        fmt.Sprintf("as-%d", r.nextAssignID),
		JobID:     jobID,
		UserID:    userID,
		CreatedAt: testNow.Add(-time.Hour),
	}
	r.assignments[a.ID] = a
	return a
}

func (r *fakeRepo) GetByID(_ context.Context, id string) (Job, error) {
	if r.getErr != nil {
		return Job{}, r.getErr
	}
	j, ok := r.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return j, nil
}

func (r *fakeRepo) GetForUpdate(ctx context.Context, _ pgx.Tx, id string) (Job, error) {
	return r.GetByID(ctx, id)
}

func (r *fakeRepo) Create(_ context.Context, _ pgx.Tx, job Job) (Job, error) {
	if r.createErr != nil {
		return Job{}, r.createErr
	}
	r.jobs[job.ID] = job
	return job, nil
}

func (r *fakeRepo) Update(_ context.Context, _ pgx.Tx, job Job) (Job, error) {
	if r.updateErr != nil {
		return Job{}, r.updateErr
	}
	if _, ok := r.jobs[job.ID]; !ok {
		return Job{}, ErrJobNotFound
	}
	r.jobs[job.ID] = job
	return job, nil
}

func (r *fakeRepo) CurrentAssignment(_ context.Context, jobID string) (Assignment, error) {
	for _, a := range r.assignments {
		if a.JobID == jobID && a.Active() {
			return a, nil
		}
	}
	return Assignment{}, ErrNoAssignment
}

func (r *fakeRepo) LatestCompletedAssignment(_ context.Context, jobID string) (Assignment, error) {
	for _, a := range r.assignments {
		if a.JobID == jobID && a.CompletedAt != nil {
			return a, nil
		}
	}
	return Assignment{}, ErrNoAssignment
}

func (r *fakeRepo) CreateAssignment(_ context.Context, _ pgx.Tx, jobID, userID string) (Assignment, error) {
	if r.assignErr != nil {
		return Assignment{}, r.assignErr
	}
	return r.assign(jobID, userID), nil
}

func (r *fakeRepo) CancelAssignment(_ context.Context, _ pgx.Tx, assignmentID string, at time.Time) error {
	a, ok := r.assignments[assignmentID]
	if !ok {
		return ErrNoAssignment
	}
	a.CancelAt = &at
	r.assignments[assignmentID] = a
	r.cancelledAssignments = append(r.cancelledAssignments, assignmentID)
	return nil
}

func (r *fakeRepo) CompleteAssignment(_ context.Context, _ pgx.Tx, assignmentID string, at time.Time, by string) error {
	a, ok := r.assignments[assignmentID]
	if !ok {
		return ErrNoAssignment
	}
	a.CompletedAt = &at
	a.CompletedBy = &by
	r.assignments[assignmentID] = a
	r.completedAssignments = append(r.completedAssignments, assignmentID)
	r.completedBy = append(r.completedBy, by)
	return nil
}

func (r *fakeRepo) DeleteAssignment(_ context.Context, _ pgx.Tx, jobID, userID string) error {
	for id, a := range r.assignments {
		if a.JobID == jobID && a.UserID == userID {
			delete(r.assignments, id)
			r.deletedAssignments = append(r.deletedAssignments, id)
			return nil
		}
	}
	return nil
}

func (r *fakeRepo) HasOverlappingBooking(_ context.Context, _ string, _ time.Time, _ int) (bool, error) {
	return r.overlap, nil
}

type fakeUsers struct {
	profiles  map[string]user.Profile
	languages map[int64]string
}

func newFakeUsers(profiles ...user.Profile) *fakeUsers {
	u := &fakeUsers{
		profiles:  make(map[string]user.Profile),
		languages: map[int64]string{3: "arabiska", 7: "franska"},
	}
	for _, p := range profiles {
		u.profiles[p.ID] = p
	}
	return u
}

func (u *fakeUsers) GetByID(_ context.Context, id string) (user.Profile, error) {
	p, ok := u.profiles[id]
	if !ok {
		return user.Profile{}, user.ErrNotFound
	}
	return p, nil
}

func (u *fakeUsers) GetByEmail(_ context.Context, email string) (user.Profile, error) {
	for _, p := range u.profiles {
		if p.Email == email {
			return p, nil
		}
	}
	return user.Profile{}, user.ErrNotFound
}

func (u *fakeUsers) LanguageName(_ context.Context, langID int64) (string, error) {
	name, ok := u.languages[langID]
	if !ok {
		return "", user.ErrLanguageNotFound
	}
	return name, nil
}

// fakeNotifier records which notifications fired, by name.
type fakeNotifier struct {
	calls    []string
	smsCount int

	broadcastExclude    []string
	acceptedJobs        []string
	sessionTimes        []string
	reminderUsers       []string
	assignedTranslators []string
}

func (n *fakeNotifier) record(name string) { n.calls = append(n.calls, name) }

func (n *fakeNotifier) called(name string) bool { return slices.Contains(n.calls, name) }

func (n *fakeNotifier) BroadcastJob(_ context.Context, _ Job, excludeUserID string) {
	n.record("BroadcastJob")
	n.broadcastExclude = append(n.broadcastExclude, excludeUserID)
}

func (n *fakeNotifier) BroadcastSMS(_ context.Context, _ Job) int {
	n.record("BroadcastSMS")
	return n.smsCount
}

func (n *fakeNotifier) JobAccepted(_ context.Context, job Job) {
	n.record("JobAccepted")
	n.acceptedJobs = append(n.acceptedJobs, job.ID)
}

func (n *fakeNotifier) JobReopened(_ context.Context, _ Job) { n.record("JobReopened") }

func (n *fakeNotifier) BookingCancelledFromPending(_ context.Context, _ Job) {
	n.record("BookingCancelledFromPending")
}

func (n *fakeNotifier) SessionEnded(_ context.Context, _ Job, _ string, sessionTime string) {
	n.record("SessionEnded")
	n.sessionTimes = append(n.sessionTimes, sessionTime)
}

func (n *fakeNotifier) WithdrawCancellation(_ context.Context, _ Job, _ string) {
	n.record("WithdrawCancellation")
}

func (n *fakeNotifier) CustomerCancelled(_ context.Context, _ Job, _ string) {
	n.record("CustomerCancelled")
}

func (n *fakeNotifier) TranslatorCancelled(_ context.Context, _ Job) {
	n.record("TranslatorCancelled")
}

func (n *fakeNotifier) DateChanged(_ context.Context, _ Job, _ string, _ time.Time) {
	n.record("DateChanged")
}

func (n *fakeNotifier) TranslatorChanged(_ context.Context, _ Job, _, _ string) {
	n.record("TranslatorChanged")
}

func (n *fakeNotifier) LanguageChanged(_ context.Context, _ Job, _ string, _ int64) {
	n.record("LanguageChanged")
}

func (n *fakeNotifier) TranslatorAssigned(_ context.Context, _ Job, translatorID string) {
	n.record("TranslatorAssigned")
	n.assignedTranslators = append(n.assignedTranslators, translatorID)
}

func (n *fakeNotifier) SessionStartReminder(_ context.Context, _ Job, userID string) {
	n.record("SessionStartReminder")
	n.reminderUsers = append(n.reminderUsers, userID)
}

func (n *fakeNotifier) JobCreatedConfirmation(_ context.Context, _ Job) {
	n.record("JobCreatedConfirmation")
}

type outboxEntry struct {
	topic   string
	payload map[string]any
}

type fakeOutbox struct {
	entries []outboxEntry
}

func (o *fakeOutbox) Enqueue(_ context.Context, _ pgx.Tx, topic string, payload map[string]any) error {
	o.entries = append(o.entries, outboxEntry{topic: topic, payload: payload})
	return nil
}

func (o *fakeOutbox) topics() []string {
	out := make([]string, 0, len(o.entries))
	for _, e := range o.entries {
		out = append(out, e.topic)
	}
	return out
}

type fakePool struct {
	txs      []*fakeTx
	beginErr error
}

func (f *fakePool) Begin(context.Context) (pgx.Tx, error) {
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	tx := &fakeTx{}
	f.txs = append(f.txs, tx)
	return tx, nil
}

func (f *fakePool) committed() bool {
	for _, tx := range f.txs {
		if tx.committed {
			return true
		}
	}
	return false
}

type fakeTx struct {
	rolled    bool
	committed bool
}

func (f *fakeTx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("fakeTx does not support nested transactions")
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	f.rolled = true
	return nil
}

func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}

func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}

func (f *fakeTx) LargeObjects() pgx.LargeObjects {
	panic("not implemented")
}

func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}

func (f *fakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}

func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

func (f *fakeTx) Conn() *pgx.Conn {
	return nil
}

func TestService_GetPassthrough(t *testing.T) {
	repo := newFakeRepo(pendingJob())
	svc, _ := testService(repo, newFakeUsers(), &fakeNotifier{})

	job, err := svc.Get(context.Background(), "job-0")
	if err != nil {
		t.Fatalf("expected job, got error %v", err)
	}
	if job.ID != "job-0" {
		t.Fatalf("unexpected job: %+v", job)
	}

	if _, err := svc.Get(context.Background(), "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}
