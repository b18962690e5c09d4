package booking

import (
	"context"
	"testing"
	"time"
)

func boolPtr(v bool) *bool { return &v }

func TestStore_TranslatorCannotCreate(t *testing.T) {
	svc, _ := testService(newFakeRepo(), newFakeUsers(), &fakeNotifier{})

	result, err := svc.Store(context.Background(), translatorProfile(), CreateParams{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.OK() || result.Message != "Translator cannot create a booking" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestStore_ValidationFieldOrder(t *testing.T) {
	svc, _ := testService(newFakeRepo(), newFakeUsers(), &fakeNotifier{})
	actor := customerProfile()

	cases := []struct {
		name      string
		params    CreateParams
		wantField string
		wantMsg   string
	}{
		{
			name:      "missing language",
			params:    CreateParams{},
			wantField: "from_language_id",
			wantMsg:   "Du måste fylla in alla fält",
		},
		{
			name:      "missing duration",
			params:    CreateParams{LanguageID: 3},
			wantField: "duration",
			wantMsg:   "Du måste fylla in alla fält",
		},
		{
			name:      "missing due date",
			params:    CreateParams{LanguageID: 3, Duration: 30},
			wantField: "due_date",
			wantMsg:   "Du måste fylla in alla fält",
		},
		{
			name:      "missing due time",
			params:    CreateParams{LanguageID: 3, Duration: 30, DueDate: "06/12/2024"},
			wantField: "due_time",
			wantMsg:   "Du måste fylla in alla fält",
		},
		{
			name:      "missing phone choice",
			params:    CreateParams{LanguageID: 3, Duration: 30, DueDate: "06/12/2024", DueTime: "14:00"},
			wantField: "customer_phone_type",
			wantMsg:   "Du måste göra ett val här",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := svc.Store(context.Background(), actor, tc.params)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.OK() {
				t.Fatalf("expected fail result, got %+v", result)
			}
			if result.FieldName != tc.wantField || result.Message != tc.wantMsg {
				t.Fatalf("got field %q message %q, want %q %q",
					result.FieldName, result.Message, tc.wantField, tc.wantMsg)
			}
		})
	}
}

func TestStore_RejectsPastDue(t *testing.T) {
	svc, _ := testService(newFakeRepo(), newFakeUsers(), &fakeNotifier{})

	result, err := svc.Store(context.Background(), customerProfile(), CreateParams{
		LanguageID: 3,
		Duration:   30,
		DueDate:    "06/09/2024",
		DueTime:    "14:00",
		PhoneType:  boolPtr(true),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.OK() || result.Message != "Can't create booking in the past" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestStore_ScheduledBooking(t *testing.T) {
	repo := newFakeRepo()
	outboxSvc, pool := testService(repo, newFakeUsers(), &fakeNotifier{})

	result, err := outboxSvc.Store(context.Background(), customerProfile(), CreateParams{
		LanguageID: 3,
		Duration:   30,
		DueDate:    "06/12/2024",
		DueTime:    "14:00",
		PhoneType:  boolPtr(true),
		JobFor:     []string{"female", "normal", "certified"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.OK() {
		t.Fatalf("expected success, got %+v", result)
	}
	if !pool.committed() {
		t.Fatal("expected transaction to commit")
	}

	job, ok := repo.jobs["job-1"]
	if !ok {
		t.Fatalf("job not persisted: %+v", repo.jobs)
	}
	if job.Status != StatusPending {
		t.Fatalf("expected pending, got %s", job.Status)
	}
	if job.Gender == nil || *job.Gender != "female" {
		t.Fatalf("expected gender female, got %v", job.Gender)
	}
	if job.Certified != CertifiedBoth {
		t.Fatalf("expected certified 'both', got %q", job.Certified)
	}
	if job.JobType != JobTypePaid {
		t.Fatalf("expected paid job type, got %q", job.JobType)
	}
	wantDue := time.Date(2024, 6, 12, 14, 0, 0, 0, time.UTC)
	if !job.Due.Equal(wantDue) {
		t.Fatalf("expected due %v, got %v", wantDue, job.Due)
	}
	if !job.WillExpireAt.Equal(WillExpireAt(wantDue, testNow)) {
		t.Fatalf("unexpected expiry %v", job.WillExpireAt)
	}
	if job.Town != "Stockholm" {
		t.Fatalf("expected customer's town, got %q", job.Town)
	}

	if result.Payload["type"] != "regular" {
		t.Fatalf("expected regular type, got %v", result.Payload["type"])
	}
}

func TestStore_ImmediateForcesPhone(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := testService(repo, newFakeUsers(), &fakeNotifier{})

	result, err := svc.Store(context.Background(), customerProfile(), CreateParams{
		LanguageID: 3,
		Duration:   60,
		Immediate:  true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.OK() || result.Payload["type"] != "immediate" {
		t.Fatalf("unexpected result: %+v", result)
	}

	job := repo.jobs["job-1"]
	if !job.CustomerPhoneType {
		t.Fatal("expected immediate booking to force phone type")
	}
	if !job.Due.Equal(testNow.Add(5 * time.Minute)) {
		t.Fatalf("expected due 5 minutes out, got %v", job.Due)
	}
	if !job.WillExpireAt.Equal(job.Due) {
		t.Fatalf("expected immediate booking to expire at due, got %v", job.WillExpireAt)
	}
}

func TestStore_EnqueuesCreatedEvent(t *testing.T) {
	repo := newFakeRepo()
	pool := &fakePool{}
	outbox := &fakeOutbox{}
	svc := NewService(pool, repo, newFakeUsers(), &fakeNotifier{}, outbox, discardLogger()).
		WithClock(func() time.Time { return testNow }).
		WithIDGenerator(sequenceIDs("job"))

	if _, err := svc.Store(context.Background(), customerProfile(), CreateParams{
		LanguageID: 3, Duration: 30, Immediate: true,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(outbox.entries) != 1 || outbox.entries[0].topic != TopicJobCreated {
		t.Fatalf("unexpected outbox entries: %+v", outbox.entries)
	}
	if outbox.entries[0].payload["job_id"] != "job-1" {
		t.Fatalf("unexpected payload: %+v", outbox.entries[0].payload)
	}
}

func TestCertifiedFromJobFor(t *testing.T) {
	cases := []struct {
		jobFor []string
		want   Certified
	}{
		{[]string{"normal", "certified"}, CertifiedBoth},
		{[]string{"normal", "certified_in_law"}, CertifiedNLaw},
		{[]string{"normal", "certified_in_helth"}, CertifiedNHealth},
		{[]string{"certified"}, CertifiedYes},
		{[]string{"certified_in_law"}, CertifiedLaw},
		{[]string{"certified_in_helth"}, CertifiedHealth},
		{[]string{"normal"}, CertifiedNormal},
		{[]string{"male"}, CertifiedNormal},
		{nil, CertifiedNormal},
	}
	for _, tc := range cases {
		if got := certifiedFromJobFor(tc.jobFor); got != tc.want {
			t.Errorf("certifiedFromJobFor(%v) = %q, want %q", tc.jobFor, got, tc.want)
		}
	}
}

func TestAttachEmail(t *testing.T) {
	job := pendingJob()
	repo := newFakeRepo(job)
	notifier := &fakeNotifier{}
	svc, _ := testService(repo, newFakeUsers(customerProfile()), notifier)

	result, err := svc.AttachEmail(context.Background(), AttachEmailParams{
		JobID:     job.ID,
		UserEmail: "faktura@example.se",
		Reference: "ref-77",
		Address:   "Storgatan 1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.OK() {
		t.Fatalf("expected success, got %+v", result)
	}

	saved := repo.jobs[job.ID]
	if saved.UserEmail != "faktura@example.se" || saved.Reference != "ref-77" || saved.Address != "Storgatan 1" {
		t.Fatalf("details not stored: %+v", saved)
	}
	// Empty town falls back to the requester's city.
	if saved.Town != "Stockholm" {
		t.Fatalf("expected town fallback, got %q", saved.Town)
	}

	if !notifier.called("JobCreatedConfirmation") || !notifier.called("BroadcastJob") {
		t.Fatalf("expected confirmation + broadcast, got %v", notifier.calls)
	}
}

func TestAttachEmail_UnknownJob(t *testing.T) {
	svc, _ := testService(newFakeRepo(), newFakeUsers(), &fakeNotifier{})

	if _, err := svc.AttachEmail(context.Background(), AttachEmailParams{JobID: "missing"}); err == nil {
		t.Fatal("expected error for unknown job")
	}
}
