package booking

import (
	"context"
	"slices"
	"testing"
	"time"

	"tolkflow/user"
)

func adminProfile() user.Profile {
	return user.Profile{ID: "adm-1", Role: user.RoleAdmin}
}

func TestUpdate_Reschedule(t *testing.T) {
	job := pendingJob()
	repo := newFakeRepo(job)
	notifier := &fakeNotifier{}
	svc, _ := testService(repo, newFakeUsers(), notifier)

	newDue := testNow.Add(96 * time.Hour)
	result, err := svc.Update(context.Background(), adminProfile(), job.ID, UpdateParams{Due: newDue})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.OK() || result.Message != "Updated" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if !repo.jobs[job.ID].Due.Equal(newDue) {
		t.Fatalf("due not updated: %v", repo.jobs[job.ID].Due)
	}
	if !notifier.called("DateChanged") {
		t.Fatalf("expected date-change notice, got %v", notifier.calls)
	}
}

func TestUpdate_AssignTranslatorByEmail(t *testing.T) {
	job := pendingJob()
	repo := newFakeRepo(job)
	notifier := &fakeNotifier{}
	svc, _ := testService(repo, newFakeUsers(translatorProfile()), notifier)

	result, err := svc.Update(context.Background(), adminProfile(), job.ID, UpdateParams{
		Status:          StatusAssigned,
		TranslatorEmail: "tolk@example.se",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.OK() {
		t.Fatalf("expected success, got %+v", result)
	}

	if repo.jobs[job.ID].Status != StatusAssigned {
		t.Fatalf("expected assigned, got %s", repo.jobs[job.ID].Status)
	}
	a, err := repo.CurrentAssignment(context.Background(), job.ID)
	if err != nil || a.UserID != "tr-1" {
		t.Fatalf("expected assignment for tr-1, got %+v err %v", a, err)
	}

	if !notifier.called("JobAccepted") || !notifier.called("TranslatorAssigned") {
		t.Fatalf("expected acceptance notices to both parties, got %v", notifier.calls)
	}
	if len(notifier.assignedTranslators) != 1 || notifier.assignedTranslators[0] != "tr-1" {
		t.Fatalf("expected assignment mail to tr-1, got %v", notifier.assignedTranslators)
	}
	// Both the customer and the new translator get the start reminder.
	if !slices.Contains(notifier.reminderUsers, "cust-1") || !slices.Contains(notifier.reminderUsers, "tr-1") {
		t.Fatalf("expected reminders for cust-1 and tr-1, got %v", notifier.reminderUsers)
	}
	if !notifier.called("TranslatorChanged") {
		t.Fatalf("expected translator-change notice, got %v", notifier.calls)
	}
}

func TestUpdate_ReplaceTranslatorCancelsOldAssignment(t *testing.T) {
	job := pendingJob()
	job.Status = StatusAssigned
	repo := newFakeRepo(job)
	old := repo.assign(job.ID, "tr-1")
	notifier := &fakeNotifier{}
	users := newFakeUsers(translatorProfile())
	users.profiles["tr-2"] = user.Profile{ID: "tr-2", Role: user.RoleTranslator}
	svc, _ := testService(repo, users, notifier)

	if _, err := svc.Update(context.Background(), adminProfile(), job.ID, UpdateParams{
		TranslatorID: "tr-2",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(repo.cancelledAssignments) != 1 || repo.cancelledAssignments[0] != old.ID {
		t.Fatalf("expected old assignment cancelled, got %v", repo.cancelledAssignments)
	}
	a, err := repo.CurrentAssignment(context.Background(), job.ID)
	if err != nil || a.UserID != "tr-2" {
		t.Fatalf("expected new assignment for tr-2, got %+v err %v", a, err)
	}
	if !notifier.called("TranslatorChanged") {
		t.Fatalf("expected translator-change notice, got %v", notifier.calls)
	}
}

func TestUpdate_ReopenTimedOut(t *testing.T) {
	job := pendingJob()
	job.Status = StatusTimedOut
	job.CreatedAt = testNow.Add(-48 * time.Hour)
	repo := newFakeRepo(job)
	notifier := &fakeNotifier{}
	svc, _ := testService(repo, newFakeUsers(), notifier)

	if _, err := svc.Update(context.Background(), adminProfile(), job.ID, UpdateParams{
		Status: StatusPending,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	saved := repo.jobs[job.ID]
	if saved.Status != StatusPending {
		t.Fatalf("expected pending, got %s", saved.Status)
	}
	if !saved.CreatedAt.Equal(testNow) {
		t.Fatalf("expected reset created_at, got %v", saved.CreatedAt)
	}
	if !notifier.called("JobReopened") {
		t.Fatalf("expected reopened notice, got %v", notifier.calls)
	}
}

func TestUpdate_RejectedTransitionKeepsStatus(t *testing.T) {
	job := pendingJob()
	job.Status = StatusCompleted
	repo := newFakeRepo(job)
	svc, _ := testService(repo, newFakeUsers(), &fakeNotifier{})

	// completed→timedout requires an admin comment.
	if _, err := svc.Update(context.Background(), adminProfile(), job.ID, UpdateParams{
		Status: StatusTimedOut,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.jobs[job.ID].Status != StatusCompleted {
		t.Fatalf("expected status unchanged, got %s", repo.jobs[job.ID].Status)
	}
}

func TestUpdate_PastDueSkipsNotifications(t *testing.T) {
	job := pendingJob()
	job.Due = testNow.Add(-2 * time.Hour)
	repo := newFakeRepo(job)
	notifier := &fakeNotifier{}
	svc, _ := testService(repo, newFakeUsers(), notifier)

	result, err := svc.Update(context.Background(), adminProfile(), job.ID, UpdateParams{
		Reference: "ref-9",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.OK() {
		t.Fatalf("expected success, got %+v", result)
	}
	if repo.jobs[job.ID].Reference != "ref-9" {
		t.Fatal("reference not stored")
	}
	if len(notifier.calls) != 0 {
		t.Fatalf("no notifications expected for past bookings, got %v", notifier.calls)
	}
}

func TestUpdate_ManualCompletionFromStarted(t *testing.T) {
	job := pendingJob()
	job.Status = StatusStarted
	repo := newFakeRepo(job)
	repo.assign(job.ID, "tr-1")
	notifier := &fakeNotifier{}
	svc, _ := testService(repo, newFakeUsers(), notifier)

	if _, err := svc.Update(context.Background(), adminProfile(), job.ID, UpdateParams{
		Status:        StatusCompleted,
		AdminComments: "closed after support call",
		SessionTime:   "0:45:00",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	saved := repo.jobs[job.ID]
	if saved.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", saved.Status)
	}
	if saved.SessionTime != "0:45:00" || saved.EndAt == nil {
		t.Fatalf("expected session recorded, got %+v", saved)
	}
	if !notifier.called("SessionEnded") {
		t.Fatalf("expected session summary, got %v", notifier.calls)
	}
}

func TestUpdate_LanguageChangeNotice(t *testing.T) {
	job := pendingJob()
	repo := newFakeRepo(job)
	notifier := &fakeNotifier{}
	svc, _ := testService(repo, newFakeUsers(), notifier)

	if _, err := svc.Update(context.Background(), adminProfile(), job.ID, UpdateParams{
		LanguageID: 7,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.jobs[job.ID].LanguageID != 7 {
		t.Fatalf("language not updated: %d", repo.jobs[job.ID].LanguageID)
	}
	if !notifier.called("LanguageChanged") {
		t.Fatalf("expected language-change notice, got %v", notifier.calls)
	}
}
