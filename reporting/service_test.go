package reporting

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"tolkflow/user"
)

func testService() *Service {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(nil, log)
}

func TestAll_ForbidsNonSuperAdmin(t *testing.T) {
	svc := testService()
	for _, role := range []user.Role{user.RoleCustomer, user.RoleTranslator, user.RoleAdmin} {
		_, err := svc.All(context.Background(), user.Profile{ID: "u1", Role: role}, Filters{})
		if !errors.Is(err, ErrNotAuthorized) {
			t.Errorf("role %s: expected ErrNotAuthorized, got %v", role, err)
		}
	}
}

func TestAlerts_ForbidsNonSuperAdmin(t *testing.T) {
	svc := testService()
	_, err := svc.Alerts(context.Background(), user.Profile{ID: "u1", Role: user.RoleAdmin}, Filters{})
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
}

func TestExpiredNotAccepted_ForbidsNonAdmin(t *testing.T) {
	svc := testService()
	for _, role := range []user.Role{user.RoleCustomer, user.RoleTranslator} {
		_, err := svc.ExpiredNotAccepted(context.Background(), user.Profile{ID: "u1", Role: role}, Filters{})
		if !errors.Is(err, ErrNotAuthorized) {
			t.Errorf("role %s: expected ErrNotAuthorized, got %v", role, err)
		}
	}
}

func TestJobsForUser_UnknownRoleEmpty(t *testing.T) {
	svc := testService()
	out, err := svc.JobsForUser(context.Background(), user.Profile{ID: "u1", Role: user.RoleAdmin})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Emergency) != 0 || len(out.Normal) != 0 {
		t.Fatalf("expected empty listing, got %+v", out)
	}
}

func TestBuildFilters(t *testing.T) {
	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 6, 30, 23, 59, 0, 0, time.UTC)

	where, args := buildFilters(Filters{
		LanguageIDs:     []int64{3, 7},
		Statuses:        []string{"pending"},
		JobTypes:        []string{"paid"},
		CustomerEmail:   "kund@example.se",
		TranslatorEmail: "tolk@example.se",
		From:            &from,
		To:              &to,
	}, []string{"j.ignore_flag = false"}, nil)

	clause := strings.Join(where, " AND ")
	for _, want := range []string{
		"j.ignore_flag = false",
		"j.from_language_id = ANY($1)",
		"j.status = ANY($2)",
		"j.job_type = ANY($3)",
		"j.user_id IN (SELECT id FROM users WHERE email = $4)",
		"u.email = $5",
		"j.due >= $6",
		"j.due <= $7",
	} {
		if !strings.Contains(clause, want) {
			t.Errorf("clause missing %q:\n%s", want, clause)
		}
	}
	if len(args) != 7 {
		t.Fatalf("expected 7 args, got %d", len(args))
	}
}

func TestBuildFilters_CreatedTimeType(t *testing.T) {
	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	where, _ := buildFilters(Filters{TimeType: "created", From: &from}, nil, nil)
	clause := strings.Join(where, " AND ")
	if !strings.Contains(clause, "j.created_at >= $1") {
		t.Fatalf("expected created_at filter, got %s", clause)
	}
}

func TestBuildFilters_EmptyAddsNothing(t *testing.T) {
	where, args := buildFilters(Filters{}, []string{"j.ignore_flag = false"}, nil)
	if len(where) != 1 || len(args) != 0 {
		t.Fatalf("expected untouched clause, got where=%v args=%v", where, args)
	}
}

func TestSessionMinutes(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1:30:00", 90, true},
		{"0:45:30", 45.5, true},
		{"2:00:00", 120, true},
		{"", 0, false},
		{"45:00", 0, false},
		{"x:30:00", 0, false},
	}
	for _, tc := range cases {
		got, ok := sessionMinutes(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Errorf("sessionMinutes(%q) = %v, %v; want %v, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestMaxPage(t *testing.T) {
	if maxPage(0) != 1 || maxPage(-3) != 1 || maxPage(4) != 4 {
		t.Fatal("maxPage clamping broken")
	}
}
