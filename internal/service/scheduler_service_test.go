package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"todolist/internal/model"
	"todolist/internal/repository"
	"todolist/internal/testsupport"
)

func TestBuildDailySpec(t *testing.T) {
	spec, err := buildDailySpec("07:30")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if spec != "0 30 7 * * *" {
		t.Fatalf("unexpected spec %q", spec)
	}
	for _, bad := range []string{"7", "24:00", "12:60", "aa:bb"} {
		if _, err := buildDailySpec(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestScheduleIntervalRejectsNonPositive(t *testing.T) {
	s := NewSchedulerService(time.UTC, time.Second)
	if _, err := s.ScheduleInterval("noop", 0, func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected error for zero interval")
	}
	if _, err := s.ScheduleInterval("noop", time.Minute, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if s.Entries() != 1 {
		t.Fatalf("expected 1 entry, got %d", s.Entries())
	}
}

func TestReminderSummary(t *testing.T) {
	db := testsupport.OpenDB(t)
	tasks := NewTaskService(repository.NewTaskRepository(db))
	profiles := NewProfileService(repository.NewProfileRepository(db))
	reminders := NewReminderService(tasks, profiles)
	ctx := context.Background()

	if err := profiles.CreateProfile(ctx, "u1", ProfileInput{Username: "mia", Email: "mia@example.com"}); err != nil {
		t.Fatalf("profile: %v", err)
	}
	for _, task := range []model.Task{
		{UserID: "u1", TodoName: "Buy <milk>"},
		{UserID: "u1", TodoName: "Done already", Completed: true},
	} {
		if _, err := tasks.CreateTask(ctx, task); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	text, err := reminders.Summary(ctx, model.User{UID: "u1", Email: "mia@example.com"}, time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	for _, want := range []string{"mia", "2024-05-01", "Buy &lt;milk&gt;", "Completed: 1 of 2"} {
		if !strings.Contains(text, want) {
			t.Errorf("summary missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "Done already") {
		t.Errorf("completed task listed as ongoing:\n%s", text)
	}
}
