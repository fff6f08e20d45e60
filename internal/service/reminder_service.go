package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"todolist/internal/model"
)

// ReminderService builds human-readable todo summaries for chat reports.
type ReminderService struct {
	tasks    *TaskService
	profiles *ProfileService
}

func NewReminderService(tasks *TaskService, profiles *ProfileService) *ReminderService {
	return &ReminderService{tasks: tasks, profiles: profiles}
}

// Summary lists the user's ongoing tasks and counts the completed ones.
// The result is Telegram HTML.
func (s *ReminderService) Summary(ctx context.Context, user model.User, now time.Time) (string, error) {
	tasks, err := s.tasks.ListTasks(ctx, user.UID)
	if err != nil {
		return "", err
	}

	name := user.Email
	if s.profiles != nil {
		if profile, err := s.profiles.GetProfile(ctx, user.UID); err == nil && strings.TrimSpace(profile.Username) != "" {
			name = profile.Username
		}
	}

	var ongoing []model.Task
	completed := 0
	for _, task := range tasks {
		if task.Completed {
			completed++
			continue
		}
		ongoing = append(ongoing, task)
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("📋 <b>Todo summary for %s</b>\n", html.EscapeString(name)))
	builder.WriteString(fmt.Sprintf("🗓 %s\n\n", now.Format("2006-01-02")))

	if len(ongoing) == 0 {
		builder.WriteString("— nothing ongoing\n")
	} else {
		builder.WriteString("🔥 <b>Ongoing</b>\n")
		for _, task := range ongoing {
			builder.WriteString(fmt.Sprintf("• %s\n", html.EscapeString(task.TodoName)))
		}
	}
	builder.WriteString(fmt.Sprintf("\n✅ Completed: %d of %d", completed, len(tasks)))

	return strings.TrimSpace(builder.String()), nil
}
