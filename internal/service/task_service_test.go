package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"todolist/internal/model"
	"todolist/internal/repository"
	"todolist/internal/testsupport"
)

func newTaskService(t *testing.T) *TaskService {
	t.Helper()
	return NewTaskService(repository.NewTaskRepository(testsupport.OpenDB(t)))
}

func TestCreateTaskGeneratesIDAndTrimsName(t *testing.T) {
	svc := newTaskService(t)

	task, err := svc.CreateTask(context.Background(), model.Task{UserID: "u1", TodoName: "  Buy milk "})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.ID == "" {
		t.Fatal("expected generated id")
	}
	if task.TodoName != "Buy milk" || task.Completed {
		t.Fatalf("unexpected task: %+v", task)
	}
}

func TestCreateTaskRejectsEmptyName(t *testing.T) {
	svc := newTaskService(t)

	if _, err := svc.CreateTask(context.Background(), model.Task{UserID: "u1", TodoName: "   "}); !errors.Is(err, ErrInvalidTask) {
		t.Fatalf("expected ErrInvalidTask, got %v", err)
	}
	if _, err := svc.CreateTask(context.Background(), model.Task{TodoName: "x"}); !errors.Is(err, ErrInvalidTask) {
		t.Fatalf("expected ErrInvalidTask without owner, got %v", err)
	}
	long := strings.Repeat("é", model.MaxTodoNameLength+1)
	if _, err := svc.CreateTask(context.Background(), model.Task{UserID: "u1", TodoName: long}); !errors.Is(err, ErrInvalidTask) {
		t.Fatalf("expected ErrInvalidTask for an overlong name, got %v", err)
	}
	if _, err := svc.CreateTask(context.Background(), model.Task{UserID: "u1", TodoName: long[:len(long)-len("é")]}); err != nil {
		t.Fatalf("a name at the limit must be accepted: %v", err)
	}
}

func TestCreateTaskDuplicateIDIsPersistenceError(t *testing.T) {
	svc := newTaskService(t)
	ctx := context.Background()

	if _, err := svc.CreateTask(ctx, model.Task{ID: "same", UserID: "u1", TodoName: "a"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := svc.CreateTask(ctx, model.Task{ID: "same", UserID: "u1", TodoName: "b"})
	var perr *PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
}

func TestToggleAndDeleteUnknownTask(t *testing.T) {
	svc := newTaskService(t)
	ctx := context.Background()

	if err := svc.SetCompleted(ctx, "u1", "missing", true); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
	if err := svc.DeleteTask(ctx, "u1", "missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}
