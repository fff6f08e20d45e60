package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"todolist/internal/model"
	"todolist/internal/repository"
)

// TaskService wraps task-related business logic.
type TaskService struct {
	taskRepo *repository.TaskRepository
}

func NewTaskService(taskRepo *repository.TaskRepository) *TaskService {
	return &TaskService{taskRepo: taskRepo}
}

// CreateTask inserts the task. A missing ID is generated.
func (s *TaskService) CreateTask(ctx context.Context, task model.Task) (*model.Task, error) {
	task.TodoName = strings.TrimSpace(task.TodoName)
	if task.UserID == "" || task.TodoName == "" || utf8.RuneCountInString(task.TodoName) > model.MaxTodoNameLength {
		return nil, ErrInvalidTask
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if err := s.taskRepo.Create(ctx, &task); err != nil {
		return nil, persistenceError("create task", err)
	}
	return &task, nil
}

func (s *TaskService) ListTasks(ctx context.Context, userID string) ([]model.Task, error) {
	tasks, err := s.taskRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, persistenceError("list tasks", err)
	}
	return tasks, nil
}

func (s *TaskService) SetCompleted(ctx context.Context, userID, taskID string, completed bool) error {
	if err := s.taskRepo.SetCompleted(ctx, userID, taskID, completed); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTaskNotFound
		}
		return persistenceError("update task", err)
	}
	return nil
}

// DeleteTask removes a task completely.
func (s *TaskService) DeleteTask(ctx context.Context, userID, taskID string) error {
	if err := s.taskRepo.Delete(ctx, userID, taskID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTaskNotFound
		}
		return persistenceError("delete task", err)
	}
	return nil
}
