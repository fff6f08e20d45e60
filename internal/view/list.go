package view

import "todolist/internal/model"

// The list helpers below never modify their input; they return a new slice.

// FilterTasks returns the tasks shown under f, in their original order.
func FilterTasks(tasks []model.Task, f model.Filter) []model.Task {
	out := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	return out
}

// AppendTask returns tasks with t added at the end.
func AppendTask(tasks []model.Task, t model.Task) []model.Task {
	out := make([]model.Task, 0, len(tasks)+1)
	out = append(out, tasks...)
	return append(out, t)
}

// ToggleByID flips the completion of the task with the given id.
func ToggleByID(tasks []model.Task, id string) ([]model.Task, bool) {
	out := cloneTasks(tasks)
	for i := range out {
		if out[i].ID == id {
			out[i].Completed = !out[i].Completed
			return out, true
		}
	}
	return out, false
}

// DeleteByID removes the task with the given id and reports where it was.
func DeleteByID(tasks []model.Task, id string) ([]model.Task, model.Task, int, bool) {
	for i, t := range tasks {
		if t.ID == id {
			out := make([]model.Task, 0, len(tasks)-1)
			out = append(out, tasks[:i]...)
			out = append(out, tasks[i+1:]...)
			return out, t, i, true
		}
	}
	return cloneTasks(tasks), model.Task{}, -1, false
}

// InsertAt puts t back at index i, clamped to the list bounds.
func InsertAt(tasks []model.Task, i int, t model.Task) []model.Task {
	if i < 0 {
		i = 0
	}
	if i > len(tasks) {
		i = len(tasks)
	}
	out := make([]model.Task, 0, len(tasks)+1)
	out = append(out, tasks[:i]...)
	out = append(out, t)
	return append(out, tasks[i:]...)
}

// ToggleByName flips every task whose name equals name.
func ToggleByName(tasks []model.Task, name string) []model.Task {
	out := cloneTasks(tasks)
	for i := range out {
		if out[i].TodoName == name {
			out[i].Completed = !out[i].Completed
		}
	}
	return out
}

// DeleteByName removes every task whose name equals name.
func DeleteByName(tasks []model.Task, name string) []model.Task {
	out := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.TodoName != name {
			out = append(out, t)
		}
	}
	return out
}

func cloneTasks(tasks []model.Task) []model.Task {
	out := make([]model.Task, len(tasks))
	copy(out, tasks)
	return out
}
