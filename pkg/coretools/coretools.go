// Package coretools registers the store-backed capabilities every persona
// can declare: long-term memory, user preferences, and the shared task list.
package coretools

import (
	"context"
	"fmt"

	"github.com/karim/ensemble/pkg/store"
	"github.com/karim/ensemble/pkg/toolkit"
)

// Names returns the tool names Register adds, in declaration order.
func Names() []string {
	return []string{
		"memory_save",
		"memory_search",
		"memory_read",
		"preference_set",
		"preference_list",
		"task_create",
		"task_update",
		"task_list",
	}
}

// Register adds the core tools to a registry, scoped to one persona role.
// Memory writes and reads carry the role; preferences never do.
func Register(reg *toolkit.Registry, st *store.Store, role string) error {
	tools := []toolkit.Definition{
		{
			Name:        "memory_save",
			Description: "Save a piece of information to long-term memory",
			Parameters: []toolkit.Parameter{
				{Name: "kind", Type: "string", Description: "Memory kind: preference, fact, task-note, or conversation-snippet", Required: true},
				{Name: "content", Type: "string", Description: "The information to remember", Required: true},
			},
			Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				kind, _ := args["kind"].(string)
				content, _ := args["content"].(string)
				m, err := st.WriteMemory(ctx, store.Memory{
					Kind:    store.Kind(kind),
					Content: content,
					Role:    role,
				})
				if err != nil {
					return nil, err
				}
				return fmt.Sprintf("saved memory %s", m.ID), nil
			},
		},
		{
			Name:        "memory_search",
			Description: "Search long-term memory by substring",
			Parameters: []toolkit.Parameter{
				{Name: "query", Type: "string", Description: "Text to search for", Required: true},
				{Name: "limit", Type: "integer", Description: "Maximum results to return", Default: 10},
			},
			Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				query, _ := args["query"].(string)
				memories, err := st.SearchMemories(ctx, query, intArg(args, "limit", 10))
				if err != nil {
					return nil, err
				}
				return renderMemories(memories), nil
			},
		},
		{
			Name:        "memory_read",
			Description: "Read recent memories, optionally filtered by kind",
			Parameters: []toolkit.Parameter{
				{Name: "kind", Type: "string", Description: "Optional kind filter"},
				{Name: "limit", Type: "integer", Description: "Maximum results to return", Default: 10},
			},
			Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				kind, _ := args["kind"].(string)
				memories, err := st.ReadMemories(ctx, store.MemoryFilter{
					Kind:  store.Kind(kind),
					Role:  role,
					Limit: intArg(args, "limit", 10),
				})
				if err != nil {
					return nil, err
				}
				return renderMemories(memories), nil
			},
		},
		{
			Name:        "preference_set",
			Description: "Record or update a user preference",
			Parameters: []toolkit.Parameter{
				{Name: "key", Type: "string", Description: "Preference key", Required: true},
				{Name: "value", Type: "string", Description: "Preference value", Required: true},
				{Name: "category", Type: "string", Description: "Grouping category, defaults to general"},
			},
			Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				key, _ := args["key"].(string)
				value, _ := args["value"].(string)
				category, _ := args["category"].(string)
				if err := st.UpsertPreference(ctx, key, value, category); err != nil {
					return nil, err
				}
				return fmt.Sprintf("preference %s set", key), nil
			},
		},
		{
			Name:        "preference_list",
			Description: "List stored user preferences, optionally by category",
			Parameters: []toolkit.Parameter{
				{Name: "category", Type: "string", Description: "Optional category filter"},
			},
			Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				category, _ := args["category"].(string)
				prefs, err := st.ListPreferences(ctx, category)
				if err != nil {
					return nil, err
				}
				if len(prefs) == 0 {
					return "no preferences stored", nil
				}
				out := ""
				for _, p := range prefs {
					out += fmt.Sprintf("%s = %s (%s)\n", p.Key, p.Value, p.Category)
				}
				return out, nil
			},
		},
		{
			Name:        "task_create",
			Description: "Create a task on the shared task list",
			Parameters: []toolkit.Parameter{
				{Name: "description", Type: "string", Description: "What needs doing", Required: true},
				{Name: "assigned_role", Type: "string", Description: "Persona role the task is assigned to"},
			},
			Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				description, _ := args["description"].(string)
				assigned, _ := args["assigned_role"].(string)
				if assigned == "" {
					assigned = role
				}
				task, err := st.CreateTask(ctx, description, assigned)
				if err != nil {
					return nil, err
				}
				return fmt.Sprintf("created task %s", task.ID), nil
			},
		},
		{
			Name:        "task_update",
			Description: "Update a task's status and optionally record a result",
			Parameters: []toolkit.Parameter{
				{Name: "id", Type: "string", Description: "Task ID", Required: true},
				{Name: "status", Type: "string", Description: "New status: pending, in_progress, completed, or failed", Required: true},
				{Name: "result", Type: "string", Description: "Outcome text for terminal statuses"},
			},
			Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				id, _ := args["id"].(string)
				status, _ := args["status"].(string)
				result, _ := args["result"].(string)
				if err := st.UpdateTask(ctx, id, store.TaskStatus(status), result); err != nil {
					return nil, err
				}
				return fmt.Sprintf("task %s is now %s", id, status), nil
			},
		},
		{
			Name:        "task_list",
			Description: "List tasks, optionally filtered by status",
			Parameters: []toolkit.Parameter{
				{Name: "status", Type: "string", Description: "Optional status filter"},
				{Name: "limit", Type: "integer", Description: "Maximum results to return", Default: 20},
			},
			Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				status, _ := args["status"].(string)
				tasks, err := st.ListTasks(ctx, store.TaskStatus(status), intArg(args, "limit", 20))
				if err != nil {
					return nil, err
				}
				if len(tasks) == 0 {
					return "no tasks found", nil
				}
				out := ""
				for _, task := range tasks {
					out += fmt.Sprintf("[%s] %s: %s", task.Status, task.ID, task.Description)
					if task.AssignedRole != "" {
						out += " (assigned: " + task.AssignedRole + ")"
					}
					out += "\n"
				}
				return out, nil
			},
		},
	}

	for _, def := range tools {
		if err := reg.Register(def); err != nil {
			return fmt.Errorf("failed to register %s: %w", def.Name, err)
		}
	}
	return nil
}

// intArg reads an integer argument that arrives as JSON number or int.
func intArg(args map[string]interface{}, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}

func renderMemories(memories []store.Memory) string {
	if len(memories) == 0 {
		return "no memories found"
	}
	out := ""
	for _, m := range memories {
		out += fmt.Sprintf("[%s] %s\n", m.Kind, m.Content)
	}
	return out
}
