package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mistakeknot/tasksync/internal/coordinator"
	"github.com/mistakeknot/tasksync/internal/core"
	"github.com/mistakeknot/tasksync/internal/session"
)

// resolveTask finds a local task by full uuid or unique uuid prefix.
func resolveTask(ctx context.Context, coord *coordinator.Coordinator, ref string) (core.Task, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return core.Task{}, fmt.Errorf("task id required")
	}
	if task, ok := coord.Task(ctx, ref); ok {
		return task, nil
	}
	var matches []core.Task
	for _, task := range coord.Tasks(ctx, "") {
		if strings.HasPrefix(task.UUID, ref) {
			matches = append(matches, task)
		}
	}
	switch len(matches) {
	case 0:
		return core.Task{}, fmt.Errorf("no local task matches %q (try `tasksync pull`)", ref)
	case 1:
		return matches[0], nil
	default:
		return core.Task{}, fmt.Errorf("%q matches %d tasks", ref, len(matches))
	}
}

func pullCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Replace the local cache with the backend's tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, nil, func(ctx context.Context, s *session.Session) error {
				n, err := s.Coordinator().RefreshFromRemote(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pulled %d tasks\n", n)
				return nil
			})
		},
	}
}

func listCmd(opts *rootOptions) *cobra.Command {
	var status, project string
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List cached tasks",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st := core.Status(status)
			if st != "" && !st.Valid() {
				return fmt.Errorf("unknown status %q", status)
			}
			return opts.withSession(cmd, nil, func(ctx context.Context, s *session.Session) error {
				coord := s.Coordinator()
				var tasks []core.Task
				if project != "" {
					for _, t := range coord.TasksInProject(ctx, project) {
						if st == "" || t.Status == st {
							tasks = append(tasks, t)
						}
					}
				} else {
					tasks = coord.Tasks(ctx, st)
				}
				pins := coord.PinnedSet(ctx)
				sort.SliceStable(tasks, func(i, j int) bool {
					return pins[tasks[i].UUID] && !pins[tasks[j].UUID]
				})

				out := cmd.OutOrStdout()
				for _, t := range tasks {
					fmt.Fprintln(out, renderTask(t, pins[t.UUID]))
				}
				if len(tasks) == 0 {
					fmt.Fprintln(out, mutedStyle.Render("no tasks"))
				}
				if at := coord.LastSync(ctx); !at.IsZero() {
					fmt.Fprintln(out, mutedStyle.Render("last sync "+at.Local().Format("2006-01-02 15:04:05")))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending, completed, deleted)")
	cmd.Flags().StringVar(&project, "project", "", "filter by project")
	return cmd
}

// parseAnnotations turns --annotate values into annotations stamped with entry.
func parseAnnotations(values []string, entry string) []core.Annotation {
	out := make([]core.Annotation, 0, len(values))
	for _, v := range values {
		out = append(out, core.Annotation{Entry: entry, Description: v})
	}
	return out
}

func addCmd(opts *rootOptions) *cobra.Command {
	var (
		project, priority, due, start, wait, recur string
		tags, depends, annotations                 []string
	)
	cmd := &cobra.Command{
		Use:   "add <description...>",
		Short: "Create a task on the backend and cache it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, nil, func(ctx context.Context, s *session.Session) error {
				task, outcome, err := s.Coordinator().CreateTask(ctx, coordinator.CreateInput{
					Description: strings.Join(args, " "),
					Project:     project,
					Priority:    core.Priority(strings.ToUpper(priority)),
					Due:         due,
					Start:       start,
					Wait:        wait,
					Recur:       recur,
					Tags:        tags,
					Depends:     depends,
					Annotations: parseAnnotations(annotations, ""),
				})
				if err != nil && outcome != coordinator.OutcomeRemoteOnly {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Task submitted (%s, local id %s)\n", outcome, shortID(task.UUID))
				return err
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&project, "project", "", "project name")
	f.StringVar(&priority, "priority", "", "priority (H, M, L)")
	f.StringVar(&due, "due", "", "due date")
	f.StringVar(&start, "start", "", "start date")
	f.StringVar(&wait, "wait", "", "wait date")
	f.StringVar(&recur, "recur", "", "recurrence")
	f.StringSliceVar(&tags, "tag", nil, "tag (repeatable)")
	f.StringSliceVar(&depends, "depends", nil, "uuid of a task this one depends on (repeatable)")
	f.StringSliceVar(&annotations, "annotate", nil, "annotation text (repeatable)")
	return cmd
}

func editCmd(opts *rootOptions) *cobra.Command {
	var (
		description, project, due, start, end, wait, recur string
		tags, depends, annotations                         []string
	)
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Replace the editable fields of a task",
		Long:  "Fields not given keep their cached value; an explicitly empty flag clears the field.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, nil, func(ctx context.Context, s *session.Session) error {
				coord := s.Coordinator()
				task, err := resolveTask(ctx, coord, args[0])
				if err != nil {
					return err
				}
				in := coordinator.EditInput{
					TaskUUID:    task.UUID,
					Description: task.Description,
					Project:     task.Project,
					Entry:       task.Entry,
					Wait:        task.Wait,
					Start:       task.Start,
					End:         task.End,
					Due:         task.Due,
					Recur:       task.Recur,
					Tags:        task.Tags,
					Depends:     task.Depends,
					Annotations: task.Annotations,
				}
				f := cmd.Flags()
				overlay := func(name string, dst *string, v string) {
					if f.Changed(name) {
						*dst = v
					}
				}
				overlay("description", &in.Description, description)
				overlay("project", &in.Project, project)
				overlay("due", &in.Due, due)
				overlay("start", &in.Start, start)
				overlay("end", &in.End, end)
				overlay("wait", &in.Wait, wait)
				overlay("recur", &in.Recur, recur)
				if f.Changed("tag") {
					in.Tags = tags
				}
				if f.Changed("depends") {
					in.Depends = depends
				}
				if f.Changed("annotate") {
					in.Annotations = append(in.Annotations, parseAnnotations(annotations, "")...)
				}

				outcome, err := coord.EditTask(ctx, in)
				if err != nil && outcome != coordinator.OutcomeRemoteOnly {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Edit submitted for %s (%s)\n", shortID(task.UUID), outcome)
				return err
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&description, "description", "", "description")
	f.StringVar(&project, "project", "", "project name")
	f.StringVar(&due, "due", "", "due date")
	f.StringVar(&start, "start", "", "start date")
	f.StringVar(&end, "end", "", "end date")
	f.StringVar(&wait, "wait", "", "wait date")
	f.StringVar(&recur, "recur", "", "recurrence")
	f.StringSliceVar(&tags, "tag", nil, "replace tags (repeatable)")
	f.StringSliceVar(&depends, "depends", nil, "replace dependencies (repeatable)")
	f.StringSliceVar(&annotations, "annotate", nil, "add an annotation (repeatable)")
	return cmd
}

func modifyCmd(opts *rootOptions) *cobra.Command {
	var (
		description, project, priority, status, due string
		tags                                        []string
	)
	cmd := &cobra.Command{
		Use:   "modify <id>",
		Short: "Change the status or metadata of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, nil, func(ctx context.Context, s *session.Session) error {
				coord := s.Coordinator()
				task, err := resolveTask(ctx, coord, args[0])
				if err != nil {
					return err
				}
				in := coordinator.ModifyInput{TaskUUID: task.UUID}
				f := cmd.Flags()
				if f.Changed("description") {
					in.Description = &description
				}
				if f.Changed("project") {
					in.Project = &project
				}
				if f.Changed("priority") {
					p := core.Priority(strings.ToUpper(priority))
					in.Priority = &p
				}
				if f.Changed("status") {
					st := core.Status(status)
					in.Status = &st
				}
				if f.Changed("due") {
					in.Due = &due
				}
				if f.Changed("tag") {
					in.Tags = tags
				}
				outcome, err := coord.ChangeStatusOrField(ctx, in)
				if err != nil && outcome != coordinator.OutcomeRemoteOnly {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Change submitted for %s (%s)\n", shortID(task.UUID), outcome)
				return err
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&description, "description", "", "description")
	f.StringVar(&project, "project", "", "project name")
	f.StringVar(&priority, "priority", "", "priority (H, M, L, or empty)")
	f.StringVar(&status, "status", "", "status (pending, completed, deleted)")
	f.StringVar(&due, "due", "", "due date")
	f.StringSliceVar(&tags, "tag", nil, "replace tags (repeatable)")
	return cmd
}

func completeCmd(opts *rootOptions) *cobra.Command {
	return statusCmd(opts, "complete <id...>", "Mark tasks as completed", core.StatusCompleted)
}

func deleteCmd(opts *rootOptions) *cobra.Command {
	return statusCmd(opts, "delete <id...>", "Mark tasks as deleted", core.StatusDeleted)
}

func statusCmd(opts *rootOptions, use, short string, status core.Status) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, nil, func(ctx context.Context, s *session.Session) error {
				coord := s.Coordinator()
				tasks := make([]core.Task, 0, len(args))
				for _, ref := range args {
					task, err := resolveTask(ctx, coord, ref)
					if err != nil {
						return err
					}
					tasks = append(tasks, task)
				}
				out := cmd.OutOrStdout()

				if len(tasks) == 1 {
					var outcome coordinator.Outcome
					var err error
					if status == core.StatusCompleted {
						outcome, err = coord.MarkTaskAsCompleted(ctx, tasks[0])
					} else {
						outcome, err = coord.MarkTaskAsDeleted(ctx, tasks[0])
					}
					if err != nil && outcome != coordinator.OutcomeRemoteOnly {
						return err
					}
					fmt.Fprintf(out, "%s: %s (%s)\n", shortID(tasks[0].UUID), status, outcome)
					return err
				}

				var res coordinator.BulkResult
				var err error
				if status == core.StatusCompleted {
					res, err = coord.BulkMarkTasksAsCompleted(ctx, tasks)
				} else {
					res, err = coord.BulkMarkTasksAsDeleted(ctx, tasks)
				}
				for _, r := range res.Results {
					line := fmt.Sprintf("%s: %s", shortID(r.TaskUUID), r.Outcome)
					if r.Err != nil {
						line = errorStyle.Render(line + ": " + r.Err.Error())
					}
					fmt.Fprintln(out, line)
				}
				fmt.Fprintf(out, "%d of %d %s\n", res.Succeeded, len(tasks), status)
				return err
			})
		},
	}
}

func deleteAllCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-all",
		Short: "Drop every cached task of the current owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, nil, func(ctx context.Context, s *session.Session) error {
				n, err := s.Coordinator().DeleteAllForOwner(ctx, "")
				if errors.Is(err, core.ErrNothingToDelete) {
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing to delete")
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d cached tasks\n", n)
				return nil
			})
		},
	}
}

func pinCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pin <id>",
		Short: "Toggle the pinned flag of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, nil, func(ctx context.Context, s *session.Session) error {
				coord := s.Coordinator()
				task, err := resolveTask(ctx, coord, args[0])
				if err != nil {
					return err
				}
				pinned, err := coord.TogglePin(ctx, task.UUID)
				if err != nil {
					return err
				}
				state := "unpinned"
				if pinned {
					state = "pinned"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", shortID(task.UUID), state)
				return nil
			})
		},
	}
}
