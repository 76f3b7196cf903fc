package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"visionline/internal/domain"
	"visionline/internal/engine"
	"visionline/internal/visionfile"
)

func branchCmd() *cobra.Command {
	b := &cobra.Command{
		Use:   "branch",
		Short: "Manage branch visions",
		Long:  "A branch vision says what a branch delivers and which project objectives it serves. Branches below 0.7 alignment or serving no objective are rejected.",
	}

	var file string
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a branch vision from a YAML or JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(file)
			if err != nil {
				return err
			}
			doc, err := visionfile.Decode[visionfile.BranchDoc](data)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				view, err := e.AddBranch(ctx, projectID, actor(), doc)
				if err != nil {
					return err
				}
				return printBranches([]domain.BranchVisionView{view})
			})
		},
	}
	add.Flags().StringVarP(&file, "file", "f", "", "branch document (- for stdin)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List branch visions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				items, err := e.ListBranches(ctx, projectID)
				if err != nil {
					return err
				}
				return printBranches(items)
			})
		},
	}

	show := &cobra.Command{
		Use:   "show <branch-id>",
		Short: "Show one branch vision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				view, err := e.GetBranch(ctx, projectID, args[0])
				if err != nil {
					return err
				}
				return printJSON(view)
			})
		},
	}

	var alignment float64
	align := &cobra.Command{
		Use:   "alignment <branch-id>",
		Short: "Change how well a branch aligns with the project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				view, err := e.UpdateBranchAlignment(ctx, projectID, actor(), args[0], alignment)
				if err != nil {
					return err
				}
				return printBranches([]domain.BranchVisionView{view})
			})
		},
	}
	align.Flags().Float64Var(&alignment, "value", 0, "alignment with the project (0-1)")
	_ = align.MarkFlagRequired("value")

	b.AddCommand(add, list, show, align, deliverableCmd())
	return b
}

func deliverableCmd() *cobra.Command {
	d := &cobra.Command{Use: "deliverable", Short: "Branch deliverables"}
	d.AddCommand(&cobra.Command{
		Use:   "add <branch-id> <deliverable>",
		Short: "Add a deliverable to a branch",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				view, err := e.AddDeliverable(ctx, projectID, actor(), args[0], args[1])
				if err != nil {
					return err
				}
				return printBranches([]domain.BranchVisionView{view})
			})
		},
	})
	d.AddCommand(&cobra.Command{
		Use:   "complete <branch-id> <deliverable>",
		Short: "Record that a deliverable is done",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				view, err := e.CompleteDeliverable(ctx, projectID, actor(), args[0], args[1])
				if err != nil {
					return err
				}
				return printBranches([]domain.BranchVisionView{view})
			})
		},
	})
	return d
}

func taskCmd() *cobra.Command {
	t := &cobra.Command{
		Use:   "task",
		Short: "Manage task alignments",
		Long:  "A task alignment scores a task's business value, user impact and innovation. Tasks are listed by the priority those scores produce.",
	}

	var file string
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a task alignment from a YAML or JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(file)
			if err != nil {
				return err
			}
			doc, err := visionfile.Decode[visionfile.TaskDoc](data)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				view, err := e.AddTask(ctx, projectID, actor(), doc)
				if err != nil {
					return err
				}
				return printTasks([]domain.TaskAlignmentView{view})
			})
		},
	}
	add.Flags().StringVarP(&file, "file", "f", "", "task document (- for stdin)")

	var branchID string
	list := &cobra.Command{
		Use:   "list",
		Short: "List tasks by priority",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				items, err := e.ListTasks(ctx, projectID, branchID)
				if err != nil {
					return err
				}
				return printTasks(items)
			})
		},
	}
	list.Flags().StringVar(&branchID, "branch", "", "only tasks of this branch")

	show := &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show one task alignment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				view, err := e.GetTask(ctx, projectID, args[0])
				if err != nil {
					return err
				}
				return printJSON(view)
			})
		},
	}

	validate := &cobra.Command{
		Use:   "validate <task-id>",
		Short: "Mark a task alignment as validated by the current actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				view, err := e.ValidateTask(ctx, projectID, actor(), args[0])
				if err != nil {
					return err
				}
				return printTasks([]domain.TaskAlignmentView{view})
			})
		},
	}

	t.AddCommand(add, list, show, taskScoresCmd(), taskOutcomeCmd(), validate)
	return t
}

func taskScoresCmd() *cobra.Command {
	var business, impact, innovation float64
	cmd := &cobra.Command{
		Use:   "scores <task-id>",
		Short: "Update task scores; unset flags keep their value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var u domain.ScoreUpdate
			if cmd.Flags().Changed("business-value") {
				u.BusinessValue = &business
			}
			if cmd.Flags().Changed("user-impact") {
				u.UserImpact = &impact
			}
			if cmd.Flags().Changed("innovation") {
				u.InnovationScore = &innovation
			}
			if u.IsEmpty() {
				return fmt.Errorf("set at least one of --business-value, --user-impact, --innovation")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				view, err := e.UpdateTaskScores(ctx, projectID, actor(), args[0], u)
				if err != nil {
					return err
				}
				return printTasks([]domain.TaskAlignmentView{view})
			})
		},
	}
	cmd.Flags().Float64Var(&business, "business-value", 0, "business value (0-10)")
	cmd.Flags().Float64Var(&impact, "user-impact", 0, "user impact (0-10)")
	cmd.Flags().Float64Var(&innovation, "innovation", 0, "innovation score (0-10)")
	return cmd
}

func taskOutcomeCmd() *cobra.Command {
	var o domain.MeasurableOutcome
	var date string
	cmd := &cobra.Command{
		Use:   "outcome <task-id>",
		Short: "Attach a measurable outcome to a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if date != "" {
				d, err := time.Parse("2006-01-02", date)
				if err != nil {
					return fmt.Errorf("--date: %w", err)
				}
				o.MeasurementDate = d
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				view, err := e.AddTaskOutcome(ctx, projectID, actor(), args[0], o)
				if err != nil {
					return err
				}
				return printTasks([]domain.TaskAlignmentView{view})
			})
		},
	}
	cmd.Flags().StringVar(&o.Description, "description", "", "what is measured")
	cmd.Flags().StringVar(&o.MetricName, "metric", "", "metric name")
	cmd.Flags().Float64Var(&o.BaselineValue, "baseline", 0, "baseline value")
	cmd.Flags().Float64Var(&o.TargetValue, "target", 0, "target value")
	cmd.Flags().StringVar(&date, "date", "", "measurement date (YYYY-MM-DD, default now)")
	_ = cmd.MarkFlagRequired("description")
	_ = cmd.MarkFlagRequired("metric")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func printBranches(items []domain.BranchVisionView) error {
	return printJSONOrTable(items, func(tw table.Writer) {
		tw.AppendHeader(table.Row{"Branch", "Alignment", "Objectives", "Deliverables", "Version"})
		for _, b := range items {
			tw.AppendRow(table.Row{b.BranchID, fmt.Sprintf("%.2f", b.AlignmentWithProject), strings.Join(b.ContributesToObjectives, ", "), len(b.Deliverables), b.Version})
		}
	})
}

func printTasks(items []domain.TaskAlignmentView) error {
	return printJSONOrTable(items, func(tw table.Writer) {
		tw.AppendHeader(table.Row{"Task", "Branch", "Priority", "Importance", "Value", "Impact", "Innovation", "Validated"})
		for _, t := range items {
			tw.AppendRow(table.Row{t.TaskID, t.BranchID, fmt.Sprintf("%.2f", t.PriorityScore), t.StrategicImportance, t.BusinessValue, t.UserImpact, t.InnovationScore, t.ValidatedBy})
		}
	})
}
