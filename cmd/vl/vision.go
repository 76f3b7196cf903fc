package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"visionline/internal/domain"
	"visionline/internal/engine"
	"visionline/internal/repo"
	"visionline/internal/visionfile"
)

func visionCmd() *cobra.Command {
	v := &cobra.Command{
		Use:   "vision",
		Short: "Manage the project vision",
		Long:  "The project vision is the top of the hierarchy: objectives with measurable targets and deadlines that every branch and task must serve.",
	}
	v.AddCommand(visionCreateCmd())
	v.AddCommand(visionShowCmd())
	v.AddCommand(visionHealthCmd())
	v.AddCommand(visionAtRiskCmd())
	v.AddCommand(visionApproveCmd())
	return v
}

func visionCreateCmd() *cobra.Command {
	var file, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register the project and install its vision from a YAML or JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(file)
			if err != nil {
				return err
			}
			doc, err := visionfile.Decode[visionfile.ProjectDoc](data)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				view, err := e.CreateVision(ctx, engine.CreateVisionInput{
					ProjectID: projectID,
					Name:      name,
					ActorID:   actor(),
					Vision:    doc,
				})
				if err != nil {
					return err
				}
				return printVision(view, e.Now())
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "vision document (- for stdin)")
	cmd.Flags().StringVar(&name, "name", "", "project display name")
	return cmd
}

func visionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the project vision and objective progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				view, err := e.GetVision(ctx, projectID)
				if err != nil {
					return err
				}
				return printVision(view, e.Now())
			})
		},
	}
}

func visionApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve",
		Short: "Approve the project vision as the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				view, err := e.ApproveVision(ctx, projectID, actor())
				if err != nil {
					return err
				}
				return printVision(view, e.Now())
			})
		},
	}
}

func visionHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show vision health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				h, err := e.Health(ctx, projectID)
				if err != nil {
					return err
				}
				m := h.Map()
				return printJSONOrTable(m, func(tw table.Writer) {
					keys := make([]string, 0, len(m))
					for k := range m {
						keys = append(keys, k)
					}
					sort.Strings(keys)
					tw.AppendHeader(table.Row{"Measure", "Value"})
					for _, k := range keys {
						tw.AppendRow(table.Row{k, fmt.Sprintf("%.3f", m[k])})
					}
				})
			})
		},
	}
}

func visionAtRiskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "at-risk",
		Short: "List objectives trailing their expected progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				items, err := e.AtRisk(ctx, projectID)
				if err != nil {
					return err
				}
				now := e.Now()
				return printJSONOrTable(items, func(tw table.Writer) {
					tw.AppendHeader(table.Row{"ID", "Title", "Current", "Target", "Progress", "Deadline"})
					for _, o := range items {
						tw.AppendRow(table.Row{o.ID, o.Title, humanize.Ftoa(o.CurrentValue), humanize.Ftoa(o.TargetValue), percent(o.Progress()), deadline(o.Deadline, now)})
					}
				})
			})
		},
	}
}

func objectiveCmd() *cobra.Command {
	o := &cobra.Command{Use: "objective", Short: "Manage project objectives"}

	var file string
	add := &cobra.Command{
		Use:   "add",
		Short: "Add an objective from a YAML or JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(file)
			if err != nil {
				return err
			}
			doc, err := visionfile.Decode[visionfile.ObjectiveDoc](data)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				obj, err := e.AddObjective(ctx, projectID, actor(), doc)
				if err != nil {
					return err
				}
				return printJSON(obj)
			})
		},
	}
	add.Flags().StringVarP(&file, "file", "f", "", "objective document (- for stdin)")

	var value float64
	update := &cobra.Command{
		Use:   "update <objective-id>",
		Short: "Record the current value of an objective",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				view, err := e.UpdateObjective(ctx, projectID, actor(), args[0], value)
				if err != nil {
					return err
				}
				return printVision(view, e.Now())
			})
		},
	}
	update.Flags().Float64Var(&value, "value", 0, "new current value")
	_ = update.MarkFlagRequired("value")

	o.AddCommand(add, update)
	return o
}

func importCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Admit the branches and tasks of a vision document",
		Long:  "Each branch and task is a separate command; the import stops at the first rejection and reports what was admitted before it.",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(file)
			if err != nil {
				return err
			}
			doc, err := visionfile.Parse(data)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				res, err := e.Import(ctx, projectID, actor(), doc)
				if perr := printJSON(res); perr != nil {
					return perr
				}
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "vision document (- for stdin)")
	return cmd
}

func auditCmd() *cobra.Command {
	a := &cobra.Command{
		Use:   "audit",
		Short: "Validate the whole hierarchy",
	}
	a.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run an audit and store the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				audit, err := e.ValidateVision(ctx, projectID, actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(audit, func(tw table.Writer) {
					tw.SetTitle(fmt.Sprintf("audit %s: %s", audit.ID, audit.Status))
					tw.AppendHeader(table.Row{"Kind", "Entity", "Violation"})
					for _, entry := range audit.Issues {
						for _, v := range entry.Violations {
							tw.AppendRow(table.Row{entry.EntityKind, entry.EntityID, v})
						}
					}
				})
			})
		},
	})
	a.AddCommand(&cobra.Command{
		Use:   "show <audit-id>",
		Short: "Show a stored audit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				audit, err := e.GetAudit(ctx, projectID, args[0])
				if err != nil {
					return err
				}
				return printJSON(audit)
			})
		},
	})
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List stored audits, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				items, err := e.ListAudits(ctx, projectID, limit)
				if err != nil {
					return err
				}
				return printJSONOrTable(items, func(tw table.Writer) {
					tw.AppendHeader(table.Row{"ID", "Status", "Issues", "Overall", "By", "At"})
					for _, a := range items {
						tw.AppendRow(table.Row{a.ID, a.Status, len(a.Issues), fmt.Sprintf("%.3f", a.Health["overall"]), a.CreatedBy, a.CreatedAt})
					}
				})
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "number of audits")
	a.AddCommand(list)
	return a
}

func eventsCmd() *cobra.Command {
	var f repo.EventFilter
	var limit int
	var cursor int64
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the event log, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				f.ProjectID = projectID
				items, next, err := e.ListEvents(ctx, f, limit, cursor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"items": items, "next_cursor": next})
				}
				return printJSONOrTable(items, func(tw table.Writer) {
					tw.AppendHeader(table.Row{"ID", "When", "Type", "Entity", "Actor"})
					for _, evt := range items {
						tw.AppendRow(table.Row{evt.ID, eventTime(evt.TS), evt.Type, evt.EntityKind + "/" + evt.EntityID, evt.ActorID})
					}
					if next > 0 {
						tw.SetCaption("more: --cursor " + strconv.FormatInt(next, 10))
					}
				})
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of events")
	cmd.Flags().Int64Var(&cursor, "cursor", 0, "show events older than this id")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind filter")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id filter")
	return cmd
}

func alignCmd() *cobra.Command {
	a := &cobra.Command{Use: "align", Short: "Alignment calculations"}
	var doc visionfile.AlignmentDoc
	var innovation, risk float64
	score := &cobra.Command{
		Use:   "score",
		Short: "Weigh alignment sub-scores into an overall score and level",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("innovation") {
				doc.Innovation = &innovation
			}
			if cmd.Flags().Changed("risk") {
				doc.Risk = &risk
			}
			res, err := engine.ScoreAlignment(doc)
			if err != nil {
				return err
			}
			return printJSONOrTable(res, func(tw table.Writer) {
				tw.AppendHeader(table.Row{"Overall", "Level", "Aligned", "Improve"})
				tw.AppendRow(table.Row{fmt.Sprintf("%.3f", res.Overall), res.Level, res.Aligned, fmt.Sprint(res.ImprovementAreas)})
			})
		},
	}
	score.Flags().Float64Var(&doc.Objective, "objective", 0, "objective alignment (0-1)")
	score.Flags().Float64Var(&doc.Strategic, "strategic", 0, "strategic alignment (0-1)")
	score.Flags().Float64Var(&doc.Value, "value", 0, "value alignment (0-1)")
	score.Flags().Float64Var(&innovation, "innovation", 0.8, "innovation alignment (0-1)")
	score.Flags().Float64Var(&risk, "risk", 0.8, "risk alignment (0-1)")
	a.AddCommand(score)
	return a
}

func printVision(view domain.ProjectVisionView, now time.Time) error {
	return printJSONOrTable(view, func(tw table.Writer) {
		tw.SetTitle(fmt.Sprintf("%s v%d: %s overall", view.ProjectID, view.Version, percent(view.OverallProgress)))
		tw.AppendHeader(table.Row{"ID", "Objective", "Progress", "Deadline"})
		for _, o := range view.Objectives {
			tw.AppendRow(table.Row{o.ID, o.Title, percent(o.Progress), deadline(o.Deadline, now)})
		}
	})
}

func percent(v float64) string {
	return humanize.FtoaWithDigits(v, 1) + "%"
}

func deadline(d, now time.Time) string {
	return fmt.Sprintf("%s (%s)", d.Format("2006-01-02"), humanize.RelTime(d, now, "ago", "from now"))
}

func eventTime(ts string) string {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return ts
	}
	return humanize.Time(t)
}
