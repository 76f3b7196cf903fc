package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"visionline/internal/app"
	"visionline/internal/config"
	"visionline/internal/db"
	"visionline/internal/engine"
	"visionline/internal/events"
	"visionline/internal/logger"
	"visionline/internal/metrics"
	"visionline/internal/migrate"
	"visionline/internal/repo"
	"visionline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "vl",
	Short: "Visionline CLI",
	Long: `Visionline keeps every branch and task tied to the project vision it serves.
Core concepts:
- Workspace: the .visionline directory holding the SQLite database, next to visionline.yml.
- Project vision: objectives with targets and deadlines, the audience, and the value proposition.
- Branch vision: what a branch delivers and which project objectives it contributes to.
- Task alignment: business value, user impact and innovation scores that give each task its priority.
- Health: objective progress, branch alignment and task coverage rolled into one number.
- Audit: a full validation pass over the hierarchy, stored for later review ('vl audit run').
- Event log: every accepted or rejected change, view it with 'vl events'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("VISIONLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("project", "", "project id (overrides visionline.yml)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(visionCmd())
	rootCmd.AddCommand(objectiveCmd())
	rootCmd.AddCommand(branchCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(alignCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(kafkaCmd())
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create visionline.yml and the workspace database",
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID := viper.GetString("project")
			if projectID == "" {
				return fmt.Errorf("--project required")
			}
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if _, err := config.FromYAML([]byte(config.GenerateDefault(projectID))); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(projectID)), 0o644); err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if viper.GetBool("json") {
					return printJSON(map[string]string{"config": path, "database": db.Path(workspace)})
				}
				fmt.Printf("Wrote %s\nDatabase ready at %s\nNext: vl vision create -f vision.yml\n", path, db.Path(workspace))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing visionline.yml")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect visionline.yml",
		Long:  "visionline.yml names the default project and configures the HTTP server, logging, and the webhook and Kafka event publishers.",
	}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(viper.GetString("workspace"), viper.GetString("project"))
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate visionline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	})
	return cfg
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Projects in this workspace"}
	prj.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListProjects(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items, func(tw table.Writer) {
					tw.AppendHeader(table.Row{"ID", "Name", "Created By", "Created At"})
					for _, p := range items {
						tw.AppendRow(table.Row{p.ID, p.Name, p.CreatedBy, p.CreatedAt})
					}
				})
			})
		},
	})
	var yes bool
	del := &cobra.Command{
		Use:   "delete <project-id>",
		Short: "Delete a project with its vision, branches, tasks and audits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to delete %s without --yes", args[0])
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.DeleteProject(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("deleted %s\n", args[0])
				return nil
			})
		},
	}
	del.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	prj.AddCommand(del)
	return prj
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := openDB(workspace)
			if err != nil {
				return err
			}
			defer conn.Close()
			cfg, err := app.LoadConfig(workspace, viper.GetString("project"))
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.Log.Mode)
			if err != nil {
				return err
			}
			defer log.Sync()
			if addr == "" {
				addr = cfg.Server.Addr
			}
			if basePath == "" {
				basePath = cfg.Server.BasePath
			}

			e := engine.New(conn, cfg)
			e.Log = log
			e.Metrics = metrics.New()
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath})
			if err != nil {
				return err
			}
			if _, err := server.StartDispatcher(cmd.Context(), e); err != nil {
				return err
			}

			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			log.Info("serving visionline api", "addr", addr, "base_path", basePath, "project", cfg.Project.ID)
			fmt.Printf("Serving Visionline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs, metrics at /metrics)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from visionline.yml)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default from visionline.yml)")
	return cmd
}

func kafkaCmd() *cobra.Command {
	k := &cobra.Command{Use: "kafka", Short: "Kafka event publishing"}
	var partitions int32
	var replication int16
	ensure := &cobra.Command{
		Use:   "ensure-topic",
		Short: "Create the configured events topic if missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if !cfg.Events.Kafka.Enabled() {
				return fmt.Errorf("events.kafka is not configured in %s", config.Path(viper.GetString("workspace")))
			}
			p, err := events.NewKafkaPublisher(cfg.Events.Kafka)
			if err != nil {
				return err
			}
			defer p.Close()
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := p.EnsureTopic(ctx, partitions, replication); err != nil {
				return err
			}
			fmt.Printf("topic %s ready\n", cfg.Events.Kafka.Topic)
			return nil
		},
	}
	ensure.Flags().Int32Var(&partitions, "partitions", 1, "partition count")
	ensure.Flags().Int16Var(&replication, "replication", 1, "replication factor")
	k.AddCommand(ensure)
	return k
}

// --- helpers ---

func openDB(workspace string) (*sql.DB, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine, string) error) error {
	workspace := viper.GetString("workspace")
	conn, err := openDB(workspace)
	if err != nil {
		return err
	}
	defer conn.Close()
	r := repo.Repo{DB: conn}
	cfg, err := app.LoadConfig(workspace, "")
	if err != nil {
		return err
	}
	projectID, err := app.ResolveProject(ctx, viper.GetString("project"), cfg, r)
	if err != nil {
		return err
	}
	cfg.Project.ID = projectID
	return fn(ctx, engine.New(conn, cfg), projectID)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	conn, err := openDB(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, repo.Repo{DB: conn})
}

func actor() string {
	return viper.GetString("actor-id")
}

// readInput reads a document from path, or stdin when path is "-".
func readInput(path string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("--file required")
	}
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printJSONOrTable(v any, render func(table.Writer)) error {
	if viper.GetBool("json") || render == nil {
		return printJSON(v)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	render(tw)
	tw.Render()
	return nil
}
