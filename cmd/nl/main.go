package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"nudgeline/internal/app"
	"nudgeline/internal/compare"
	"nudgeline/internal/config"
	"nudgeline/internal/db"
	"nudgeline/internal/domain"
	"nudgeline/internal/engine"
	"nudgeline/internal/repo"
	"nudgeline/internal/server"
	"nudgeline/internal/sweeper"
	"nudgeline/internal/trigger"
)

var rootCmd = &cobra.Command{
	Use:   "nl",
	Short: "Nudgeline CLI",
	Long: `Nudgeline turns raw activity events into prioritized, deduplicated proposals.
Core concepts:
- Workspace: your .nudgeline directory holding the database; nudgeline.yml tunes TTLs, scoring and credits.
- Triggers: calendar, meeting, silence and flow events, normalized into canonical trigger types.
- Proposals: suggested next actions with a priority score; they flow proposed -> accepted/declined/snoozed and expire on a TTL.
- Generations: autopilot is the default engine; luna can run in shadow mode to compare quality before rollout.
- Flags: runtime switches (kill switch, per-trigger gates, generation modes) stored in the database.
- Sweeper: the background pass that expires stale proposals, wakes snoozes and resolves executions.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("NUDGELINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(triggerCmd())
	rootCmd.AddCommand(proposalCmd())
	rootCmd.AddCommand(settingsCmd())
	rootCmd.AddCommand(flagCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default nudgeline.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect config",
	}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				return printJSONOrTable(rt.Engine.Config)
			})
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate nudgeline.yml",
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

func triggerCmd() *cobra.Command {
	trg := &cobra.Command{
		Use:   "trigger",
		Short: "Send trigger events",
		Long:  "Triggers are the raw events the engine listens to: calendar additions, meeting endings, prospect silence and abandoned flows. Send one and the engine decides whether it deserves a proposal.",
	}
	trg.AddCommand(triggerSendCmd())
	return trg
}

func triggerSendCmd() *cobra.Command {
	var raw trigger.RawEvent
	var payloadJSON string
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a raw trigger event",
		RunE: func(cmd *cobra.Command, args []string) error {
			if payloadJSON != "" {
				if err := json.Unmarshal([]byte(payloadJSON), &raw.Payload); err != nil {
					return fmt.Errorf("invalid --payload-json: %w", err)
				}
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				created, err := rt.Engine.Propose(ctx, raw, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if len(created) == 0 && !viper.GetBool("json") {
					fmt.Println("trigger accepted; no proposal surfaced")
					return nil
				}
				return printJSONOrTable(created)
			})
		},
	}
	cmd.Flags().StringVar(&raw.Source, "source", "", "event source (calendar, meetings, crm, flows, manual)")
	cmd.Flags().StringVar(&raw.Type, "type", "", "event type")
	cmd.Flags().StringVar(&raw.UserID, "user", "", "user id")
	cmd.Flags().StringVar(&raw.OrgID, "org", "", "org id")
	cmd.Flags().StringVar(&raw.OccurredAt, "occurred-at", "", "RFC3339 event time")
	cmd.Flags().StringVar(&payloadJSON, "payload-json", "", "payload JSON")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func proposalCmd() *cobra.Command {
	p := &cobra.Command{
		Use:   "proposal",
		Short: "Manage proposals",
		Long:  "Proposals are the engine's suggestions. Accept to run the action, decline to drop it, snooze to revisit later. Expired and declined proposals free their dedupe key.",
	}
	p.AddCommand(proposalListCmd())
	p.AddCommand(proposalGetCmd())
	p.AddCommand(proposalAcceptCmd())
	p.AddCommand(proposalDeclineCmd())
	p.AddCommand(proposalSnoozeCmd())
	p.AddCommand(proposalWakeCmd())
	p.AddCommand(proposalRetryCmd())
	p.AddCommand(proposalCompleteCmd())
	p.AddCommand(proposalOutcomeCmd())
	return p
}

func proposalListCmd() *cobra.Command {
	var f repo.ProposalFilters
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List proposals",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.VisibleOnly = !all
			if f.Limit == 0 {
				f.Limit = 50
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				items, err := rt.Engine.Repo.ListProposals(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Title", "Priority", "Status", "Generation", "Expires"})
				for _, p := range items {
					expires := ""
					if p.ExpiresAt != nil {
						expires = *p.ExpiresAt
					}
					tw.AppendRow(table.Row{p.ID, p.ProposalType, p.Title, p.Priority, p.Status, p.Generation, expires})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.UserID, "user", "", "user id filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Generation, "generation", "", "generation filter")
	cmd.Flags().StringVar(&f.ProposalType, "type", "", "proposal type filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max rows")
	cmd.Flags().BoolVar(&all, "all", false, "include shadow proposals")
	return cmd
}

func proposalGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				p, err := rt.Engine.Repo.GetProposal(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func proposalAcceptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accept <id>",
		Short: "Accept proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				p, err := rt.Engine.Accept(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func proposalDeclineCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "decline <id>",
		Short: "Decline proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				p, err := rt.Engine.Decline(ctx, args[0], reason, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "decline reason")
	return cmd
}

func proposalSnoozeCmd() *cobra.Command {
	var until string
	var forDur time.Duration
	cmd := &cobra.Command{
		Use:   "snooze <id>",
		Short: "Snooze proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var wake time.Time
			switch {
			case until != "":
				t, err := time.Parse(time.RFC3339, until)
				if err != nil {
					return fmt.Errorf("--until must be RFC3339: %w", err)
				}
				wake = t
			case forDur > 0:
				wake = time.Now().Add(forDur)
			default:
				return fmt.Errorf("one of --until or --for is required")
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				p, err := rt.Engine.Snooze(ctx, args[0], wake, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&until, "until", "", "RFC3339 wake time")
	cmd.Flags().DurationVar(&forDur, "for", 0, "snooze duration (e.g. 4h)")
	return cmd
}

func proposalWakeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wake <id>",
		Short: "Wake a snoozed proposal early",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				p, err := rt.Engine.Wake(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func proposalRetryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry <id>",
		Short: "Retry a failed proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				p, err := rt.Engine.Retry(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func proposalCompleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete <id>",
		Short: "Complete an accepted proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				p, err := rt.Engine.Complete(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func proposalOutcomeCmd() *cobra.Command {
	var rating, source, note string
	cmd := &cobra.Command{
		Use:   "outcome <id>",
		Short: "Record an outcome for a finished proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				o, err := rt.Engine.RecordOutcome(ctx, args[0], rating, source, note, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	cmd.Flags().StringVar(&rating, "rating", "", "positive, neutral or negative")
	cmd.Flags().StringVar(&source, "source", "human", "human or inferred")
	cmd.Flags().StringVar(&note, "note", "", "free-form note")
	_ = cmd.MarkFlagRequired("rating")
	return cmd
}

func settingsCmd() *cobra.Command {
	s := &cobra.Command{
		Use:   "settings",
		Short: "Per-user engine settings",
	}
	s.AddCommand(settingsShowCmd())
	s.AddCommand(settingsSetCmd())
	s.AddCommand(settingsResetCmd())
	return s
}

func settingsShowCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show user settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				s, err := rt.Engine.SettingsFor(ctx, userID)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func settingsSetCmd() *cobra.Command {
	var userID, patchJSON string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Patch user settings from JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			var upd struct {
				Enabled           *bool     `json:"enabled"`
				CalendarTriggers  *bool     `json:"calendar_triggers"`
				MeetingTriggers   *bool     `json:"meeting_triggers"`
				SilenceTriggers   *bool     `json:"silence_triggers"`
				FlowTriggers      *bool     `json:"flow_triggers"`
				ReactivationDays  *int      `json:"reactivation_days"`
				PrepLeadHours     *int      `json:"prep_lead_hours"`
				NotificationStyle *string   `json:"notification_style"`
				ExcludedKeywords  *[]string `json:"excluded_keywords"`
			}
			if err := json.Unmarshal([]byte(patchJSON), &upd); err != nil {
				return fmt.Errorf("invalid --patch-json: %w", err)
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				s, err := rt.Engine.UpdateSettings(ctx, userID, engine.SettingsUpdate{
					Enabled:           upd.Enabled,
					CalendarTriggers:  upd.CalendarTriggers,
					MeetingTriggers:   upd.MeetingTriggers,
					SilenceTriggers:   upd.SilenceTriggers,
					FlowTriggers:      upd.FlowTriggers,
					ReactivationDays:  upd.ReactivationDays,
					PrepLeadHours:     upd.PrepLeadHours,
					NotificationStyle: upd.NotificationStyle,
					ExcludedKeywords:  upd.ExcludedKeywords,
				}, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&patchJSON, "patch-json", "", "partial settings JSON")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("patch-json")
	return cmd
}

func settingsResetCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset user settings to defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				s, err := rt.Engine.ResetSettings(ctx, userID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func flagCmd() *cobra.Command {
	f := &cobra.Command{
		Use:   "flag",
		Short: "Feature flags",
		Long:  "Flags gate the engine at runtime: engine.enabled is the kill switch, trigger.<type>.enabled gates one trigger, generation.<name>.mode picks off, shadow or active.",
	}
	f.AddCommand(flagListCmd())
	f.AddCommand(flagSetCmd())
	return f
}

func flagListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List flags",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				snap := rt.Engine.Gate.Current()
				if viper.GetBool("json") {
					return printJSON(map[string]any{"version": snap.Version, "values": snap.Values})
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Key", "Value"})
				for k, v := range snap.Values {
					tw.AppendRow(table.Row{k, v})
				}
				tw.Render()
				fmt.Printf("version: %d\n", snap.Version)
				return nil
			})
		},
	}
	return cmd
}

func flagSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a flag",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				snap, err := rt.Engine.Gate.Set(ctx, args[0], args[1], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"version": snap.Version, "values": snap.Values})
			})
		},
	}
	return cmd
}

func statsCmd() *cobra.Command {
	var since string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Compare generations",
		Long:  "The shadow-mode readout: volumes, status mixes, acceptance rates and outcome ratings per generation.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				report, err := compare.Comparator{Repo: rt.Engine.Repo}.Build(ctx, since)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(report)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Generation", "Total", "Decided", "Acceptance", "Positive", "Negative"})
				for _, g := range report.Generations {
					tw.AppendRow(table.Row{g.Generation, g.Total, g.Decided, fmt.Sprintf("%.2f", g.AcceptanceRate), g.Outcomes["positive"], g.Outcomes["negative"]})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&since, "since", "", "RFC3339 lower bound on created_at")
	return cmd
}

func sweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one sweep pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				res, err := sweeper.New(rt.Engine).SweepOnce(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: proposals created and decided, flags flipped, settings changed.",
	}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var userID, evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				events, err := rt.Engine.Repo.LatestEvents(ctx, n, userID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&userID, "user", "", "user filter")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func apikeyCmd() *cobra.Command {
	k := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
	}
	k.AddCommand(apikeyCreateCmd())
	k.AddCommand(apikeyListCmd())
	k.AddCommand(apikeyDeleteCmd())
	return k
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				raw := uuid.NewString()
				key := domain.APIKey{
					ID:      uuid.NewString(),
					ActorID: viper.GetString("actor-id"),
					Name:    name,
					KeyHash: repo.HashAPIKey(raw),
				}
				if err := rt.Engine.Repo.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				// the raw key is shown once and never stored
				return printJSONOrTable(map[string]any{"id": key.ID, "actor_id": key.ActorID, "name": key.Name, "key": raw})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				keys, err := rt.Engine.Repo.ListAPIKeys(ctx, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "filter by actor id")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				return rt.Engine.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var devAuth bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server with the background sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			rt, err := app.Open(cmd.Context(), workspace)
			if err != nil {
				return err
			}
			defer rt.Close()
			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("NUDGELINE_JWT_SECRET"),
				AllowLegacyActorHeader: devAuth,
			}
			if authCfg.JWTSecret == "" && !devAuth {
				return fmt.Errorf("NUDGELINE_JWT_SECRET is required for bearer auth (or pass --dev-auth)")
			}
			handler, err := server.New(server.Config{Engine: rt.Engine, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			sw := sweeper.New(rt.Engine)
			if err := sw.Start(rt.Engine.Config.Sweep.Schedule); err != nil {
				return err
			}
			defer sw.Stop()
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Nudgeline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&devAuth, "dev-auth", false, "accept X-Actor-Id without credentials")
	return cmd
}

// --- helpers ---

func withRuntime(ctx context.Context, fn func(context.Context, *app.Runtime) error) error {
	rt, err := app.Open(ctx, viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
