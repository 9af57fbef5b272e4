package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"botfleet/internal/app"
	"botfleet/internal/config"
	"botfleet/internal/db"
	"botfleet/internal/gateway"
	"botfleet/internal/migrate"
	"botfleet/internal/notify"
	"botfleet/internal/repo"
)

var rootCmd = &cobra.Command{
	Use:   "fleet",
	Short: "Bot fleet telemetry gateway",
	Long: `fleet runs the telemetry and ingestion gateway for a bot fleet.
Bots authenticate with issued tokens and report heartbeats, status
transitions, logs, media, subscribers and farmed social accounts.
Offline and error transitions land on the notification feed and are
forwarded to the configured owner channel.`,
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
	viper.SetEnvPrefix("FLEET")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(botCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(notificationCmd())
	rootCmd.AddCommand(mediaCmd())
	rootCmd.AddCommand(configCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("base-path") {
				cfg.Server.BasePath = basePath
			}
			if secret := os.Getenv("FLEET_JWT_SECRET"); secret != "" {
				cfg.Auth.JWTSecret = secret
			}
			a, err := app.New(workspace, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: a.Handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving fleet gateway on http://%s (bot API at /api/bot, typed API under %s)\n", cfg.Server.Addr, cfg.Server.BasePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "typed API base path")
	return cmd
}

func botCmd() *cobra.Command {
	bot := &cobra.Command{Use: "bot", Short: "Manage bots"}
	bot.AddCommand(botCreateCmd())
	bot.AddCommand(botListCmd())
	bot.AddCommand(botShowCmd())
	bot.AddCommand(botSetStatusCmd())
	bot.AddCommand(botLogsCmd())
	return bot
}

func botCreateCmd() *cobra.Command {
	var opts gateway.BotCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGateway(cmd.Context(), func(ctx context.Context, gw gateway.Gateway) error {
				bot, err := gw.CreateBot(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(bot)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "bot display name")
	cmd.Flags().StringVar(&opts.Type, "type", "", "bot type (payment, media_capture, distributor, cloner, account_creator, social_poster, monitor, vip_filler)")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.Config, "config-json", "", "opaque config JSON")
	cmd.Flags().StringVar(&opts.Hosting, "hosting", "vps", "hosting (discloud, vps, local)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func botListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List bots",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				bots, err := r.ListBots(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(bots)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Type", "Status", "Last heartbeat", "Ops", "Errors"})
				for _, b := range bots {
					heartbeat := ""
					if b.LastHeartbeat != nil {
						heartbeat = *b.LastHeartbeat
					}
					tw.AppendRow(table.Row{b.ID, b.Name, b.Type, b.Status, heartbeat, b.TotalOperations, b.ErrorCount})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func botShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a bot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				bot, err := r.GetBot(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(bot)
			})
		},
	}
	return cmd
}

func botSetStatusCmd() *cobra.Command {
	var status, activity string
	cmd := &cobra.Command{
		Use:   "set-status <id>",
		Short: "Set bot status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withGateway(cmd.Context(), func(ctx context.Context, gw gateway.Gateway) error {
				if err := gw.SetBotStatusByID(ctx, id, status, activity); err != nil {
					return err
				}
				bot, err := gw.Repo.GetBot(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(bot)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "new status (online, offline, error, idle)")
	cmd.Flags().StringVar(&activity, "activity", "", "last activity text")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func botLogsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "logs <id>",
		Short: "Show bot log lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				logs, err := r.ListBotLogs(ctx, id, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(logs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Time", "Level", "Message"})
				for _, l := range logs {
					tw.AppendRow(table.Row{l.CreatedAt, l.Level, l.Message})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "n", 100, "number of lines")
	return cmd
}

func tokenCmd() *cobra.Command {
	token := &cobra.Command{Use: "token", Short: "Manage bot tokens"}
	token.AddCommand(tokenIssueCmd())
	token.AddCommand(tokenListCmd())
	token.AddCommand(tokenRevokeCmd())
	return token
}

func tokenIssueCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "issue <bot-id>",
		Short: "Issue a token for a bot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			botID, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if _, err := r.GetBot(ctx, botID); err != nil {
					return err
				}
				token, err := r.IssueToken(ctx, botID, name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(token)
				}
				fmt.Printf("Token %d for bot %d: %s\n", token.ID, token.BotID, token.Token)
				fmt.Println("Store it now; the value is only shown in full here and via the admin API.")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "token label")
	return cmd
}

func tokenListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <bot-id>",
		Short: "List tokens for a bot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			botID, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				tokens, err := r.ListTokensByBot(ctx, botID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tokens)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Active", "Last used", "Created"})
				for _, t := range tokens {
					lastUsed := ""
					if t.LastUsedAt != nil {
						lastUsed = *t.LastUsedAt
					}
					tw.AppendRow(table.Row{t.ID, t.Name, t.IsActive, lastUsed, t.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func tokenRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <token-id>",
		Short: "Revoke a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.RevokeToken(ctx, id)
			})
		},
	}
	return cmd
}

func notificationCmd() *cobra.Command {
	n := &cobra.Command{Use: "notification", Short: "Notification feed"}
	n.AddCommand(notificationListCmd())
	n.AddCommand(notificationReadCmd())
	return n
}

func notificationListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListNotifications(ctx, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Title", "Read", "Created"})
				for _, n := range items {
					tw.AppendRow(table.Row{n.ID, n.Type, n.Title, n.IsRead, n.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "n", 50, "number of notifications")
	return cmd
}

func notificationReadCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "read [id]",
		Short: "Mark notifications read",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if all {
					return r.MarkAllNotificationsRead(ctx)
				}
				if len(args) == 0 {
					return fmt.Errorf("notification id or --all required")
				}
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				return r.MarkNotificationRead(ctx, id)
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "mark every notification read")
	return cmd
}

func mediaCmd() *cobra.Command {
	m := &cobra.Command{Use: "media", Short: "Media queue"}
	m.AddCommand(mediaListCmd())
	return m
}

func mediaListCmd() *cobra.Command {
	var status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List media queue entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListMedia(ctx, status, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Status", "Type", "Source", "URL", "Created"})
				for _, it := range items {
					tw.AppendRow(table.Row{it.ID, it.Status, it.MediaType, it.Source, it.SourceURL, it.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter (pending, posted, failed, skipped)")
	cmd.Flags().IntVar(&limit, "n", 50, "number of entries")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Workspace configuration"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default fleet.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
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

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

// --- helpers ---

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

// withGateway builds a gateway whose escalations land on the feed and on
// the configured owner channel, same as the server.
func withGateway(ctx context.Context, fn func(context.Context, gateway.Gateway) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	owner, err := notify.ChannelFromConfig(cfg.Owner)
	if err != nil {
		return err
	}
	notifier := notify.New(repo.Repo{DB: conn}, owner, cfg.Owner.RatePerSecond, nil)
	defer notifier.Close()
	return fn(ctx, gateway.New(conn, notifier))
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

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
