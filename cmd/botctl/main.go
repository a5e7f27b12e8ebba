package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nikhilbhutani/botfleet/internal/auth"
	"github.com/nikhilbhutani/botfleet/internal/config"
	"github.com/nikhilbhutani/botfleet/internal/models"
	"github.com/nikhilbhutani/botfleet/internal/tenant"
)

var rootCmd = &cobra.Command{
	Use:   "botctl",
	Short: "Operator CLI for the bot fleet console",
	Long: `botctl talks to a running console API.
- token: mint a development session token signed with JWT_SECRET.
- tools: print the tool catalog.
- call: run one tool with JSON arguments.
- chat: ask the assistant, which runs tools on your behalf.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	rootCmd.AddCommand(tokenCmd(), toolsCmd(), callCmd(), chatCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("BOTCTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().String("server", "http://localhost:8080", "console API base URL")
	rootCmd.PersistentFlags().String("token", "", "session token (or BOTCTL_TOKEN)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func newClient() *client {
	return &client{
		baseURL: strings.TrimRight(viper.GetString("server"), "/"),
		token:   viper.GetString("token"),
	}
}

func tokenCmd() *cobra.Command {
	var (
		orgID, userID, role string
		ttl                 time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a session token for development",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			org := cfg.Server.DevOrgID
			if orgID != "" {
				if org, err = uuid.Parse(orgID); err != nil {
					return fmt.Errorf("invalid --org: %w", err)
				}
			}
			user := uuid.New()
			if userID != "" {
				if user, err = uuid.Parse(userID); err != nil {
					return fmt.Errorf("invalid --user: %w", err)
				}
			}
			if !auth.ValidRole(role) {
				return fmt.Errorf("invalid --role %q", role)
			}
			if ttl <= 0 {
				ttl = cfg.Auth.TokenTTL
			}

			tok, err := auth.IssueToken(cfg.Auth.JWTSecret, cfg.Auth.Issuer,
				tenant.Actor{OrgID: org, UserID: user, Role: role}, ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "organization id (default DEV_ORG_ID)")
	cmd.Flags().StringVar(&userID, "user", "", "user id (default random)")
	cmd.Flags().StringVar(&role, "role", models.RoleAdmin, "admin or member")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default JWT_TTL)")
	return cmd
}

func toolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tool catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := newClient().catalog(cmd.Context())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cmd, catalog)
			}
			renderCatalog(cmd, catalog)
			return nil
		},
	}
}

func callCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "call <tool> [json-args]",
		Short: "Run a tool",
		Example: `  botctl call promoteBot '{"botName":"lint-bot"}'
  botctl call listBots`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := "{}"
			if len(args) == 2 {
				body = args[1]
			}
			if !json.Valid([]byte(body)) {
				return fmt.Errorf("arguments must be a JSON object")
			}
			res, err := newClient().call(cmd.Context(), args[0], json.RawMessage(body))
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat <message>",
		Short: "Ask the assistant",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newClient().chat(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cmd, resp)
			}
			if len(resp.Steps) > 0 {
				tw := table.NewWriter()
				tw.SetOutputMirror(cmd.OutOrStdout())
				tw.AppendHeader(table.Row{"Step", "Action", "Observation"})
				for _, s := range resp.Steps {
					if s.Action == "" {
						continue
					}
					tw.AppendRow(table.Row{s.StepNumber, s.Action, truncate(s.Observation, 80)})
				}
				tw.Render()
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Answer)
			return nil
		},
	}
}

func renderCatalog(cmd *cobra.Command, catalog []toolDescriptor) {
	tw := table.NewWriter()
	tw.SetOutputMirror(cmd.OutOrStdout())
	tw.AppendHeader(table.Row{"Tool", "Arguments", "Description"})
	for _, t := range catalog {
		tw.AppendRow(table.Row{t.Name, t.argSummary(), truncate(t.Description, 70)})
	}
	tw.Render()
}

func (t toolDescriptor) argSummary() string {
	required := make(map[string]bool, len(t.Parameters.Required))
	for _, r := range t.Parameters.Required {
		required[r] = true
	}
	names := make([]string, 0, len(t.Parameters.Properties))
	for name := range t.Parameters.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	for i, n := range names {
		if !required[n] {
			names[i] = n + "?"
		}
	}
	return strings.Join(names, ", ")
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
