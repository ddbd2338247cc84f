package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fieldline/internal/app"
	"fieldline/internal/domain"
)

var rootCmd = &cobra.Command{
	Use:   "fl",
	Short: "Fieldline CLI",
	Long: `Fieldline tracks recurring farm work.
- Templates: reusable task definitions with an ordered subtask checklist.
- Assignments: one template given to one worker with an assigned and due date.
- Progress: workers tick subtasks; status moves pending -> in-progress -> completed,
  and anything still open after its due date reads as overdue.
- Verification: a supervisor confirms completed work.
- Workers: the roster lives in fieldline.yml and is mirrored into the workspace.
- Event log: every change is recorded, view with 'fl log tail'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("FIELDLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	// Existing environment variables win over the workspace .env.
	_ = godotenv.Load(envPath(viper.GetString("workspace")))
	slog.SetDefault(newLogger(viper.GetString("log-level")))
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug|info|warn|error)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(templateCmd())
	rootCmd.AddCommand(assignmentCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(workerCmd())
	rootCmd.AddCommand(actorCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

// --- helpers ---

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func envPath(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".env")
}

func actorID() string {
	return strings.TrimSpace(viper.GetString("actor-id"))
}

func withWorkspace(ctx context.Context, fn func(context.Context, *app.Workspace) error) error {
	ws, err := app.Open(ctx, viper.GetString("workspace"), afero.NewOsFs(), slog.Default())
	if err != nil {
		return err
	}
	defer ws.Close()
	return fn(ctx, ws)
}

func printJSONOrPretty(v any) error {
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

// setEnvValue writes key=value into the .env file at path, keeping other keys.
func setEnvValue(path, key, value string) error {
	values, err := godotenv.Read(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if values == nil {
		values = map[string]string{}
	}
	values[key] = value
	return godotenv.Write(values, path)
}

var (
	badgeBase = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	badges    = map[domain.Status]lipgloss.Style{
		domain.StatusPending:    badgeBase.Foreground(lipgloss.Color("250")).Background(lipgloss.Color("238")),
		domain.StatusInProgress: badgeBase.Foreground(lipgloss.Color("16")).Background(lipgloss.Color("221")),
		domain.StatusCompleted:  badgeBase.Foreground(lipgloss.Color("16")).Background(lipgloss.Color("114")),
		domain.StatusOverdue:    badgeBase.Foreground(lipgloss.Color("231")).Background(lipgloss.Color("160")),
	}
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func statusBadge(s domain.Status) string {
	style, ok := badges[s]
	if !ok {
		return string(s)
	}
	return style.Render(string(s))
}

func progressBar(percent int) string {
	const width = 10
	filled := percent * width / 100
	return strings.Repeat("█", filled) + mutedStyle.Render(strings.Repeat("░", width-filled)) + fmt.Sprintf(" %3d%%", percent)
}
