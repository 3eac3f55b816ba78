// ABOUTME: End-user CLI for the coven deck chat client
// ABOUTME: Manages the local session, chats, and projects against a deck backend

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/2389/coven-deck/internal/api"
	"github.com/2389/coven-deck/internal/app"
	"github.com/2389/coven-deck/internal/chat"
	"github.com/2389/coven-deck/internal/config"
	"github.com/2389/coven-deck/internal/store"
)

const banner = `
                                      _           _
  ___ _____   _____ _ __         ____| | ___  ___| | __
 / __/ _ \ \ / / _ \ '_ \ _____ / __' |/ _ \/ __| |/ /
| (_| (_) \ V /  __/ | | |_____| (_| |  __/ (__|   <
 \___\___/ \_/ \___|_| |_|      \__,_|\___|\___|_|\_\
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	// Load .env if present; real env always wins
	_ = godotenv.Load()

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "init":
		err = cmdInit(args)
	case "login":
		err = cmdLogin(args)
	case "signup":
		err = cmdSignup(args)
	case "login-url":
		err = cmdLoginURL(args)
	case "logout":
		err = cmdLogout()
	case "whoami":
		err = cmdWhoami()
	case "chats":
		err = cmdChats(args)
	case "projects":
		err = cmdProjects(args)
	case "send":
		err = cmdSend(args)
	case "export":
		err = cmdExport(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: coven-deck <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  init                          Write a starter config file")
	fmt.Println("  login <email>                 Sign in with a password (prompted)")
	fmt.Println("  signup <email> <name>         Create an account and sign in")
	fmt.Println("  login-url <provider>          Print the OAuth authorize URL")
	fmt.Println("  logout                        Sign out and clear the local session")
	fmt.Println("  whoami                        Show the active session")
	fmt.Println("  chats                         List your chats grouped by project")
	fmt.Println("  chats move <chat> <project>   Move a chat into a project ('-' to ungroup)")
	fmt.Println("  chats rm <chat>               Delete a chat")
	fmt.Println("  projects                      List your projects")
	fmt.Println("  projects create <name>        Create a project")
	fmt.Println("  projects rename <id> <name>   Rename a project")
	fmt.Println("  projects rm <id>              Delete a project (chats survive ungrouped)")
	fmt.Println("  send [--chat <id>] <message>  Send a message, streaming the reply")
	fmt.Println("  export <chat> [file]          Export a chat transcript as HTML")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  COVEN_DECK_CONFIG             Config file path (default: XDG config dir)")
	fmt.Println()
	yellow.Println("Examples:")
	fmt.Println("  coven-deck init")
	fmt.Println("  coven-deck login fern@example.com")
	fmt.Println("  coven-deck projects create 'Research'")
	fmt.Println("  coven-deck send --chat abc123 'summarize the last paper'")
	fmt.Println()
}

// newApp loads config, builds the logger, and assembles an initialized App.
// The returned cleanup must run before process exit.
func newApp(ctx context.Context) (*app.App, func(), error) {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return nil, nil, fmt.Errorf("loading config (run 'coven-deck init'?): %w", err)
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		return nil, nil, err
	}

	a, err := app.New(cfg, app.Options{Logger: logger})
	if err != nil {
		return nil, nil, err
	}
	a.Initialize(ctx)

	return a, func() { _ = a.Close() }, nil
}

func buildLogger(cfg *config.Config) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Logging.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler), nil
}

// cmdInit writes a starter config file, refusing to clobber an existing one.
func cmdInit(args []string) error {
	path := config.DefaultPath()
	if len(args) > 0 {
		path = args[0]
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	starter := `identity:
  mode: remote
  url: "${COVEN_IDENTITY_URL}"
  api_key: "${COVEN_IDENTITY_KEY}"

api:
  url: "${COVEN_API_URL}"

database:
  path: "` + config.DefaultDataPath() + `"

logging:
  level: info
  format: text
`
	if err := os.WriteFile(path, []byte(starter), 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Wrote config to %s\n", path)
	fmt.Println("  Edit it (or set the COVEN_* environment variables) before logging in.")
	return nil
}

// cmdLogin signs in with email and a password read from stdin.
func cmdLogin(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: login <email>")
	}
	email := args[0]

	password, err := promptPassword("Password: ")
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, cleanup, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := a.Sessions.SignInWithPassword(ctx, email, password); err != nil {
		return err
	}

	sess, _ := a.Sessions.Current()
	green := color.New(color.FgGreen)
	green.Printf("✓ Signed in as %s\n", sess.Email)
	return nil
}

// cmdSignup creates an account and signs in.
func cmdSignup(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: signup <email> <display-name>")
	}
	email := args[0]
	displayName := strings.Join(args[1:], " ")

	password, err := promptPassword("Choose a password: ")
	if err != nil {
		return err
	}
	confirm, err := promptPassword("Confirm password: ")
	if err != nil {
		return err
	}
	if password != confirm {
		return fmt.Errorf("passwords do not match")
	}

	ctx := context.Background()
	a, cleanup, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := a.Sessions.SignUpWithPassword(ctx, email, password, displayName); err != nil {
		return err
	}

	sess, _ := a.Sessions.Current()
	green := color.New(color.FgGreen)
	green.Printf("✓ Account created, signed in as %s\n", sess.Email)
	return nil
}

// cmdLoginURL prints the OAuth authorize URL for an out-of-band browser flow.
func cmdLoginURL(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: login-url <provider> [redirect-url]")
	}
	provider := args[0]
	redirect := "http://localhost:8765/callback"
	if len(args) > 1 {
		redirect = args[1]
	}

	ctx := context.Background()
	a, cleanup, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	url, err := a.Sessions.SignInWithOAuthRedirect(provider, redirect)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("Open this URL in your browser to sign in:")
	fmt.Println()
	fmt.Println("  " + url)
	fmt.Println()
	return nil
}

// cmdLogout signs out. Local state clears even when the remote call fails.
func cmdLogout() error {
	ctx := context.Background()
	a, cleanup, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	err = a.Sessions.SignOut(ctx)
	green := color.New(color.FgGreen)
	green.Println("✓ Signed out")
	if err != nil {
		color.Yellow("  (remote sign-out failed: %v)", err)
	}
	return nil
}

// cmdWhoami shows the active session.
func cmdWhoami() error {
	ctx := context.Background()
	a, cleanup, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	sess, ok := a.Sessions.Current()
	if !ok {
		fmt.Println("Not signed in.")
		return nil
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Session")
	cyan.Println("  -------")
	fmt.Printf("  User ID:   %s\n", sess.UserID)
	fmt.Printf("  Email:     %s\n", sess.Email)
	if sess.DisplayName != "" {
		fmt.Printf("  Name:      %s\n", sess.DisplayName)
	}
	if !sess.ExpiresAt.IsZero() {
		fmt.Printf("  Expires:   %s\n", sess.ExpiresAt.Format(time.RFC3339))
	}
	fmt.Println()
	return nil
}

// cmdChats handles chat subcommands.
func cmdChats(args []string) error {
	subcmd := "list"
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	switch subcmd {
	case "list", "ls":
		return cmdChatsList()
	case "move", "mv":
		return cmdChatsMove(args)
	case "delete", "rm", "remove":
		return cmdChatsDelete(args)
	default:
		return fmt.Errorf("unknown chats subcommand: %s (use list, move, rm)", subcmd)
	}
}

// cmdChatsList prints chats grouped by project, newest first within each group.
func cmdChatsList() error {
	ctx := context.Background()
	a, cleanup, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	grouped := a.Chats.Grouped()
	projects := a.Chats.Projects()

	cyan := color.New(color.FgCyan)
	fmt.Println()

	total := 0
	printGroup := func(title string, key string) {
		chats := grouped[key]
		if len(chats) == 0 {
			return
		}
		total += len(chats)
		cyan.Printf("  %s\n", title)
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, c := range chats {
			updated := c.UpdatedAt.Format("Jan 02 15:04")
			fmt.Fprintf(w, "    %s\t%s\t%s\n", truncate(c.ID, 12), truncate(c.Title, 48), updated)
		}
		w.Flush()
		fmt.Println()
	}

	for _, p := range projects {
		printGroup(p.Name, p.ID)
	}
	printGroup("(ungrouped)", chat.GroupUngrouped)

	if total == 0 {
		fmt.Println("  (no chats)")
		fmt.Println()
	}
	return nil
}

// cmdChatsMove moves a chat into a project, or ungroups it with "-".
func cmdChatsMove(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: chats move <chat-id> <project-id | ->")
	}
	chatID := args[0]

	var projectID *string
	if args[1] != "-" {
		projectID = &args[1]
	}

	ctx := context.Background()
	a, cleanup, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := a.Chats.MoveChatToProject(ctx, chatID, projectID); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	if projectID == nil {
		green.Printf("✓ Moved chat %s out of its project\n", chatID)
	} else {
		green.Printf("✓ Moved chat %s into project %s\n", chatID, *projectID)
	}
	return nil
}

// cmdChatsDelete removes a chat locally and on the backend.
func cmdChatsDelete(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: chats rm <chat-id>")
	}
	chatID := args[0]

	ctx := context.Background()
	a, cleanup, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := a.Backend.DeleteChat(ctx, chatID); err != nil {
		color.Yellow("  backend delete failed: %v", err)
	}
	if err := a.Chats.DeleteChat(ctx, chatID); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Deleted chat %s\n", chatID)
	return nil
}

// cmdProjects handles project subcommands.
func cmdProjects(args []string) error {
	subcmd := "list"
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	switch subcmd {
	case "list", "ls":
		return cmdProjectsList()
	case "create", "add":
		return cmdProjectsCreate(args)
	case "rename", "mv":
		return cmdProjectsRename(args)
	case "delete", "rm", "remove":
		return cmdProjectsDelete(args)
	default:
		return fmt.Errorf("unknown projects subcommand: %s (use list, create, rename, rm)", subcmd)
	}
}

// cmdProjectsList lists the user's projects with chat counts.
func cmdProjectsList() error {
	ctx := context.Background()
	a, cleanup, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	projects := a.Chats.Projects()
	grouped := a.Chats.Grouped()

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Projects")
	cyan.Println("  --------")

	if len(projects) == 0 {
		fmt.Println("  (no projects)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tNAME\tCHATS\tCREATED")
	fmt.Fprintln(w, "  --\t----\t-----\t-------")
	for _, p := range projects {
		created := p.CreatedAt.Format("Jan 02 15:04")
		fmt.Fprintf(w, "  %s\t%s\t%d\t%s\n", truncate(p.ID, 12), truncate(p.Name, 32), len(grouped[p.ID]), created)
	}
	w.Flush()
	fmt.Println()
	return nil
}

// cmdProjectsCreate creates a project.
func cmdProjectsCreate(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: projects create <name>")
	}
	name := strings.Join(args, " ")

	ctx := context.Background()
	a, cleanup, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	proj, err := a.Chats.CreateProject(ctx, name)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Created project: %s\n", proj.ID)
	fmt.Printf("  Name: %s\n", proj.Name)
	return nil
}

// cmdProjectsRename renames a project.
func cmdProjectsRename(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: projects rename <project-id> <new-name>")
	}
	projectID := args[0]
	name := strings.Join(args[1:], " ")

	ctx := context.Background()
	a, cleanup, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := a.Chats.RenameProject(ctx, projectID, name); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Renamed project %s to %q\n", projectID, name)
	return nil
}

// cmdProjectsDelete deletes a project; its chats survive ungrouped.
func cmdProjectsDelete(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: projects rm <project-id>")
	}
	projectID := args[0]

	ctx := context.Background()
	a, cleanup, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := a.Chats.DeleteProject(ctx, projectID); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Deleted project %s (chats kept, ungrouped)\n", projectID)
	return nil
}

// cmdSend submits a message and prints the assistant's reply.
func cmdSend(args []string) error {
	var chatID, model string
	var rest []string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--chat", "-c":
			if i+1 < len(args) {
				chatID = args[i+1]
				i++
			}
		case "--model", "-m":
			if i+1 < len(args) {
				model = args[i+1]
				i++
			}
		default:
			rest = append(rest, args[i])
		}
	}

	if len(rest) == 0 {
		return fmt.Errorf("usage: send [--chat <id>] [--model <name>] <message>")
	}
	message := strings.Join(rest, " ")

	ctx := context.Background()
	a, cleanup, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if _, ok := a.Sessions.Current(); !ok {
		return fmt.Errorf("not signed in (run 'coven-deck login')")
	}

	if model == "" {
		model = a.Prefs.SelectedModel
	}

	transcript, err := a.Backend.SendMessage(ctx, &api.SendRequest{
		Message:      message,
		ChatID:       chatID,
		Model:        model,
		EnabledTools: a.Prefs.EnabledTools,
	})
	if err != nil {
		return err
	}

	// Keep the local chat index current so lists reflect the new activity
	if err := syncChatFromTranscript(ctx, a, transcript); err != nil {
		color.Yellow("  local index update failed: %v", err)
	}

	if len(transcript.Messages) > 0 {
		last := transcript.Messages[len(transcript.Messages)-1]
		fmt.Println()
		fmt.Println(last.Content)
		fmt.Println()
	}
	dim := color.New(color.Faint)
	dim.Printf("chat: %s\n", transcript.ChatID)
	return nil
}

// syncChatFromTranscript upserts the chat's local index row after a send.
func syncChatFromTranscript(ctx context.Context, a *app.App, t *api.Transcript) error {
	sess, ok := a.Sessions.Current()
	if !ok {
		return nil
	}
	return a.Chats.RecordChat(ctx, &store.Chat{
		ID:        t.ChatID,
		Title:     t.Title,
		UserID:    sess.UserID,
		UpdatedAt: time.Now().UTC(),
	})
}

// cmdExport writes a chat transcript as standalone HTML.
func cmdExport(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: export <chat-id> [output-file]")
	}
	chatID := args[0]

	ctx := context.Background()
	a, cleanup, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	transcript, err := a.Backend.GetChat(ctx, chatID)
	if err != nil {
		return err
	}

	html, err := transcript.RenderHTML()
	if err != nil {
		return fmt.Errorf("rendering transcript: %w", err)
	}

	var out io.Writer = os.Stdout
	if len(args) > 1 {
		f, err := os.Create(args[1])
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	if _, err := io.WriteString(out, html); err != nil {
		return fmt.Errorf("writing transcript: %w", err)
	}

	if len(args) > 1 {
		green := color.New(color.FgGreen)
		green.Printf("✓ Exported chat %s to %s\n", chatID, args[1])
	}
	return nil
}

// promptPassword reads a line from stdin. Echo is left on; deck is meant
// for interactive terminals where piping a password in is also common.
func promptPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("no password entered")
	}
	fmt.Println()
	pw := strings.TrimSpace(scanner.Text())
	if pw == "" {
		return "", fmt.Errorf("password must not be empty")
	}
	return pw, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
