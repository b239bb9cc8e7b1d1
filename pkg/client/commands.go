package client

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/wurt83ow/backoffice-client/pkg/config"
	"github.com/wurt83ow/backoffice-client/pkg/session"
)

// Commands annotated with this key do not replay the queue before running.
const annotationNoCatchUp = "backoffice/no-catch-up"

var noCatchUp = map[string]string{annotationNoCatchUp: "true"}

// NewRootCommand builds the backoffice command tree over the environment
// configuration.
func NewRootCommand() (*cobra.Command, error) {
	opts, err := config.NewConfig()
	if err != nil {
		return nil, err
	}
	return newRootCommand(opts), nil
}

func newRootCommand(opts *config.Options) *cobra.Command {
	var app *App
	get := func() *App { return app }
	release := func() error {
		if app == nil {
			return nil
		}
		err := app.Close()
		app = nil
		return err
	}

	root := &cobra.Command{
		Use:          "backoffice",
		Short:        "Restaurant back-office client that keeps working offline",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a, err := NewApp(cmd.Context(), opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			app = a
			if skipsCatchUp(cmd) {
				return nil
			}
			if err := app.CatchUp(cmd.Context()); err != nil {
				return errors.Join(err, release())
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return release()
		},
	}
	opts.BindFlags(root.PersistentFlags())

	root.AddCommand(commands(get)...)
	root.AddCommand(newShellCommand(get))
	releaseOnError(root, release)
	return root
}

// releaseOnError closes the app when a command fails, since cobra skips
// post-run hooks in that case.
func releaseOnError(cmd *cobra.Command, release func() error) {
	if run := cmd.RunE; run != nil {
		cmd.RunE = func(c *cobra.Command, args []string) error {
			if err := run(c, args); err != nil {
				return errors.Join(err, release())
			}
			return nil
		}
	}
	for _, c := range cmd.Commands() {
		releaseOnError(c, release)
	}
}

// commands returns every command usable both from the command line and the shell.
func commands(get func() *App) []*cobra.Command {
	return []*cobra.Command{
		newLoginCommand(get),
		newLogoutCommand(get),
		newStatusCommand(get),
		newSyncCommand(get),
		newInventoryCommand(get),
		newSurplusCommand(get),
		newSpoilageCommand(get),
		newMenuCommand(get),
		newSalesCommand(get),
		newQueueCommand(get),
	}
}

func skipsCatchUp(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[annotationNoCatchUp] != "" {
			return true
		}
	}
	return false
}

func newLoginCommand(get func() *App) *cobra.Command {
	var username, token string
	cmd := &cobra.Command{
		Use:         "login",
		Short:       "Store the bearer token used for backend requests",
		Args:        cobra.NoArgs,
		Annotations: noCatchUp,
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				t, err := readSecret("Enter token: ")
				if err != nil {
					return err
				}
				token = strings.TrimSpace(t)
			}
			s, err := get().Session.Save(username, token)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", displayName(s))
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "user", "u", "", "user name shown in the session")
	cmd.Flags().StringVar(&token, "token", "", "bearer token; prompted for when empty")
	return cmd
}

func readSecret(prompt string) (string, error) {
	rl, err := readline.NewEx(&readline.Config{Prompt: prompt, EnableMask: true})
	if err != nil {
		return "", err
	}
	defer rl.Close()
	return rl.Readline()
}

func displayName(s session.Session) string {
	if s.Username == "" {
		return "(token)"
	}
	return s.Username
}

func newLogoutCommand(get func() *App) *cobra.Command {
	return &cobra.Command{
		Use:         "logout",
		Short:       "Forget the stored token",
		Args:        cobra.NoArgs,
		Annotations: noCatchUp,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := get().Session.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func newStatusCommand(get func() *App) *cobra.Command {
	return &cobra.Command{
		Use:         "status",
		Short:       "Show connectivity, session, queue and last sync",
		Args:        cobra.NoArgs,
		Annotations: noCatchUp,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := get()
			out := cmd.OutOrStdout()

			state := "offline"
			if app.Monitor.IsOnline() {
				state = "online"
			}
			fmt.Fprintf(out, "Server:    %s (%s)\n", app.opts.ServerURL, state)

			s, err := app.Session.Load()
			switch {
			case err == nil:
				fmt.Fprintf(out, "Session:   %s since %s\n", displayName(s), s.Start.Local().Format(timeLayout))
			case errors.Is(err, session.ErrSessionExpired):
				fmt.Fprintln(out, "Session:   expired, run login")
			default:
				fmt.Fprintln(out, "Session:   none")
			}

			stats, err := app.Queue.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if stats.Total() == 0 {
				fmt.Fprintln(out, "Queue:     empty")
			} else {
				fmt.Fprintf(out, "Queue:     %d pending, %d abandoned\n", stats.Pending+stats.Replaying, stats.Abandoned)
			}

			// A running shell may have drained since this process started.
			info, err := app.Sync.LoadSyncInfoFromFile()
			if err != nil {
				info = app.Sync.GetSyncInfo()
			}
			printSyncInfo(out, info)
			return nil
		},
	}
}

func newSyncCommand(get func() *App) *cobra.Command {
	return &cobra.Command{
		Use:         "sync",
		Short:       "Replay queued writes now",
		Args:        cobra.NoArgs,
		Annotations: noCatchUp,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := get()
			if !app.Monitor.IsOnline() {
				return errors.New("backend is unreachable, nothing was replayed")
			}
			report, err := app.Drainer.SyncNow(cmd.Context())
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
}
