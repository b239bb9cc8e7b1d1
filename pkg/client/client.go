package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// Shell is an interactive session. While it runs, connectivity is probed in
// the background and the queue is replayed whenever the backend comes back.
type Shell struct {
	app *App
	rl  *readline.Instance
}

// NewShell attaches a readline prompt to app. User output of app is
// redirected through the prompt so background notices do not garble input.
func NewShell(app *App) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		HistoryFile:     filepath.Join(app.opts.DataDir, "history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, err
	}
	app.out = rl.Stdout()
	return &Shell{app: app, rl: rl}, nil
}

func (s *Shell) Close() error {
	return s.rl.Close()
}

// Run reads commands until exit, EOF or ctx cancellation.
func (s *Shell) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.app.Monitor.Run(ctx)
	})

	stopWatch := s.app.Drainer.Watch(ctx, s.app.Monitor)
	stopPrompt := s.app.Monitor.OnChange(func(bool) {
		s.refreshPrompt(ctx)
		s.rl.Refresh()
	})

	g.Go(func() error {
		<-ctx.Done()
		// unblocks Readline
		return s.rl.Close()
	})
	g.Go(func() error {
		defer cancel()
		return s.loop(ctx)
	})

	err := g.Wait()
	stopPrompt()
	stopWatch()
	s.app.Drainer.Wait()
	if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Shell) loop(ctx context.Context) error {
	out := s.rl.Stdout()
	fmt.Fprintln(out, `Type "help" for commands, "exit" to leave.`)
	if err := s.app.CatchUp(ctx); err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
	}

	for {
		s.refreshPrompt(ctx)
		line, err := s.rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		args, err := splitArgs(line)
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		}
		if len(args) == 0 {
			continue
		}
		if args[0] == "exit" || args[0] == "quit" {
			return nil
		}
		if err := s.execute(ctx, args); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
		}
	}
}

// execute runs one line against a fresh command tree so flag values do not
// leak from one line to the next.
func (s *Shell) execute(ctx context.Context, args []string) error {
	out := s.rl.Stdout()
	root := &cobra.Command{
		Use:           "",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs(args)
	root.AddCommand(commands(func() *App { return s.app })...)

	if cmd, _, err := root.Find(args); err == nil && cmd != root && !skipsCatchUp(cmd) {
		if err := s.app.CatchUp(ctx); err != nil {
			return err
		}
	}
	return root.ExecuteContext(ctx)
}

func (s *Shell) refreshPrompt(ctx context.Context) {
	state := "offline"
	if s.app.Monitor.IsOnline() {
		state = "online"
	}
	prompt := fmt.Sprintf("[%s] > ", state)
	if stats, err := s.app.Queue.Stats(ctx); err == nil && stats.Pending+stats.Replaying > 0 {
		prompt = fmt.Sprintf("[%s, %d queued] > ", state, stats.Pending+stats.Replaying)
	}
	s.rl.SetPrompt(prompt)
}

func newShellCommand(get func() *App) *cobra.Command {
	return &cobra.Command{
		Use:         "shell",
		Short:       "Interactive session that syncs in the background",
		Args:        cobra.NoArgs,
		Annotations: noCatchUp,
		RunE: func(cmd *cobra.Command, args []string) error {
			sh, err := NewShell(get())
			if err != nil {
				return err
			}
			defer sh.Close()
			return sh.Run(cmd.Context())
		},
	}
}

// splitArgs splits a command line on whitespace. Single and double quotes
// group words and a backslash escapes the next character outside single quotes.
func splitArgs(line string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)
	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\' && quote != '\'':
			escaped = true
			inWord = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inWord = true
		case r == ' ' || r == '\t':
			if inWord {
				args = append(args, cur.String())
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteRune(r)
			inWord = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote", quote)
	}
	if escaped {
		return nil, errors.New("dangling escape at end of line")
	}
	if inWord {
		args = append(args, cur.String())
	}
	return args, nil
}
