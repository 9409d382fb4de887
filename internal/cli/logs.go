package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/exposerver/exposerver/internal/browse"
	"github.com/exposerver/exposerver/internal/logtail"
)

func newLogsCmd() *cobra.Command {
	var (
		interval time.Duration
		once     bool
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Follow the server's request log",
		Long: `Print the server log and keep printing new lines as they appear.

Press Enter to pause or resume following. Use --once to print the log and exit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := GetLogger()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("interval") {
				interval = cfg.LogPollInterval
			}

			client, err := browse.NewClient(cfg, nil, log)
			if err != nil {
				return err
			}

			tailer := logtail.New(client, cmd.OutOrStdout(), interval, log)
			ctx := GetContext()
			if once {
				return tailer.Poll(ctx)
			}

			if term.IsTerminal(int(os.Stdin.Fd())) {
				go togglePauseOnEnter(ctx, os.Stdin, cmd.ErrOrStderr(), tailer)
			}

			err = tailer.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "Poll interval (default: log_poll_ms from config, 2s)")
	cmd.Flags().BoolVar(&once, "once", false, "Print the current log and exit")

	return cmd
}

// togglePauseOnEnter pauses or resumes the tailer on every line read from r.
func togglePauseOnEnter(ctx context.Context, r io.Reader, w io.Writer, tailer *logtail.Tailer) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		if tailer.Toggle() {
			fmt.Fprintln(w, "-- paused, press Enter to resume --")
		} else {
			fmt.Fprintln(w, "-- following --")
		}
	}
}
