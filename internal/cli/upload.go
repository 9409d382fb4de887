package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/exposerver/exposerver/internal/browse"
	"github.com/exposerver/exposerver/internal/config"
	"github.com/exposerver/exposerver/internal/constants"
	"github.com/exposerver/exposerver/internal/events"
	"github.com/exposerver/exposerver/internal/intake"
	"github.com/exposerver/exposerver/internal/transfer"
)

func newUploadCmd() *cobra.Command {
	var (
		target string
		name   string
	)

	cmd := &cobra.Command{
		Use:   "upload <file|glob|->...",
		Short: "Upload files, all at once, each with its own progress bar",
		Long: `Upload one or more files. Every file starts immediately and in parallel.

Targets (--to):
  (default)               the configured exposerver, POST /upload
  http(s)://host:port     another exposerver
  s3://bucket/prefix      Amazon S3 or an S3-compatible store (s3_endpoint)
  azblob://container/dir  Azure Blob Storage

Use - to upload standard input under --name.

While uploads run, type a file's identifier (its name without punctuation,
e.g. reportpdf) and press Enter to cancel it, or "all" to cancel everything.`,
		Example: `  exposerver upload report.pdf photos/*.jpg
  exposerver upload --to s3://backups/today dump.sql
  tar cz logs | exposerver upload --name logs.tgz -`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := GetLogger()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := GetContext()

			files, err := collectFiles(args, name)
			if err != nil {
				return err
			}

			session, err := newUploadSession(ctx, cfg, target, log)
			if err != nil {
				return err
			}

			tickets := session.manager.SubmitBatch(ctx, files)
			log.Debug().Int("files", len(tickets)).Str("target", target).Msg("Batch submitted")

			if term.IsTerminal(int(os.Stdin.Fd())) {
				go session.listenForCancels(ctx, os.Stdin, session.ui.LogWriter())
			}

			return session.finish(cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&target, "to", "", "Upload target (default: configured server)")
	cmd.Flags().StringVar(&name, "name", "stdin", "File name used when uploading standard input")

	return cmd
}

// collectFiles expands args into files; "-" stands for standard input.
func collectFiles(args []string, stdinName string) ([]intake.File, error) {
	var patterns []string
	var files []intake.File
	for _, arg := range args {
		if arg == "-" {
			files = append(files, intake.FromReader(stdinName, os.Stdin))
			continue
		}
		patterns = append(patterns, arg)
	}
	if len(patterns) > 0 {
		fromPaths, err := intake.FromPaths(patterns)
		if err != nil {
			if errors.Is(err, intake.ErrIsDirectory) {
				return nil, fmt.Errorf("%w (use 'watch' to upload what lands in a directory)", err)
			}
			return nil, err
		}
		files = append(fromPaths, files...)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no files matched %s", strings.Join(args, " "))
	}
	return files, nil
}

func newWatchCmd() *cobra.Command {
	var (
		target   string
		debounce time.Duration
		saveLog  bool
	)

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Upload every file created or written in a directory",
		Long: `Watch a directory and upload each file that appears or changes in it.

Files written in quick succession are submitted as one batch once their size
has settled. Dot-files are ignored. Runs until Ctrl+C, which also cancels
uploads still in flight.

--save-log appends one line per started, finished or served upload and per
warning to watch-YYYY-MM-DD.log in the log directory.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := GetLogger()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := GetContext()

			session, err := newUploadSession(ctx, cfg, target, log, transfer.WithRetention(constants.WatchRetention))
			if err != nil {
				return err
			}
			if saveLog {
				f, err := openWatchLog()
				if err != nil {
					return err
				}
				defer f.Close()
				session.keepJournal(f)
				log.Info().Str("file", f.Name()).Msg("Saving upload journal")
			}

			// The listing is only known for the configured server
			if target == "" {
				client, err := browse.NewClient(cfg, nil, log)
				if err != nil {
					return err
				}
				go followListing(ctx, session.bus, client)
			}
			if term.IsTerminal(int(os.Stdin.Fd())) {
				go session.listenForCancels(ctx, os.Stdin, session.ui.LogWriter())
			}

			watcher := intake.NewWatcher(args[0], debounce, log)
			log.Info().Str("dir", args[0]).Msg("Watching for new files")
			err = watcher.Run(ctx, func(ctx context.Context, files []intake.File) {
				session.manager.SubmitBatch(ctx, files)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return session.finish(cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&target, "to", "", "Upload target (default: configured server)")
	cmd.Flags().DurationVar(&debounce, "debounce", constants.WatchDebounce, "Quiet period before a batch is submitted")
	cmd.Flags().BoolVar(&saveLog, "save-log", false, "Append an upload journal to a dated file in the log directory")

	return cmd
}

// openWatchLog opens (appending) today's journal in the log directory.
func openWatchLog() (*os.File, error) {
	if err := config.EnsureLogDirectory(); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	name := filepath.Join(config.LogDirectory(), "watch-"+time.Now().Format("2006-01-02")+".log")
	f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

// followListing reports each upload once the server lists it, the way the
// web page reloads its listing.
func followListing(ctx context.Context, bus *events.EventBus, client *browse.Client) {
	log := GetLogger()
	client.Follow(ctx, bus, "upload", func(s browse.Served) {
		log.Info().Str("file", s.Name).Str("size", s.Size).Int("tags", len(s.Metadata)).
			Str("url", client.URL(s.Path)).Msg("Now served")
	})
}
