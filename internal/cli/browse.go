package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/exposerver/exposerver/internal/browse"
	"github.com/exposerver/exposerver/internal/progress"
)

func newLsCmd() *cobra.Command {
	var filter string

	cmd := &cobra.Command{
		Use:   "ls [dir]",
		Short: "List a served directory",
		Long: `List a directory served by exposerver.

--filter keeps entries whose name contains the text, ignoring case, the way
the search box of the web page does.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := GetLogger()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			dir := "/"
			if len(args) == 1 {
				dir = args[0]
			}

			client, err := browse.NewClient(cfg, nil, log)
			if err != nil {
				return err
			}
			entries, err := client.List(GetContext(), dir)
			if err != nil {
				return err
			}
			entries = browse.FilterEntries(entries, filter)

			return printEntries(cmd.OutOrStdout(), entries)
		},
	}

	cmd.Flags().StringVarP(&filter, "filter", "f", "", "Only show names containing this text")

	return cmd
}

func printEntries(w io.Writer, entries []browse.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTYPE\tSIZE\tPREVIEW")
	for _, e := range entries {
		kind, preview := "File", browse.Previewable(e.Name).String()
		name := e.Name
		if e.IsDir {
			kind, preview = "Directory", "-"
			name += "/"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", name, kind, e.Size, preview)
	}
	return tw.Flush()
}

func newMetadataCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "metadata <path>",
		Short: "Show the metadata of a served file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := GetLogger()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := browse.NewClient(cfg, nil, log)
			if err != nil {
				return err
			}

			meta, err := client.Metadata(GetContext(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(meta)
			}

			keys := make([]string, 0, len(meta))
			for k := range meta {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, k := range keys {
				fmt.Fprintf(tw, "%s:\t%v\n", k, meta[k])
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print raw JSON")

	return cmd
}

func newDownloadCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "download <path>",
		Short: "Download a served file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := GetLogger()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := browse.NewClient(cfg, nil, log)
			if err != nil {
				return err
			}

			dest := output
			if dest == "" {
				dest = path.Base(args[0])
			}
			var w io.Writer
			if dest == "-" {
				w = cmd.OutOrStdout()
			} else {
				f, err := os.Create(dest)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", dest, err)
				}
				defer f.Close()
				w = f
			}

			n, err := client.Download(GetContext(), args[0], w, progress.NewCLIProgress())
			if err != nil {
				if dest != "-" {
					_ = os.Remove(dest)
				}
				return err
			}
			if dest != "-" {
				abs, _ := filepath.Abs(dest)
				log.Info().Str("file", abs).Str("size", browse.HumanSize(n)).Msg("Downloaded")
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s)\n", dest, browse.HumanSize(n))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination file, - for stdout (default: base name)")

	return cmd
}

func newLinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "link <path>",
		Short: "Print the URL of a served file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := browse.NewClient(cfg, nil, GetLogger())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), client.URL(args[0]))
			return nil
		},
	}
}
