// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/retrochat/internal/export"
	"github.com/jeranaias/retrochat/internal/storage"
)

func (a *App) sessionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session"},
		Short:   "Manage saved chat sessions",
	}
	cmd.AddCommand(
		a.sessionsListCommand(),
		a.sessionsShowCommand(),
		a.sessionsDeleteCommand(),
		a.sessionsRenameCommand(),
		a.sessionsExportCommand(),
		a.sessionsSearchCommand(),
		a.sessionsReindexCommand(),
	)
	return cmd
}

func (a *App) sessionsListCommand() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List saved sessions, newest first",
		Args:    cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			svc, err := a.openService(false)
			if err != nil {
				return err
			}
			infos, err := svc.ListSessions()
			if err != nil {
				return err
			}
			last, _ := a.store.LastID()

			if jsonOut {
				return outputJSON(a.Out, "sessions list", func() (any, error) {
					return newSessionData(infos, last), nil
				})
			}
			r, err := a.newRenderer()
			if err != nil {
				return err
			}
			fmt.Fprintln(a.Out, r.SessionTable(infos, last))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print sessions as JSON")
	return cmd
}

func (a *App) sessionsShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a session's conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			svc, err := a.openService(false)
			if err != nil {
				return err
			}
			sess, err := svc.Snapshot(args[0])
			if err != nil {
				return err
			}
			r, err := a.newRenderer()
			if err != nil {
				return err
			}
			fmt.Fprintln(a.Out, r.Theme().Bold.Render(sess.Name()))
			fmt.Fprintln(a.Out, r.Theme().Muted.Render(sess.ID))
			for _, msg := range sess.History() {
				fmt.Fprintln(a.Out)
				fmt.Fprintln(a.Out, r.Message(msg))
			}
			return nil
		},
	}
}

func (a *App) sessionsDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>...",
		Aliases: []string{"rm"},
		Short:   "Delete saved sessions",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			svc, err := a.openService(false)
			if err != nil {
				return err
			}
			for _, id := range args {
				if err := svc.DeleteSession(id); err != nil {
					return fmt.Errorf("delete %s: %w", id, err)
				}
				fmt.Fprintf(a.Out, "Deleted session %s\n", id)
			}
			return nil
		},
	}
}

func (a *App) sessionsRenameCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <name...>",
		Short: "Rename a session",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			svc, err := a.openService(false)
			if err != nil {
				return err
			}
			name := strings.Join(args[1:], " ")
			if err := svc.RenameSession(args[0], name); err != nil {
				return err
			}
			fmt.Fprintf(a.Out, "Renamed session %s to %q\n", args[0], name)
			return nil
		},
	}
}

func (a *App) sessionsExportCommand() *cobra.Command {
	var (
		format string
		output string
		dir    string
	)
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export a session to markdown, JSON or YAML",
		Example: `  retrochat sessions export 3f2a... --format markdown
  retrochat sessions export 3f2a... -f json -o chat.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			opts := export.DefaultOptions()
			opts.OutputDir = dir
			exporter, err := export.New(format, opts)
			if err != nil {
				return usageErrorf("%v", err)
			}
			svc, err := a.openService(false)
			if err != nil {
				return err
			}
			sess, err := svc.Snapshot(args[0])
			if err != nil {
				return err
			}
			path, err := export.ToFile(sess, exporter, output, opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.Out, path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "markdown", "export format: "+strings.Join(export.Formats, ", "))
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: generated name in --dir)")
	cmd.Flags().StringVar(&dir, "dir", ".", "directory for generated file names")
	return cmd
}

func (a *App) sessionsSearchCommand() *cobra.Command {
	var (
		limit   int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "search <query...>",
		Short: "Full-text search over saved conversations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.openService(false)
			if err != nil {
				return err
			}
			query := strings.Join(args, " ")
			search := func() ([]storage.SearchResult, error) {
				return svc.SearchSessions(cmd.Context(), query, limit)
			}

			if jsonOut {
				return outputJSON(a.Out, "sessions search", func() (any, error) {
					return search()
				})
			}
			results, err := search()
			if err != nil {
				return err
			}
			r, err := a.newRenderer()
			if err != nil {
				return err
			}
			fmt.Fprintln(a.Out, r.SearchResults(results))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "maximum number of results")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print results as JSON")
	return cmd
}

func (a *App) sessionsReindexCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the search index from the session files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.openService(false)
			if err != nil {
				return err
			}
			n, err := svc.RebuildIndex(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.Out, "Indexed %d sessions\n", n)
			return nil
		},
	}
}
