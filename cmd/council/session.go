package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/council/internal/presentation/graph"
	"github.com/aretw0/council/internal/presentation/tui"
	"github.com/aretw0/council/pkg/adapters/file"
	"github.com/aretw0/council/pkg/adapters/redis"
	"github.com/aretw0/council/pkg/domain"
	"github.com/aretw0/council/pkg/persistence/middleware"
	"github.com/aretw0/council/pkg/ports"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect archived councils",
	Long:  `List, inspect, and remove councils archived in Redis (REDIS_URL) or on disk (ARCHIVE_DIR).`,
}

var sessionLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List archived councils",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeStore, err := openArchive(cmd)
		if err != nil {
			return err
		}
		defer closeStore()

		ids, err := store.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list councils: %w", err)
		}
		summaries := make([]domain.Summary, 0, len(ids))
		for _, id := range ids {
			s, err := store.Load(cmd.Context(), id)
			if errors.Is(err, domain.ErrSessionNotFound) {
				continue // Expired between List and Load
			}
			if err != nil {
				return fmt.Errorf("failed to load council %s: %w", id, err)
			}
			summaries = append(summaries, s.Summarize())
		}

		r, err := tui.NewRenderer(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		return r.Summaries(summaries)
	},
}

var sessionInspectCmd = &cobra.Command{
	Use:   "inspect <council-id>",
	Short: "Inspect an archived council",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeStore, err := openArchive(cmd)
		if err != nil {
			return err
		}
		defer closeStore()

		s, err := store.Load(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to load council %q: %w", args[0], err)
		}
		format, _ := cmd.Flags().GetString("format")
		return printCouncil(cmd.OutOrStdout(), s, format)
	},
}

var sessionRmCmd = &cobra.Command{
	Use:   "rm <council-id>...",
	Short: "Remove one or more archived councils",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeStore, err := openArchive(cmd)
		if err != nil {
			return err
		}
		defer closeStore()

		var errs []error
		for _, id := range args {
			if err := store.Delete(cmd.Context(), id); err != nil {
				errs = append(errs, fmt.Errorf("remove %q: %w", id, err))
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed council '%s'\n", id)
		}
		return errors.Join(errs...)
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionLsCmd)
	sessionCmd.AddCommand(sessionInspectCmd)
	sessionCmd.AddCommand(sessionRmCmd)
	sessionInspectCmd.Flags().StringP("format", "f", "markdown", "Output format: markdown, json or mermaid")
}

func openArchive(cmd *cobra.Command) (ports.ArchiveStore, func() error, error) {
	s, err := loadSettings(cmd)
	if err != nil {
		return nil, nil, err
	}
	mws, err := s.ArchiveMiddleware()
	if err != nil {
		return nil, nil, err
	}
	switch {
	case s.RedisURL != "":
		store, err := redis.New(s.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return middleware.Chain(store, mws...), store.Close, nil
	case s.ArchiveDir != "":
		return middleware.Chain(file.New(s.ArchiveDir), mws...), func() error { return nil }, nil
	default:
		return nil, nil, errors.New("no archive configured: set REDIS_URL or ARCHIVE_DIR")
	}
}

func printCouncil(w io.Writer, s *domain.CouncilSession, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case "mermaid":
		_, err := io.WriteString(w, graph.GenerateMermaid(graph.OverlayFor(s)))
		return err
	case "markdown", "md", "":
		r, err := tui.NewRenderer(w)
		if err != nil {
			return err
		}
		return r.Council(s)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
