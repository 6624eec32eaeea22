package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/transit-fraud/internal/app"
	"github.com/example/transit-fraud/internal/loader"
	"github.com/example/transit-fraud/internal/models"
	"github.com/example/transit-fraud/internal/storage"
)

type opener func(ctx context.Context) (*app.Stores, error)

// newRootCmd builds the operator CLI. Every subcommand opens the configured
// stores, does one thing and closes them.
func newRootCmd(open opener) *cobra.Command {
	root := &cobra.Command{
		Use:          "fraudctl",
		Short:        "Operate the transit card clone detector",
		SilenceUsage: true,
	}
	root.AddCommand(
		solveCmd(open),
		checkCmd(open),
		ringCmd(open),
		linkedCmd(open),
		historyCmd(open),
		loadCmd(open),
	)
	return root
}

func withStores(cmd *cobra.Command, open opener, fn func(ctx context.Context, s *app.Stores) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	stores, err := open(ctx)
	if err != nil {
		return err
	}
	defer stores.Close()
	return fn(ctx, stores)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func solveCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "solve",
		Short: "Rebuild and persist the shortest-route table from the station graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStores(cmd, open, func(ctx context.Context, s *app.Stores) error {
				solved, err := s.Detector(nil, slog.Default()).Solve(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "solved %d routes\n", len(solved))
				return nil
			})
		},
	}
}

func checkCmd(open opener) *cobra.Command {
	var (
		card, station int64
		timestamp     string
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check whether a swipe is reachable from the card's previous ride",
		RunE: func(cmd *cobra.Command, args []string) error {
			ts := time.Now().UTC()
			if timestamp != "" {
				parsed, err := time.Parse(time.RFC3339, timestamp)
				if err != nil {
					return fmt.Errorf("%w: --timestamp: %w", models.ErrInvalidInput, err)
				}
				ts = parsed
			}
			return withStores(cmd, open, func(ctx context.Context, s *app.Stores) error {
				det := s.Detector(nil, slog.Default())
				if err := det.WarmTable(ctx); err != nil {
					return err
				}
				res, err := det.CheckSwipe(ctx, models.Swipe{CardID: card, StationID: station, Timestamp: ts})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().Int64Var(&card, "card", 0, "card id")
	cmd.Flags().Int64Var(&station, "station", 0, "station id of the new swipe")
	cmd.Flags().StringVar(&timestamp, "timestamp", "", "swipe time (RFC3339, default now)")
	_ = cmd.MarkFlagRequired("card")
	_ = cmd.MarkFlagRequired("station")
	return cmd
}

func ringCmd(open opener) *cobra.Command {
	var card int64
	cmd := &cobra.Command{
		Use:   "ring",
		Short: "Print the household ring linked to a card",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStores(cmd, open, func(ctx context.Context, s *app.Stores) error {
				ring, err := s.Linker(slog.Default()).Link(ctx, card)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), ring)
			})
		},
	}
	cmd.Flags().Int64Var(&card, "card", 0, "seed card id")
	_ = cmd.MarkFlagRequired("card")
	return cmd
}

func linkedCmd(open opener) *cobra.Command {
	var card int64
	cmd := &cobra.Command{
		Use:   "linked",
		Short: "List other cards held by the card's owners",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStores(cmd, open, func(ctx context.Context, s *app.Stores) error {
				cards, err := s.Linker(slog.Default()).CoOwned(ctx, card)
				if err != nil {
					return err
				}
				if cards == nil {
					cards = []models.LinkedCard{}
				}
				return printJSON(cmd.OutOrStdout(), cards)
			})
		},
	}
	cmd.Flags().Int64Var(&card, "card", 0, "card id")
	_ = cmd.MarkFlagRequired("card")
	return cmd
}

func historyCmd(open opener) *cobra.Command {
	var (
		card  int64
		limit int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show a card's latest rides",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStores(cmd, open, func(ctx context.Context, s *app.Stores) error {
				rides, err := s.Ledger.History(ctx, card, limit)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				for _, r := range rides {
					fmt.Fprintf(w, "%s\t%d\t%s\n", r.Timestamp.Format(time.RFC3339), r.StationID, r.StationName)
				}
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&card, "card", 0, "card id")
	cmd.Flags().IntVar(&limit, "limit", storage.DefaultHistoryLimit, "rides to show")
	_ = cmd.MarkFlagRequired("card")
	return cmd
}

func loadCmd(open opener) *cobra.Command {
	var (
		dir       string
		migrate   bool
		migration string
		batch     int
	)
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Bulk load the CSV data set into the configured stores",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStores(cmd, open, func(ctx context.Context, s *app.Stores) error {
				if migrate {
					applied, err := s.Migrate(ctx, migration)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "applied %v\n", applied)
				}
				l := loader.New(s.Sink(), slog.Default())
				l.BatchSize = batch
				report, err := l.Load(ctx, dir)
				if err != nil {
					return err
				}
				tables := make([]loader.Table, 0, len(report))
				for t := range report {
					tables = append(tables, t)
				}
				sort.Slice(tables, func(i, j int) bool { return tables[i] < tables[j] })
				for _, t := range tables {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", t, report[t])
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "data", "directory holding the CSV files")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply migrations before loading")
	cmd.Flags().StringVar(&migration, "migrations", "migrations", "migrations directory")
	cmd.Flags().IntVar(&batch, "batch", loader.DefaultBatchSize, "rows per COPY batch")
	return cmd
}
