package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/park285/codeforces-potd-bot/internal/leaderboard"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Import new contests and problems from Codeforces",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rep, err := botApp.Catalog.Sync(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d contests, %d problems in %s\n", rep.Contests, rep.Problems, rep.Took.Round(time.Millisecond))
		return nil
	},
}

var selectCmd = &cobra.Command{
	Use:   "select",
	Short: "Select and announce today's problem if none exists",
	Long: `Select today's problem of the day. Today's difficulty follows the weekday
table; an existing selection is printed instead of drawing again.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := botApp.Selector.EnsureToday(cmd.Context(), time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s %q (%d)\n  %s\n", p.Date, p.Key(), p.Name, p.Rating, p.Key().URL())
		return nil
	},
}

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Check today's solves once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		solves, err := botApp.Tracker.Poll(cmd.Context(), time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d new solves\n", len(solves))
		for _, s := range solves {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s %s\n", s.MemberID, s.Date)
		}
		return nil
	},
}

var (
	boardRoom string
	boardPNG  string
)

var leaderboardCmd = &cobra.Command{
	Use:       "leaderboard streak|solves",
	Short:     "Print a room's leaderboard",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(leaderboard.KindStreak), string(leaderboard.KindSolves)},
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := leaderboard.Kind(args[0])
		if kind != leaderboard.KindStreak && kind != leaderboard.KindSolves {
			return fmt.Errorf("unknown leaderboard %q", args[0])
		}
		room := boardRoom
		if room == "" {
			room = cfg.POTDRoom
		}
		entries, err := botApp.Boards.Build(cmd.Context(), kind, room)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Fprintf(cmd.OutOrStdout(), "%3d  %-24s %s\n", e.Rank, e.Handle, botApp.Formatter.Number(e.Count))
		}
		if boardPNG == "" {
			return nil
		}
		png, err := botApp.Formatter.LeaderboardCard(kind, entries)
		if err != nil {
			return err
		}
		return os.WriteFile(boardPNG, png, 0o644)
	},
}

func init() {
	leaderboardCmd.Flags().StringVar(&boardRoom, "room", "", "community to rank (default POTD_ROOM)")
	leaderboardCmd.Flags().StringVar(&boardPNG, "png", "", "also write the card image to this file")
}
