package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"cinemarathon/internal/logging"
	"cinemarathon/models"
	"cinemarathon/services/catalog"
)

func parseMovieID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid movie id %q", arg)
	}
	return id, nil
}

func newAddCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add <movie-id>...",
		Short: "Add movies to the current marathon",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := parseMovieID(arg)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			return ctx.withSession(cmd, func(c context.Context, s *session) error {
				out := cmd.OutOrStdout()
				for _, id := range ids {
					movie, err := s.catalog.GetMovieDetail(c, id)
					if err != nil {
						return fmt.Errorf("movie %d: %w", id, err)
					}
					if s.coord.AddToMarathon(c, movie) {
						fmt.Fprintf(out, "Added %s (%s).\n", highlight(out, movie.Title), formatDuration(movie.Minutes()))
					} else {
						fmt.Fprintf(out, "%s is already in the marathon.\n", movie.Title)
					}
				}
				return nil
			})
		},
	}
}

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <movie-id>",
		Aliases: []string{"rm"},
		Short:   "Remove a movie from the current marathon",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseMovieID(args[0])
			if err != nil {
				return err
			}
			return ctx.withSession(cmd, func(c context.Context, s *session) error {
				if !s.coord.RemoveFromMarathon(id) {
					return fmt.Errorf("movie %d is not in the marathon", id)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed movie %d.\n", id)
				return nil
			})
		},
	}
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current marathon and its statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(c context.Context, s *session) error {
				if err := s.coord.LoadGenres(c); err != nil {
					// histograms fall back to skipping unnamed genres
					if !errors.Is(err, catalog.ErrNotConfigured) {
						lg := logging.WithComponent("cli")
						lg.Warn().Err(err).Msg("genre names unavailable")
					}
				}
				printMarathon(cmd.OutOrStdout(), s.agg.Movies(), s.agg.Stats())
				return nil
			})
		},
	}
}

func printMarathon(out io.Writer, movies []models.Movie, stats models.MarathonStats) {
	if len(movies) == 0 {
		fmt.Fprintln(out, "The current marathon is empty.")
		return
	}
	rows := make([][]string, 0, len(movies))
	for _, m := range movies {
		year := ""
		if y, ok := m.Year(); ok {
			year = strconv.Itoa(y)
		}
		runtime := "?"
		if m.HasRuntime() {
			runtime = formatDuration(m.Minutes())
		}
		rows = append(rows, []string{
			strconv.FormatInt(m.ID, 10),
			m.Title,
			year,
			runtime,
			strconv.FormatFloat(m.VoteAverage, 'f', 1, 64),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"ID", "Title", "Year", "Runtime", "Rating"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignRight},
	))

	fmt.Fprintf(out, "%s %d movies, %s\n", highlight(out, "Total:"), stats.TotalMovies, formatDuration(stats.TotalDurationMinutes))
	fmt.Fprintf(out, "Average rating: %.1f\n", stats.AverageRating)
	fmt.Fprintf(out, "Average runtime: %s\n", formatDuration(int(stats.AverageRuntime+0.5)))
	if stats.TopGenre != "" {
		fmt.Fprintf(out, "Top genre: %s\n", stats.TopGenre)
	}
	printHistogram(out, "Genre", stats.GenreHistogram)
	printHistogram(out, "Decade", stats.DecadeHistogram)
}

func printHistogram(out io.Writer, label string, histogram map[string]int) {
	if len(histogram) == 0 {
		return
	}
	keys := slices.Sorted(maps.Keys(histogram))
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k, strconv.Itoa(histogram[k])})
	}
	fmt.Fprintln(out, renderTable([]string{label, "Movies"}, rows, []columnAlignment{alignLeft, alignRight}))
}

func newClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Empty the current marathon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(c context.Context, s *session) error {
				s.agg.Clear()
				fmt.Fprintln(cmd.OutOrStdout(), "Current marathon cleared.")
				return nil
			})
		},
	}
}
