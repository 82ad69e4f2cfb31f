package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"cinemarathon/internal/coordinator"
)

type browseFlags struct {
	page   int
	sortBy string
	year   string
	genres []int64
	name   string
	addAll bool
}

func (f *browseFlags) register(cmd *cobra.Command, discover bool) {
	cmd.Flags().IntVarP(&f.page, "page", "p", 1, "Result page")
	cmd.Flags().StringVarP(&f.sortBy, "sort", "s", "", "Sort by popularity, release_date, vote_average, title or runtime")
	cmd.Flags().StringVar(&f.name, "name", "", "Keep results whose title resembles this text")
	cmd.Flags().BoolVar(&f.addAll, "add-all", false, "Add every listed movie to the current marathon")
	if discover {
		cmd.Flags().StringVar(&f.year, "year", "", "Release year")
		cmd.Flags().Int64SliceVar(&f.genres, "genre", nil, "Genre id (repeatable or comma separated)")
	}
}

// apply sets sort and filters without triggering a discover reload.
func (f *browseFlags) apply(s *session) error {
	key, err := coordinator.ParseSortKey(f.sortBy)
	if err != nil {
		return err
	}
	return s.coord.SetSortBy(key)
}

func (f *browseFlags) filters() coordinator.Filters {
	return coordinator.Filters{Name: f.name, GenreIDs: f.genres, Year: f.year}
}

func newSearchCommand(ctx *commandContext) *cobra.Command {
	var flags browseFlags
	cmd := &cobra.Command{
		Use:   "search <title>",
		Short: "Search the catalog by title",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(c context.Context, s *session) error {
				if err := flags.apply(s); err != nil {
					return err
				}
				if err := s.coord.Search(c, strings.Join(args, " "), flags.page); err != nil {
					return err
				}
				if err := s.coord.SetFilters(c, coordinator.Filters{Name: flags.name}); err != nil {
					return err
				}
				return finishBrowse(c, cmd.OutOrStdout(), s, flags.addAll)
			})
		},
	}
	flags.register(cmd, false)
	return cmd
}

func newDiscoverCommand(ctx *commandContext) *cobra.Command {
	var flags browseFlags
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Browse the catalog by genre and year",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(c context.Context, s *session) error {
				if err := flags.apply(s); err != nil {
					return err
				}
				if err := s.coord.SetFilters(c, flags.filters()); err != nil {
					return err
				}
				// SetFilters only reloads when genre or year changed
				if (len(flags.genres) == 0 && flags.year == "") || flags.page != 1 {
					if err := s.coord.Discover(c, flags.page); err != nil {
						return err
					}
				}
				return finishBrowse(c, cmd.OutOrStdout(), s, flags.addAll)
			})
		},
	}
	flags.register(cmd, true)
	return cmd
}

func newPopularCommand(ctx *commandContext) *cobra.Command {
	var flags browseFlags
	cmd := &cobra.Command{
		Use:   "popular",
		Short: "List currently popular movies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(c context.Context, s *session) error {
				if err := flags.apply(s); err != nil {
					return err
				}
				if err := s.coord.LoadPopular(c, flags.page); err != nil {
					return err
				}
				if err := s.coord.SetFilters(c, coordinator.Filters{Name: flags.name}); err != nil {
					return err
				}
				return finishBrowse(c, cmd.OutOrStdout(), s, flags.addAll)
			})
		},
	}
	flags.register(cmd, false)
	return cmd
}

func newGenresCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "genres",
		Short: "List catalog genres",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(c context.Context, s *session) error {
				if err := s.coord.LoadGenres(c); err != nil {
					return err
				}
				genres := s.coord.Snapshot().Genres
				rows := make([][]string, 0, len(genres))
				for _, g := range genres {
					rows = append(rows, []string{strconv.FormatInt(g.ID, 10), g.Name})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "Genre"}, rows, []columnAlignment{alignRight, alignLeft}))
				return nil
			})
		},
	}
}

func newPersonCommand(ctx *commandContext) *cobra.Command {
	var role string
	var add bool
	cmd := &cobra.Command{
		Use:   "person <name>",
		Short: "Generate a marathon from an actor's or director's films",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := coordinator.ParseRole(role)
			if err != nil {
				return err
			}
			return ctx.withSession(cmd, func(c context.Context, s *session) error {
				movies, err := s.coord.GenerateByPerson(c, strings.Join(args, " "), parsed)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(movies) == 0 {
					fmt.Fprintln(out, "No films found for that role.")
					return nil
				}
				return finishBrowse(c, out, s, add)
			})
		},
	}
	cmd.Flags().StringVarP(&role, "role", "r", string(coordinator.RoleAny), "actor, director or any")
	cmd.Flags().BoolVar(&add, "add", false, "Add the generated films to the current marathon")
	return cmd
}

// finishBrowse optionally adds the listed movies, then prints them.
func finishBrowse(ctx context.Context, out io.Writer, s *session, addAll bool) error {
	if addAll {
		added := s.coord.AddAllToMarathon(ctx, s.coord.Results())
		// runtimes are looked up before the table is drawn
		s.coord.Wait()
		fmt.Fprintf(out, "Added %d movie(s) to the current marathon.\n", added)
	}
	state := s.coord.Snapshot()
	if state.Error != "" {
		return fmt.Errorf("catalog: %s", state.Error)
	}
	printItems(out, s, state)
	return nil
}

func printItems(out io.Writer, s *session, state coordinator.State) {
	if len(state.Items) == 0 {
		fmt.Fprintln(out, "No movies found.")
		return
	}
	rows := make([][]string, 0, len(state.Items))
	for _, item := range state.Items {
		year := ""
		if item.Year > 0 {
			year = strconv.Itoa(item.Year)
		}
		rows = append(rows, []string{
			strconv.FormatInt(item.ID, 10),
			item.Title,
			year,
			fmt.Sprintf("%d%%", item.RatingPercent),
			yesNo(s.agg.Contains(item.ID)),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"ID", "Title", "Year", "Rating", "In marathon"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignLeft},
	))
	if state.TotalPages > 1 {
		fmt.Fprintf(out, "Page %d of %d\n", state.Page, state.TotalPages)
	}
}
