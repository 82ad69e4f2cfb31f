package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"cinemarathon/internal/marathon"
	"cinemarathon/models"
)

func newSaveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "save <name>",
		Short: "Save the current marathon under a name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(c context.Context, s *session) error {
				// runtimes still being looked up count toward the saved total
				s.coord.Wait()
				saved, err := s.agg.SaveCurrent(c, strings.Join(args, " "))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %q as %s (%d movies, %s).\n",
					saved.Name, saved.ID, len(saved.Movies), formatDuration(saved.TotalMinutes))
				return nil
			})
		},
	}
}

func newListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List saved marathons",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(c context.Context, s *session) error {
				if err := s.agg.RefreshSaved(c); err != nil {
					return err
				}
				printSaved(cmd.OutOrStdout(), s.agg.Saved())
				return nil
			})
		},
	}
}

func printSaved(out io.Writer, saved []models.SavedMarathon) {
	if len(saved) == 0 {
		fmt.Fprintln(out, "No saved marathons.")
		return
	}
	rows := make([][]string, 0, len(saved))
	for _, m := range saved {
		created := ""
		if !m.CreatedAt.IsZero() {
			created = m.CreatedAt.Local().Format("2006-01-02 15:04")
		}
		rows = append(rows, []string{
			m.ID,
			m.Name,
			strconv.Itoa(len(m.Movies)),
			formatDuration(m.TotalMinutes),
			created,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"ID", "Name", "Movies", "Total", "Created"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	))
}

// findSaved refreshes the saved list and looks up id.
func findSaved(ctx context.Context, s *session, id string) (models.SavedMarathon, error) {
	if err := s.agg.RefreshSaved(ctx); err != nil {
		return models.SavedMarathon{}, err
	}
	saved, ok := s.agg.FindSaved(id)
	if !ok {
		return models.SavedMarathon{}, fmt.Errorf("marathon %s: %w", id, marathon.ErrNotFound)
	}
	return saved, nil
}

func newLoadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "load <marathon-id>",
		Short: "Replace the current marathon with a saved one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(c context.Context, s *session) error {
				saved, err := findSaved(c, s, args[0])
				if err != nil {
					return err
				}
				s.agg.LoadIntoCurrent(saved)
				fmt.Fprintf(cmd.OutOrStdout(), "Loaded %q (%d movies).\n", saved.Name, len(saved.Movies))
				return nil
			})
		},
	}
}

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <marathon-id>",
		Short: "Delete a saved marathon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(c context.Context, s *session) error {
				if err := s.agg.RefreshSaved(c); err != nil {
					return err
				}
				pending, err := s.agg.RequestDelete(args[0])
				if err != nil {
					return fmt.Errorf("marathon %s: %w", args[0], err)
				}
				out := cmd.OutOrStdout()
				if !yes && !confirm(cmd.InOrStdin(), out, fmt.Sprintf("Delete %q?", pending.TargetName)) {
					s.agg.CancelDelete()
					fmt.Fprintln(out, "Cancelled.")
					return nil
				}
				if err := s.agg.ConfirmDeleteToken(c, pending.Token); err != nil {
					return err
				}
				fmt.Fprintf(out, "Deleted %q.\n", pending.TargetName)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N] ", question)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func newRenameCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <marathon-id> <name>",
		Short: "Rename a saved marathon",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(strings.Join(args[1:], " "))
			if name == "" {
				return marathon.ErrNameRequired
			}
			return ctx.withSession(cmd, func(c context.Context, s *session) error {
				if _, err := findSaved(c, s, args[0]); err != nil {
					return err
				}
				updated, err := s.agg.EditSaved(c, args[0], &name, nil)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s to %q.\n", updated.ID, updated.Name)
				return nil
			})
		},
	}
}

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print the saved list whenever it changes on the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := ctx.apiClient()
			if err != nil {
				return err
			}
			if client.Token() == "" {
				return errors.New("not logged in; run `marathon login` first")
			}
			return watchEvents(cmd.Context(), client.EventsURL(), client.Token(), cmd.OutOrStdout())
		},
	}
}

// watchEvents streams saved-list snapshots until ctx ends or the server hangs up.
func watchEvents(ctx context.Context, url, token string, out io.Writer) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return errors.New("session expired; run `marathon login` again")
		}
		return fmt.Errorf("connect to %s: %w", url, err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()

	for {
		var event models.MarathonEvent
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read event: %w", err)
		}
		if err := json.Unmarshal(data, &event); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		fmt.Fprintf(out, "%s (%d saved)\n", event.Type, len(event.Marathons))
		printSaved(out, event.Marathons)
	}
}
