package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/cwrk-planet/caption-relay/internal/domain"
	"github.com/cwrk-planet/caption-relay/internal/storage"
)

func newSnapshotCommand(ctx *commandContext) *cobra.Command {
	snapshotCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect and manage persisted room snapshots",
	}

	snapshotCmd.AddCommand(newSnapshotShowCommand(ctx))
	snapshotCmd.AddCommand(newSnapshotListCommand(ctx))
	snapshotCmd.AddCommand(newSnapshotPurgeCommand(ctx))

	return snapshotCmd
}

// withStore opens the configured store for the duration of fn.
func withStore(cmd *cobra.Command, ctx *commandContext, readOnly bool, fn func(storage.Store) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cmd.Context(), cfg, readOnly)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func newSnapshotShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show ROOM",
		Short: "Print the participants stored for a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			room, err := domain.NormalizeRoomCode(args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			return withStore(cmd, ctx, true, func(store storage.Store) error {
				snap, err := store.Load(cmd.Context(), room)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(snap)
				}
				printSnapshot(out, room, snap, time.Now())
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw snapshot document")
	return cmd
}

func newSnapshotListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List rooms with a stored snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, ctx, true, func(store storage.Store) error {
				rooms, err := store.List(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(rooms) == 0 {
					fmt.Fprintln(out, "No stored rooms")
					return nil
				}
				for _, room := range rooms {
					fmt.Fprintln(out, room)
				}
				return nil
			})
		},
	}
}

func newSnapshotPurgeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "purge ROOM",
		Short: "Delete the stored snapshot of a room",
		Long:  "Delete the stored snapshot of a room. Run it while the relay is stopped: a running room writes its snapshot back on the next change, and the file driver refuses the delete while the relay holds its directory lock.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			room, err := domain.NormalizeRoomCode(args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			return withStore(cmd, ctx, false, func(store storage.Store) error {
				if err := store.Delete(cmd.Context(), room); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Purged %s\n", room)
				return nil
			})
		},
	}
}

func printSnapshot(out io.Writer, room string, snap domain.Snapshot, now time.Time) {
	if len(snap) == 0 {
		fmt.Fprintf(out, "Room %s: no participants\n", room)
		return
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	if isTerminal(out) {
		tw.SetStyle(table.StyleRounded)
	} else {
		tw.SetStyle(table.StyleLight)
	}
	tw.SetTitle("Room " + room)
	tw.AppendHeader(table.Row{"Device", "Name", "State", "Joined", "Last heartbeat"})
	for _, p := range snap.Sorted() {
		tw.AppendRow(table.Row{
			p.DeviceID,
			p.DisplayName,
			string(p.Lifecycle),
			relTime(p.JoinedAt, now),
			relTime(p.LastHeartbeat, now),
		})
	}
	tw.AppendFooter(table.Row{"", "", "", "Total", len(snap)})
	tw.Render()
}

func relTime(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
