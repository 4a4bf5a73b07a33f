package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/neoxmeet/meet-backend/internal/database"
	"github.com/neoxmeet/meet-backend/internal/queue"
)

func newDeadLettersCmd(deps *dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dead-letters",
		Short: "Inspect and requeue dead-lettered transcription commands",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List the most recent dead-lettered jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := openDeadLetters(cmd.Context(), deps)
			if err != nil {
				return err
			}
			defer closeStore()

			jobs, err := store.DeadLetters(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No dead-lettered jobs")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tROOM\tACTION\tATTEMPTS\tUPDATED\tLAST ERROR")
			for _, j := range jobs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n", j.ID, j.Key, j.Action, j.Attempts, j.UpdatedAt.Format(time.RFC3339), j.LastError)
			}
			return w.Flush()
		},
	}
	list.Flags().IntVar(&limit, "limit", 50, "maximum number of jobs")

	requeue := &cobra.Command{
		Use:   "requeue <job-id>",
		Short: "Put a dead-lettered job back at the end of its room queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := openDeadLetters(cmd.Context(), deps)
			if err != nil {
				return err
			}
			defer closeStore()

			if err := store.Requeue(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Requeued %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, requeue)
	return cmd
}

func openDeadLetters(ctx context.Context, deps *dependencies) (queue.DeadLetterStore, func(), error) {
	opts := queue.Options{MaxAttempts: deps.Config.Worker.MaxAttempts, Visibility: deps.Config.Worker.Visibility}

	switch deps.Config.Queue.Driver {
	case "redis":
		client, err := queue.NewRedisClient(ctx, deps.Config.Queue.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return queue.NewRedisQueue(client, opts), func() { client.Close() }, nil
	case "postgres":
		conn, err := database.NewConnection(ctx, deps.Config.Database)
		if err != nil {
			return nil, nil, err
		}
		return queue.NewPostgresQueue(conn.DB, opts), func() { conn.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("QUEUE_DRIVER %q keeps no dead letters outside the server process", deps.Config.Queue.Driver)
	}
}
