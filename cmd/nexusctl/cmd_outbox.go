package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"nexus/pkg/db"
	"nexus/pkg/mq"
	"nexus/pkg/outbox"
)

var outboxFlags struct {
	id    int64
	limit int
}

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Inspect and replay the event outbox",
}

var outboxReplayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Republish one outbox event, or the most recent failed ones",
	RunE:  runOutboxReplay,
}

func init() {
	f := outboxReplayCmd.Flags()
	f.Int64Var(&outboxFlags.id, "id", 0, "Replay a single event by ID")
	f.IntVar(&outboxFlags.limit, "limit", 100, "Maximum number of failed events to replay")

	outboxCmd.AddCommand(outboxReplayCmd)
}

func runOutboxReplay(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	pool, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		return fmt.Errorf("connect mq: %w", err)
	}
	defer publisher.Close()

	replay := outbox.NewReplayService(outbox.NewRepository(pool), publisher, log)
	out := cmd.OutOrStdout()

	if outboxFlags.id > 0 {
		if err := replay.ReplayEvent(cmd.Context(), outboxFlags.id); err != nil {
			return err
		}
		fmt.Fprintf(out, "event %d replayed\n", outboxFlags.id)
		return nil
	}

	n, err := replay.ReplayFailedEvents(cmd.Context(), outboxFlags.limit)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%d failed events replayed\n", n)
	return nil
}
