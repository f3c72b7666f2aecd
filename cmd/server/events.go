package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"med-assist-go/pkg/kafka"
	"med-assist-go/pkg/log"
	"med-assist-go/pkg/tasks"

	"github.com/spf13/cobra"
)

func eventsCMD() *cobra.Command {
	var groupID string
	events := &cobra.Command{
		Use:   "events",
		Short: "Tail answer-completed events from Kafka",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig(true)
			defer log.Sync()
			if !cfg.Kafka.Enabled {
				return errors.New("kafka.enabled is false")
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			return kafka.StartConsumer(ctx, cfg.Kafka, groupID, func(_ context.Context, e tasks.AnswerCompletedEvent) error {
				_, err := fmt.Fprintf(out, "%s session=%s entry=%s urgency=%s user=%s question=%q\n",
					e.CreatedAt.Format("2006-01-02 15:04:05"), e.SessionID, e.EntryID, e.Urgency, e.UserType, e.Question)
				return err
			})
		},
	}
	events.Flags().StringVar(&groupID, "group", "medassist-events", "consumer group id")
	return events
}
