package main

import (
	"fmt"

	"projectmonitor/monitor-service/internal/service/registry"
	"projectmonitor/pkg/mq"
	"projectmonitor/pkg/outbox"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			return a.migrate(cmd.Context())
		},
	}
}

func outboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and replay outbox events",
	}

	var eventID int64
	replay := &cobra.Command{
		Use:   "replay",
		Short: "Republish a single event",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if eventID <= 0 {
				return fmt.Errorf("--id is required")
			}
			return withReplay(func(a *app, svc *outbox.ReplayService) error {
				if err := svc.ReplayEvent(cmd.Context(), eventID); err != nil {
					return err
				}
				a.log.Info("Event replayed", zap.Int64("event_id", eventID))
				return nil
			})
		},
	}
	replay.Flags().Int64Var(&eventID, "id", 0, "outbox event id")

	var limit int
	replayFailed := &cobra.Command{
		Use:   "replay-failed",
		Short: "Republish events that exhausted their retries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withReplay(func(a *app, svc *outbox.ReplayService) error {
				n, err := svc.ReplayFailedEvents(cmd.Context(), limit)
				if err != nil {
					return err
				}
				a.log.Info("Failed events replayed", zap.Int("count", n))
				return nil
			})
		},
	}
	replayFailed.Flags().IntVar(&limit, "limit", 100, "max events to replay")

	cmd.AddCommand(replay, replayFailed)
	return cmd
}

func withReplay(fn func(a *app, svc *outbox.ReplayService) error) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	publisher, err := mq.NewPublisher(a.cfg.MQ.URL)
	if err != nil {
		return err
	}
	defer publisher.Close()
	return fn(a, outbox.NewReplayService(a.store.Events(), publisher, a.log))
}

// actor add registers the first ADMIN; later actors go through POST /actors.
func actorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "actor",
		Short: "Manage registered actors",
	}

	var (
		id       int64
		role     string
		fullName string
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Register an actor without an authenticated caller",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			actor, err := registry.NewService(a.store, a.log).Bootstrap(cmd.Context(), id, role, fullName)
			if err != nil {
				return err
			}
			a.log.Info("Actor registered",
				zap.Int64("actor_id", actor.ID),
				zap.String("role", string(actor.Role)),
			)
			return nil
		},
	}
	add.Flags().Int64Var(&id, "id", 0, "identity provider user id")
	add.Flags().StringVar(&role, "role", "ADMIN", "ADMIN, CONSULTANT or CONTRACTOR")
	add.Flags().StringVar(&fullName, "name", "", "full name")
	_ = add.MarkFlagRequired("id")
	_ = add.MarkFlagRequired("name")

	cmd.AddCommand(add)
	return cmd
}
