package main

import (
	"context"
	"fmt"
	"time"

	"github.com/courseflow/admission/internal/config"
	"github.com/courseflow/admission/internal/infrastructure/redis"
	"github.com/spf13/cobra"
)

func newQueueCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the ordered intake queue",
	}
	cmd.AddCommand(newQueueInspectCommand())
	return cmd
}

func newQueueInspectCommand() *cobra.Command {
	var courseID int64
	var top int64

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print queue cardinality and the top-N ranked members for a course",
		RunE: func(cmd *cobra.Command, args []string) error {
			if courseID <= 0 {
				return fmt.Errorf("--course must be a positive course id")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			queue := redis.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			depth, err := queue.Cardinality(ctx, courseID)
			if err != nil {
				return fmt.Errorf("cardinality: %w", err)
			}
			fmt.Printf("course_id=%d queue_depth=%d\n", courseID, depth)

			members, err := queue.Client.ZRangeWithScores(ctx, fmt.Sprintf("queue:course:%d", courseID), 0, top-1).Result()
			if err != nil {
				return fmt.Errorf("zrange: %w", err)
			}
			for i, m := range members {
				fmt.Printf("  #%d score=%.0f member=%v\n", i, m.Score, m.Member)
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&courseID, "course", 0, "course id")
	cmd.Flags().Int64Var(&top, "top", 10, "number of top-ranked members to print")
	return cmd
}
