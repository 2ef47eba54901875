package main

import (
	"context"
	"fmt"
	"time"

	"github.com/courseflow/admission/internal/config"
	"github.com/courseflow/admission/internal/infrastructure/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

// newCourseCommand is the only sanctioned way to create course capacity:
// course CRUD proper is out of scope for the HTTP surface, so this is
// strictly an operator escape hatch.
func newCourseCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "course",
		Short: "Manage course capacity",
	}
	cmd.AddCommand(newCourseCreateCommand())
	return cmd
}

func newCourseCreateCommand() *cobra.Command {
	var name string
	var capacity int

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create or update a course's capacity",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			if capacity < 0 {
				return fmt.Errorf("--capacity must be >= 0")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			pool, err := pgxpool.New(ctx, cfg.DBDSN)
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer pool.Close()

			repo := postgres.New(pool)
			course, err := repo.UpsertCourse(ctx, name, capacity)
			if err != nil {
				return fmt.Errorf("upsert course: %w", err)
			}

			fmt.Printf("course %d %q capacity=%d seats_taken=%d\n",
				course.ID, course.Name, course.Capacity, course.SeatsTaken)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "course name (unique)")
	cmd.Flags().IntVar(&capacity, "capacity", 0, "seat capacity")
	return cmd
}
