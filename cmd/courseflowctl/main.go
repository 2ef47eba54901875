package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "courseflowctl",
		Short: "Operator CLI for the courseflow admission service",
		Long:  "Seeds course capacity and inspects the intake queue; it carries no allocation logic of its own.",
	}

	cmd.AddCommand(newCourseCommand())
	cmd.AddCommand(newQueueCommand())
	return cmd
}
