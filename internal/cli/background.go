package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewBackgroundCmd создаёт группу команд фонового выполнения.
func NewBackgroundCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "background",
		Short: "Control background execution of a batch",
	}

	cmd.AddCommand(
		newBackgroundActionCmd("start", "Start background execution", clientFn, outputFn, (*Client).StartBackground),
		newBackgroundActionCmd("stop", "Stop background execution", clientFn, outputFn, (*Client).StopBackground),
		newBackgroundSuspendCmd(clientFn, outputFn),
	)

	return cmd
}

func newBackgroundActionCmd(use, short string, clientFn func() *Client, outputFn func() *Output,
	action func(*Client, int64) (*OverviewResponse, error),
) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			out := outputFn()

			overview, err := action(clientFn(), id)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Batch #%d: %s", id, background(overview.Background)))
			if out.jsonMode {
				out.JSON(overview)
			}
			return nil
		},
	}
}

func newBackgroundSuspendCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "suspend ID",
		Short: "Suspend background execution for a while",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if duration < time.Second {
				return fmt.Errorf("--for must be at least 1s")
			}
			out := outputFn()

			overview, err := clientFn().SuspendBackground(id, duration)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Batch #%d: %s", id, background(overview.Background)))
			if out.jsonMode {
				out.JSON(overview)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&duration, "for", 10*time.Minute, "Suspension length")

	return cmd
}
