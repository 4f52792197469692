package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// NewBatchCmd создаёт группу команд для управления батчами.
func NewBatchCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Manage batches",
	}

	cmd.AddCommand(
		newBatchSubmitCmd(clientFn, outputFn),
		newBatchListCmd(clientFn, outputFn),
		newBatchShowCmd(clientFn, outputFn),
		newBatchCommandsCmd(clientFn, outputFn),
		newBatchRunCmd(clientFn, outputFn),
	)

	return cmd
}

func newBatchSubmitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var title string

	cmd := &cobra.Command{
		Use:   "submit FILE",
		Short: "Submit a batch from a JSON file (- for stdin)",
		Long: `Submit a batch. The file holds either a list of commands or an object
{"title": "...", "commands": [...]}, where each command is
{"page": {"title": "...", "resolve_redirects": "default|follow|literal"},
 "actions": [{"type": "add_category", "category": "..."}]}.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			data, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			req, err := parseSubmit(data)
			if err != nil {
				return err
			}
			if title != "" {
				req.Title = title
			}

			batch, err := client.SubmitBatch(req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Batch submitted: #%d", batch.ID))
			out.Print(batchHeaders, [][]string{batchRow(*batch)}, batch)
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Batch title (overrides the file)")

	return cmd
}

func newBatchListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List latest batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			batches, err := client.ListBatches(limit)
			if err != nil {
				return err
			}

			rows := make([][]string, len(batches))
			for i, b := range batches {
				rows[i] = batchRow(b)
			}
			out.Print(batchHeaders, rows, batches)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newBatchShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show batch details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			client := clientFn()
			out := outputFn()

			overview, err := client.GetBatch(id)
			if err != nil {
				return err
			}

			out.Print(
				[]string{"ID", "DOMAIN", "OWNER", "STATUS", "COMMANDS", "BACKGROUND", "UPDATED"},
				[][]string{{
					strconv.FormatInt(overview.ID, 10),
					overview.Domain,
					overview.Owner.UserName,
					colorStatus(overview.Status),
					counts(overview.Counts),
					background(overview.Background),
					ago(overview.LastUpdatedAt),
				}},
				overview,
			)
			return nil
		},
	}
}

func newBatchCommandsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var offset, limit int

	cmd := &cobra.Command{
		Use:   "commands ID",
		Short: "List commands of a batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			client := clientFn()
			out := outputFn()

			commands, err := client.ListCommands(id, offset, limit)
			if err != nil {
				return err
			}

			out.Print(commandHeaders, commandRows(commands), commands)
			return nil
		},
	}

	cmd.Flags().IntVar(&offset, "offset", 0, "Index of the first command")
	cmd.Flags().IntVar(&limit, "limit", 50, "Number of commands")

	return cmd
}

func newBatchRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var offset, limit int

	cmd := &cobra.Command{
		Use:   "run ID",
		Short: "Run a window of planned commands now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			client := clientFn()
			out := outputFn()

			resp, err := client.RunSlice(id, offset, limit)
			if err != nil {
				return err
			}

			out.Print(commandHeaders, commandRows(resp.Finished), resp)
			if resp.Error != "" {
				out.Warn("run interrupted: " + resp.Error)
			} else {
				out.Success(fmt.Sprintf("%d commands finished", len(resp.Finished)))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&offset, "offset", 0, "Index of the first command")
	cmd.Flags().IntVar(&limit, "limit", 10, "Number of commands")

	return cmd
}

// --- Helpers ---

var (
	batchHeaders   = []string{"ID", "DOMAIN", "TITLE", "OWNER", "STATUS", "CREATED"}
	commandHeaders = []string{"ID", "COMMAND", "STATUS", "OUTCOME"}
)

func batchRow(b BatchResponse) []string {
	return []string{
		strconv.FormatInt(b.ID, 10),
		b.Domain,
		b.Title,
		b.Owner.UserName,
		colorStatus(b.Status),
		ago(b.CreatedAt),
	}
}

func commandRows(commands []CommandResponse) [][]string {
	rows := make([][]string, len(commands))
	for i, c := range commands {
		rows[i] = []string{strconv.FormatInt(c.ID, 10), c.Line, colorStatus(c.Status), outcome(c.Outcome)}
	}
	return rows
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid batch id %q", s)
	}
	return id, nil
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// parseSubmit принимает либо объект с title и commands, либо голый список команд.
func parseSubmit(data []byte) (SubmitBatchRequest, error) {
	var commands []json.RawMessage
	if err := json.Unmarshal(data, &commands); err == nil {
		return SubmitBatchRequest{Commands: data}, nil
	}

	var req SubmitBatchRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return SubmitBatchRequest{}, fmt.Errorf("parse batch: %w", err)
	}
	if len(req.Commands) == 0 {
		return SubmitBatchRequest{}, fmt.Errorf("parse batch: no commands")
	}
	return req, nil
}
