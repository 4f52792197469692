package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
)

// Output управляет форматированием вывода CLI.
type Output struct {
	jsonMode bool
	w        io.Writer // stdout для данных
	errW     io.Writer // stderr для сообщений
}

// NewOutput создаёт Output. Если jsonMode=true, данные выводятся в JSON.
func NewOutput(jsonMode bool) *Output {
	return &Output{
		jsonMode: jsonMode,
		w:        color.Output,
		errW:     color.Error,
	}
}

// Print выводит данные: таблицу или JSON в зависимости от режима.
func (o *Output) Print(headers []string, rows [][]string, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}
	o.Table(headers, rows)
}

// Table выводит данные в виде таблицы через tabwriter.
func (o *Output) Table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	dashes := make([]string, len(headers))
	for i, h := range headers {
		dashes[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(dashes, "\t"))

	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	tw.Flush()
}

// JSON выводит данные в формате JSON с отступами.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// Success выводит сообщение об успехе в stderr.
func (o *Output) Success(msg string) {
	fmt.Fprintln(o.errW, color.GreenString(msg))
}

// Warn выводит предупреждение в stderr.
func (o *Output) Warn(msg string) {
	fmt.Fprintln(o.errW, color.YellowString("Warning: "+msg))
}

// Error выводит сообщение об ошибке в stderr.
func (o *Output) Error(msg string) {
	fmt.Fprintln(o.errW, color.RedString("Error: "+msg))
}

var (
	statusOK      = color.New(color.FgGreen).SprintFunc()
	statusWaiting = color.New(color.FgYellow).SprintFunc()
	statusFailed  = color.New(color.FgRed, color.Bold).SprintFunc()
	statusMuted   = color.New(color.Faint).SprintFunc()
)

// colorStatus раскрашивает статус записи или батча.
func colorStatus(status string) string {
	switch status {
	case "EDIT", "OPEN":
		return statusOK(status)
	case "PLAN", "PENDING":
		return statusWaiting(status)
	case "FAILURE":
		return statusFailed(status)
	default:
		return statusMuted(status)
	}
}

// ago форматирует время относительно текущего момента ("3 minutes ago").
func ago(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

// outcome сокращает JSON результата для таблицы.
func outcome(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	return string(raw)
}

// background описывает состояние фонового выполнения батча.
func background(run *BackgroundRunResponse) string {
	switch {
	case run == nil:
		return "stopped"
	case run.SuspendedUntil != nil && run.SuspendedUntil.After(time.Now()):
		return "suspended until " + humanize.Time(*run.SuspendedUntil)
	default:
		return "running since " + humanize.Time(run.StartedAt) + " by " + run.StartedBy.UserName
	}
}

// counts выводит сводку по статусам с разделителями разрядов.
func counts(c map[string]int) string {
	var parts []string
	for _, status := range []string{"PLAN", "PENDING", "EDIT", "NOOP", "FAILURE"} {
		if n := c[status]; n > 0 {
			parts = append(parts, colorStatus(status)+"="+humanize.Comma(int64(n)))
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}
