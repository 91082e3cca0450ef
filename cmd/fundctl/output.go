package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	eventapp "github.com/erp/fundflow/internal/application/event"
	fundapp "github.com/erp/fundflow/internal/application/fundrequest"
)

const timeLayout = "2006-01-02 15:04:05"

// print writes v as indented JSON, or rows as an aligned table whose first row is the header
func (a *app) print(w io.Writer, v any, rows [][]string) error {
	switch a.output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "", "table":
		return writeTable(w, rows)
	default:
		return fmt.Errorf("unknown output format %q", a.output)
	}
}

func writeTable(w io.Writer, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

func stepRows(steps []fundapp.StepResponse, more ...fundapp.StepResponse) [][]string {
	rows := [][]string{{"ORDER", "NAME", "ROLE", "ACTIVE", "ID"}}
	for _, s := range append(steps, more...) {
		rows = append(rows, []string{
			strconv.Itoa(s.StepOrder),
			s.StepName,
			s.ResponsibleRole,
			strconv.FormatBool(s.IsActive),
			s.ID.String(),
		})
	}
	return rows
}

func historyRows(entries []fundapp.HistoryEntryResponse) [][]string {
	rows := [][]string{{"#", "ACTION", "FROM", "TO", "BY", "AT", "COMMENT"}}
	for _, e := range entries {
		from := "-"
		if e.FromStatus != nil {
			from = *e.FromStatus
		}
		rows = append(rows, []string{
			strconv.FormatInt(e.Sequence, 10),
			e.ActionLabel,
			from,
			e.ToStatus,
			e.PerformedByName,
			e.CreatedAt.Format(timeLayout),
			e.Comment,
		})
	}
	return rows
}

func progressRows(p *fundapp.ProgressResponse) [][]string {
	rows := [][]string{{"ORDER", "STEP", "ROLE", "STATE"}}
	for _, s := range p.Steps {
		rows = append(rows, []string{
			strconv.Itoa(s.StepOrder),
			s.StepName,
			string(s.ResponsibleRole),
			string(s.State),
		})
	}
	return rows
}

func outboxRows(entries []eventapp.OutboxEntryResponse, more ...eventapp.OutboxEntryResponse) [][]string {
	rows := [][]string{{"ID", "EVENT", "STATUS", "RETRIES", "LAST ERROR"}}
	for _, e := range append(entries, more...) {
		rows = append(rows, []string{
			e.ID.String(),
			e.EventType,
			e.Status,
			fmt.Sprintf("%d/%d", e.RetryCount, e.MaxRetries),
			e.LastError,
		})
	}
	return rows
}
