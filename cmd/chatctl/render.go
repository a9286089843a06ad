package main

import (
	"chat-relay/domain"
	"chat-relay/search"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

type printer struct {
	out     io.Writer
	colours bool
}

func (p printer) paint(style color.Style, text string) string {
	if !p.colours {
		return text
	}
	return style.Render(text)
}

func (p printer) table(header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(p.out)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func (p printer) messages(messages []domain.Message) {
	table := p.table([]string{"Time", "Room", "Sender", "Target", "Body"})
	for _, m := range messages {
		table.Append([]string{m.CreatedAt.Local().Format("15:04:05"), string(m.Room), m.Sender, m.Target, m.Body})
	}
	table.Render()
}

func (p printer) hits(hits []search.Hit) {
	table := p.table([]string{"Time", "Sender", "Score", "Body"})
	for _, h := range hits {
		table.Append([]string{h.CreatedAt.Local().Format("15:04:05"), h.Sender, fmt.Sprintf("%.2f", h.Score), h.Body})
	}
	table.Render()
}

func (p printer) presence(list []domain.Presence) {
	table := p.table([]string{"Identity", "Joined"})
	for _, entry := range list {
		table.Append([]string{entry.Identity, entry.JoinedAt.Local().Format("15:04:05")})
	}
	table.Render()
}

func (p printer) message(m domain.Message) {
	sender := p.paint(color.New(color.FgGreen, color.OpBold), m.Sender)
	if m.IsPrivate {
		sender += p.paint(color.New(color.FgMagenta), " -> "+m.Target)
	}
	_, _ = fmt.Fprintf(p.out, "[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04:05"), sender, m.Body)
}

// event prints one envelope received from the stream.
func (p printer) event(evt envelope) {
	switch evt.Type {
	case "message":
		var m domain.Message
		if err := json.Unmarshal(evt.Data, &m); err != nil {
			p.warn("unreadable message: %v", err)
			return
		}
		p.message(m)
	case "presence":
		var list []domain.Presence
		if err := json.Unmarshal(evt.Data, &list); err != nil {
			p.warn("unreadable presence list: %v", err)
			return
		}
		names := lo.Map(list, func(entry domain.Presence, _ int) string { return entry.Identity })
		_, _ = fmt.Fprintln(p.out, p.paint(color.New(color.FgCyan), "online: "+strings.Join(names, ", ")))
	case "error":
		var detail struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(evt.Data, &detail)
		p.warn("%s", detail.Error)
	default:
		p.warn("unknown event type %q", evt.Type)
	}
}

func (p printer) warn(format string, args ...any) {
	_, _ = fmt.Fprintln(p.out, p.paint(color.New(color.FgYellow), fmt.Sprintf(format, args...)))
}
