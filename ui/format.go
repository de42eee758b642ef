package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"opsdash/event"
	"opsdash/notify"
	"opsdash/store"

	"github.com/dustin/go-humanize"
)

func severityTag(sev notify.Severity) string {
	switch sev {
	case notify.SeveritySuccess:
		return "[green]"
	case notify.SeverityWarning:
		return "[yellow]"
	case notify.SeverityError:
		return "[red]"
	default:
		return "[aqua]"
	}
}

func severityGlyph(sev notify.Severity) string {
	switch sev {
	case notify.SeveritySuccess:
		return "✔"
	case notify.SeverityWarning:
		return "!"
	case notify.SeverityError:
		return "✖"
	default:
		return "·"
	}
}

func statusTag(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "ok", "healthy", "up":
		return "[green]"
	case "degraded", "warning", "slow":
		return "[yellow]"
	case "":
		return "[gray]"
	default:
		return "[red]"
	}
}

func formatTotals(v store.View) string {
	t := v.Totals
	lines := []string{
		fmt.Sprintf("Orders      %s", humanize.Comma(int64(t.Orders))),
		fmt.Sprintf("Sales       %s", humanize.CommafWithDigits(t.Sales, 2)),
		fmt.Sprintf("Avg order   %s", humanize.CommafWithDigits(t.AvgOrderValue, 2)),
		fmt.Sprintf("Growth      %+.1f%%", t.RevenueGrowth),
		fmt.Sprintf("Customers   %s (+%d new)", humanize.Comma(int64(t.Customers)), t.NewCustomers),
		fmt.Sprintf("Products    %s (%d updates)", humanize.Comma(int64(t.Products)), v.ProductUpdates),
	}
	if t.Errors > 0 {
		lines = append(lines, fmt.Sprintf("Errors      [red]%d[-]", t.Errors))
	} else {
		lines = append(lines, "Errors      0")
	}
	return strings.Join(lines, "\n")
}

func formatOrdersByStatus(byStatus map[string]int) string {
	if len(byStatus) == 0 {
		return "(none)"
	}
	names := make([]string, 0, len(byStatus))
	for name := range byStatus {
		names = append(names, name)
	}
	sort.Strings(names)
	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("%-12s%d", name, byStatus[name]))
	}
	return strings.Join(lines, "\n")
}

func formatTopProducts(products []store.ProductSales) string {
	if len(products) == 0 {
		return "(none)"
	}
	lines := make([]string, 0, len(products))
	for i, p := range products {
		lines = append(lines, fmt.Sprintf("%d. %s ×%d  %s",
			i+1, p.Name, p.Quantity, humanize.CommafWithDigits(p.Revenue, 2)))
	}
	return strings.Join(lines, "\n")
}

func formatHealth(v store.View, now time.Time) string {
	h := v.Health
	status := strings.TrimSpace(h.Status)
	if status == "" {
		status = "unknown"
	}
	lines := []string{
		fmt.Sprintf("Status      %s%s[-]", statusTag(h.Status), strings.ToUpper(status)),
		fmt.Sprintf("Jobs        %d pending, %d failed", h.PendingJobs, h.FailedJobs),
		fmt.Sprintf("Queue       %d deep, lag %.1fs", h.QueueDepth, h.SyncLagSeconds),
	}
	switch {
	case v.Busy:
		lines = append(lines, "Last sync   [yellow]loading…[-]")
	case v.LastSync.IsZero():
		lines = append(lines, "Last sync   never")
	default:
		lines = append(lines, fmt.Sprintf("Last sync   %s (%s)",
			v.LastSync.Format("15:04:05"), humanize.RelTime(v.LastSync, now, "ago", "")))
	}
	return strings.Join(lines, "\n")
}

func formatNotification(n notify.Notification, now time.Time) string {
	age := humanize.RelTime(n.CreatedAt, now, "ago", "")
	line := fmt.Sprintf("%s%s %s[-] %s", severityTag(n.Severity), severityGlyph(n.Severity), n.Title, n.Message)
	return fmt.Sprintf("%s [gray](%s)[-]", line, age)
}

// activityEntry renders one decoded event as a feed entry.
func activityEntry(ev event.Event) Entry {
	e := Entry{At: ev.At}
	switch p := ev.Payload.(type) {
	case event.OrderCreated:
		e.Badge = "[green]ORDER[-]"
		e.Text = fmt.Sprintf("%s for %s %s (%s)", p.Name, humanize.CommafWithDigits(p.Total, 2), p.Currency, p.Customer)
	case event.ProductUpdated:
		e.Badge = "[aqua]PRODUCT[-]"
		e.Text = fmt.Sprintf("%s at %s, %d in stock", p.Title, humanize.CommafWithDigits(p.Price, 2), p.Inventory)
	case event.CustomerSynced:
		e.Badge = "[aqua]CUSTOMER[-]"
		e.Text = fmt.Sprintf("%s <%s>", p.Name, p.Email)
	case event.ErrorOccurred:
		e.Badge = "[red]ERROR[-]"
		e.Text = fmt.Sprintf("%s: %s [%s]", p.Origin, p.Message, p.Code)
	case event.SystemHealth:
		e.Badge = "[yellow]HEALTH[-]"
		e.Text = fmt.Sprintf("status %s, %d pending jobs", p.Status, p.PendingJobs)
	default:
		e.Badge = "[gray]EVENT[-]"
		e.Text = ev.Kind().String()
	}
	return e
}

func formatFeed(entries []Entry) string {
	if len(entries) == 0 {
		return "(quiet)"
	}
	lines := make([]string, 0, len(entries))
	// newest first for display
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		lines = append(lines, fmt.Sprintf("[gray]%s[-] %s %s", e.At.Format("15:04:05"), e.Badge, e.Text))
	}
	return strings.Join(lines, "\n")
}
