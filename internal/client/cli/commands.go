package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
)

const timeLayout = "2006-01-02 15:04:05"

func (a *App) table(header ...string) *tablewriter.Table {
	t := tablewriter.NewWriter(a.out)
	t.SetHeader(header)
	t.SetAutoWrapText(false)
	return t
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format(timeLayout)
}

func (a *App) stats(ctx context.Context) error {
	st, err := a.keeper.Stats(ctx)
	if err != nil {
		return err
	}

	t := a.table("backend", "conversations", "messages")
	t.Append([]string{st.Backend, strconv.Itoa(st.ConversationCount), strconv.Itoa(st.MessageCount)})
	t.Render()
	return nil
}

func (a *App) list(ctx context.Context) error {
	list, err := a.keeper.ListConversations(ctx)
	if err != nil {
		return err
	}

	t := a.table("id", "title", "model", "messages", "updated")
	for _, c := range list {
		t.Append([]string{c.ID, c.Title, c.Model, strconv.Itoa(c.MessageCount), formatTime(&c.UpdatedAt)})
	}
	t.Render()
	return nil
}

func (a *App) show(ctx context.Context, id string) error {
	c, err := a.keeper.GetConversationWithMessages(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "%s  %s  (%s)\n", c.ID, c.Title, c.Model)
	fmt.Fprintf(a.out, "created %s, updated %s\n", formatTime(&c.CreatedAt), formatTime(&c.UpdatedAt))
	if len(c.Context) > 0 {
		fmt.Fprintf(a.out, "context %s\n", c.Context)
	}

	t := a.table("id", "sender", "status", "retries", "created", "content")
	for _, m := range c.Messages {
		t.Append([]string{m.ID, m.Sender, string(m.Status), strconv.Itoa(m.RetryCount), formatTime(&m.CreatedAt), m.Content})
	}
	t.Render()
	return nil
}

func (a *App) delete(ctx context.Context, id string) error {
	if err := a.keeper.DeleteConversation(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "conversation %s deleted\n", id)
	return nil
}

func (a *App) deleteMessage(ctx context.Context, id string) error {
	convID, err := a.keeper.DeleteMessage(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "message %s deleted from conversation %s\n", id, convID)
	return nil
}

func (a *App) backup(ctx context.Context, args []string) error {
	manual := true
	for _, arg := range args {
		switch arg {
		case "--scheduled", "-scheduled":
			manual = false
		default:
			return fmt.Errorf("%w: backup [--scheduled]", ErrUsage)
		}
	}

	res, err := a.keeper.TriggerBackup(ctx, manual)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "backup %s", res.Status)
	if res.Detail != "" {
		fmt.Fprintf(a.out, ": %s", res.Detail)
	}
	fmt.Fprintln(a.out)
	if res.Snapshot != nil {
		fmt.Fprintf(a.out, "snapshot %s (%d bytes, %d conversations, %d messages)\n",
			res.Snapshot.ID, res.Snapshot.SizeBytes, res.Snapshot.ConversationCount, res.Snapshot.MessageCount)
	}
	return nil
}

func (a *App) status(ctx context.Context) error {
	st, err := a.keeper.BackupStatus(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "configured: %t, in progress: %t\n", st.Configured, st.InProgress)
	fmt.Fprintf(a.out, "last backup: %s, next eligible: %s\n", formatTime(st.LastBackupTime), formatTime(st.NextEligibleAt))

	if len(st.History) == 0 {
		return nil
	}

	t := a.table("time", "status", "name", "error")
	for i := range st.History {
		h := st.History[i]
		t.Append([]string{formatTime(&h.Timestamp), h.Status, h.Name, h.Error})
	}
	t.Render()
	return nil
}
