package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/chatkeeper/internal/client/config"
	"github.com/dmitrijs2005/chatkeeper/internal/client/keeper"
	"github.com/dmitrijs2005/chatkeeper/internal/server/backup"
	"github.com/dmitrijs2005/chatkeeper/internal/server/models"
)

var ErrUsage = errors.New("usage")

// Keeper is the subset of the server API the CLI drives.
type Keeper interface {
	Stats(ctx context.Context) (*models.Stats, error)
	ListConversations(ctx context.Context) ([]*models.ConversationSummary, error)
	GetConversationWithMessages(ctx context.Context, id string) (*models.ConversationWithMessages, error)
	DeleteConversation(ctx context.Context, id string) error
	DeleteMessage(ctx context.Context, id string) (string, error)
	TriggerBackup(ctx context.Context, manual bool) (*backup.Result, error)
	BackupStatus(ctx context.Context) (*backup.Status, error)
	Close() error
}

type App struct {
	config *config.Config
	keeper Keeper
	out    io.Writer
}

func NewApp(c *config.Config) (*App, error) {
	k, err := keeper.NewClient(c.ServerEndpointAddr, c.RequestTimeout)
	if err != nil {
		return nil, err
	}
	return &App{config: c, keeper: k, out: os.Stdout}, nil
}

// Run executes the command named by args[0] and closes the connection.
func (a *App) Run(ctx context.Context, args []string) error {
	defer a.keeper.Close()

	if len(args) == 0 {
		a.help()
		return ErrUsage
	}

	cmd, rest := args[0], args[1:]

	switch cmd {
	case "help":
		a.help()
		return nil
	case "stats":
		return a.stats(ctx)
	case "list", "l":
		return a.list(ctx)
	case "show":
		id, err := oneID(cmd, rest)
		if err != nil {
			return err
		}
		return a.show(ctx, id)
	case "delete":
		id, err := oneID(cmd, rest)
		if err != nil {
			return err
		}
		return a.delete(ctx, id)
	case "delete-message":
		id, err := oneID(cmd, rest)
		if err != nil {
			return err
		}
		return a.deleteMessage(ctx, id)
	case "backup":
		return a.backup(ctx, rest)
	case "status":
		return a.status(ctx)
	default:
		a.help()
		return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
	}
}

func (a *App) help() {
	fmt.Fprintln(a.out, "Available commands: stats, (l)ist, show <id>, delete <id>, delete-message <id>, backup [--scheduled], status")
}

func oneID(cmd string, args []string) (string, error) {
	if len(args) != 1 || args[0] == "" {
		return "", fmt.Errorf("%w: %s <id>", ErrUsage, cmd)
	}
	return args[0], nil
}
