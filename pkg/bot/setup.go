package bot

import (
	"context"
	"fmt"

	"relaybot/pkg/telegram"
)

var userCommands = []telegram.BotCommand{
	{Command: "start", Description: "Main menu"},
	{Command: "category", Description: "Choose where submissions go"},
	{Command: "help", Description: "How to use the bot"},
}

var staffCommands = []telegram.BotCommand{
	{Command: "help", Description: "Staff commands"},
	{Command: "stats", Description: "Submission and user counts"},
	{Command: "export", Description: "Download every table"},
	{Command: "import", Description: "Restore a table from a file"},
	{Command: "digest", Description: "PDF of recent submissions"},
	{Command: "broadcast", Description: "Message every user"},
	{Command: "cancel", Description: "Cancel a pending broadcast"},
	{Command: "ban", Description: "Ban a user"},
	{Command: "unban", Description: "Unban a user"},
	{Command: "banned", Description: "List banned users"},
}

// Setup registers the command menus shown by Telegram clients.
func (b *Bot) Setup(ctx context.Context) error {
	if err := b.api.SetMyCommands(ctx, userCommands, &telegram.CommandScope{Type: "all_private_chats"}); err != nil {
		return fmt.Errorf("set user commands: %w", err)
	}
	if err := b.api.SetMyCommands(ctx, staffCommands, &telegram.CommandScope{Type: "chat", ChatID: b.cfg.StaffGroupID}); err != nil {
		return fmt.Errorf("set staff commands: %w", err)
	}
	if err := b.api.SetChatMenuButton(ctx, 0, telegram.MenuButton{Type: "commands"}); err != nil {
		return fmt.Errorf("set menu button: %w", err)
	}
	return nil
}
