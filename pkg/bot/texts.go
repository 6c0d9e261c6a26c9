package bot

import "relaybot/pkg/telegram"

// callback data
const (
	cbOrders     = "orders_list"
	cbHelp       = "instructions"
	cbMenu       = "main_menu"
	cbHowToReply = "how_to_reply"
	cbCategory   = "cat:"
	cbCategories = "categories"
)

const (
	textWelcome = "👋 Welcome, %s!\n\n" +
		"Send your question here as text, a photo, a file or a voice note. " +
		"Our team receives every submission for review.\n\n" +
		"👇 Use the buttons below for more."

	textInstructions = "<b>How it works</b>\n\n" +
		"• Send a question as text, a photo, a document or a voice note.\n" +
		"• Your submission is forwarded to the team for review.\n" +
		"• When a team member answers, the reply arrives here.\n" +
		"• To answer back, reply to the team's message.\n" +
		"• Tap \"My submissions\" to see what you have sent."

	textUserHelp = "<b>Help</b>\n\n" +
		"Just send your question as a message, photo, document or voice note.\n\n" +
		"/start shows the main menu\n" +
		"/category picks where your next submissions go\n" +
		"/help shows this message\n\n" +
		"To answer the team, reply to their message."

	textStaffHelp = "<b>Staff commands</b>\n\n" +
		"/stats submission and user counts\n" +
		"/export download every table as JSON\n" +
		"/import reply to a table file (or use it as caption) to restore it\n" +
		"/digest [days] PDF of recent submissions\n" +
		"/broadcast send a message to every user\n" +
		"/cancel stop a pending broadcast\n" +
		"/ban &lt;id&gt; [reason] block a user\n" +
		"/unban &lt;id&gt; unblock a user\n" +
		"/banned list blocked users\n\n" +
		"<b>Answering users:</b> reply to their message in this group and the reply is delivered to them."

	textBanned          = "🚫 Sorry, you have been banned from using this bot."
	textReceived        = "👍 Received, thanks for your contribution!"
	textRateLimited     = "⏳ You are sending messages too fast. Please wait a moment and try again."
	textSomethingWrong  = "⚠️ Something went wrong on our side. Please try again."
	textSubmitFailed    = "⚠️ Sorry, we couldn't deliver your submission. Please try again later."
	textSubmitNoStaff   = "⚠️ Sorry, the team can't be reached right now. Please try again later."
	textUserReplySent   = "✅ Your reply was sent."
	textUserReplyFailed = "⚠️ Sorry, your reply couldn't be delivered. Please try again later."
	textStaffReplySent  = "✅ Sent."
	textStaffBlocked    = "❌ Not delivered: the user blocked the bot or deleted their account."
	textStaffFailed     = "❌ Failed to send the reply.\nError: %s"
	textMilestone       = "🎉 Congratulations! We just reached submission number %d."
	textNoSubmissions   = "You haven't sent anything yet."
	textHowToReply      = "💡 Reply to this message to send your answer to the team."
	textHowToReplyBtn   = "↩️ How do I reply?"
	textUnknownCommand  = "I don't know that command. Send /help to see what I can do."

	textCategoryPrompt = "Where should your next submissions go?"
	textCategorySet    = "✅ Your submissions now go to <b>%s</b>."
	textCategoryNone   = "There is only one destination, just send your question."
	textGeneral        = "General"

	textBroadcastPrompt   = "📣 <b>Broadcast mode</b>\n\nSend the message to deliver to %d users, or /cancel."
	textBroadcastDone     = "📣 <b>Broadcast finished</b>\n\n✅ Delivered: %d\n❌ Failed: %d\n👥 Total: %d"
	textBroadcastCanceled = "Broadcast cancelled."
	textNothingToCancel   = "Nothing to cancel."

	textBanUsage      = "Usage: /ban &lt;user id&gt; [reason]"
	textUnbanUsage    = "Usage: /unban &lt;user id&gt;"
	textIDNotNumber   = "The user id must be a number."
	textBanned1       = "🚫 User <code>%d</code> is banned.\nReason: %s"
	textAlreadyBanned = "User <code>%d</code> is already banned."
	textUnbanned      = "✅ User <code>%d</code> is no longer banned."
	textNotBanned     = "User <code>%d</code> is not banned."
	textNoBans        = "Nobody is banned."

	textImportUsage  = "Send a table file with the caption /import, or reply /import to one."
	textImportTooBig = "❌ That file is %s, the limit is %s."
	textImportFailed = "❌ Import failed: %s"
	textImportDone   = "✅ Imported <b>%s</b>: %d rows, %s."
	textExportFailed = "❌ Export failed: %s"
	textDigestEmpty  = "No submissions in that period."
	textDigestFailed = "❌ Couldn't build the digest: %s"
)

func mainMenu(withCategories bool) *telegram.InlineKeyboardMarkup {
	rows := [][]telegram.InlineKeyboardButton{
		telegram.Row("📬 My submissions", cbOrders),
		telegram.Row("ℹ️ How it works", cbHelp),
	}
	if withCategories {
		rows = append(rows, telegram.Row("🗂 Choose category", cbCategories))
	}
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func backMenu() *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
		telegram.Row("⬅️ Back", cbMenu),
	}}
}

func howToReplyMarkup() *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
		telegram.Row(textHowToReplyBtn, cbHowToReply),
	}}
}
