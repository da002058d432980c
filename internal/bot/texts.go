package bot

import "fmt"

const welcomeText = "🗒️ Welcome to Notes Reminder Bot!\n\n" +
	"📝 Send me any content and I'll save it as your private note:\n" +
	"• Text messages (multiple sentences, lists, charts)\n" +
	"• Images and photos\n" +
	"• Voice messages\n" +
	"• Documents and files\n" +
	"• Videos and audio\n\n" +
	"⏰ I'll send you random reminders every other day.\n" +
	"🔒 Your notes are completely private and secure.\n\n" +
	"Commands:\n" +
	"/help - Show this help message\n" +
	"/stats - Show your notes statistics\n" +
	"/test - Send a test reminder now\n" +
	"/clear - Select and delete individual notes\n" +
	"/clearall - Delete all your notes"

func helpText(intervalDays, startHour, endHour int) string {
	return "🤖 Notes Reminder Bot Help\n\n" +
		"📝 How to use:\n" +
		"• Send any content to save it as a note:\n" +
		"  - Text messages (long text, lists, charts)\n" +
		"  - Images and photos\n" +
		"  - Voice messages\n" +
		"  - Documents and files\n" +
		"  - Videos and audio\n" +
		"• I'll automatically send you random reminders\n\n" +
		"⏰ Reminder schedule:\n" +
		fmt.Sprintf("• Every %d days\n", intervalDays) +
		fmt.Sprintf("• Between %d:00 and %d:00\n", startHour, endHour) +
		"• Random time within the window\n\n" +
		"🔧 Commands:\n" +
		"/start - Start using the bot\n" +
		"/stats - View your notes statistics\n" +
		"/test - Get a random reminder now\n" +
		"/clear - Select and delete individual notes\n" +
		"/clearall - Delete all your notes\n" +
		"/help - Show this message"
}

func statsText(count, intervalDays, startHour, endHour int) string {
	msg := "📊 Your Notes Statistics\n\n" +
		fmt.Sprintf("📝 Your notes: %d\n", count) +
		fmt.Sprintf("⏰ Reminder interval: Every %d days\n", intervalDays) +
		fmt.Sprintf("🕐 Reminder window: %d:00 - %d:00", startHour, endHour)
	if count == 0 {
		msg += "\n\n💡 Send me a message to create your first note!"
	}
	return msg
}

func savedText(label string, count int) string {
	msg := fmt.Sprintf("%s saved! (Total: %d)", label, count)
	if count == 1 {
		msg += "\n🎉 Your first note! I'll start sending you reminders."
	}
	return msg
}

func truncateForDisplay(s string, maxN int) string {
	r := []rune(s)
	if len(r) <= maxN {
		return s
	}
	return string(r[:maxN]) + "..."
}
