package bot

// Stop stops receiving Telegram updates and tears down ride trackers.
func (b *Bot) Stop() {
	if b == nil || b.tgService == nil {
		return
	}
	b.trackers.StopAll()
	b.tgService.StopReceivingUpdates()
}
