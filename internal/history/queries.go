package history

const (
	insertExchangeQuery = `
		INSERT OR IGNORE INTO exchanges (
			conversation, provider, kind, message, response,
			fingerprint, exchanged_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	selectRecentExchangesQuery = `
		SELECT message, response
		FROM exchanges
		WHERE conversation = ?
		ORDER BY exchanged_at DESC, id DESC
		LIMIT ?
	`

	selectExchangeByFingerprintQuery = `
		SELECT id, conversation, provider, kind, message, response,
		       fingerprint, exchanged_at, created_at, updated_at
		FROM exchanges
		WHERE fingerprint = ?
	`

	countExchangesQuery = `SELECT COUNT(*) FROM exchanges`

	deleteOldExchangesQuery = `
		DELETE FROM exchanges
		WHERE created_at < datetime('now', '-' || ? || ' days')
	`
)
