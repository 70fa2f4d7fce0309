package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"chatbridge/internal/migrations"
	"chatbridge/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

// Store persists completed exchanges to SQLite. Message and response
// content is encrypted at rest when CHATBRIDGE_ENABLE_ENCRYPTION=true;
// the conversation column uses deterministic encryption so it remains
// usable as a lookup key.
type Store struct {
	db        *sql.DB
	encryptor *encryptor
}

func New(dbPath string) (*Store, error) {
	if len(dbPath) == 0 || dbPath[0] == '\x00' {
		return nil, fmt.Errorf("invalid database path")
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0600) // #nosec G304 - path comes from validated config
	if err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close database file: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	schema, err := migrations.GetInitialSchema()
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to read schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	encryptor, err := NewEncryptor()
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize encryptor: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	return &Store{db: db, encryptor: encryptor}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// RecordExchange saves one completed message/response pair. Recording
// the same fingerprint twice is a no-op, so a duplicate delivery after
// a crash never produces a duplicate history row.
func (s *Store) RecordExchange(ctx context.Context, exchange *models.Exchange) error {
	encryptedConversation, err := s.encryptor.EncryptForLookupIfEnabled(exchange.Conversation)
	if err != nil {
		return fmt.Errorf("failed to encrypt conversation: %w", err)
	}

	encryptedMessage, err := s.encryptor.EncryptIfEnabled(exchange.Message)
	if err != nil {
		return fmt.Errorf("failed to encrypt message: %w", err)
	}

	encryptedResponse, err := s.encryptor.EncryptIfEnabled(exchange.Response)
	if err != nil {
		return fmt.Errorf("failed to encrypt response: %w", err)
	}

	return retryableDBOperation(ctx, func() error {
		_, err := s.db.ExecContext(ctx, insertExchangeQuery,
			encryptedConversation,
			exchange.Provider,
			string(exchange.Kind),
			encryptedMessage,
			encryptedResponse,
			exchange.Fingerprint,
			exchange.ExchangedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to save exchange: %w", err)
		}
		return nil
	}, "record exchange")
}

// RecentTurns returns up to limit conversation turns for the given
// conversation, oldest first, ready to send as API context. Each stored
// exchange contributes a user turn and an assistant turn.
func (s *Store) RecentTurns(ctx context.Context, conversation string, limit int) ([]models.Turn, error) {
	if limit <= 0 {
		return nil, nil
	}

	encryptedConversation, err := s.encryptor.EncryptForLookupIfEnabled(conversation)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt conversation: %w", err)
	}

	exchangeLimit := (limit + 1) / 2

	var turns []models.Turn
	err = retryableDBOperation(ctx, func() error {
		rows, err := s.db.QueryContext(ctx, selectRecentExchangesQuery, encryptedConversation, exchangeLimit)
		if err != nil {
			return fmt.Errorf("failed to query exchanges: %w", err)
		}
		defer rows.Close()

		type pair struct {
			message  string
			response string
		}
		var recent []pair

		for rows.Next() {
			var encryptedMessage, encryptedResponse string
			if err := rows.Scan(&encryptedMessage, &encryptedResponse); err != nil {
				return fmt.Errorf("failed to scan exchange: %w", err)
			}

			message, err := s.encryptor.DecryptIfEnabled(encryptedMessage)
			if err != nil {
				return fmt.Errorf("failed to decrypt message: %w", err)
			}
			response, err := s.encryptor.DecryptIfEnabled(encryptedResponse)
			if err != nil {
				return fmt.Errorf("failed to decrypt response: %w", err)
			}
			recent = append(recent, pair{message: message, response: response})
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("failed to read exchanges: %w", err)
		}

		// Rows are newest-first; rebuild oldest-first.
		turns = turns[:0]
		for i := len(recent) - 1; i >= 0; i-- {
			turns = append(turns,
				models.Turn{Role: models.TurnRoleUser, Content: recent[i].message},
				models.Turn{Role: models.TurnRoleAssistant, Content: recent[i].response},
			)
		}
		if len(turns) > limit {
			turns = turns[len(turns)-limit:]
		}
		return nil
	}, "recent turns")
	if err != nil {
		return nil, err
	}

	return turns, nil
}

// GetExchangeByFingerprint returns the stored exchange for a
// fingerprint, or nil when none exists.
func (s *Store) GetExchangeByFingerprint(ctx context.Context, fingerprint string) (*models.Exchange, error) {
	var encryptedConversation, encryptedMessage, encryptedResponse, kind string
	exchange := &models.Exchange{}

	err := s.db.QueryRowContext(ctx, selectExchangeByFingerprintQuery, fingerprint).Scan(
		&exchange.ID,
		&encryptedConversation,
		&exchange.Provider,
		&kind,
		&encryptedMessage,
		&encryptedResponse,
		&exchange.Fingerprint,
		&exchange.ExchangedAt,
		&exchange.CreatedAt,
		&exchange.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get exchange: %w", err)
	}

	exchange.Kind = models.MessageKind(kind)

	exchange.Conversation, err = s.encryptor.DecryptIfEnabled(encryptedConversation)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt conversation: %w", err)
	}

	exchange.Message, err = s.encryptor.DecryptIfEnabled(encryptedMessage)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt message: %w", err)
	}

	exchange.Response, err = s.encryptor.DecryptIfEnabled(encryptedResponse)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt response: %w", err)
	}

	return exchange, nil
}

// CountExchanges returns the number of stored exchanges.
func (s *Store) CountExchanges(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, countExchangesQuery).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count exchanges: %w", err)
	}
	return count, nil
}

// CleanupOldExchanges deletes exchanges recorded more than the given
// number of days ago. Zero or negative days disables cleanup.
func (s *Store) CleanupOldExchanges(ctx context.Context, retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}

	return retryableDBOperation(ctx, func() error {
		_, err := s.db.ExecContext(ctx, deleteOldExchangesQuery, retentionDays)
		if err != nil {
			return fmt.Errorf("failed to cleanup old exchanges: %w", err)
		}
		return nil
	}, "cleanup old exchanges")
}
