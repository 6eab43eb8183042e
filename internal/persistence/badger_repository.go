package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"futures-grid-bot-go/internal/models"

	"github.com/dgraph-io/badger/v3"
)

const sessionKeyPrefix = "session/"

// badgerRepository is the BadgerDB implementation of the StateRepository.
type badgerRepository struct {
	db *badger.DB
}

// NewBadgerRepository creates and returns a new repository instance connected to a BadgerDB database.
func NewBadgerRepository(dbPath string) (StateRepository, error) {
	opts := badger.DefaultOptions(dbPath)
	// Badger's own logging is disabled; errors are still returned from DB operations.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", dbPath, err)
	}

	return &badgerRepository{db: db}, nil
}

// sessionKey scopes a session to one exchange profile and one contract.
func sessionKey(exchange, symbol string) []byte {
	return []byte(sessionKeyPrefix + strings.ToLower(exchange) + "/" + strings.ToUpper(symbol))
}

// SaveState marshals the session into JSON and saves it under its exchange/symbol key.
func (r *badgerRepository) SaveState(state *models.SessionState) error {
	if state == nil {
		return errors.New("cannot save nil session state")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}

	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(sessionKey(state.Exchange, state.Symbol), data)
	})
}

// LoadState returns (nil, nil) when nothing was saved for the exchange and symbol.
func (r *badgerRepository) LoadState(exchange, symbol string) (*models.SessionState, error) {
	var state models.SessionState

	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(exchange, symbol))
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				return errors.New("session value is empty in database")
			}
			return json.Unmarshal(val, &state)
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &state, nil
}

// Close gracefully closes the connection to the database.
func (r *badgerRepository) Close() error {
	return r.db.Close()
}
