package persistence

import "futures-grid-bot-go/internal/models"

// StateRepository defines the interface for session persistence.
// It abstracts the underlying storage mechanism (e.g., BadgerDB, in-memory)
// from the rest of the application.
type StateRepository interface {
	// SaveState atomically saves the session state under its exchange and symbol.
	SaveState(state *models.SessionState) error

	// LoadState loads the last session saved for the exchange and symbol.
	// If no state is found, it should return (nil, nil).
	LoadState(exchange, symbol string) (*models.SessionState, error)

	// Close gracefully closes the connection to the database.
	Close() error
}
