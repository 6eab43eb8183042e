package session

import (
	"errors"
	"sync"
	"time"

	"futures-grid-bot-go/internal/exchange"
	"futures-grid-bot-go/internal/models"
	"futures-grid-bot-go/internal/persistence"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrNegativeFee is returned when a fee below zero is added to the accumulator.
var ErrNegativeFee = errors.New("fee must not be negative")

// Session holds everything that lives for one bot run: the exchange handle,
// the active grid levels and the PnL/fee accumulators.
// All mutations are serialized by a mutex; reads return deep copies.
type Session struct {
	mu       sync.Mutex
	state    *models.SessionState
	exchange exchange.Exchange

	repo            persistence.StateRepository
	persistenceChan chan *models.SessionState
	stopChan        chan struct{}
	wg              sync.WaitGroup
	started         bool
	logger          *zap.Logger
}

// New creates an empty session for the exchange profile and symbol.
func New(exchangeName, symbol string, repo persistence.StateRepository, logger *zap.Logger) *Session {
	return Restore(&models.SessionState{
		SessionID: uuid.NewString(),
		Exchange:  exchangeName,
		Symbol:    symbol,
	}, repo, logger)
}

// Restore creates a session from previously persisted state.
func Restore(state *models.SessionState, repo persistence.StateRepository, logger *zap.Logger) *Session {
	if state.SessionID == "" {
		state.SessionID = uuid.NewString()
	}
	return &Session{
		state:           state,
		repo:            repo,
		persistenceChan: make(chan *models.SessionState, 128),
		stopChan:        make(chan struct{}),
		logger:          logger,
	}
}

// Start begins the persistence loop. It is a no-op without a repository.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.repo == nil || s.started {
		return
	}
	s.started = true
	s.wg.Add(1)
	go s.persistenceLoop()
	s.logger.Sugar().Info("Session persistence started.")
}

// Stop flushes pending snapshots and shuts the persistence loop down.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	close(s.stopChan)
	s.wg.Wait()
	s.logger.Sugar().Info("Session persistence stopped.")
}

func (s *Session) persistenceLoop() {
	defer s.wg.Done()
	for {
		select {
		case stateToSave := <-s.persistenceChan:
			s.save(stateToSave)
		case <-s.stopChan:
			// 只需保存最新的一份
			var last *models.SessionState
			for {
				select {
				case st := <-s.persistenceChan:
					last = st
				default:
					if last != nil {
						s.save(last)
					}
					return
				}
			}
		}
	}
}

func (s *Session) save(state *models.SessionState) {
	if err := s.repo.SaveState(state); err != nil {
		s.logger.Sugar().Errorf("Failed to save session state: %v", err)
	}
}

// persist must be called with the lock held.
func (s *Session) persist() {
	s.state.LastUpdateTime = time.Now()
	if !s.started {
		return
	}
	select {
	case s.persistenceChan <- s.deepCopy():
	default:
		s.logger.Sugar().Warn("Persistence queue is full, dropping session snapshot.")
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.SessionID
}

// Symbol returns the contract the session trades.
func (s *Session) Symbol() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Symbol
}

// ExchangeName returns the profile name of the attached (or configured) exchange.
func (s *Session) ExchangeName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Exchange
}

// Attach stores the handle of a successfully authenticated exchange.
// A previously attached handle is closed.
func (s *Session) Attach(ex exchange.Exchange, exchangeName string) {
	s.mu.Lock()
	old := s.exchange
	s.exchange = ex
	if exchangeName != "" {
		s.state.Exchange = exchangeName
	}
	s.mu.Unlock()

	if old != nil && old != ex {
		old.Close()
	}
}

// Detach clears and closes the exchange handle.
func (s *Session) Detach() {
	s.mu.Lock()
	old := s.exchange
	s.exchange = nil
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}
}

// Exchange returns the current handle and whether one is attached.
func (s *Session) Exchange() (exchange.Exchange, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exchange, s.exchange != nil
}

// SetLevels replaces the active level list.
func (s *Session) SetLevels(levels []models.GridLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Levels = append([]models.GridLevel(nil), levels...)
	s.persist()
}

// AddLevel appends one submitted level.
func (s *Session) AddLevel(level models.GridLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Levels = append(s.state.Levels, level)
	s.persist()
}

// ClearLevels discards the active level list.
func (s *Session) ClearLevels() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Levels = nil
	s.persist()
}

// Levels returns a copy of the active levels.
func (s *Session) Levels() []models.GridLevel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.GridLevel(nil), s.state.Levels...)
}

// AddFee adds a non-negative fee to the cumulative total.
func (s *Session) AddFee(fee decimal.Decimal) error {
	if fee.IsNegative() {
		return ErrNegativeFee
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.CumulativeFees = s.state.CumulativeFees.Add(fee)
	s.persist()
	return nil
}

// AddRealizedPnl books a realized profit or loss.
func (s *Session) AddRealizedPnl(pnl decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.RealizedPnl = s.state.RealizedPnl.Add(pnl)
	s.persist()
}

// RecordBalance sets the start balance the first time it is called and
// reports whether this call set it.
func (s *Session) RecordBalance(balance decimal.Decimal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.HasStartBalance {
		return false
	}
	s.state.StartBalance = balance
	s.state.HasStartBalance = true
	s.persist()
	return true
}

// StartBalance returns the recorded baseline, if any.
func (s *Session) StartBalance() (decimal.Decimal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.StartBalance, s.state.HasStartBalance
}

// Totals returns the realized PnL and cumulative fees.
func (s *Session) Totals() (realizedPnl, cumulativeFees decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.RealizedPnl, s.state.CumulativeFees
}

// SetSnapshot stores the latest account overview.
func (s *Session) SetSnapshot(snapshot models.AccountSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.LastSnapshot = &snapshot
	s.persist()
}

// Snapshot returns the latest account overview, or nil before the first poll.
func (s *Session) Snapshot() *models.AccountSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.LastSnapshot == nil {
		return nil
	}
	snapshot := *s.state.LastSnapshot
	return &snapshot
}

// State returns a deep copy of the session state for safe, concurrent reading.
func (s *Session) State() *models.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deepCopy()
}

// deepCopy must be called with the lock held.
func (s *Session) deepCopy() *models.SessionState {
	stateCopy := *s.state
	if s.state.Levels != nil {
		stateCopy.Levels = make([]models.GridLevel, len(s.state.Levels))
		copy(stateCopy.Levels, s.state.Levels)
	}
	if s.state.LastSnapshot != nil {
		snapshot := *s.state.LastSnapshot
		stateCopy.LastSnapshot = &snapshot
	}
	return &stateCopy
}
