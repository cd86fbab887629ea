package session

import (
	"context"
	"errors"
	"sync"

	"github.com/youruser/sled/internal/patch"
)

var ErrEditInFlight = errors.New("an edit session is already running for this document")

// Registry enforces the single-writer discipline: at most one in-flight
// streaming session per document, and one live transaction that survives
// across repair retries until accept or reject destroys it.
type Registry struct {
	mu      sync.Mutex
	txs     map[string]*patch.Transaction
	cancels map[string]context.CancelFunc
}

func NewRegistry() *Registry {
	return &Registry{
		txs:     make(map[string]*patch.Transaction),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Begin registers a new streaming session for the document. It returns
// the live transaction, creating one if none exists, or ErrEditInFlight
// if a session is already running.
func (r *Registry) Begin(documentID string, cancel context.CancelFunc) (*patch.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, live := r.cancels[documentID]; live {
		return nil, ErrEditInFlight
	}

	tx := r.txs[documentID]
	if tx == nil {
		tx = patch.NewTransaction(documentID)
		r.txs[documentID] = tx
	}
	r.cancels[documentID] = cancel
	return tx, nil
}

// Finish marks the streaming session over. The transaction stays live
// until Accept or Reject.
func (r *Registry) Finish(documentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cancels, documentID)
}

// Cancel aborts the in-flight session for the document, if any. The
// transaction keeps its snapshot so reject remains possible.
func (r *Registry) Cancel(documentID string) bool {
	r.mu.Lock()
	cancel, ok := r.cancels[documentID]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// InFlight reports whether a session is currently streaming.
func (r *Registry) InFlight(documentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.cancels[documentID]
	return ok
}

// Transaction returns the live transaction for the document, or nil.
func (r *Registry) Transaction(documentID string) *patch.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.txs[documentID]
}

// Accept commits the live transaction. No-op without one. It refuses
// while a session is streaming: the document is mid-mutation and a
// commit now would discard the baseline for blocks still arriving.
func (r *Registry) Accept(documentID string) error {
	r.mu.Lock()
	if _, live := r.cancels[documentID]; live {
		r.mu.Unlock()
		return ErrEditInFlight
	}
	tx := r.txs[documentID]
	delete(r.txs, documentID)
	r.mu.Unlock()
	if tx != nil {
		tx.Accept()
	}
	return nil
}

// Reject rolls the document back to the transaction snapshot and
// destroys the transaction. No-op without one. Like Accept it refuses
// while a session is streaming; the caller cancels first, waits for the
// session to finish, then rejects.
func (r *Registry) Reject(documentID string, doc patch.Document) error {
	r.mu.Lock()
	if _, live := r.cancels[documentID]; live {
		r.mu.Unlock()
		return ErrEditInFlight
	}
	tx := r.txs[documentID]
	delete(r.txs, documentID)
	r.mu.Unlock()
	if tx != nil {
		tx.Reject(doc)
	}
	return nil
}
