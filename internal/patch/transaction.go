package patch

// Transaction is the rollback unit for one user-visible edit action.
// It may span several streaming sessions when the retry controller
// re-prompts; the snapshot stays fixed to the pre-session state.
type Transaction struct {
	DocumentID string

	originalLines []string
	captured      bool

	// AppliedBlocks counts blocks applied in this transaction.
	AppliedBlocks int
	// MinConfidence is the weakest confidence among applied blocks,
	// the weakest link of a multi-block edit. 1.0 until a block lands.
	MinConfidence float64
}

// NewTransaction creates a transaction for the given document.
func NewTransaction(documentID string) *Transaction {
	return &Transaction{DocumentID: documentID, MinConfidence: 1.0}
}

// Snapshot captures the rollback baseline. The capture happens at most
// once per transaction: later blocks mutate the document but the
// baseline stays the pre-session content.
func (t *Transaction) Snapshot(doc Document) {
	if t.captured {
		return
	}
	t.originalLines = doc.Lines()
	t.captured = true
}

// Captured reports whether the rollback baseline exists.
func (t *Transaction) Captured() bool {
	return t.captured
}

// Accept commits the transaction: the snapshot is discarded and the
// document keeps its mutated content. Idempotent.
func (t *Transaction) Accept() {
	t.originalLines = nil
	t.captured = false
}

// Reject rolls the document back to the snapshot verbatim and discards
// it. A reject without a captured snapshot is a no-op, so rejecting
// twice leaves the document where the first reject put it.
func (t *Transaction) Reject(doc Document) {
	if !t.captured {
		return
	}
	doc.Replace(0, doc.LineCount(), t.originalLines)
	t.originalLines = nil
	t.captured = false
	t.AppliedBlocks = 0
	t.MinConfidence = 1.0
}
