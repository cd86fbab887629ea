// Package session runs one user-visible edit action end to end: it
// streams the model response, scans edit blocks, locates and applies
// them, and re-prompts on recoverable low-confidence failures within a
// fixed repair budget.
package session

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/youruser/sled/internal/archive"
	"github.com/youruser/sled/internal/block"
	"github.com/youruser/sled/internal/llm"
	"github.com/youruser/sled/internal/logging"
	"github.com/youruser/sled/internal/match"
	"github.com/youruser/sled/internal/patch"
	"github.com/youruser/sled/internal/stream"
)

var log = logging.Get()

// Status is the terminal outcome of an edit action.
type Status string

const (
	StatusSuccess         Status = "success"
	StatusPartialFailure  Status = "partial_failure"
	StatusInvalidResponse Status = "invalid_response"
	StatusTransportError  Status = "transport_error"
	StatusCancelled       Status = "cancelled"
)

// Confidence bands for failure classification. A best failed score above
// RecoverableFloor (and at or below the match threshold) is worth one
// more prompt; at or below it the model hallucinated structure that is
// not in the document and further attempts are futile.
const RecoverableFloor = 0.45

// Streamer abstracts the provider transport for the controller.
type Streamer interface {
	Stream(ctx context.Context, systemPrompt, userPrompt string, onChunk func(chunk []byte)) error
	Format() stream.Format
}

// Result is the session-terminal report handed to the caller.
type Result struct {
	Status        Status       `json:"status"`
	AppliedCount  int          `json:"applied_count"`
	MinConfidence float64      `json:"min_confidence"`
	Usage         stream.Usage `json:"usage"`
	Retries       int          `json:"retries"`
	// SessionID keys the archived raw response of the last attempt.
	SessionID string `json:"session_id"`
	Message   string `json:"message,omitempty"`
}

// Request describes one edit action.
type Request struct {
	DocumentID   string
	Instruction  string
	SystemPrompt string
	// Range optionally restricts the locator to a document sub-range.
	Range *match.Range
}

// BlockSink receives per-block outcomes as they happen, for highlight
// rendering. May be nil.
type BlockSink func(outcome patch.Outcome, blk *block.Block)

// Controller owns the repair loop. One controller serves many requests;
// all per-attempt state lives in the session value.
type Controller struct {
	client   Streamer
	strategy match.Strategy
	store    *archive.Store // may be nil
	budget   int
}

// NewController wires the controller. store may be nil to skip raw
// response archival; budget is the maximum number of repair retries.
func NewController(client Streamer, strategy match.Strategy, store *archive.Store, budget int) *Controller {
	return &Controller{client: client, strategy: strategy, store: store, budget: budget}
}

// session is one streaming request/response cycle.
type session struct {
	id      string
	demux   *stream.Demuxer
	lines   block.LineBuffer
	scanner *block.Scanner

	decoded     strings.Builder
	usage       stream.Usage
	providerErr string

	blocksSeen     int
	applied        int
	minConf        float64
	bestFailed     float64
	failedExpected []string
}

// Run executes the edit action against the document, looping on
// recoverable failures until the repair budget is spent. The transaction
// must be live; Run never accepts or rejects it.
func (c *Controller) Run(ctx context.Context, doc patch.Document, tx *patch.Transaction, req Request, onBlock BlockSink) Result {
	instruction := req.Instruction
	var last *session

	for retry := 0; ; retry++ {
		s := c.runSession(ctx, doc, tx, req, instruction, onBlock)
		last = s
		c.archiveRaw(s)

		// Estimate locally when the provider omits its usage counters.
		if s.usage == (stream.Usage{}) && s.decoded.Len() > 0 {
			in := llm.EstimateTokensSimple(req.SystemPrompt + instruction)
			out := llm.EstimateTokensSimple(s.decoded.String())
			s.usage = stream.Usage{Input: in, Output: out, Total: in + out}
		}

		// The result reports this action only; the transaction keeps the
		// cumulative totals for the status RPC.
		res := Result{
			AppliedCount:  s.applied,
			MinConfidence: s.minConf,
			Usage:         s.usage,
			Retries:       retry,
			SessionID:     s.id,
		}

		// Cancellation bypasses the retry controller; the snapshot stays
		// intact so reject remains possible.
		if ctx.Err() != nil {
			res.Status = StatusCancelled
			return res
		}

		switch {
		case s.applied > 0:
			if s.applied == s.blocksSeen {
				res.Status = StatusSuccess
			} else {
				res.Status = StatusPartialFailure
				res.Message = fmt.Sprintf("%d of %d blocks applied; best failed confidence %.2f (raw response: %s)",
					s.applied, s.blocksSeen, s.bestFailed, s.id)
			}
			return res

		case s.providerErr != "" && s.decoded.Len() == 0:
			res.Status = StatusTransportError
			res.Message = s.providerErr
			return res

		case s.blocksSeen == 0:
			res.Status = StatusInvalidResponse
			res.Message = fmt.Sprintf("no edit blocks found in response (raw response: %s)", s.id)
			if s.providerErr != "" {
				res.Message = fmt.Sprintf("provider error: %s; %s", s.providerErr, res.Message)
			}
			return res
		}

		// Blocks were located but none cleared the threshold.
		if s.bestFailed > RecoverableFloor && retry < c.budget {
			log.Session(s.id, "recoverable failure (confidence %.2f), retry %d of %d", s.bestFailed, retry+1, c.budget)
			instruction = repairInstruction(req.Instruction, s.failedExpected, s.bestFailed)
			continue
		}

		res.Status = StatusPartialFailure
		if s.bestFailed <= RecoverableFloor {
			res.Message = fmt.Sprintf("expected text not found in document (best confidence %.2f, raw response: %s)",
				s.bestFailed, s.id)
		} else {
			res.Message = fmt.Sprintf("repair budget exhausted (last confidence %.2f, raw response: %s)",
				last.bestFailed, s.id)
		}
		return res
	}
}

// runSession performs one streaming attempt: demux, scan, locate, apply.
func (c *Controller) runSession(ctx context.Context, doc patch.Document, tx *patch.Transaction, req Request, instruction string, onBlock BlockSink) *session {
	s := &session{
		id:      uuid.NewString(),
		demux:   stream.NewDemuxer(c.client.Format()),
		scanner: block.NewScanner(),
		minConf: 1.0,
	}
	log.Session(s.id, "streaming edit for %s", req.DocumentID)

	streamErr := c.client.Stream(ctx, req.SystemPrompt, instruction, func(chunk []byte) {
		for _, ev := range s.demux.Feed(chunk) {
			c.handleEvent(s, ev, doc, tx, req.Range, onBlock)
		}
	})

	// A final line without a trailing newline still counts, and a hunk
	// block has no close marker: flush both.
	if tail := s.lines.Tail(); tail != "" {
		if b := s.scanner.ConsumeLine(tail); b != nil {
			c.applyBlock(s, b, doc, tx, req.Range, onBlock)
		}
	}
	if b := s.scanner.Flush(); b != nil {
		c.applyBlock(s, b, doc, tx, req.Range, onBlock)
	}

	if streamErr != nil && ctx.Err() == nil && s.providerErr == "" {
		s.providerErr = streamErr.Error()
	}

	log.Session(s.id, "stream done: %d blocks, %d applied, decoded %d bytes",
		s.blocksSeen, s.applied, s.decoded.Len())
	return s
}

func (c *Controller) handleEvent(s *session, ev stream.Event, doc patch.Document, tx *patch.Transaction, rng *match.Range, onBlock BlockSink) {
	switch ev.Type {
	case "text":
		s.decoded.WriteString(ev.Text)
		for _, line := range s.lines.Add(ev.Text) {
			if b := s.scanner.ConsumeLine(line); b != nil {
				c.applyBlock(s, b, doc, tx, rng, onBlock)
			}
		}
	case "usage":
		s.usage = ev.Usage
	case "error":
		// Surfaced out-of-band; stream consumption continues.
		s.providerErr = ev.Err
		log.Error("provider error: %s", ev.Err)
	}
}

// applyBlock runs locate + apply for one scanned block and records the
// outcome on the session.
func (c *Controller) applyBlock(s *session, b *block.Block, doc patch.Document, tx *patch.Transaction, rng *match.Range, onBlock BlockSink) {
	s.blocksSeen++

	result, ok := c.strategy.Locate(doc.Lines(), b.Expected, rng)
	if ok {
		// The trim ladder may have narrowed the expected block; the
		// replacement keeps only the surviving middle.
		replacement := trimReplacement(b, result)
		outcome := patch.Apply(doc, tx, result, replacement)
		if outcome.Applied {
			s.applied++
			if outcome.Confidence < s.minConf {
				s.minConf = outcome.Confidence
			}
			log.Session(s.id, "block applied at [%d,%d) confidence %.2f", outcome.StartLine, outcome.EndLine, outcome.Confidence)
			if onBlock != nil {
				onBlock(outcome, b)
			}
			return
		}
		result.Confidence = outcome.Confidence
	}

	if result.Confidence > s.bestFailed {
		s.bestFailed = result.Confidence
		s.failedExpected = b.Expected
	}
	log.Session(s.id, "block rejected, confidence %.2f", result.Confidence)
	if onBlock != nil {
		onBlock(patch.Outcome{Applied: false, Confidence: result.Confidence}, b)
	}
}

// trimReplacement drops the replacement lines that mirror expected lines
// the trim ladder discarded, so untouched boundary lines stay untouched.
func trimReplacement(b *block.Block, r match.Result) []string {
	repl := b.Replacement
	lead, trail := r.TrimmedLeading, r.TrimmedTrailing
	if lead == 0 && trail == 0 {
		return repl
	}
	if lead+trail >= len(repl) {
		return repl
	}
	// Only trim lines that are identical to the trimmed expected ones;
	// otherwise the model changed them and they must be applied.
	for i := 0; i < lead; i++ {
		if i >= len(b.Expected) || repl[i] != b.Expected[i] {
			return repl
		}
	}
	for i := 0; i < trail; i++ {
		ri, ei := len(repl)-1-i, len(b.Expected)-1-i
		if ei < 0 || repl[ri] != b.Expected[ei] {
			return repl
		}
	}
	return repl[lead : len(repl)-trail]
}

// repairInstruction augments the original instruction with the failed
// expected text and its confidence so the model can correct itself.
func repairInstruction(original string, failedExpected []string, confidence float64) string {
	pct := int(math.Round(confidence * 100))
	var sb strings.Builder
	sb.WriteString(original)
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "Your previous attempt failed: the SEARCH text below matched the document with only %d%% confidence. ", pct)
	sb.WriteString("Re-read the document content provided above and emit corrected edit blocks whose SEARCH text matches it exactly.\n")
	sb.WriteString("Failed SEARCH text:\n")
	sb.WriteString(strings.Join(failedExpected, "\n"))
	return sb.String()
}

func (c *Controller) archiveRaw(s *session) {
	if c.store == nil {
		return
	}
	if err := c.store.Put(s.id, s.demux.Raw()); err != nil {
		log.Error("failed to archive raw response %s: %v", s.id, err)
	}
}
