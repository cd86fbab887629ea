package main

import (
	"bufio"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/youruser/sled/internal/archive"
	"github.com/youruser/sled/internal/block"
	"github.com/youruser/sled/internal/config"
	"github.com/youruser/sled/internal/llm"
	"github.com/youruser/sled/internal/logging"
	"github.com/youruser/sled/internal/match"
	"github.com/youruser/sled/internal/patch"
	"github.com/youruser/sled/internal/session"
)

//go:embed edit_prompt.txt
var editPrompt string

//go:embed version.txt
var version string

// buildCommit is set via -ldflags or falls back to VCS info from debug.ReadBuildInfo.
var buildCommit string

var (
	appConfig *config.Config
	llmClient *llm.Client
	rawStore  *archive.Store
	registry  = session.NewRegistry()
	log       = logging.Get()

	respondMu sync.Mutex

	docsMu sync.Mutex
	docs   = make(map[string]*patch.MemDocument)
)

// getBuildCommit returns the short commit hash, resolving from VCS build info if needed.
func getBuildCommit() string {
	if buildCommit != "" {
		return buildCommit
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" && len(setting.Value) >= 7 {
			return setting.Value[:7]
		}
	}
	return ""
}

func versionString() string {
	v := strings.TrimSpace(version)
	if commit := getBuildCommit(); commit != "" {
		return v + " (" + commit + ")"
	}
	return v
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v":
			fmt.Printf("sled %s\n", versionString())
			return
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "sled: %v\n", err)
		os.Exit(1)
	}
	appConfig = cfg

	switch cfg.Provider {
	case "gemini":
		llmClient = llm.NewClient("gemini", cfg.GeminiBaseURL, cfg.APIKey, cfg.Model)
	default:
		llmClient = llm.NewClient("ollama", cfg.OllamaBaseURL, "", cfg.Model)
	}

	store, err := archive.OpenDefault(*cfg.ArchiveLimit)
	if err != nil {
		// The archive is diagnostics, not a prerequisite
		log.Error("raw response archive unavailable: %v", err)
	} else {
		rawStore = store
		defer store.Close()
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		handleRequest(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			respond("", map[string]any{
				"type":    "error",
				"message": "Request too large (max 1MB). Reduce the document or split the request.",
			})
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "stdin error: %v\n", err)
		os.Exit(1)
	}
}

// request is one NDJSON line from the plugin.
type request struct {
	ID          string   `json:"id"`
	Action      string   `json:"action"`
	DocID       string   `json:"doc_id"`
	Lines       []string `json:"lines"`
	Instruction string   `json:"instruction"`
	// FirstLine/LastLine optionally scope the edit, 0-based inclusive.
	FirstLine *int `json:"first_line"`
	LastLine  *int `json:"last_line"`
}

func handleRequest(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	var req request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		respond("", map[string]any{"type": "error", "message": "invalid request JSON"})
		return
	}
	log.Request(req.Action, line)

	switch req.Action {
	case "edit":
		handleEdit(req)
	case "cancel":
		handleCancel(req)
	case "accept":
		handleAccept(req)
	case "reject":
		handleReject(req)
	case "status":
		handleStatus(req)
	default:
		respond(req.ID, map[string]any{"type": "error", "message": "unknown action: " + req.Action})
	}
}

func handleEdit(req request) {
	if req.DocID == "" || req.Instruction == "" {
		respond(req.ID, map[string]any{"type": "error", "message": "edit requires doc_id and instruction"})
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	tx, err := registry.Begin(req.DocID, cancel)
	if err != nil {
		cancel()
		respond(req.ID, map[string]any{"type": "error", "message": err.Error()})
		return
	}

	doc := stageDocument(req.DocID, req.Lines)
	rng := editRange(req)

	controller := session.NewController(llmClient, match.ForName(*appConfig.Matcher), rawStore, *appConfig.RepairBudget)
	sreq := session.Request{
		DocumentID:   req.DocID,
		Instruction:  req.Instruction,
		SystemPrompt: editPrompt,
		Range:        rng,
	}
	userPrompt := buildUserPrompt(doc, req, rng)
	sreq.Instruction = userPrompt

	log.Debug("edit %s: ~%d prompt tokens", req.DocID, llm.EstimateTokensSimple(editPrompt+userPrompt))

	// Stream in the background so cancel requests stay serviceable
	go func() {
		defer registry.Finish(req.DocID)

		result := controller.Run(ctx, doc, tx, sreq, func(outcome patch.Outcome, blk *block.Block) {
			if outcome.Applied {
				respond(req.ID, map[string]any{
					"type":       "block_applied",
					"doc_id":     req.DocID,
					"start_line": outcome.StartLine,
					"end_line":   outcome.EndLine,
					"lines":      blk.Replacement,
					"confidence": outcome.Confidence,
					"spans":      outcome.Spans,
				})
			} else {
				respond(req.ID, map[string]any{
					"type":       "block_rejected",
					"doc_id":     req.DocID,
					"confidence": outcome.Confidence,
				})
			}
		})

		respond(req.ID, map[string]any{
			"type":   "result",
			"doc_id": req.DocID,
			"result": result,
		})
	}()
}

func handleCancel(req request) {
	if registry.Cancel(req.DocID) {
		respond(req.ID, map[string]any{"type": "cancelled", "doc_id": req.DocID})
		return
	}
	respond(req.ID, map[string]any{"type": "error", "message": "no session in flight for " + req.DocID})
}

func handleAccept(req request) {
	if err := registry.Accept(req.DocID); err != nil {
		respond(req.ID, map[string]any{"type": "error", "message": err.Error() + "; cancel it first"})
		return
	}
	respond(req.ID, map[string]any{"type": "accepted", "doc_id": req.DocID})
}

func handleReject(req request) {
	doc := lookupDocument(req.DocID)
	if doc == nil {
		// No staged document means nothing was ever applied
		respond(req.ID, map[string]any{"type": "rejected", "doc_id": req.DocID})
		return
	}
	if err := registry.Reject(req.DocID, doc); err != nil {
		respond(req.ID, map[string]any{"type": "error", "message": err.Error() + "; cancel it first"})
		return
	}
	respond(req.ID, map[string]any{
		"type":   "rejected",
		"doc_id": req.DocID,
		"lines":  doc.Lines(),
	})
}

func handleStatus(req request) {
	tx := registry.Transaction(req.DocID)
	status := map[string]any{
		"type":      "status",
		"doc_id":    req.DocID,
		"in_flight": registry.InFlight(req.DocID),
	}
	if tx != nil {
		status["applied_blocks"] = tx.AppliedBlocks
		status["min_confidence"] = tx.MinConfidence
		status["transaction"] = true
	}
	respond(req.ID, status)
}

// stageDocument mirrors the editor buffer into the backend's working copy.
func stageDocument(docID string, lines []string) *patch.MemDocument {
	docsMu.Lock()
	defer docsMu.Unlock()
	doc := patch.NewMemDocument(lines)
	docs[docID] = doc
	return doc
}

func lookupDocument(docID string) *patch.MemDocument {
	docsMu.Lock()
	defer docsMu.Unlock()
	return docs[docID]
}

// editRange converts the request's inclusive line scope to a half-open
// locator range; the locator clamps it to the document bounds.
func editRange(req request) *match.Range {
	if req.FirstLine == nil || req.LastLine == nil {
		return nil
	}
	return &match.Range{Start: *req.FirstLine, End: *req.LastLine + 1}
}

// buildUserPrompt assembles the document content and the instruction.
// A scoped request quotes only the scoped lines, with their position
// noted so the model does not invent surrounding context.
func buildUserPrompt(doc patch.Document, req request, rng *match.Range) string {
	var sb strings.Builder
	lines := doc.Lines()

	if rng != nil {
		start, end := rng.Start, rng.End
		if start < 0 {
			start = 0
		}
		if end > len(lines) {
			end = len(lines)
		}
		fmt.Fprintf(&sb, "Document (lines %d-%d of %d):\n", start+1, end, len(lines))
		sb.WriteString(strings.Join(lines[start:end], "\n"))
	} else {
		sb.WriteString("Document:\n")
		sb.WriteString(strings.Join(lines, "\n"))
	}

	sb.WriteString("\n\nInstruction:\n")
	sb.WriteString(req.Instruction)
	return sb.String()
}

// respond writes one NDJSON event to stdout.
func respond(id string, payload map[string]any) {
	respondMu.Lock()
	defer respondMu.Unlock()

	if id != "" {
		payload["id"] = id
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error("failed to marshal response: %v", err)
		return
	}
	log.Response(fmt.Sprint(payload["type"]), string(data))
	fmt.Println(string(data))
}
