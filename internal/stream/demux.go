// Package stream decodes raw provider response bytes into semantic events.
//
// Two wire shapes are supported: a streamed JSON array of objects whose
// elements may straddle chunk boundaries (Gemini streamGenerateContent),
// and newline-delimited JSON objects, one per line (Ollama chat).
package stream

import (
	"bytes"
	"encoding/json"
)

// Format selects the wire shape the demuxer decodes.
type Format int

const (
	// FormatArray is a streamed JSON array of objects. Elements may be
	// split across chunk boundaries.
	FormatArray Format = iota
	// FormatNDJSON is newline-delimited JSON, one object per line.
	FormatNDJSON
)

// Usage holds token totals reported by the provider.
type Usage struct {
	Input  int
	Output int
	Total  int
}

// Event is one decoded stream event.
// Type is "text", "usage", or "error".
type Event struct {
	Type  string
	Text  string // for "text" events
	Usage Usage  // for "usage" events
	Err   string // for "error" events
}

// Demuxer incrementally decodes provider response chunks into events.
// Feed may be called once per received chunk; partial frames are
// buffered and never surface as errors.
type Demuxer struct {
	format Format
	buf    []byte       // undecoded tail
	raw    bytes.Buffer // everything ever fed, for offline inspection
	closed bool         // saw the array terminator
}

// NewDemuxer creates a demuxer for the given wire format.
func NewDemuxer(format Format) *Demuxer {
	return &Demuxer{format: format}
}

// Raw returns every byte fed so far, decoded or not.
func (d *Demuxer) Raw() []byte {
	return d.raw.Bytes()
}

// Feed consumes one chunk of response bytes and returns the events that
// became complete. An incomplete trailing frame is kept for the next feed.
func (d *Demuxer) Feed(chunk []byte) []Event {
	d.raw.Write(chunk)
	d.buf = append(d.buf, chunk...)

	switch d.format {
	case FormatNDJSON:
		return d.feedLines()
	default:
		return d.feedArray()
	}
}

// geminiChunk is one element of the streamed response array.
type geminiChunk struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// feedArray peels complete objects off the front of the buffer. The
// array/comma framing is stripped, then every '}' in the remainder is
// probed as a possible object end. A prefix that does not decode yet is
// not an error, only a signal to wait for more bytes.
func (d *Demuxer) feedArray() []Event {
	if d.closed {
		// Anything after the array terminator is not part of the stream
		d.buf = nil
		return nil
	}

	var events []Event

	for {
		d.buf = bytes.TrimLeft(d.buf, " \t\r\n")
		if len(d.buf) > 0 && (d.buf[0] == '[' || d.buf[0] == ',') {
			d.buf = bytes.TrimLeft(d.buf[1:], " \t\r\n")
		}
		if len(d.buf) == 0 {
			return events
		}
		if d.buf[0] == ']' {
			// End of stream
			d.buf = nil
			d.closed = true
			return events
		}
		if d.buf[0] != '{' {
			// Unexpected top-level shape: extract nothing this feed
			return events
		}

		consumed := false
		for i := 0; i < len(d.buf); i++ {
			if d.buf[i] != '}' {
				continue
			}
			var chunk geminiChunk
			if err := json.Unmarshal(d.buf[:i+1], &chunk); err != nil {
				continue // not a complete object yet, try the next '}'
			}
			events = append(events, chunkEvents(chunk)...)
			d.buf = d.buf[i+1:]
			consumed = true
			break
		}
		if !consumed {
			// No decodable prefix: wait for more bytes
			return events
		}
	}
}

func chunkEvents(chunk geminiChunk) []Event {
	var events []Event
	if chunk.Error != nil {
		events = append(events, Event{Type: "error", Err: chunk.Error.Message})
	}
	if len(chunk.Candidates) > 0 {
		parts := chunk.Candidates[0].Content.Parts
		if len(parts) > 0 && parts[0].Text != "" {
			events = append(events, Event{Type: "text", Text: parts[0].Text})
		}
	}
	if u := chunk.UsageMetadata; u != nil {
		events = append(events, Event{Type: "usage", Usage: Usage{
			Input:  u.PromptTokenCount,
			Output: u.CandidatesTokenCount,
			Total:  u.TotalTokenCount,
		}})
	}
	return events
}

// ollamaChunk is one NDJSON line of the chat response.
type ollamaChunk struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error"`
}

// feedLines decodes each complete line independently. A partial trailing
// line stays buffered. Lines that do not decode are skipped.
func (d *Demuxer) feedLines() []Event {
	var events []Event

	for {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			return events
		}
		line := bytes.TrimSpace(d.buf[:idx])
		d.buf = d.buf[idx+1:]
		if len(line) == 0 {
			continue
		}

		var chunk ollamaChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue // skip malformed lines
		}

		if chunk.Error != "" {
			events = append(events, Event{Type: "error", Err: chunk.Error})
		}
		if chunk.Message.Content != "" {
			events = append(events, Event{Type: "text", Text: chunk.Message.Content})
		}
		if chunk.Done {
			events = append(events, Event{Type: "usage", Usage: Usage{
				Input:  chunk.PromptEvalCount,
				Output: chunk.EvalCount,
				Total:  chunk.PromptEvalCount + chunk.EvalCount,
			}})
		}
	}
}
