package stream

import (
	"strings"
	"testing"
)

func collect(d *Demuxer, chunks ...string) []Event {
	var events []Event
	for _, c := range chunks {
		events = append(events, d.Feed([]byte(c))...)
	}
	return events
}

func textOf(events []Event) string {
	var sb strings.Builder
	for _, e := range events {
		if e.Type == "text" {
			sb.WriteString(e.Text)
		}
	}
	return sb.String()
}

func TestArray_SingleChunk(t *testing.T) {
	d := NewDemuxer(FormatArray)
	events := collect(d, `[{"candidates":[{"content":{"parts":[{"text":"hello"}]}}]}]`)

	if got := textOf(events); got != "hello" {
		t.Errorf("text = %q, want %q", got, "hello")
	}
}

func TestArray_SplitMidObject(t *testing.T) {
	d := NewDemuxer(FormatArray)
	full := `[{"candidates":[{"content":{"parts":[{"text":"first"}]}}]},` +
		`{"candidates":[{"content":{"parts":[{"text":" second"}]}}]}]`

	// Feed in 7-byte chunks to force frame boundaries everywhere
	var events []Event
	for i := 0; i < len(full); i += 7 {
		end := i + 7
		if end > len(full) {
			end = len(full)
		}
		events = append(events, d.Feed([]byte(full[i:end]))...)
	}

	if got := textOf(events); got != "first second" {
		t.Errorf("text = %q, want %q", got, "first second")
	}
}

func TestArray_TextWithBraces(t *testing.T) {
	// '}' inside the text must not be mistaken for an object end
	d := NewDemuxer(FormatArray)
	events := collect(d, `[{"candidates":[{"content":{"parts":[{"text":"func f() {}\n"}]}}]}]`)

	if got := textOf(events); got != "func f() {}\n" {
		t.Errorf("text = %q, want %q", got, "func f() {}\n")
	}
}

func TestArray_Usage(t *testing.T) {
	d := NewDemuxer(FormatArray)
	events := collect(d,
		`[{"candidates":[{"content":{"parts":[{"text":"x"}]}}],`+
			`"usageMetadata":{"promptTokenCount":10,"candidatesTokenCount":5,"totalTokenCount":15}}]`)

	var usage *Usage
	for i := range events {
		if events[i].Type == "usage" {
			usage = &events[i].Usage
		}
	}
	if usage == nil {
		t.Fatal("expected a usage event")
	}
	if usage.Input != 10 || usage.Output != 5 || usage.Total != 15 {
		t.Errorf("usage = %+v, want {10 5 15}", *usage)
	}
}

func TestArray_UsageDefaultsToZero(t *testing.T) {
	d := NewDemuxer(FormatArray)
	events := collect(d, `[{"usageMetadata":{"promptTokenCount":7}}]`)

	found := false
	for _, e := range events {
		if e.Type == "usage" {
			found = true
			if e.Usage.Input != 7 || e.Usage.Output != 0 || e.Usage.Total != 0 {
				t.Errorf("usage = %+v, want {7 0 0}", e.Usage)
			}
		}
	}
	if !found {
		t.Fatal("expected a usage event")
	}
}

func TestArray_ProviderError(t *testing.T) {
	d := NewDemuxer(FormatArray)
	events := collect(d, `[{"error":{"message":"quota exceeded"}}]`)

	if len(events) != 1 || events[0].Type != "error" {
		t.Fatalf("events = %+v, want one error event", events)
	}
	if events[0].Err != "quota exceeded" {
		t.Errorf("err = %q, want %q", events[0].Err, "quota exceeded")
	}
}

func TestArray_IncompleteFrameWaits(t *testing.T) {
	d := NewDemuxer(FormatArray)
	events := collect(d, `[{"candidates":[{"content":{"par`)
	if len(events) != 0 {
		t.Fatalf("events = %+v, want none for an incomplete frame", events)
	}

	events = collect(d, `ts":[{"text":"late"}]}}]}]`)
	if got := textOf(events); got != "late" {
		t.Errorf("text = %q, want %q", got, "late")
	}
}

func TestArray_GarbageExtractsNothing(t *testing.T) {
	d := NewDemuxer(FormatArray)
	events := collect(d, `[12, 34]`)
	if len(events) != 0 {
		t.Errorf("events = %+v, want none for an unexpected top-level shape", events)
	}
}

func TestArray_IgnoresBytesAfterTerminator(t *testing.T) {
	d := NewDemuxer(FormatArray)
	collect(d, `[{"candidates":[{"content":{"parts":[{"text":"done"}]}}]}]`)

	events := collect(d, `[{"candidates":[{"content":{"parts":[{"text":"late"}]}}]}]`)
	if len(events) != 0 {
		t.Errorf("events = %+v, want none after the array terminator", events)
	}
	// Raw retention is unaffected
	if !strings.Contains(string(d.Raw()), "late") {
		t.Error("raw capture must keep post-terminator bytes")
	}
}

func TestNDJSON_Basic(t *testing.T) {
	d := NewDemuxer(FormatNDJSON)
	events := collect(d,
		`{"message":{"content":"hel"}}`+"\n",
		`{"message":{"content":"lo"}}`+"\n",
		`{"message":{"content":""},"done":true,"prompt_eval_count":12,"eval_count":3}`+"\n")

	if got := textOf(events); got != "hello" {
		t.Errorf("text = %q, want %q", got, "hello")
	}

	last := events[len(events)-1]
	if last.Type != "usage" {
		t.Fatalf("last event = %+v, want usage", last)
	}
	if last.Usage.Input != 12 || last.Usage.Output != 3 || last.Usage.Total != 15 {
		t.Errorf("usage = %+v, want {12 3 15}", last.Usage)
	}
}

func TestNDJSON_SplitLine(t *testing.T) {
	d := NewDemuxer(FormatNDJSON)
	events := collect(d, `{"message":{"cont`, `ent":"whole"}}`+"\n")
	if got := textOf(events); got != "whole" {
		t.Errorf("text = %q, want %q", got, "whole")
	}
}

func TestNDJSON_MalformedLineSkipped(t *testing.T) {
	d := NewDemuxer(FormatNDJSON)
	events := collect(d, "not json at all\n"+`{"message":{"content":"ok"}}`+"\n")
	if got := textOf(events); got != "ok" {
		t.Errorf("text = %q, want %q", got, "ok")
	}
}

func TestNDJSON_Error(t *testing.T) {
	d := NewDemuxer(FormatNDJSON)
	events := collect(d, `{"error":"model not found"}`+"\n")
	if len(events) != 1 || events[0].Type != "error" || events[0].Err != "model not found" {
		t.Fatalf("events = %+v, want one error event", events)
	}
}

func TestRaw_KeepsEverything(t *testing.T) {
	d := NewDemuxer(FormatNDJSON)
	collect(d, "garbage\n", `{"message":{"content":"x"}}`+"\n")
	want := "garbage\n" + `{"message":{"content":"x"}}` + "\n"
	if got := string(d.Raw()); got != want {
		t.Errorf("raw = %q, want %q", got, want)
	}
}
