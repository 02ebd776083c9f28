package sse

import (
	"net/http"
	"strings"
)

// Message is a single Server-Sent Events frame.
type Message struct {
	Event string
	Data  string
}

// Bytes encodes m. Multi-line data is split across several data fields so
// clients reassemble it with newlines intact.
func (m Message) Bytes() []byte {
	var sb strings.Builder
	if m.Event != "" {
		sb.WriteString("event: ")
		sb.WriteString(m.Event)
		sb.WriteByte('\n')
	}
	if m.Data != "" {
		for _, line := range strings.Split(m.Data, "\n") {
			sb.WriteString("data: ")
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
	}
	sb.WriteByte('\n')
	return []byte(sb.String())
}

// StartStream writes the event-stream headers and returns the flusher, or
// reports a 500 when w cannot stream.
func StartStream(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return flusher, true
}
