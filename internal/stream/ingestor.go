package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

const (
	frameDelimiter = "\n\n"
	dataPrefix     = "data: "

	readChunkSize = 32 * 1024
	// Guard against a server that never emits a delimiter.
	maxPendingBytes = 4 * 1024 * 1024
)

// Handler receives classified frames in arrival order. A non-nil error
// aborts the ingestion.
type Handler func(Frame) error

// Ingestor splits a chunked response body into delimiter-separated records,
// parses `data: `-prefixed payloads and dispatches the classified frames.
// Malformed payloads are dropped without aborting the stream.
type Ingestor struct {
	// OnMalformed, when set, observes each dropped payload line.
	OnMalformed func(line string)
}

// Consume reads body to completion, dispatching frames to fn as records are
// terminated by the blank-line delimiter. Bytes after the final delimiter
// are discarded at EOF; the source does not guarantee a trailing delimiter
// and a partial record must never be force-flushed. A read failure is fatal
// to the whole ingestion.
func (in *Ingestor) Consume(ctx context.Context, body io.Reader, fn Handler) error {
	buf := make([]byte, readChunkSize)
	var pending string

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			rest, err := in.dispatch(pending+string(buf[:n]), fn)
			if err != nil {
				return err
			}
			if len(rest) > maxPendingBytes {
				return fmt.Errorf("stream record exceeds %d bytes without delimiter", maxPendingBytes)
			}
			pending = rest
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("stream read: %w", readErr)
		}
	}
}

// dispatch processes every delimiter-terminated record in acc and returns
// the unterminated remainder.
func (in *Ingestor) dispatch(acc string, fn Handler) (string, error) {
	for {
		idx := strings.Index(acc, frameDelimiter)
		if idx < 0 {
			return acc, nil
		}
		record := acc[:idx]
		acc = acc[idx+len(frameDelimiter):]
		if err := in.emitRecord(record, fn); err != nil {
			return "", err
		}
	}
}

func (in *Ingestor) emitRecord(record string, fn Handler) error {
	for _, line := range strings.Split(record, "\n") {
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		payload := line[len(dataPrefix):]
		if strings.TrimSpace(payload) == "" {
			continue
		}

		var raw map[string]json.RawMessage
		if err := json.Unmarshal([]byte(payload), &raw); err != nil {
			if in.OnMalformed != nil {
				in.OnMalformed(line)
			}
			continue
		}

		for _, frame := range Classify(raw) {
			if err := fn(frame); err != nil {
				return err
			}
		}
	}
	return nil
}
