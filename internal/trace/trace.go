// Package trace replays recorded language server sessions into a
// textdoc.Store, reconstructing the documents the editor had open.
//
// A recording is either a Content-Length framed byte stream, exactly as sent
// over stdio, or one JSON message per line. Lines may also wrap the message
// in a "message" field, as editor trace logs do.
package trace

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/stefanvanburen/textdocs/internal/jsonrpc2"
	"github.com/stefanvanburen/textdocs/internal/textdoc"
	"github.com/tidwall/gjson"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("textdocs.trace")

// Stats counts what happened to the messages of a replay.
type Stats struct {
	Messages  int // messages read
	Handled   int // document synchronization notifications applied
	Unhandled int // other requests and notifications
	Skipped   int // responses
	Failed    int // messages that could not be decoded
}

// Replay feeds every message read from r into store, in order.
//
// Messages that cannot be decoded are counted and skipped. A change with an
// inverted range stops the replay, since every later edit of that document
// would be applied to the wrong text.
func Replay(ctx context.Context, r io.Reader, store *textdoc.Store) (Stats, error) {
	br := bufio.NewReader(r)
	next := nextLine
	if framed(br) {
		next = jsonrpc2.ReadFrame
	}

	var stats Stats
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		data, err := next(br)
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			return stats, fmt.Errorf("reading message %d: %w", stats.Messages+1, err)
		}
		stats.Messages++
		if err := apply(store, data, &stats); err != nil {
			return stats, fmt.Errorf("message %d: %w", stats.Messages, err)
		}
	}
}

func apply(store *textdoc.Store, data []byte, stats *Stats) error {
	if !gjson.ValidBytes(data) {
		stats.Failed++
		log.Warningf("message %d is not valid JSON", stats.Messages)
		return nil
	}
	msg := gjson.ParseBytes(data)
	if !msg.Get("method").Exists() && msg.Get("message").IsObject() {
		msg = msg.Get("message")
	}
	method := msg.Get("method")
	if !method.Exists() {
		stats.Skipped++
		return nil
	}

	var params json.RawMessage
	if p := msg.Get("params"); p.Exists() {
		params = json.RawMessage(p.Raw)
	}
	handled, err := store.Listen(method.String(), params)
	switch {
	case errors.Is(err, textdoc.ErrDeserialization):
		stats.Failed++
		log.Warningf("message %d: %s", stats.Messages, err)
		return nil
	case err != nil:
		return err
	case handled:
		stats.Handled++
	default:
		stats.Unhandled++
		log.Debugf("message %d: ignoring %s", stats.Messages, method.String())
	}
	return nil
}

// framed reports whether the stream starts with a Content-Length header.
func framed(br *bufio.Reader) bool {
	const header = "content-length:"
	peek, _ := br.Peek(len(header))
	return bytes.EqualFold(peek, []byte(header))
}

// nextLine returns the next non-blank line.
func nextLine(br *bufio.Reader) ([]byte, error) {
	for {
		line, err := br.ReadBytes('\n')
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			return line, nil
		}
		if err != nil {
			return nil, err
		}
	}
}
