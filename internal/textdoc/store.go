package textdoc

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// Notification methods handled by Store.Listen.
const (
	MethodDidOpen   = "textDocument/didOpen"
	MethodDidChange = "textDocument/didChange"
	MethodDidClose  = "textDocument/didClose"
)

// Info describes an open document without its content.
type Info struct {
	URI        protocol.DocumentUri `json:"uri"`
	LanguageID string               `json:"languageId"`
	Version    int32                `json:"version"`
	LineCount  int                  `json:"lineCount"`
	Length     int                  `json:"length"`
}

// Store owns the open documents, keyed by URI.
//
// All methods are safe for concurrent use. A single mutex is held for the
// whole of each call, so a document is never observed mid-update.
type Store struct {
	mu   sync.Mutex
	docs map[protocol.DocumentUri]*Document
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{docs: make(map[protocol.DocumentUri]*Document)}
}

// Open starts tracking a document, replacing any document already open
// under uri.
func (s *Store) Open(uri protocol.DocumentUri, languageID string, version int32, text string) {
	doc := NewDocument(languageID, version, text)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[uri] = doc
}

// Change applies changes to the document open under uri. Changes for a
// document that is not open are ignored, since a client may race a close
// with an in-flight change.
//
// Changes are applied one at a time. If one fails with an
// *InvalidRangeError, the changes before it stay applied and the version is
// left as it was, so the document no longer matches the client's. Callers
// that cannot tolerate drift should ask for a full resync or disconnect.
func (s *Store) Change(uri protocol.DocumentUri, changes []Change, version int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.docs[uri]
	if doc == nil {
		return nil
	}
	if err := doc.Update(changes, version); err != nil {
		return fmt.Errorf("updating %s to version %d: %w", uri, version, err)
	}
	return nil
}

// Close stops tracking the document open under uri, if any.
func (s *Store) Close(uri protocol.DocumentUri) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, uri)
}

// Len returns the number of open documents.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

// Content returns the text of the document open under uri within rng, or
// all of it if rng is nil.
func (s *Store) Content(uri protocol.DocumentUri, rng *protocol.Range) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.docs[uri]
	if doc == nil {
		return "", false
	}
	return doc.Text(rng), true
}

// Language returns the language identifier of the document open under uri.
func (s *Store) Language(uri protocol.DocumentUri) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.docs[uri]
	if doc == nil {
		return "", false
	}
	return doc.LanguageID(), true
}

// Version returns the version of the document open under uri.
func (s *Store) Version(uri protocol.DocumentUri) (int32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.docs[uri]
	if doc == nil {
		return 0, false
	}
	return doc.Version(), true
}

// OffsetAt converts pos to a byte offset in the document open under uri.
func (s *Store) OffsetAt(uri protocol.DocumentUri, pos protocol.Position) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.docs[uri]
	if doc == nil {
		return 0, false
	}
	return doc.OffsetAt(pos), true
}

// PositionAt converts a byte offset to a position in the document open
// under uri.
func (s *Store) PositionAt(uri protocol.DocumentUri, offset int) (protocol.Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.docs[uri]
	if doc == nil {
		return protocol.Position{}, false
	}
	return doc.PositionAt(offset), true
}

// Documents describes every open document, ordered by URI.
func (s *Store) Documents() []Info {
	s.mu.Lock()
	infos := make([]Info, 0, len(s.docs))
	for uri, doc := range s.docs {
		infos = append(infos, Info{
			URI:        uri,
			LanguageID: doc.LanguageID(),
			Version:    doc.Version(),
			LineCount:  doc.LineCount(),
			Length:     doc.Len(),
		})
	}
	s.mu.Unlock()

	slices.SortFunc(infos, func(a, b Info) int { return strings.Compare(a.URI, b.URI) })
	return infos
}

// Listen handles a document synchronization notification. It reports
// whether method is one of didOpen, didChange, or didClose; other methods
// are left to the caller. Params that fail to decode, or lack a field the
// method requires, yield a *DeserializationError and leave the store
// untouched.
func (s *Store) Listen(method string, params json.RawMessage) (bool, error) {
	switch method {
	case MethodDidOpen:
		var p protocol.DidOpenTextDocumentParams
		if err := decodeParams(method, params, &p); err != nil {
			return true, err
		}
		if err := requireFields(method, params, openFields...); err != nil {
			return true, err
		}
		s.Open(p.TextDocument.URI, p.TextDocument.LanguageID, p.TextDocument.Version, p.TextDocument.Text)
		return true, nil
	case MethodDidChange:
		var p protocol.DidChangeTextDocumentParams
		if err := decodeParams(method, params, &p); err != nil {
			return true, err
		}
		if err := requireChangeFields(method, params); err != nil {
			return true, err
		}
		changes, err := ChangesFromProtocol(p.ContentChanges)
		if err != nil {
			return true, &DeserializationError{Method: method, Err: err}
		}
		return true, s.Change(p.TextDocument.URI, changes, p.TextDocument.Version)
	case MethodDidClose:
		var p protocol.DidCloseTextDocumentParams
		if err := decodeParams(method, params, &p); err != nil {
			return true, err
		}
		if err := requireFields(method, params, "textDocument.uri"); err != nil {
			return true, err
		}
		s.Close(p.TextDocument.URI)
		return true, nil
	default:
		return false, nil
	}
}

func decodeParams(method string, params json.RawMessage, v any) error {
	if len(params) == 0 {
		return &DeserializationError{Method: method, Err: fmt.Errorf("missing params")}
	}
	if err := json.Unmarshal(params, v); err != nil {
		return &DeserializationError{Method: method, Err: err}
	}
	return nil
}

var openFields = []string{
	"textDocument.uri",
	"textDocument.languageId",
	"textDocument.version",
	"textDocument.text",
}

// requireFields checks that every path is present and not null in params.
// Decoding into the protocol structs alone would zero missing fields.
func requireFields(method string, params json.RawMessage, paths ...string) error {
	for _, path := range paths {
		if !present(gjson.GetBytes(params, path)) {
			return &DeserializationError{Method: method, Err: fmt.Errorf("missing field %s", path)}
		}
	}
	return nil
}

// requireChangeFields checks a didChange payload. Every content change needs
// its text; without it the protocol package reads the event as a replacement
// of the whole document by "".
func requireChangeFields(method string, params json.RawMessage) error {
	if err := requireFields(method, params, "textDocument.uri", "textDocument.version"); err != nil {
		return err
	}
	changes := gjson.GetBytes(params, "contentChanges")
	if !changes.IsArray() {
		return &DeserializationError{Method: method, Err: fmt.Errorf("contentChanges is not an array")}
	}
	var err error
	i := 0
	changes.ForEach(func(_, ev gjson.Result) bool {
		if !ev.IsObject() || !present(ev.Get("text")) {
			err = &DeserializationError{Method: method, Err: fmt.Errorf("content change %d: missing field text", i)}
			return false
		}
		i++
		return true
	})
	return err
}

func present(r gjson.Result) bool {
	return r.Exists() && r.Type != gjson.Null
}

// ChangesFromProtocol converts the content changes of a didChange
// notification, as decoded by the protocol package, into Changes.
// The redundant rangeLength field is ignored.
func ChangesFromProtocol(events []any) ([]Change, error) {
	changes := make([]Change, 0, len(events))
	for i, ev := range events {
		switch v := ev.(type) {
		case protocol.TextDocumentContentChangeEvent:
			changes = append(changes, Change{Range: v.Range, Text: v.Text})
		case *protocol.TextDocumentContentChangeEvent:
			changes = append(changes, Change{Range: v.Range, Text: v.Text})
		case protocol.TextDocumentContentChangeEventWhole:
			changes = append(changes, Change{Text: v.Text})
		case *protocol.TextDocumentContentChangeEventWhole:
			changes = append(changes, Change{Text: v.Text})
		default:
			return nil, fmt.Errorf("content change %d: unexpected type %T", i, ev)
		}
	}
	return changes, nil
}
