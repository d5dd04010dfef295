// Package lsp implements a language server that mirrors the documents an
// editor has open, using incremental text document synchronization.
//
// The main entry-point is the Serve() function, which creates a new LSP server
// communicating over stdin/stdout. Besides the document synchronization
// notifications, the server answers a few textdocs/* requests that expose the
// mirrored state, for editors and tests to inspect.
package lsp

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/stefanvanburen/textdocs/internal/jsonrpc2"
	"github.com/stefanvanburen/textdocs/internal/textdoc"
	"github.com/tliron/commonlog"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

const serverName = "textdocs"

var log = commonlog.GetLogger("textdocs.lsp")

// Serve starts the LSP server, communicating over stdin/stdout.
// It blocks until the connection is closed.
func Serve() error {
	return ServeStream(context.Background(), stdinout{})
}

// stdinout wraps stdin/stdout into a ReadWriteCloser.
type stdinout struct{}

func (stdinout) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdinout) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdinout) Close() error                { return os.Stdout.Close() }

// ServeStream starts the LSP server over the given stream.
// Exposed for testing.
func ServeStream(ctx context.Context, rwc io.ReadWriteCloser) error {
	s := newServer()
	conn := jsonrpc2.NewConn(ctx, rwc, jsonrpc2.HandlerFunc(s.handle))
	<-conn.DisconnectNotify()
	log.Infof("connection closed with %d documents open", s.docs.Len())
	return nil
}

// server holds all of the LSP server's mutable state. The store does its
// own locking.
type server struct {
	docs *textdoc.Store
}

func newServer() *server {
	return &server{docs: textdoc.NewStore()}
}

func (s *server) handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	switch req.Method {
	case "initialize":
		return s.initialize(req)
	case "initialized":
		return nil, nil
	case "shutdown":
		return nil, nil
	case "exit":
		return nil, conn.Close()
	case methodDocuments:
		return s.documents(req)
	case methodPositionAt:
		return s.positionAt(req)
	case methodOffsetAt:
		return s.offsetAt(req)
	case methodContent:
		return s.content(req)
	}

	handled, err := s.docs.Listen(req.Method, req.RawParams())
	if !handled {
		if req.Notif {
			log.Debugf("ignoring notification %s", req.Method)
			return nil, nil
		}
		return nil, &jsonrpc2.Error{
			Code:    jsonrpc2.CodeMethodNotFound,
			Message: "method not supported: " + req.Method,
		}
	}
	if err != nil {
		return nil, rpcError(err)
	}
	log.Debugf("%s applied, %d documents open", req.Method, s.docs.Len())
	return nil, nil
}

// rpcError maps store errors to JSON-RPC errors. Both malformed payloads and
// inverted ranges reject the message without touching other documents.
func rpcError(err error) error {
	switch {
	case errors.Is(err, textdoc.ErrDeserialization), errors.Is(err, textdoc.ErrInvalidRange):
		return &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()}
	default:
		return err
	}
}

func (s *server) initialize(_ *jsonrpc2.Request) (any, error) {
	syncKind := protocol.TextDocumentSyncKindIncremental
	return protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: &protocol.TextDocumentSyncOptions{
				OpenClose: &protocol.True,
				Change:    &syncKind,
			},
		},
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name: serverName,
		},
	}, nil
}
