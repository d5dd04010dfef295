package lsp

import (
	"encoding/json"

	"github.com/stefanvanburen/textdocs/internal/jsonrpc2"
	"github.com/stefanvanburen/textdocs/internal/query"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// Requests exposing the mirrored documents. Requests naming a document that
// is not open return null.
const (
	methodDocuments  = "textdocs/documents"
	methodPositionAt = "textdocs/positionAt"
	methodOffsetAt   = "textdocs/offsetAt"
	methodContent    = "textdocs/content"
)

// DocumentsParams are the params of a textdocs/documents request. Filter is
// a CEL expression over uri, language, version, lines, and bytes.
type DocumentsParams struct {
	Filter string `json:"filter,omitempty"`
}

// PositionAtParams are the params of a textdocs/positionAt request.
type PositionAtParams struct {
	TextDocument protocol.TextDocumentIdentifier `json:"textDocument"`
	Offset       int                             `json:"offset"`
}

// OffsetResult is the result of a textdocs/offsetAt request.
type OffsetResult struct {
	Offset int `json:"offset"`
}

// ContentParams are the params of a textdocs/content request. A missing
// range selects the whole document.
type ContentParams struct {
	TextDocument protocol.TextDocumentIdentifier `json:"textDocument"`
	Range        *protocol.Range                 `json:"range,omitempty"`
}

// ContentResult is the result of a textdocs/content request.
type ContentResult struct {
	Text string `json:"text"`
}

func decode(req *jsonrpc2.Request, v any) error {
	if req.Params == nil {
		return nil
	}
	if err := json.Unmarshal(*req.Params, v); err != nil {
		return &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()}
	}
	return nil
}

func (s *server) documents(req *jsonrpc2.Request) (any, error) {
	var params DocumentsParams
	if err := decode(req, &params); err != nil {
		return nil, err
	}
	filter, err := query.Compile(params.Filter)
	if err != nil {
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()}
	}
	infos, err := query.Select(filter, s.docs.Documents())
	if err != nil {
		return nil, err
	}
	return infos, nil
}

func (s *server) positionAt(req *jsonrpc2.Request) (any, error) {
	var params PositionAtParams
	if err := decode(req, &params); err != nil {
		return nil, err
	}
	pos, ok := s.docs.PositionAt(params.TextDocument.URI, params.Offset)
	if !ok {
		return nil, nil
	}
	return pos, nil
}

func (s *server) offsetAt(req *jsonrpc2.Request) (any, error) {
	var params protocol.TextDocumentPositionParams
	if err := decode(req, &params); err != nil {
		return nil, err
	}
	offset, ok := s.docs.OffsetAt(params.TextDocument.URI, params.Position)
	if !ok {
		return nil, nil
	}
	return OffsetResult{Offset: offset}, nil
}

func (s *server) content(req *jsonrpc2.Request) (any, error) {
	var params ContentParams
	if err := decode(req, &params); err != nil {
		return nil, err
	}
	text, ok := s.docs.Content(params.TextDocument.URI, params.Range)
	if !ok {
		return nil, nil
	}
	return ContentResult{Text: text}, nil
}
