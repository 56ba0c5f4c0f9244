/*
Package rpc exposes the hub over line-delimited JSON-RPC 2.0.

The server reads one request per line and writes one response per line.
Methods:
  - tiers.list: List the tier catalog
  - session.setTier: Move an owner to another tier
  - quota.canProceed: Admission check for an owner and skill
  - skills.generate: Admission, external generator and hold in one call
  - outputs.add / outputs.get / outputs.list: Hold generated outputs
  - outputs.finalize: Download, copy or discard one or more outputs
  - outputs.promote: Promote an output into the learning corpus
  - learning.reinforce / learning.search: Work with corpus patterns
  - usage.summary: Today's quota position for an owner
  - analytics.report: Dashboard rollups for an owner
  - corpus.export: The learning corpus in creation order
*/
package rpc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/khanglvm/skill-hub/internal/hub"
	"github.com/khanglvm/skill-hub/internal/learning"
	"github.com/khanglvm/skill-hub/internal/outputs"
	"github.com/khanglvm/skill-hub/internal/tier"
	"github.com/khanglvm/skill-hub/internal/usage"
	"github.com/khanglvm/skill-hub/internal/version"
)

// JSON-RPC error codes. The -320xx range is reserved for the server.
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeNotFound       = -32004
	codeForbidden      = -32003
	codeCapacity       = -32005
	codeLedgerWrite    = -32010
)

// maxLineSize bounds one request line; binary payloads arrive base64 encoded.
const maxLineSize = 16 << 20

// GeneratorSource resolves the external generator for a skill.
type GeneratorSource interface {
	Generator(skill tier.Skill) (hub.Generator, bool)
}

// errNoGenerator is returned by skills.generate for unconfigured skills.
var errNoGenerator = errors.New("no generator configured for skill")

// Server serves one hub over a stream.
type Server struct {
	hub        *hub.Hub
	generators GeneratorSource

	mu  sync.Mutex
	out *json.Encoder
}

// ServerOption customizes a Server.
type ServerOption func(*Server)

// WithGenerators enables skills.generate.
func WithGenerators(src GeneratorSource) ServerOption {
	return func(s *Server) { s.generators = src }
}

// NewServer creates a server for h.
func NewServer(h *hub.Hub, opts ...ServerOption) *Server {
	s := &Server{hub: h}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run reads requests from r and writes responses to w.
// This blocks until r is exhausted.
func (s *Server) Run(r io.Reader, w io.Writer) error {
	s.out = json.NewEncoder(w)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		response := s.handleRequest(line)
		if response != nil {
			if err := s.send(response); err != nil {
				return fmt.Errorf("failed to write response: %w", err)
			}
		}
	}
	return scanner.Err()
}

// Request represents an incoming JSON-RPC request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response represents an outgoing JSON-RPC response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents a JSON-RPC error.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type handler func(s *Server, params json.RawMessage) (interface{}, error)

var methods = map[string]handler{
	"initialize":         (*Server).handleInitialize,
	"tiers.list":         (*Server).handleTiersList,
	"session.setTier":    (*Server).handleSetTier,
	"quota.canProceed":   (*Server).handleCanProceed,
	"skills.generate":    (*Server).handleGenerate,
	"outputs.add":        (*Server).handleOutputsAdd,
	"outputs.get":        (*Server).handleOutputsGet,
	"outputs.list":       (*Server).handleOutputsList,
	"outputs.finalize":   (*Server).handleOutputsFinalize,
	"outputs.promote":    (*Server).handleOutputsPromote,
	"learning.reinforce": (*Server).handleReinforce,
	"learning.search":    (*Server).handleSearch,
	"usage.summary":      (*Server).handleUsageSummary,
	"analytics.report":   (*Server).handleAnalyticsReport,
	"corpus.export":      (*Server).handleCorpusExport,
}

// handleRequest processes one request line.
func (s *Server) handleRequest(data []byte) *Response {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return errorResponse(nil, codeParseError, fmt.Sprintf("invalid JSON-RPC request: %v", err))
	}

	h, ok := methods[req.Method]
	if !ok {
		return errorResponse(req.ID, codeMethodNotFound, "Method not found")
	}

	result, err := h(s, req.Params)
	if err != nil {
		return errorResponse(req.ID, errorCode(err), err.Error())
	}
	return &Response{JSONRPC: "2.0", ID: req.ID, Result: result}
}

// invalidParamsError marks malformed or missing parameters.
type invalidParamsError struct{ err error }

func (e *invalidParamsError) Error() string { return "invalid params: " + e.err.Error() }
func (e *invalidParamsError) Unwrap() error { return e.err }

func invalidParams(format string, args ...any) error {
	return &invalidParamsError{err: fmt.Errorf(format, args...)}
}

func errorCode(err error) int {
	var ip *invalidParamsError
	var capErr *outputs.CapacityError
	switch {
	case errors.As(err, &ip), errors.Is(err, hub.ErrInvalidAction):
		return codeInvalidParams
	case errors.Is(err, usage.ErrLedgerWrite):
		return codeLedgerWrite
	case errors.As(err, &capErr):
		return codeCapacity
	case errors.Is(err, outputs.ErrNotFound),
		errors.Is(err, learning.ErrNothingToPromote),
		errors.Is(err, learning.ErrPatternNotFound),
		errors.Is(err, tier.ErrUnknownTier),
		errors.Is(err, errNoGenerator):
		return codeNotFound
	case errors.Is(err, hub.ErrBatchNotPermitted), errors.Is(err, hub.ErrAnalyticsNotPermitted):
		return codeForbidden
	default:
		return codeServerError
	}
}

func errorResponse(id interface{}, code int, message string) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &Error{Code: code, Message: message},
	}
}

func decodeParams(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return invalidParams("missing params")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &invalidParamsError{err: err}
	}
	return nil
}

// send writes one response line.
func (s *Server) send(resp *Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.Encode(resp)
}

func (s *Server) handleInitialize(json.RawMessage) (interface{}, error) {
	return map[string]interface{}{
		"serverInfo": version.PeerInfo(),
	}, nil
}
