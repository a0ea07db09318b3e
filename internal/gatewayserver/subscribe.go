package gatewayserver

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"goblin/internal/gatewayerr"
	"goblin/internal/session"
	"goblin/pkg/logging"
)

// rpcEnvelope is the minimal JSON-RPC 2.0 request/notification shape this
// package needs to peek at: enough to recognize resources/subscribe,
// resources/unsubscribe, and notifications/cancelled without depending on
// mcp-go's own (unconfirmed) wire-level request type for these methods.
type rpcEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  struct {
		URI       string          `json:"uri"`
		RequestID json.RawMessage `json:"requestId"`
	} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// interceptedMethods are the JSON-RPC methods this package answers directly
// instead of letting them reach mcp-go's own dispatch: subscribe/unsubscribe
// because mcp-go exposes no confirmed hook for them, and
// resources/templates/list because mcp-go's server has no confirmed
// resource-template registration API (unlike the official
// modelcontextprotocol/go-sdk's AddResourceTemplate) for this library
// version, so the Registry's own template cache is the only place the list
// can come from.
func isIntercepted(method string) bool {
	switch method {
	case "resources/subscribe", "resources/unsubscribe", "resources/templates/list":
		return true
	default:
		return false
	}
}

// decodeID normalizes a raw JSON-RPC id (or a notifications/cancelled
// requestId, which names one) through the same json.Unmarshal-into-any path,
// so a numeric id always becomes the same float64 regardless of which field
// it was read from and the two can be compared as map keys.
func decodeID(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

// sessionDispatch is the JSON-RPC-aware HTTP middleware sitting ahead of the
// shared mcp-go handler. It answers the intercepted methods directly,
// cancels an in-flight request on notifications/cancelled, and otherwise
// wraps the request in the session's BeginRequest/EndRequest pair so a later
// cancel notification has a handle to act on.
func (s *Server) sessionDispatch(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		var env rpcEnvelope
		if err := json.Unmarshal(body, &env); err != nil || env.Method == "" {
			next.ServeHTTP(w, r)
			return
		}

		sessionID := sessionIDFromRequest(r)
		sess, err := s.sessions.GetOrCreateReady(sessionID)
		if err != nil {
			http.Error(w, "Too many concurrent sessions", gatewayerr.KindOf(err).HTTPStatus())
			return
		}
		if sid := sess.ID; sid != "" {
			w.Header().Set("Mcp-Session-Id", sid)
		}

		if env.Method == "notifications/cancelled" {
			sess.CancelRequest(decodeID(env.Params.RequestID))
			w.WriteHeader(http.StatusAccepted)
			return
		}

		if isIntercepted(env.Method) {
			s.answerIntercepted(w, env, sess)
			return
		}

		reqID := decodeID(env.ID)
		if reqID == nil {
			// A notification other than cancelled carries no cancel handle.
			next.ServeHTTP(w, r)
			return
		}

		skipReady := env.Method == "initialize" || env.Method == "ping"
		cctx, err := sess.BeginRequest(r.Context(), reqID, skipReady)
		if err != nil {
			writeRPCError(w, env.ID, err)
			return
		}
		defer sess.EndRequest(reqID)
		next.ServeHTTP(w, r.WithContext(cctx))
	})
}

// answerIntercepted handles resources/subscribe, resources/unsubscribe, and
// resources/templates/list directly, ahead of mcp-go's own request dispatch.
func (s *Server) answerIntercepted(w http.ResponseWriter, env rpcEnvelope, sess *session.Session) {
	var result any
	var rpcErr *rpcError
	switch env.Method {
	case "resources/subscribe":
		if _, err := sess.Subscribe(env.Params.URI); err != nil {
			rpcErr = &rpcError{Code: gatewayerr.KindOf(err).JSONRPCCode(), Message: err.Error()}
		} else {
			result = map[string]any{}
		}
	case "resources/unsubscribe":
		if err := sess.Unsubscribe(env.Params.URI); err != nil {
			rpcErr = &rpcError{Code: gatewayerr.KindOf(err).JSONRPCCode(), Message: err.Error()}
		} else {
			result = map[string]any{}
		}
	case "resources/templates/list":
		result = map[string]any{"resourceTemplates": s.registry.ListResourceTemplates()}
	}

	resp := rpcResponse{JSONRPC: "2.0", ID: env.ID, Result: result, Error: rpcErr}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.Warn("GatewayServer", "failed to write %s response: %s", env.Method, err)
	}
}

func writeRPCError(w http.ResponseWriter, id json.RawMessage, err error) {
	resp := rpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &rpcError{Code: gatewayerr.KindOf(err).JSONRPCCode(), Message: err.Error()},
	}
	w.Header().Set("Content-Type", "application/json")
	if encErr := json.NewEncoder(w).Encode(resp); encErr != nil {
		logging.Warn("GatewayServer", "failed to write error response: %s", encErr)
	}
}

func sessionIDFromRequest(r *http.Request) string {
	if id := r.Header.Get("Mcp-Session-Id"); id != "" {
		return id
	}
	if id := r.URL.Query().Get("sessionId"); id != "" {
		return id
	}
	return "stdio-session"
}
