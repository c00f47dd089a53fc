package mcp

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/pizzaz/pizzazd/pkg/logging"
	"github.com/pizzaz/pizzazd/pkg/widget"
)

// ServerVersion is the pizzazd server version.
const ServerVersion = "0.1.0"

// Server is the MCP protocol server. It serves the /mcp endpoint: JSON-RPC
// over POST, an SSE notification stream over GET, and session termination
// over DELETE. It does not own the HTTP listener; mount Handler on a mux and
// wrap it with the augmentation middleware.
type Server struct {
	config    *Config
	registry  *widget.Registry
	sessions  *SessionManager
	tools     *ToolProvider
	resources *ResourceProvider
	stopCh    chan struct{}
	log       *slog.Logger
}

// NewServer creates a new MCP server backed by the widget registry.
func NewServer(cfg *Config, registry *widget.Registry, log *slog.Logger) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = logging.Nop()
	}

	s := &Server{
		config:    cfg,
		registry:  registry,
		sessions:  NewSessionManager(cfg),
		tools:     NewToolProvider(registry),
		resources: NewResourceProvider(registry),
		stopCh:    make(chan struct{}),
		log:       log,
	}

	s.sessions.StartCleanupRoutine(time.Minute, s.stopCh)
	return s
}

// Close stops the session cleanup routine and terminates all sessions.
func (s *Server) Close() {
	close(s.stopCh)
	s.sessions.Close()
}

// Sessions returns the session manager.
func (s *Server) Sessions() *SessionManager {
	return s.sessions
}

// NotifyWidgetsReloaded broadcasts a resource list changed notification to
// all connected sessions, then a resources/updated notification per widget
// to the sessions subscribed to its URI. Called after a successful registry
// reload.
func (s *Server) NotifyWidgetsReloaded() {
	s.sessions.Broadcast(ResourceListChangedNotification())
	for _, w := range s.registry.Widgets() {
		s.sessions.BroadcastToSubscribers(w.TemplateURI, ResourceUpdatedNotification(w.TemplateURI))
	}
}

// Handler returns the HTTP handler for the MCP endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.config.Path, s.handleMCP)
	return s.withCORS(mux)
}

// withCORS adds the CORS headers MCP clients need and answers preflight
// requests.
func (s *Server) withCORS(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Mcp-Session-Id, MCP-Protocol-Version, Last-Event-ID")
		w.Header().Set("Access-Control-Expose-Headers", "Mcp-Session-Id")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		handler.ServeHTTP(w, r)
	})
}

// handleMCP is the main handler for MCP requests.
func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleSSE(w, r)
	case http.MethodPost:
		s.handleJSONRPC(w, r)
	case http.MethodDelete:
		s.handleSessionDelete(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJSONRPC handles JSON-RPC POST requests.
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	req, parseErr := ParseRequest(r.Body)
	if parseErr != nil {
		s.writeError(w, nil, parseErr)
		return
	}

	// Initialize is special - creates a new session
	var session *Session
	if req.Method == "initialize" {
		var err error
		session, err = s.sessions.Create()
		if err != nil {
			s.writeError(w, req.ID, InternalError(err))
			return
		}
		w.Header().Set("Mcp-Session-Id", session.ID)
	} else {
		sessionID := r.Header.Get("Mcp-Session-Id")
		if sessionID == "" {
			s.writeError(w, req.ID, SessionRequiredError())
			return
		}
		session = s.sessions.Get(sessionID)
		if session == nil {
			s.writeError(w, req.ID, SessionExpiredError(sessionID))
			return
		}
		session.Touch()
	}

	result, err := s.dispatch(session, req)

	// Notifications get no response body
	if req.IsNotification() {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if err != nil {
		s.writeError(w, req.ID, err)
		return
	}

	s.writeSuccess(w, req.ID, result)
}

// dispatch routes the request to the appropriate handler.
func (s *Server) dispatch(session *Session, req *JSONRPCRequest) (interface{}, *JSONRPCError) {
	switch req.Method {
	// Lifecycle methods
	case "initialize":
		return s.handleInitialize(session, req.Params)
	case "initialized", "notifications/initialized":
		return s.handleInitialized(session)
	case "ping":
		return s.handlePing()

	// Tool methods
	case "tools/list":
		return s.handleToolsList(session)
	case "tools/call":
		return s.handleToolsCall(session, req.Params)

	// Resource methods
	case "resources/list":
		return s.handleResourcesList(session)
	case "resources/templates/list":
		return s.handleResourceTemplatesList(session)
	case "resources/read":
		return s.handleResourcesRead(session, req.Params)
	case "resources/subscribe":
		return s.handleResourcesSubscribe(session, req.Params)
	case "resources/unsubscribe":
		return s.handleResourcesUnsubscribe(session, req.Params)

	default:
		return nil, MethodNotFoundError(req.Method)
	}
}

// handleInitialize handles the initialize request.
func (s *Server) handleInitialize(session *Session, params json.RawMessage) (interface{}, *JSONRPCError) {
	initParams, err := UnmarshalParamsRequired[InitializeParams](params)
	if err != nil {
		return nil, err
	}

	if !IsProtocolVersionSupported(initParams.ProtocolVersion) {
		return nil, ProtocolVersionError(initParams.ProtocolVersion, ProtocolVersion)
	}

	session.ProtocolVersion = initParams.ProtocolVersion
	session.ClientInfo = initParams.ClientInfo
	session.Capabilities = initParams.Capabilities
	session.SetState(SessionStateInitialized)

	return &InitializeResult{
		ProtocolVersion: initParams.ProtocolVersion,
		Capabilities: ServerCapabilities{
			Tools: &ToolsCapability{
				ListChanged: false,
			},
			Resources: &ResourcesCapability{
				Subscribe:   true,
				ListChanged: true,
			},
		},
		ServerInfo: ServerInfo{
			Name:    "pizzazd",
			Version: ServerVersion,
		},
	}, nil
}

// handleInitialized handles the initialized notification.
func (s *Server) handleInitialized(session *Session) (interface{}, *JSONRPCError) {
	if session.GetState() != SessionStateInitialized {
		return nil, NotInitializedError()
	}
	session.SetState(SessionStateReady)
	return nil, nil
}

// handlePing handles the ping request.
func (s *Server) handlePing() (interface{}, *JSONRPCError) {
	return map[string]interface{}{}, nil
}

// handleToolsList returns the list of available tools.
func (s *Server) handleToolsList(session *Session) (interface{}, *JSONRPCError) {
	if session.GetState() != SessionStateReady {
		return nil, NotInitializedError()
	}

	return &ToolsListResult{
		Tools: s.tools.List(),
	}, nil
}

// handleToolsCall executes a tool.
func (s *Server) handleToolsCall(session *Session, params json.RawMessage) (interface{}, *JSONRPCError) {
	if session.GetState() != SessionStateReady {
		return nil, NotInitializedError()
	}

	callParams, err := UnmarshalParamsRequired[ToolCallParams](params)
	if err != nil {
		return nil, err
	}

	// Tool errors are returned in the result, not as JSON-RPC errors
	return s.tools.Call(callParams.Name, callParams.Arguments), nil
}

// handleResourcesList returns the list of available resources.
func (s *Server) handleResourcesList(session *Session) (interface{}, *JSONRPCError) {
	if session.GetState() != SessionStateReady {
		return nil, NotInitializedError()
	}

	return &ResourcesListResult{
		Resources: s.resources.List(),
	}, nil
}

// handleResourceTemplatesList returns the list of resource templates.
func (s *Server) handleResourceTemplatesList(session *Session) (interface{}, *JSONRPCError) {
	if session.GetState() != SessionStateReady {
		return nil, NotInitializedError()
	}

	return &ResourceTemplatesListResult{
		ResourceTemplates: s.resources.Templates(),
	}, nil
}

// handleResourcesRead reads a resource.
func (s *Server) handleResourcesRead(session *Session, params json.RawMessage) (interface{}, *JSONRPCError) {
	if session.GetState() != SessionStateReady {
		return nil, NotInitializedError()
	}

	readParams, err := UnmarshalParamsRequired[ResourceReadParams](params)
	if err != nil {
		return nil, err
	}

	contents, readErr := s.resources.Read(readParams.URI)
	if readErr != nil {
		return nil, readErr
	}

	return &ResourceReadResult{
		Contents: contents,
	}, nil
}

// handleResourcesSubscribe subscribes to a resource.
func (s *Server) handleResourcesSubscribe(session *Session, params json.RawMessage) (interface{}, *JSONRPCError) {
	if session.GetState() != SessionStateReady {
		return nil, NotInitializedError()
	}

	subParams, err := UnmarshalParamsRequired[ResourceSubscribeParams](params)
	if err != nil {
		return nil, err
	}

	session.Subscribe(subParams.URI)
	return map[string]interface{}{}, nil
}

// handleResourcesUnsubscribe unsubscribes from a resource.
func (s *Server) handleResourcesUnsubscribe(session *Session, params json.RawMessage) (interface{}, *JSONRPCError) {
	if session.GetState() != SessionStateReady {
		return nil, NotInitializedError()
	}

	unsubParams, err := UnmarshalParamsRequired[ResourceUnsubscribeParams](params)
	if err != nil {
		return nil, err
	}

	session.Unsubscribe(unsubParams.URI)
	return map[string]interface{}{}, nil
}

// handleSSE handles SSE GET requests: a long-lived stream of server
// notifications for one session.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get("Mcp-Session-Id")
	if sessionID == "" {
		http.Error(w, "Session required", http.StatusBadRequest)
		return
	}

	session := s.sessions.Get(sessionID)
	if session == nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	if session.GetState() != SessionStateReady {
		http.Error(w, "Session not ready", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	eventID := int64(0)

	for {
		select {
		case <-ctx.Done():
			return

		case notif, ok := <-session.EventChannel:
			if !ok {
				return
			}

			eventID++
			data, _ := json.Marshal(notif)

			fmt.Fprintf(w, "id: %d\n", eventID)
			fmt.Fprintf(w, "event: message\n")
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// handleSessionDelete handles session termination.
func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get("Mcp-Session-Id")
	if sessionID == "" {
		http.Error(w, "Session required", http.StatusBadRequest)
		return
	}

	s.sessions.Delete(sessionID)
	w.WriteHeader(http.StatusNoContent)
}

// writeError writes a JSON-RPC error response.
func (s *Server) writeError(w http.ResponseWriter, id interface{}, err *JSONRPCError) {
	resp := ErrorResponse(id, err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK) // JSON-RPC errors are returned with 200 OK
	json.NewEncoder(w).Encode(resp)
}

// writeSuccess writes a JSON-RPC success response.
func (s *Server) writeSuccess(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := SuccessResponse(id, result)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
