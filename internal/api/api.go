package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"syscall"

	"github.com/hmansour/chatbridge/internal/bot"
)

// Greeting is what the probe route answers with.
const Greeting = "Hello, World! The chatbot server is up and reachable."

// TunnelCloser closes the first currently open tunnel. Satisfied by
// *tunnel.Client.
type TunnelCloser interface {
	DisconnectFirst() error
}

// API is the main entry point for the chatbot HTTP surface.
type API struct {
	handlers *Handlers
	mux      *http.ServeMux
}

// NewAPI creates and initializes a new API instance. A nil terminate falls
// back to signalling the current process.
func NewAPI(responder bot.Responder, tunnels TunnelCloser, terminate func() error) *API {
	a := &API{
		handlers: NewHandlers(responder, tunnels, terminate),
		mux:      http.NewServeMux(),
	}
	a.registerRoutes()
	return a
}

// ServeHTTP allows the API struct to satisfy the http.Handler interface.
func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mux.ServeHTTP(w, r)
}

func (a *API) registerRoutes() {
	a.mux.HandleFunc("GET /{$}", a.handlers.HomeHandler)
	a.mux.HandleFunc("POST /chatbot", a.handlers.ChatHandler)
	a.mux.HandleFunc("POST /end-session", a.handlers.EndSessionHandler)
	a.mux.HandleFunc("POST /stop-server", a.handlers.StopServerHandler)
}

// Handlers holds the dependencies of the route handlers.
type Handlers struct {
	responder bot.Responder
	tunnels   TunnelCloser
	terminate func() error
}

// NewHandlers creates the handler set.
func NewHandlers(responder bot.Responder, tunnels TunnelCloser, terminate func() error) *Handlers {
	if terminate == nil {
		terminate = terminateSelf
	}
	return &Handlers{
		responder: responder,
		tunnels:   tunnels,
		terminate: terminate,
	}
}

// terminateSelf asks the OS to deliver SIGTERM to this process.
func terminateSelf() error {
	proc, err := os.FindProcess(os.Getpid())
	if err != nil {
		return err
	}
	return proc.Signal(syscall.SIGTERM)
}

// ChatPayload is the request body for the /chatbot endpoint. Message is a
// pointer so a missing field is distinguishable from an empty one.
type ChatPayload struct {
	Message *string `json:"message"`
}

// ChatReply is the success body for the /chatbot endpoint.
type ChatReply struct {
	Response string `json:"response"`
}

// ChatError is the error body for the /chatbot endpoint.
type ChatError struct {
	Error string `json:"error"`
}

// HomeHandler answers the greeting probe.
func (h *Handlers) HomeHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprint(w, Greeting)
}

// ChatHandler feeds the message through the responder.
func (h *Handlers) ChatHandler(w http.ResponseWriter, r *http.Request) {
	var payload ChatPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeChatError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if payload.Message == nil {
		writeChatError(w, http.StatusBadRequest, "missing message field")
		return
	}

	reply := h.responder.Respond(*payload.Message)
	slog.Info("chat handled", "message", *payload.Message, "reply", reply)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ChatReply{Response: reply})
}

// EndSessionHandler signals the current process to terminate.
func (h *Handlers) EndSessionHandler(w http.ResponseWriter, r *http.Request) {
	slog.Info("end-session requested")
	if err := h.terminate(); err != nil {
		http.Error(w, fmt.Sprintf("Failed to end session: %v", err), http.StatusInternalServerError)
		return
	}
	fmt.Fprint(w, "Session ended successfully.")
}

// StopServerHandler closes the first open tunnel, cutting public access.
func (h *Handlers) StopServerHandler(w http.ResponseWriter, r *http.Request) {
	slog.Info("stop-server requested")
	if h.tunnels == nil {
		http.Error(w, "Failed to stop server: no tunnel client configured", http.StatusInternalServerError)
		return
	}
	if err := h.tunnels.DisconnectFirst(); err != nil {
		http.Error(w, fmt.Sprintf("Failed to stop server: %v", err), http.StatusInternalServerError)
		return
	}
	fmt.Fprint(w, "Server stopped successfully.")
}

func writeChatError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ChatError{Error: msg})
}
