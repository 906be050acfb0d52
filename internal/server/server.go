// Package server exposes the thin HTTP surface that makes the core drivable:
// port status, the interactive console websocket, and job submission. The
// full CRUD/REST layer of a deployment sits outside this repository.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"portmux/internal/api"
	"portmux/internal/arbiter"
	"portmux/internal/bridge"
	"portmux/internal/config"
	"portmux/internal/job"
	"portmux/internal/serial"
	"portmux/pkg/logging"

	"github.com/gorilla/websocket"
)

// Server wires the core components behind HTTP handlers.
type Server struct {
	cfg      config.Config
	manager  *config.Manager
	store    *job.Store
	executor *job.Executor
	ports    *arbiter.Arbiter

	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// New creates a new server
func New(manager *config.Manager, store *job.Store, executor *job.Executor, ports *arbiter.Arbiter) *Server {
	s := &Server{
		cfg:      manager.Config(),
		manager:  manager,
		store:    store,
		executor: executor,
		ports:    ports,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The console is reached from the operator UI on another origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /console/ports", s.handleListPorts)
	mux.HandleFunc("GET /console/ws/{port_id}", s.handleConsole)
	mux.HandleFunc("POST /jobs", s.handleCreateJob)
	mux.HandleFunc("GET /jobs", s.handleListJobs)
	mux.HandleFunc("GET /jobs/{id}", s.handleGetJob)

	s.httpServer = &http.Server{
		Addr:    s.cfg.Server.Address(),
		Handler: mux,
	}
	return s
}

// Run serves until the context is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logging.Info("Server", "Listening on %s", s.httpServer.Addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// handleListPorts reports status for every configured port, checked
// concurrently.
func (s *Server) handleListPorts(w http.ResponseWriter, r *http.Request) {
	count := s.cfg.Ports.Count
	statuses := make([]arbiter.PortStatus, count)

	var wg sync.WaitGroup
	for i := 1; i <= count; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			path := s.cfg.Ports.Path(id)
			baud := s.cfg.Settings.BaudFor(strconv.Itoa(id))
			statuses[id-1] = s.ports.CheckPort(id, path, baud)
		}(i)
	}
	wg.Wait()

	writeJSON(w, http.StatusOK, statuses)
}

type createJobRequest struct {
	Template string           `json:"template"`
	Macro    string           `json:"macro"`
	Targets  []job.TargetSpec `json:"targets"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.Template == "" && req.Macro == "" {
		http.Error(w, "template or macro required", http.StatusBadRequest)
		return
	}
	if len(req.Targets) == 0 {
		http.Error(w, "at least one target required", http.StatusBadRequest)
		return
	}

	j := s.store.Create(req.Template, req.Macro, req.Targets)
	s.executor.Submit(j.ID)
	logging.Info("Server", "Job %s queued with %d targets", j.ID, len(j.Targets))

	writeJSON(w, http.StatusCreated, j)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.List())
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	j, err := s.store.Get(r.PathValue("id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

// handleConsole upgrades to a websocket and bridges it onto the port's
// serial session.
func (s *Server) handleConsole(w http.ResponseWriter, r *http.Request) {
	portID, err := strconv.Atoi(r.PathValue("port_id"))
	if err != nil || portID < 1 || portID > s.cfg.Ports.Count {
		http.Error(w, "invalid port id", http.StatusBadRequest)
		return
	}
	portPath := s.cfg.Ports.Path(portID)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("Server", "Websocket upgrade for %s failed: %v", portPath, err)
		return
	}
	client := newWSClient(conn)
	defer conn.Close()

	if err := s.ports.AcquireConsole(portPath); err != nil {
		client.CloseWith(websocket.ClosePolicyViolation, "Port busy (Console active)")
		return
	}
	defer s.ports.Release(portPath)

	if _, err := os.Stat(portPath); err != nil {
		client.WriteText(fmt.Sprintf("\r\n[Error: Port %s does not exist]\r\n", portPath))
		return
	}

	baud := s.cfg.Settings.BaudFor(strconv.Itoa(portID))
	session := serial.New(portPath, baud, serial.WithReadTimeout(100*time.Millisecond))
	if err := session.Connect(); err != nil {
		client.WriteText(fmt.Sprintf("\r\n[Error: Could not open port: %v]\r\n", err))
		return
	}
	defer session.Disconnect()

	client.WriteText(fmt.Sprintf("\r\n[Connected to %s]\r\n", portPath))
	logging.Info("ConsoleBridge", "Console attached to %s", portPath)

	var profile *api.DeviceProfile
	b := bridge.ForPort(client, session, s.ports, portPath, profile)
	if err := b.Run(r.Context()); err != nil {
		logging.Debug("ConsoleBridge", "Console for %s ended: %v", portPath, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("Server", "Response encode failed: %v", err)
	}
}
