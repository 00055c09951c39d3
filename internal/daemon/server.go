package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/wwaihoe/TailorED/internal/registry"
	"github.com/wwaihoe/TailorED/internal/search"
)

// Service is the engine surface the daemon exposes. *search.Engine
// satisfies it.
type Service interface {
	Search(ctx context.Context, query string, k int) (*search.Result, error)
	Add(ctx context.Context, content []byte, filename, mediaType string) (string, error)
	Remove(ctx context.Context, id string) error
	List(ctx context.Context) ([]registry.SourceInfo, error)
	Status(ctx context.Context) (*search.Status, error)
}

// Server listens on a Unix socket and serves one request per connection.
type Server struct {
	socketPath string
	timeout    time.Duration
	listener   net.Listener
	service    Service
	started    time.Time

	mu       sync.Mutex
	shutdown bool
	wg       sync.WaitGroup
}

// NewServer creates a server for socketPath. timeout bounds each request;
// zero means no bound beyond the connection deadline.
func NewServer(socketPath string, service Service, timeout time.Duration) *Server {
	return &Server{
		socketPath: socketPath,
		service:    service,
		timeout:    timeout,
	}
}

// ListenAndServe starts the server and blocks until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	// stale socket from a crashed run
	_ = os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.socketPath, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.started = time.Now()
	s.mu.Unlock()

	defer func() {
		_ = listener.Close()
		_ = os.Remove(s.socketPath)
	}()

	slog.Info("server_listening", slog.String("socket", s.socketPath))

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			shutdown := s.shutdown
			s.mu.Unlock()
			if shutdown {
				break
			}
			slog.Error("accept_failed", slog.String("error", err.Error()))
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.wg.Wait()
	return ctx.Err()
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	deadline := 30 * time.Second
	if s.timeout > deadline {
		deadline = s.timeout
	}
	if err := conn.SetDeadline(time.Now().Add(deadline)); err != nil {
		slog.Warn("set_deadline_failed", slog.String("error", err.Error()))
	}

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	var req Request
	if err := decoder.Decode(&req); err != nil {
		_ = encoder.Encode(NewErrorResponse("", ErrCodeParseError, "failed to parse request"))
		return
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	resp := s.handleRequest(ctx, req)
	slog.Debug("request_handled",
		slog.String("method", req.Method),
		slog.String("id", req.ID),
		slog.Bool("ok", resp.Error == nil),
		slog.Duration("duration", time.Since(start)))
	_ = encoder.Encode(resp)
}

func (s *Server) handleRequest(ctx context.Context, req Request) Response {
	if req.Method == MethodPing {
		return NewSuccessResponse(req.ID, PingResult{Pong: true})
	}
	if req.Method == MethodStatus {
		return NewSuccessResponse(req.ID, s.status(ctx))
	}
	if s.service == nil {
		return NewErrorResponse(req.ID, ErrCodeInternalError, "no service configured")
	}

	switch req.Method {
	case MethodSearch:
		var p SearchParams
		if resp, ok := decodeParams(req, &p, p.Validate); !ok {
			return resp
		}
		res, err := s.service.Search(ctx, p.Query, p.K)
		if err != nil {
			return newServiceErrorResponse(req.ID, err)
		}
		return NewSuccessResponse(req.ID, res)

	case MethodAdd:
		var p AddParams
		if resp, ok := decodeParams(req, &p, p.Validate); !ok {
			return resp
		}
		id, err := s.service.Add(ctx, p.Content, p.Filename, p.MediaType)
		if err != nil {
			return newServiceErrorResponse(req.ID, err)
		}
		return NewSuccessResponse(req.ID, AddResult{SourceID: id})

	case MethodRemove:
		var p RemoveParams
		if resp, ok := decodeParams(req, &p, p.Validate); !ok {
			return resp
		}
		if err := s.service.Remove(ctx, p.SourceID); err != nil {
			return newServiceErrorResponse(req.ID, err)
		}
		return NewSuccessResponse(req.ID, RemoveResult{Removed: true})

	case MethodList:
		sources, err := s.service.List(ctx)
		if err != nil {
			return newServiceErrorResponse(req.ID, err)
		}
		return NewSuccessResponse(req.ID, ListResult{Sources: sources})

	default:
		return NewErrorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

// decodeParams round-trips req.Params into dst and validates it.
func decodeParams(req Request, dst any, validate func() error) (Response, bool) {
	data, err := json.Marshal(req.Params)
	if err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, "failed to encode params"), false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, "failed to decode params"), false
	}
	if err := validate(); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error()), false
	}
	return Response{}, true
}

func (s *Server) status(ctx context.Context) StatusResult {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	status := StatusResult{
		Running: true,
		PID:     os.Getpid(),
		Uptime:  time.Since(started).Round(time.Second).String(),
	}
	if s.service != nil {
		st, err := s.service.Status(ctx)
		if err != nil {
			slog.Warn("status_failed", slog.String("error", err.Error()))
		} else {
			status.Engine = st
		}
	}
	return status
}

// Close stops accepting connections.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdown = true
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}
