// Package rpc provides a lightweight JSON-over-TCP RPC framework used to
// expose the featurizer to other internal services without HTTP overhead.
//
// Protocol: newline-delimited JSON over a persistent TCP connection. Each
// request carries a method name in "Service.Method" form and an id that the
// response echoes. Failed calls return the error text and its kind label so
// clients can recover the sentinel with errors.Is.
//
// Example server:
//
//	s := rpc.NewServer()
//	s.Register("FeatureService.Hash", func(ctx context.Context, req json.RawMessage) (any, error) {
//	    var hashReq proto.HashRequest
//	    if err := json.Unmarshal(req, &hashReq); err != nil {
//	        return nil, err
//	    }
//	    return &proto.HashResponse{Hash: hasher.HashString(hashReq.Value, hashReq.Seed)}, nil
//	})
//	s.Serve(":9000")
//
// Example client:
//
//	c, _ := rpc.Dial("localhost:9000")
//	var resp proto.HashResponse
//	c.Call(ctx, "FeatureService.Hash", &proto.HashRequest{Value: "hello"}, &resp)
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/featurehash/pkg/errors"
)

// HandlerFunc processes an RPC request and returns a response or error.
type HandlerFunc func(ctx context.Context, req json.RawMessage) (any, error)

// Request is the wire format for an RPC request.
type Request struct {
	Method string          `json:"method"`
	ID     string          `json:"id"`
	Params json.RawMessage `json:"params"`
}

// Response is the wire format for an RPC response.
type Response struct {
	ID        string          `json:"id"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorKind string          `json:"error_kind,omitempty"`
}

// Server is a lightweight JSON-over-TCP RPC server.
type Server struct {
	handlers map[string]HandlerFunc
	listener net.Listener
	logger   *slog.Logger
	mu       sync.RWMutex
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	conns    map[net.Conn]struct{}
}

// NewServer creates a new RPC server.
func NewServer() *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		handlers: make(map[string]HandlerFunc),
		logger:   slog.Default().With("component", "rpc-server"),
		ctx:      ctx,
		cancel:   cancel,
		conns:    make(map[net.Conn]struct{}),
	}
}

// Register adds a handler for the given RPC method name.
func (s *Server) Register(method string, handler HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = handler
	s.logger.Debug("method registered", "method", method)
}

// Serve listens on addr and blocks until Stop is called.
func (s *Server) Serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.ServeListener(ln)
}

// ServeListener accepts connections from ln until Stop is called.
func (s *Server) ServeListener(ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	if s.ctx.Err() != nil {
		ln.Close()
		return nil
	}
	s.logger.Info("rpc server listening", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("accept error", "error", err)
			continue
		}
		s.mu.Lock()
		if s.ctx.Err() != nil {
			s.mu.Unlock()
			conn.Close()
			return nil
		}
		s.conns[conn] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	for {
		var req Request
		if err := decoder.Decode(&req); err != nil {
			return
		}
		resp := s.dispatch(req)
		if err := encoder.Encode(resp); err != nil {
			s.logger.Error("write error", "method", req.Method, "error", err)
			return
		}
	}
}

func (s *Server) dispatch(req Request) Response {
	s.mu.RLock()
	handler, exists := s.handlers[req.Method]
	s.mu.RUnlock()

	resp := Response{ID: req.ID}
	if !exists {
		resp.Error = fmt.Sprintf("unknown method: %s", req.Method)
		resp.ErrorKind = apperrors.Kind(apperrors.ErrInvalidInput)
		return resp
	}
	data, err := handler(s.ctx, req.Params)
	if err != nil {
		resp.Error = err.Error()
		resp.ErrorKind = apperrors.Kind(err)
		return resp
	}
	raw, err := json.Marshal(data)
	if err != nil {
		resp.Error = fmt.Sprintf("marshaling response: %v", err)
		resp.ErrorKind = apperrors.Kind(apperrors.ErrInternal)
		return resp
	}
	resp.Data = raw
	return resp
}

// MethodCount returns the number of registered methods.
func (s *Server) MethodCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handlers)
}

// Stop closes the listener and open connections, then waits for in-flight
// calls to return.
func (s *Server) Stop() {
	s.cancel()
	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	s.logger.Info("rpc server stopped")
}
