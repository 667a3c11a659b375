package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"healthd-ng/internal/charging"
)

// ChargingService is the operation set exposed to RPC callers.
// *charging.Control implements it.
type ChargingService interface {
	GetEnabled() (bool, error)
	SetEnabled(enabled bool) error
}

type ServerConfig struct {
	Socket string
	// Mode is applied to the socket file after it is created.
	Mode           os.FileMode
	MaxMessageSize uint32
	Logger         logrus.FieldLogger
}

// Server accepts connections on a unix socket and serves each one on its own
// goroutine. Calls from different connections run concurrently.
type Server struct {
	cfg ServerConfig
	svc ChargingService
	log logrus.FieldLogger

	mu      sync.Mutex
	ln      net.Listener
	conns   map[net.Conn]struct{}
	closing bool

	wg sync.WaitGroup
}

func NewServer(svc ChargingService, cfg ServerConfig) *Server {
	if cfg.Mode == 0 {
		cfg.Mode = 0o660
	}
	if cfg.MaxMessageSize == 0 {
		cfg.MaxMessageSize = DefaultMaxMessageSize
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		cfg:   cfg,
		svc:   svc,
		log:   log.WithField("component", "rpc"),
		conns: make(map[net.Conn]struct{}),
	}
}

// Listen creates the socket. A stale socket file left by a previous run is
// replaced; any other file at that path is an error.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return nil
	}
	if s.cfg.Socket == "" {
		return fmt.Errorf("rpc: socket path is required")
	}
	if err := os.MkdirAll(filepath.Dir(s.cfg.Socket), 0o755); err != nil {
		return fmt.Errorf("rpc: create socket dir: %w", err)
	}
	if st, err := os.Lstat(s.cfg.Socket); err == nil {
		if st.Mode()&os.ModeSocket == 0 {
			return fmt.Errorf("rpc: %s exists and is not a socket", s.cfg.Socket)
		}
		if err := os.Remove(s.cfg.Socket); err != nil {
			return fmt.Errorf("rpc: remove stale socket: %w", err)
		}
	}

	ln, err := net.Listen("unix", s.cfg.Socket)
	if err != nil {
		return fmt.Errorf("rpc: listen: %w", err)
	}
	if err := os.Chmod(s.cfg.Socket, s.cfg.Mode); err != nil {
		_ = ln.Close()
		return fmt.Errorf("rpc: chmod socket: %w", err)
	}
	s.ln = ln
	s.log.WithField("socket", s.cfg.Socket).Info("rpc listening")
	return nil
}

// Addr returns the listen address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve accepts connections until ctx is canceled, then closes the listener
// and every open connection and waits for their handlers. It listens first
// if Listen has not been called.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		select {
		case <-ctx.Done():
		case <-done:
		}
		_ = ln.Close()
		s.closeConns()
	}()

	var serveErr error
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() == nil {
				serveErr = fmt.Errorf("rpc: accept: %w", err)
			}
			break
		}
		if !s.track(conn) {
			_ = conn.Close()
			continue
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
	close(done)
	<-stopped
	s.wg.Wait()

	s.mu.Lock()
	s.ln = nil
	s.closing = false
	s.mu.Unlock()

	if serveErr != nil {
		return serveErr
	}
	s.log.Info("rpc stopped")
	return ctx.Err()
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closing = true
	for c := range s.conns {
		_ = c.Close()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer s.untrack(conn)
	defer conn.Close()

	log := s.log.WithField("conn_id", uuid.New().String())
	if pc, err := peerCred(conn); err == nil {
		log = log.WithFields(logrus.Fields{"peer_pid": pc.PID, "peer_uid": pc.UID})
	}
	log.Debug("rpc client connected")

	fr := NewFrameReader(conn, s.cfg.MaxMessageSize)
	fw := NewFrameWriter(conn, s.cfg.MaxMessageSize)
	for {
		data, err := fr.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				log.Debug("rpc client disconnected")
			} else {
				log.WithError(err).Warn("rpc read failed; closing connection")
			}
			return
		}

		resp := s.dispatch(log, data)
		out, err := EncodeResponse(resp)
		if err != nil {
			log.WithError(err).Error("rpc encode response failed")
			return
		}
		if err := fw.WriteFrame(out); err != nil {
			log.WithError(err).Warn("rpc write failed; closing connection")
			return
		}
	}
}

func (s *Server) dispatch(log logrus.FieldLogger, data []byte) *Response {
	req, err := DecodeRequest(data)
	if err != nil {
		log.WithError(err).Warn("rpc bad request")
		return &Response{Status: StatusBadRequest, Detail: err.Error()}
	}
	resp := &Response{ID: req.ID}
	log = log.WithFields(logrus.Fields{"id": req.ID, "method": req.Method.String()})

	switch req.Method {
	case MethodGetChargingEnabled:
		v, err := s.svc.GetEnabled()
		if err != nil {
			resp.Status, resp.Detail = statusFor(err), err.Error()
			break
		}
		resp.Enabled = &v
	case MethodSetChargingEnabled:
		if req.Enabled == nil {
			resp.Status, resp.Detail = StatusBadRequest, "missing enabled argument"
			break
		}
		if err := s.svc.SetEnabled(*req.Enabled); err != nil {
			resp.Status, resp.Detail = statusFor(err), err.Error()
		}
	default:
		resp.Status, resp.Detail = StatusBadRequest, "unknown method "+req.Method.String()
	}

	entry := log.WithField("status", resp.Status.String())
	if resp.Status != StatusOK {
		entry.WithField("detail", resp.Detail).Info("rpc call failed")
	} else {
		entry.Debug("rpc call")
	}
	return resp
}

func statusFor(err error) Status {
	if charging.KindOf(err) == charging.KindUnsupportedOperation {
		return StatusUnsupportedOperation
	}
	return StatusIllegalState
}
