package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/foucault/nvfancontrol/internal/control"
	"github.com/foucault/nvfancontrol/internal/errors"
	"github.com/foucault/nvfancontrol/internal/logger"
)

// DefaultPort is the TCP port the report server listens on.
const DefaultPort = 12125

const (
	ErrListenFailed = errors.ErrorCode("report_listen_failed")
	ErrWriteFailed  = errors.ErrorCode("report_write_failed")
)

const connWriteTimeout = 5 * time.Second

// Source provides the control loop's state snapshot. Implemented by
// control.Loop.
type Source interface {
	Snapshot() []control.Snapshot
}

type coolerPayload struct {
	GPU         int    `json:"gpu"`
	Cooler      int    `json:"cooler"`
	Temperature int    `json:"temperature"`
	Speed       int    `json:"speed"`
	RPM         *int   `json:"rpm"`
	Mode        string `json:"mode"`
}

func payload(snapshots []control.Snapshot) []coolerPayload {
	out := make([]coolerPayload, len(snapshots))
	for i, s := range snapshots {
		p := coolerPayload{
			GPU:         s.GPU,
			Cooler:      s.Cooler,
			Temperature: s.Temperature,
			Speed:       s.Speed,
			Mode:        s.Mode.String(),
		}
		if s.RPM != control.RPMUnknown {
			rpm := s.RPM
			p.RPM = &rpm
		}
		out[i] = p
	}

	return out
}

// Write emits all coolers as a single newline-terminated JSON line.
func Write(w io.Writer, snapshots []control.Snapshot) error {
	if err := json.NewEncoder(w).Encode(payload(snapshots)); err != nil {
		return errors.New().Wrap(ErrWriteFailed, err)
	}

	return nil
}

// Server pushes one snapshot per inbound TCP connection: accept, write one
// JSON line, close. No request body is read and no connection is kept open.
type Server struct {
	source Source
	port   int
}

func NewServer(source Source, port int) *Server {
	if port <= 0 {
		port = DefaultPort
	}

	return &Server{source: source, port: port}
}

// Run listens on the configured port and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return errors.New().Wrap(ErrListenFailed, err)
	}

	logger.Info().Msgf("Report server listening on port %d", s.port)

	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled. Connection errors
// stay isolated to their connection; they never reach the control thread.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			logger.Warn().Err(err).Msg("Accept failed")
			continue
		}

		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(connWriteTimeout))

	if err := Write(conn, s.source.Snapshot()); err != nil {
		logger.Debug().Err(err).Str("remote", conn.RemoteAddr().String()).
			Msg("Report write failed")
	}
}
