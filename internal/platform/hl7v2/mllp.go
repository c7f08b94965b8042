package hl7v2

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// MLLP framing bytes.
const (
	startBlock     = 0x0B // VT
	endBlock       = 0x1C // FS
	carriageReturn = 0x0D

	// maxFrameSize bounds a single message; ADT messages are tiny, so a
	// megabyte means a misbehaving sender.
	maxFrameSize = 1 << 20

	readTimeout   = 30 * time.Second
	handleTimeout = 30 * time.Second
)

// Handler processes one received message and returns the raw acknowledgment
// to write back, or nil for no reply.
type Handler func(ctx context.Context, msg *Message) []byte

// Server receives HL7 v2 messages over MLLP/TCP, the transport registration
// feeds actually use. Each connection is served by its own goroutine and
// may carry any number of framed messages.
type Server struct {
	addr    string
	handler Handler
	logger  zerolog.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewServer(addr string, handler Handler, logger zerolog.Logger) *Server {
	return &Server{
		addr:    addr,
		handler: handler,
		logger:  logger.With().Str("component", "mllp").Logger(),
		conns:   make(map[net.Conn]struct{}),
		done:    make(chan struct{}),
	}
}

// Start begins accepting connections; it does not block.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("hl7v2: listen on %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop(ln)
	}()
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("mllp listener started")
	return nil
}

// Addr returns the bound address; with ":0" it is known only after Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Stop closes the listener and every open connection, then waits for the
// connection goroutines to drain. Safe to call more than once.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		if s.listener != nil {
			s.listener.Close()
		}
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()
		s.wg.Wait()
		s.logger.Info().Msg("mllp listener stopped")
	})
	return nil
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.done:
			default:
				if !errors.Is(err, net.ErrClosed) {
					s.logger.Error().Err(err).Msg("accept failed")
				}
			}
			return
		}
		s.track(conn, true)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.track(conn, false)
			defer conn.Close()
			s.serveConn(conn)
		}()
	}
}

func (s *Server) track(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	peer := conn.RemoteAddr().String()
	r := bufio.NewReader(conn)
	for {
		select {
		case <-s.done:
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		payload, err := readFrame(r)
		if err != nil {
			if err != io.EOF {
				s.logger.Debug().Err(err).Str("peer", peer).Msg("connection closed")
			}
			return
		}

		reply := s.dispatch(payload, peer)
		if reply == nil {
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(readTimeout))
		if _, err := conn.Write(Frame(reply)); err != nil {
			s.logger.Warn().Err(err).Str("peer", peer).Msg("reply write failed")
			return
		}
	}
}

func (s *Server) dispatch(payload []byte, peer string) []byte {
	msg, err := Parse(payload)
	if err != nil {
		s.logger.Warn().Err(err).Str("peer", peer).Msg("unparseable message")
		return RejectAck(err.Error())
	}

	s.logger.Info().
		Str("peer", peer).
		Str("type", msg.Type).
		Str("event", msg.TriggerEvent).
		Str("control_id", msg.ControlID).
		Msg("message received")

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()
	return s.handler(ctx, msg)
}

// readFrame reads one MLLP frame: <VT> payload <FS> <CR>. Bytes before the
// start block are discarded.
func readFrame(r *bufio.Reader) ([]byte, error) {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b == startBlock {
			break
		}
	}

	var payload []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b == endBlock {
			break
		}
		payload = append(payload, b)
		if len(payload) > maxFrameSize {
			return nil, fmt.Errorf("hl7v2: frame exceeds %d bytes", maxFrameSize)
		}
	}

	// Trailing CR; tolerate senders that omit it.
	if b, err := r.ReadByte(); err == nil && b != carriageReturn {
		r.UnreadByte()
	}
	return payload, nil
}

// Frame wraps a payload in MLLP framing for the wire.
func Frame(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+3)
	out = append(out, startBlock)
	out = append(out, payload...)
	out = append(out, endBlock, carriageReturn)
	return out
}
