// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transmitter

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/luxfi/log"
)

var _ Sink = (*SocketSink)(nil)

// SocketSink broadcasts every sent message to TCP subscribers as
// length-prefixed frames. A subscriber that cannot be written to is dropped.
type SocketSink struct {
	logger   log.Logger
	listener net.Listener

	lock   sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
}

// NewSocketSink listens on address and starts accepting subscribers.
// Register the returned sink with the transmitter to start broadcasting.
func NewSocketSink(logger log.Logger, address string) (*SocketSink, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", address, err)
	}

	s := &SocketSink{
		logger:   logger,
		listener: listener,
		conns:    make(map[net.Conn]struct{}),
	}
	go s.acceptLoop()
	return s, nil
}

func (s *SocketSink) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.lock.Lock()
			closed := s.closed
			s.lock.Unlock()
			if !closed {
				s.logger.Error("event socket accept failed", log.Err(err))
			}
			return
		}

		s.lock.Lock()
		s.conns[conn] = struct{}{}
		s.lock.Unlock()
		s.logger.Debug("event subscriber connected",
			log.String("remote", conn.RemoteAddr().String()),
		)
	}
}

// Accept implements Sink by writing the raw message, framed, to every
// subscriber.
func (s *SocketSink) Accept(_ context.Context, event *SentMessage) error {
	frame := make([]byte, 4+len(event.Raw))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(event.Raw)))
	copy(frame[4:], event.Raw)

	s.lock.Lock()
	defer s.lock.Unlock()
	for conn := range s.conns {
		if _, err := conn.Write(frame); err != nil {
			s.logger.Debug("dropping event subscriber",
				log.String("remote", conn.RemoteAddr().String()),
				log.Err(err),
			)
			_ = conn.Close()
			delete(s.conns, conn)
		}
	}
	return nil
}

// Addr returns the address subscribers dial.
func (s *SocketSink) Addr() string {
	return s.listener.Addr().String()
}

// SubscriberCount returns the number of connected subscribers.
func (s *SocketSink) SubscriberCount() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.conns)
}

// Close stops the listener and disconnects all subscribers.
func (s *SocketSink) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	err := s.listener.Close()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.conns = make(map[net.Conn]struct{})
	return err
}

// ReadFrame reads one length-prefixed frame as written by the socket sink.
// Subscribers call it in a loop over the dialed connection.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(header[:])
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
