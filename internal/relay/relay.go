package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrUnknownPeer means the logical peer name is not in the directory.
	ErrUnknownPeer = errors.New("unknown peer")
	// ErrNoReply means the peer stayed silent for the whole wait window.
	// The send itself may still have gone through.
	ErrNoReply = errors.New("peer did not reply in time")
)

// Transport delivers outbound text to a chat. Implemented by the Telegram
// client; faked in tests.
type Transport interface {
	SendText(chatId int64, text string) error
}

// PeerHandle is a resolved peer: logical name plus the chat the peer talks
// on.
type PeerHandle struct {
	Name     string
	Username string
	ChatId   int64
}

// Handler receives unsolicited inbound messages from a peer, i.e. messages
// arriving while no waiter is queued for that peer.
type Handler func(peer PeerHandle, text string)

type waiter struct {
	ch chan string
}

// Service correlates one outbound peer message with the next inbound
// message from the same peer. Waiters are queued strictly FIFO per peer:
// the correlation is "first queued waiter gets the next reply", which is a
// documented ordering assumption, not a protocol request id.
type Service struct {
	transport Transport

	mu       sync.Mutex
	handles  map[string]PeerHandle
	byChat   map[int64]PeerHandle
	waiters  map[int64][]*waiter
	handlers map[int64][]Handler
}

func NewService(transport Transport, directory []PeerConfig) *Service {
	s := &Service{
		transport: transport,
		handles:   make(map[string]PeerHandle, len(directory)),
		byChat:    make(map[int64]PeerHandle, len(directory)),
		waiters:   make(map[int64][]*waiter),
		handlers:  make(map[int64][]Handler),
	}
	for _, p := range directory {
		handle := PeerHandle{Name: p.Name, Username: p.Username, ChatId: p.ChatId}
		s.handles[p.Name] = handle
		s.byChat[p.ChatId] = handle
	}
	return s
}

// Resolve maps a logical peer name to its handle. Handles live for the
// process lifetime; a stale chat id is the transport's problem.
func (s *Service) Resolve(name string) (PeerHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	handle, ok := s.handles[name]
	if !ok {
		return PeerHandle{}, fmt.Errorf("%w: %s", ErrUnknownPeer, name)
	}
	return handle, nil
}

// IsPeerChat reports whether a chat id belongs to a directory peer, so the
// update loop can route peer traffic away from the command surface.
func (s *Service) IsPeerChat(chatId int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byChat[chatId]
	return ok
}

// Send is the fire-and-forget leg: resolve and deliver, no reply expected
// here. Used by the replacement workflow, whose outcome arrives later as an
// unsolicited message.
func (s *Service) Send(peerName, text string) error {
	handle, err := s.Resolve(peerName)
	if err != nil {
		return err
	}
	if err := s.transport.SendText(handle.ChatId, text); err != nil {
		return fmt.Errorf("unable to send to %s: %w", peerName, err)
	}
	return nil
}

// SendAndAwait sends text to the peer and blocks until the next inbound
// message from that peer, the timeout, or ctx cancellation. Timeout yields
// ErrNoReply; callers must not conclude the send failed.
func (s *Service) SendAndAwait(ctx context.Context, peerName, text string, timeout time.Duration) (string, error) {
	handle, err := s.Resolve(peerName)
	if err != nil {
		return "", err
	}

	w := &waiter{ch: make(chan string, 1)}
	s.enqueue(handle.ChatId, w)
	defer s.dequeue(handle.ChatId, w)

	if err := s.transport.SendText(handle.ChatId, text); err != nil {
		return "", fmt.Errorf("unable to send to %s: %w", peerName, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case reply := <-w.ch:
		return reply, nil
	case <-timer.C:
		zap.L().Warn("Peer reply timed out",
			zap.String("peer", peerName),
			zap.Duration("timeout", timeout))
		return "", ErrNoReply
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// RegisterHandler subscribes to unsolicited inbound messages from a peer.
func (s *Service) RegisterHandler(peerName string, handler Handler) error {
	handle, err := s.Resolve(peerName)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[handle.ChatId] = append(s.handlers[handle.ChatId], handler)
	return nil
}

// Dispatch routes one inbound peer message: the oldest queued waiter wins;
// with no waiter queued the message goes to the peer's handlers. A late
// reply to an abandoned wait therefore lands on the handlers (or is
// dropped), never on an unrelated waiter that has already been dequeued.
func (s *Service) Dispatch(chatId int64, text string) {
	s.mu.Lock()
	handle, known := s.byChat[chatId]
	if !known {
		s.mu.Unlock()
		return
	}
	if queue := s.waiters[chatId]; len(queue) > 0 {
		w := queue[0]
		s.waiters[chatId] = queue[1:]
		s.mu.Unlock()
		w.ch <- text
		return
	}
	handlers := make([]Handler, len(s.handlers[chatId]))
	copy(handlers, s.handlers[chatId])
	s.mu.Unlock()

	if len(handlers) == 0 {
		zap.L().Debug("Dropping peer message with no waiter or handler",
			zap.String("peer", handle.Name))
		return
	}
	for _, h := range handlers {
		h(handle, text)
	}
}

func (s *Service) enqueue(chatId int64, w *waiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waiters[chatId] = append(s.waiters[chatId], w)
}

func (s *Service) dequeue(chatId int64, w *waiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue := s.waiters[chatId]
	for i, queued := range queue {
		if queued == w {
			s.waiters[chatId] = append(queue[:i], queue[i+1:]...)
			return
		}
	}
}
