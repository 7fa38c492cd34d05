package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeTransport struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeTransport) SendText(chatId int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func testDirectory() []PeerConfig {
	return []PeerConfig{
		{Name: PeerService, Username: "service_peer", ChatId: 111},
		{Name: PeerReplacer, Username: "replacer_peer", ChatId: 222},
	}
}

func TestResolve_UnknownPeer(t *testing.T) {
	s := NewService(&fakeTransport{}, testDirectory())

	_, err := s.Resolve("nope")
	if !errors.Is(err, ErrUnknownPeer) {
		t.Errorf("Expected ErrUnknownPeer, got %v", err)
	}
}

func TestIsPeerChat(t *testing.T) {
	s := NewService(&fakeTransport{}, testDirectory())

	if !s.IsPeerChat(111) {
		t.Error("Expected 111 to be a peer chat")
	}
	if s.IsPeerChat(999) {
		t.Error("Expected 999 not to be a peer chat")
	}
}

func TestSendAndAwait_ReplyResolvesWaiter(t *testing.T) {
	transport := &fakeTransport{}
	s := NewService(transport, testDirectory())

	done := make(chan struct{})
	var reply string
	var err error
	go func() {
		defer close(done)
		reply, err = s.SendAndAwait(context.Background(), PeerService, "/code a@x.com", time.Second)
	}()

	// Wait for the outbound send before dispatching the reply.
	deadline := time.Now().Add(time.Second)
	for transport.sentCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Send never happened")
		}
		time.Sleep(time.Millisecond)
	}

	s.Dispatch(111, "Código: 1234")
	<-done

	if err != nil {
		t.Fatalf("SendAndAwait failed: %v", err)
	}
	if reply != "Código: 1234" {
		t.Errorf("Expected reply to reach the waiter, got %q", reply)
	}
}

func TestSendAndAwait_TimeoutYieldsErrNoReply(t *testing.T) {
	s := NewService(&fakeTransport{}, testDirectory())

	_, err := s.SendAndAwait(context.Background(), PeerService, "ping", 10*time.Millisecond)
	if !errors.Is(err, ErrNoReply) {
		t.Errorf("Expected ErrNoReply, got %v", err)
	}
}

func TestSendAndAwait_ContextCancellation(t *testing.T) {
	s := NewService(&fakeTransport{}, testDirectory())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.SendAndAwait(ctx, PeerService, "ping", time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestDispatch_FIFOOrdering(t *testing.T) {
	transport := &fakeTransport{}
	s := NewService(transport, testDirectory())

	replies := make([]string, 2)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		replies[0], _ = s.SendAndAwait(context.Background(), PeerService, "first", time.Second)
	}()
	deadline := time.Now().Add(time.Second)
	for transport.sentCount() < 1 {
		if time.Now().After(deadline) {
			t.Fatal("First send never happened")
		}
		time.Sleep(time.Millisecond)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		replies[1], _ = s.SendAndAwait(context.Background(), PeerService, "second", time.Second)
	}()
	for transport.sentCount() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("Second send never happened")
		}
		time.Sleep(time.Millisecond)
	}

	s.Dispatch(111, "reply-1")
	s.Dispatch(111, "reply-2")
	wg.Wait()

	if replies[0] != "reply-1" || replies[1] != "reply-2" {
		t.Errorf("Expected FIFO correlation, got %v", replies)
	}
}

func TestDispatch_LateReplyGoesToHandlers(t *testing.T) {
	s := NewService(&fakeTransport{}, testDirectory())

	var mu sync.Mutex
	var unsolicited []string
	if err := s.RegisterHandler(PeerService, func(peer PeerHandle, text string) {
		mu.Lock()
		defer mu.Unlock()
		unsolicited = append(unsolicited, text)
	}); err != nil {
		t.Fatalf("RegisterHandler failed: %v", err)
	}

	// The wait times out; the waiter is dequeued on return.
	_, err := s.SendAndAwait(context.Background(), PeerService, "ping", 10*time.Millisecond)
	if !errors.Is(err, ErrNoReply) {
		t.Fatalf("Expected ErrNoReply, got %v", err)
	}

	// The late reply must not resurrect the abandoned wait.
	s.Dispatch(111, "too late")

	mu.Lock()
	defer mu.Unlock()
	if len(unsolicited) != 1 || unsolicited[0] != "too late" {
		t.Errorf("Expected late reply on the handler path, got %v", unsolicited)
	}
}

func TestDispatch_UnknownChatIsDropped(t *testing.T) {
	s := NewService(&fakeTransport{}, testDirectory())

	// Must not panic or deliver anywhere.
	s.Dispatch(999, "stray")
}

func TestSend_FireAndForget(t *testing.T) {
	transport := &fakeTransport{}
	s := NewService(transport, testDirectory())

	if err := s.Send(PeerReplacer, "/reemplazar a@x.com"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if transport.sentCount() != 1 {
		t.Errorf("Expected 1 outbound message, got %d", transport.sentCount())
	}

	if err := s.Send("nope", "x"); !errors.Is(err, ErrUnknownPeer) {
		t.Errorf("Expected ErrUnknownPeer, got %v", err)
	}
}
