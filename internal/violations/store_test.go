package violations

import (
	"testing"
	"time"
)

func TestStoreRingBufferOverwritesOldest(t *testing.T) {
	s := NewStore(3)
	for i := 0; i < 5; i++ {
		s.Add(NewEvent("line", "cmd", time.Now()))
	}
	all := s.All()
	if len(all) != 3 {
		t.Fatalf("expected capacity-bounded length 3, got %d", len(all))
	}
}

func TestStoreAllPreservesOrderBeforeWraparound(t *testing.T) {
	s := NewStore(5)
	s.Add(NewEvent("first", "cmd", time.Now()))
	s.Add(NewEvent("second", "cmd", time.Now()))
	all := s.All()
	if len(all) != 2 || all[0].Line != "first" || all[1].Line != "second" {
		t.Errorf("unexpected order: %+v", all)
	}
}

func TestStoreForCommandFiltersByEncodedCommand(t *testing.T) {
	s := NewStore(10)
	s.Add(NewEvent("a", "curl https://evil.com", time.Now()))
	s.Add(NewEvent("b", "ls -la", time.Now()))

	matches := s.ForCommand("ls -la")
	if len(matches) != 1 || matches[0].Line != "b" {
		t.Errorf("ForCommand should isolate events for the matching command, got %+v", matches)
	}
}

func TestStoreSubscribeReceivesFutureEvents(t *testing.T) {
	s := NewStore(10)
	ch := s.Subscribe()
	s.Add(NewEvent("subscribed", "cmd", time.Now()))

	select {
	case e := <-ch:
		if e.Line != "subscribed" {
			t.Errorf("got %q, want %q", e.Line, "subscribed")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive event")
	}
}

func TestNewEventTruncatesCommandTo100Bytes(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'a'
	}
	e := NewEvent("line", string(long), time.Now())
	// base64 of exactly 100 bytes: ceil(100/3)*4 = 136 chars, including "==" padding
	if len(e.EncodedCommand) > 140 {
		t.Errorf("expected encoded command to reflect a 100-byte truncation, got length %d", len(e.EncodedCommand))
	}
}
