package completer

import (
	"context"
	"testing"
	"time"

	"github.com/kuuji/pulsewire/internal/enginerr"
)

func TestSetThenWait(t *testing.T) {
	c := New[int]()
	c.Set(42)

	v, err := c.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	if v != 42 {
		t.Fatalf("Wait returned %d, want 42", v)
	}
}

func TestWaitThenSet(t *testing.T) {
	c := New[string]()
	done := make(chan struct{})
	go func() {
		defer close(done)
		v, err := c.Wait(context.Background())
		if err != nil || v != "hello" {
			t.Errorf("Wait returned (%q, %v), want (\"hello\", nil)", v, err)
		}
	}()

	time.Sleep(10 * time.Millisecond)
	c.Set("hello")
	<-done
}

func TestSetOnlyFirstWins(t *testing.T) {
	c := New[int]()
	c.Set(1)
	c.Set(2)

	v, _ := c.Wait(context.Background())
	if v != 1 {
		t.Fatalf("Wait returned %d, want 1", v)
	}
}

func TestWaitTimeout(t *testing.T) {
	c := New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := c.Wait(ctx)
	if enginerr.Of(err) != enginerr.KindTimeout {
		t.Fatalf("Wait error kind = %v, want KindTimeout", enginerr.Of(err))
	}
}

func TestWaitCancelled(t *testing.T) {
	c := New[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Wait(ctx)
	if enginerr.Of(err) != enginerr.KindCancelled {
		t.Fatalf("Wait error kind = %v, want KindCancelled", enginerr.Of(err))
	}
}

func TestFail(t *testing.T) {
	c := New[int]()
	wantErr := enginerr.New(enginerr.KindWebRTC, "test", context.DeadlineExceeded)
	c.Fail(wantErr)

	_, err := c.Wait(context.Background())
	if err != wantErr {
		t.Fatalf("Wait returned %v, want %v", err, wantErr)
	}
}

func TestReset(t *testing.T) {
	c := New[int]()
	c.Set(1)
	if !c.Resolved() {
		t.Fatal("expected Resolved after Set")
	}

	c.Reset()
	if c.Resolved() {
		t.Fatal("expected not Resolved after Reset")
	}

	c.Set(2)
	v, _ := c.Wait(context.Background())
	if v != 2 {
		t.Fatalf("Wait returned %d, want 2", v)
	}
}
