package crawler

import (
	"sync"
	"testing"
	"time"
)

func TestFrontierFIFOAndDedupe(t *testing.T) {
	f := NewFrontier()
	if !f.Push("a") || !f.Push("b") {
		t.Fatal("first pushes should succeed")
	}
	if f.Push("a") {
		t.Error("duplicate push accepted")
	}
	for _, want := range []string{"a", "b"} {
		got, ok := f.Pop()
		if !ok || got.url != want {
			t.Fatalf("Pop = %q/%v, want %q", got.url, ok, want)
		}
	}
	f.Done()
	f.Done()
	if _, ok := f.Pop(); ok {
		t.Error("Pop on a drained frontier should report done")
	}
}

func TestFrontierRetryGoesToTail(t *testing.T) {
	f := NewFrontier()
	f.Push("a")
	f.Push("b")
	first, _ := f.Pop()
	f.Retry(first)
	f.Done()

	next, _ := f.Pop()
	if next.url != "b" {
		t.Fatalf("Pop = %q, want b", next.url)
	}
	retried, _ := f.Pop()
	if retried.url != "a" || retried.attempt != 1 {
		t.Errorf("retried = %+v, want a at attempt 1", retried)
	}
}

func TestFrontierWaitsForInFlight(t *testing.T) {
	f := NewFrontier()
	f.Push("seed")
	seed, _ := f.Pop()

	var wg sync.WaitGroup
	wg.Add(1)
	var got task
	var ok bool
	go func() {
		defer wg.Done()
		got, ok = f.Pop()
	}()

	time.Sleep(20 * time.Millisecond)
	f.Push("child")
	f.Done()
	wg.Wait()
	if !ok || got.url != "child" || seed.url != "seed" {
		t.Errorf("waiter got %q/%v, want child", got.url, ok)
	}
}

func TestFrontierClose(t *testing.T) {
	f := NewFrontier()
	f.Push("a")
	f.Pop()

	done := make(chan bool)
	go func() {
		_, ok := f.Pop()
		done <- ok
	}()
	time.Sleep(10 * time.Millisecond)
	f.Close()
	select {
	case ok := <-done:
		if ok {
			t.Error("Pop after Close should fail")
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not wake waiter")
	}
	if f.Push("b") {
		t.Error("Push after Close accepted")
	}
}
