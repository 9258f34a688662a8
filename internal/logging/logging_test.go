package logging

import (
	"sync"
	"testing"
)

func TestLoggerLevelsAndRecent(t *testing.T) {
	SetLevel("debug")
	l := New("test").(*stdLogger)
	l.Info("hello", "k", 1)
	l.Debug("dbg", "a", 2)
	l.Error("oops")
	items := Recent(5)
	if len(items) == 0 {
		t.Fatalf("expected recent logs")
	}
	if items[0].Msg != "oops" {
		t.Fatalf("expected newest-first ordering, got %q", items[0].Msg)
	}
}

func TestLevelGate(t *testing.T) {
	SetLevel("error")
	defer SetLevel("info")
	if shouldLog("debug") || shouldLog("info") {
		t.Fatalf("debug/info should be suppressed at error level")
	}
	if !shouldLog("error") || !shouldLog("fatal") {
		t.Fatalf("error/fatal should pass at error level")
	}
	SetLevel("bogus")
	if GetLevel() != "info" {
		t.Fatalf("unknown level should fall back to info, got %s", GetLevel())
	}
}

func TestSubscribe(t *testing.T) {
	SetLevel("debug")
	var wg sync.WaitGroup
	ch, cancel := Subscribe()
	defer cancel()
	got := make(chan *Entry, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if e := <-ch; e != nil {
			got <- e
		}
	}()
	l := New("test").(*stdLogger)
	l.Info("stream-test")
	wg.Wait()
	select {
	case e := <-got:
		if e.Msg != "stream-test" {
			t.Fatalf("unexpected entry: %#v", e)
		}
	default:
		t.Fatalf("no log received via subscription")
	}
}
