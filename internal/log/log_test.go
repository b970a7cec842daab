package log

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestLevelsAndErrorKey(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(LevelWarn)
	defer SetLevel(LevelInfo)

	Info("hidden", "k", 1)
	Warn("shown", "k", 2)
	Error("failed", errors.New("boom"), "id", 7)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record emitted at WARN level:\n%s", out)
	}
	if !strings.Contains(out, "msg=shown") || !strings.Contains(out, "k=2") {
		t.Errorf("warn record missing:\n%s", out)
	}
	if !strings.Contains(out, "err=boom") || !strings.Contains(out, "id=7") {
		t.Errorf("error record missing err/id:\n%s", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		" WARN ":  LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"":        LevelInfo,
		"verbose": LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestSetOutputWhileLogging(t *testing.T) {
	defer SetOutput(io.Discard)
	first, second := &lockedBuffer{}, &lockedBuffer{}
	SetOutput(first)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				Info("tick", "n", i)
			}
		}()
	}
	for i := 0; i < 50; i++ {
		if i%2 == 0 {
			SetOutput(second)
		} else {
			SetOutput(first)
		}
	}
	wg.Wait()

	SetOutput(second)
	Info("last")
	if !strings.Contains(second.String(), "msg=last") {
		t.Errorf("record after SetOutput missing:\n%s", second.String())
	}
	if n := strings.Count(first.String()+second.String(), "msg=tick"); n != 800 {
		t.Errorf("got %d tick records, want 800", n)
	}
}
