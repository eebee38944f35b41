package bridge_test

import (
	"sync"
	"testing"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/docscan/internal/bridge"
)

type region struct {
	Left, Top, Width, Height float64
}

func TestCellLastWriteWins(t *testing.T) {
	var c bridge.Cell[region]

	if _, ok := c.Load(); ok {
		t.Fatal("empty cell reported a value")
	}

	c.Store(region{1, 2, 3, 4})
	c.Store(region{10, 20, 80, 29})

	got, ok := c.Load()
	if !ok || got != (region{10, 20, 80, 29}) {
		t.Errorf("Load() = %+v, %v", got, ok)
	}
	if c.Version() != 2 {
		t.Errorf("Version() = %d, want 2", c.Version())
	}
}

// TestCellNoTearing writes two self-consistent values concurrently with readers.
// A torn read would mix fields of both values.
func TestCellNoTearing(t *testing.T) {
	var c bridge.Cell[region]
	a := region{15, 10, 70, 79}
	b := region{10, 20, 80, 29}
	c.Store(a)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-done:
				return
			default:
			}
			if i%2 == 0 {
				c.Store(a)
			} else {
				c.Store(b)
			}
		}
	}()

	for i := 0; i < 10000; i++ {
		got, _ := c.Load()
		if got != a && got != b {
			close(done)
			wg.Wait()
			t.Fatalf("torn read: %+v", got)
		}
	}
	close(done)
	wg.Wait()
}

func TestMailboxOverwrite(t *testing.T) {
	m := bridge.NewMailbox[int]()

	for i := 1; i <= 5; i++ {
		m.Put(i)
	}

	v, ok := m.TryReceive()
	if !ok || v != 5 {
		t.Fatalf("TryReceive() = %d, %v; want 5, true", v, ok)
	}
	if _, ok := m.TryReceive(); ok {
		t.Error("slot not emptied after receive")
	}

	puts, drops := m.Stats()
	if puts != 5 || drops != 4 {
		t.Errorf("Stats() = %d puts, %d drops; want 5, 4", puts, drops)
	}
}

func TestMailboxBlockingReceive(t *testing.T) {
	m := bridge.NewMailbox[string]()

	got := make(chan string, 1)
	go func() {
		v, _ := m.Receive()
		got <- v
	}()

	time.Sleep(10 * time.Millisecond)
	m.Put("latest")

	select {
	case v := <-got:
		if v != "latest" {
			t.Errorf("Receive() = %q", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Receive() did not wake on Put")
	}
}

func TestMailboxCloseWakesReceiver(t *testing.T) {
	m := bridge.NewMailbox[int]()

	done := make(chan bool, 1)
	go func() {
		_, ok := m.Receive()
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	m.Close()

	select {
	case ok := <-done:
		if ok {
			t.Error("Receive() returned ok after Close")
		}
	case <-time.After(time.Second):
		t.Fatal("Close() did not wake receiver")
	}

	m.Put(1) // no-op, must not panic
	m.Close()
}

// TestOutboxNeverDrops validates every pushed item is received in order,
// even when the consumer is slower than the producer.
func TestOutboxNeverDrops(t *testing.T) {
	o := bridge.NewOutbox[int](4)

	const n = 50
	received := make([]int, 0, n)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for len(received) < n {
			v, ok := o.Receive()
			if !ok {
				return
			}
			received = append(received, v)
			time.Sleep(100 * time.Microsecond)
		}
	}()

	start := time.Now()
	for i := 0; i < n; i++ {
		o.Push(i)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("Push() blocked: %v for %d items", elapsed, n)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not drain outbox")
	}

	for i, v := range received {
		if v != i {
			t.Fatalf("received[%d] = %d (order broken)", i, v)
		}
	}
	pushed, _ := o.Stats()
	if pushed != n {
		t.Errorf("pushed = %d, want %d", pushed, n)
	}
}

func TestOutboxFullAndOverflow(t *testing.T) {
	o := bridge.NewOutbox[string](2)

	o.Push("a")
	if o.Full() {
		t.Fatal("Full() with 1/2")
	}
	o.Push("b")
	if !o.Full() {
		t.Fatal("Full() false with 2/2")
	}

	o.Push("c")
	if _, overflows := o.Stats(); overflows != 1 {
		t.Errorf("overflows = %d, want 1", overflows)
	}
	if o.Len() != 3 {
		t.Errorf("Len() = %d, want 3 (never drop)", o.Len())
	}
}

func TestOutboxDrainsAfterClose(t *testing.T) {
	o := bridge.NewOutbox[int](4)
	o.Push(1)
	o.Push(2)
	o.Close()

	if o.Push(3) {
		t.Error("Push() accepted after Close")
	}

	for _, want := range []int{1, 2} {
		v, ok := o.Receive()
		if !ok || v != want {
			t.Fatalf("Receive() = %d, %v; want %d", v, ok, want)
		}
	}
	if _, ok := o.Receive(); ok {
		t.Error("Receive() ok on closed empty outbox")
	}
}
