package textdoc

import (
	"strconv"
	"sync"
	"testing"
)

func TestTransactCommitsWholeText(t *testing.T) {
	doc := NewMemory("one")
	doc.Transact(func(tx *Tx) {
		tx.SetText(tx.Text() + " two")
	})
	if doc.Text() != "one two" {
		t.Errorf("text = %q", doc.Text())
	}
}

func TestObserverFiresOnChangeOnly(t *testing.T) {
	doc := NewMemory("x")
	calls := 0
	doc.Observe(func() { calls++ })

	doc.Transact(func(tx *Tx) { tx.SetText("y") })
	if calls != 1 {
		t.Fatalf("calls = %d", calls)
	}

	doc.Transact(func(tx *Tx) { tx.SetText("y") })
	if calls != 1 {
		t.Errorf("no-op transaction notified, calls = %d", calls)
	}
}

func TestObserveCancel(t *testing.T) {
	doc := NewMemory("x")
	calls := 0
	cancel := doc.Observe(func() { calls++ })
	cancel()

	doc.Transact(func(tx *Tx) { tx.SetText("y") })
	if calls != 0 {
		t.Errorf("cancelled observer fired %d times", calls)
	}
}

func TestSpliceClampsOffsets(t *testing.T) {
	cases := []struct {
		start, end int
		repl       string
		want       string
	}{
		{0, 3, "xyz", "xyzdef"},
		{-5, 3, "xyz", "xyzdef"},
		{3, 99, "xyz", "abcxyz"},
		{4, 2, "x", "abxcdef"},
	}
	for _, c := range cases {
		tx := &Tx{text: "abcdef"}
		tx.Splice(c.start, c.end, c.repl)
		if tx.Text() != c.want {
			t.Errorf("splice(%d, %d, %q) = %q, want %q", c.start, c.end, c.repl, tx.Text(), c.want)
		}
	}
}

func TestConcurrentTransactionsSerialize(t *testing.T) {
	doc := NewMemory("")
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			doc.Transact(func(tx *Tx) {
				tx.SetText(tx.Text() + strconv.Itoa(i%10))
			})
		}(i)
	}
	wg.Wait()
	if len(doc.Text()) != 20 {
		t.Errorf("len = %d, want 20", len(doc.Text()))
	}
}
