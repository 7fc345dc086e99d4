package keylock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocker_SerializesSameKey(t *testing.T) {
	t.Parallel()

	l := New()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock("PRODUCT_9")
			defer unlock()
			v := counter
			v++
			counter = v
		}()
	}
	wg.Wait()

	require.Equal(t, 50, counter)
	require.Equal(t, 0, l.Len())
}

func TestLocker_IndependentKeys(t *testing.T) {
	t.Parallel()

	l := New()
	unlockA := l.Lock("a")
	done := make(chan struct{})
	go func() {
		unlock := l.Lock("b")
		unlock()
		close(done)
	}()
	<-done
	unlockA()
	require.Equal(t, 0, l.Len())
}

func TestLocker_UnlockTwiceIsSafe(t *testing.T) {
	t.Parallel()

	l := New()
	unlock := l.Lock("k")
	unlock()
	unlock()
	require.Equal(t, 0, l.Len())
}
