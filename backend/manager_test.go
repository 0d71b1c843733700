package backend

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerAdmitsWithinCapacity(t *testing.T) {
	m := NewManager(4, 8192)
	release, err := m.Acquire(context.Background(), 2, 4096)
	require.NoError(t, err)
	cpu, mem := m.InUse()
	assert.Equal(t, 2.0, cpu)
	assert.Equal(t, int64(4096), mem)
	release()
	cpu, mem = m.InUse()
	assert.Equal(t, 0.0, cpu)
	assert.Equal(t, int64(0), mem)
}

func TestManagerRejectsOverCapAtAdmission(t *testing.T) {
	m := NewManager(4, 8192)
	_, err := m.Acquire(context.Background(), 8, 4096)
	require.Error(t, err)
}

func TestManagerBlocksUntilCapacityFrees(t *testing.T) {
	m := NewManager(4, 8192)
	release1, err := m.Acquire(context.Background(), 4, 8192)
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		release2, err := m.Acquire(context.Background(), 1, 1024)
		require.NoError(t, err)
		close(acquired)
		release2()
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire should not have been admitted yet")
	case <-time.After(50 * time.Millisecond):
	}

	release1()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire never admitted after release")
	}
}

func TestUnlimitedManagerNeverBlocks(t *testing.T) {
	m := NewUnlimitedManager()
	release, err := m.Acquire(context.Background(), 1000, 1<<30)
	require.NoError(t, err)
	release()
}

func TestManagerIsStrictlyFIFO(t *testing.T) {
	m := NewManager(1, 1024)
	release1, err := m.Acquire(context.Background(), 1, 1024)
	require.NoError(t, err)

	var order []int
	var mu = make(chan struct{}, 1)
	mu <- struct{}{}
	done := make(chan struct{})

	for i := 0; i < 2; i++ {
		i := i
		go func() {
			release, err := m.Acquire(context.Background(), 1, 1024)
			require.NoError(t, err)
			<-mu
			order = append(order, i)
			mu <- struct{}{}
			release()
			done <- struct{}{}
		}()
		time.Sleep(10 * time.Millisecond) // ensure arrival order
	}

	release1()
	<-done
	<-done
	assert.Equal(t, []int{0, 1}, order)
}
