// Package exectest provides fixtures for tests that need executors of every
// backend: emulated accelerator devices with isolated registries, and a
// harness running one goroutine per rank of an in-process distributed group.
package exectest

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/glera/glera/devreg"
	"github.com/glera/glera/driver/emu"
	"github.com/glera/glera/exec/cuda"
	"github.com/glera/glera/exec/dist"
	"github.com/glera/glera/exec/host"
	"github.com/glera/glera/exec/ref"
	"github.com/glera/glera/exec/rocm"
)

// NewHost creates a host executor and closes it when the test ends.
func NewHost(t *testing.T, opts ...host.Option) *host.Executor {
	t.Helper()
	e, err := host.New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

// NewReference creates a reference executor and closes it when the test ends.
func NewReference(t *testing.T, opts ...ref.Option) *ref.Executor {
	t.Helper()
	e, err := ref.New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

// NewCUDA creates a CUDA executor on device 0 of a fresh emulated driver,
// with its own host master and an isolated device registry. Everything is
// torn down when the test ends.
func NewCUDA(t *testing.T, opts ...cuda.Option) *cuda.Executor {
	t.Helper()
	master := NewHost(t)
	all := append([]cuda.Option{
		cuda.WithDriver(emu.NewWithName(cuda.Vendor, 1)),
		cuda.WithRegistry(devreg.NewRegistry()),
	}, opts...)
	e, err := cuda.New(0, master, all...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

// NewROCm is NewCUDA for the ROCm backend.
func NewROCm(t *testing.T, opts ...rocm.Option) *rocm.Executor {
	t.Helper()
	master := NewHost(t)
	all := append([]rocm.Option{
		rocm.WithDriver(emu.NewWithName(rocm.Vendor, 1)),
		rocm.WithRegistry(devreg.NewRegistry()),
	}, opts...)
	e, err := rocm.New(0, master, all...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

// RunRanks spawns n goroutines, each acting as one rank of an in-process
// group with its own distributed executor, and fails the test if any rank
// returns an error. It blocks until every rank finished, so collectives
// inside fn behave like they would across real processes.
func RunRanks(t *testing.T, n int, fn func(e *dist.Executor) error) {
	t.Helper()
	comms := dist.NewLocalGroup(n)
	var g errgroup.Group
	for rank := 0; rank < n; rank++ {
		comm := comms[rank]
		g.Go(func() error {
			e, err := dist.New(dist.Config{Comm: comm})
			if err != nil {
				return err
			}
			defer e.Close()
			return fn(e)
		})
	}
	require.NoError(t, g.Wait())
}

// RunComms is RunRanks at the transport level: fn gets the raw endpoint
// instead of a distributed executor.
func RunComms(t *testing.T, n int, fn func(c dist.Comm) error) {
	t.Helper()
	comms := dist.NewLocalGroup(n)
	var g errgroup.Group
	for rank := 0; rank < n; rank++ {
		comm := comms[rank]
		g.Go(func() error { return fn(comm) })
	}
	require.NoError(t, g.Wait())
}
