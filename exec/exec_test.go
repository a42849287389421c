package exec

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	glerrors "github.com/glera/glera/errors"
	"github.com/glera/glera/memspace"
)

// fakeExecutor is a minimal executor of a configurable kind, for exercising
// dispatch and the constructor registry without pulling in the backends.
type fakeExecutor struct {
	kind   Kind
	config string
}

var _ Executor = (*fakeExecutor)(nil)

func (f *fakeExecutor) Kind() Kind { return f.kind }

func (f *fakeExecutor) ID() string { return "fake" }

func (f *fakeExecutor) Run(op *Operation) error {
	fn, err := Resolve(f.kind, op)
	if err != nil {
		return err
	}
	return fn(f)
}

func (f *fakeExecutor) Synchronize() error { return nil }

func (f *fakeExecutor) MemSpace() *memspace.Space { return nil }

func (f *fakeExecutor) Master() Executor { return f }

func (f *fakeExecutor) SubExecutor() Executor { return f }

func (f *fakeExecutor) Close() error { return nil }

func init() {
	Register("fake", func(config string) (Executor, error) {
		return &fakeExecutor{kind: Host, config: config}, nil
	})
	Register("fake2", func(config string) (Executor, error) {
		return &fakeExecutor{kind: Reference, config: config}, nil
	})
}

func TestKindString(t *testing.T) {
	require.Equal(t, "host", Host.String())
	require.Equal(t, "reference", Reference.String())
	require.Equal(t, "cuda", CUDA.String())
	require.Equal(t, "rocm", ROCm.String())
	require.Equal(t, "distributed", Distributed.String())
	require.Equal(t, "invalid", Kind(99).String())
}

func TestDispatchSelectsKindSlot(t *testing.T) {
	var ran []Kind
	op := NewOperation("probe").
		OnHost(func(e Executor) error { ran = append(ran, Host); return nil }).
		OnReference(func(e Executor) error { ran = append(ran, Reference); return nil }).
		OnCUDA(func(e Executor) error { ran = append(ran, CUDA); return nil }).
		OnROCm(func(e Executor) error { ran = append(ran, ROCm); return nil }).
		OnDistributed(func(e Executor) error { ran = append(ran, Distributed); return nil })

	for _, k := range []Kind{Host, Reference, CUDA, ROCm, Distributed} {
		e := &fakeExecutor{kind: k}
		require.NoError(t, e.Run(op))
	}
	require.Equal(t, []Kind{Host, Reference, CUDA, ROCm, Distributed}, ran)
}

func TestReferenceFallsBackToHost(t *testing.T) {
	hostRan := false
	op := NewOperation("fallback").OnHost(func(e Executor) error {
		hostRan = true
		return nil
	})
	fn, err := Resolve(Reference, op)
	require.NoError(t, err)
	require.NoError(t, fn(nil))
	require.True(t, hostRan)
}

func TestResolveMissingImplementation(t *testing.T) {
	op := NewOperation("gpu-only").OnCUDA(func(e Executor) error { return nil })

	_, err := Resolve(Host, op)
	require.ErrorIs(t, err, glerrors.ErrUnsupportedOperation)
	require.ErrorContains(t, err, `"gpu-only"`)

	// The fallback only covers Reference; other kinds never borrow.
	_, err = Resolve(ROCm, op)
	require.ErrorIs(t, err, glerrors.ErrUnsupportedOperation)

	_, err = Resolve(Kind(42), op)
	require.ErrorIs(t, err, glerrors.ErrUnsupportedOperation)
}

func TestOperationName(t *testing.T) {
	require.Equal(t, "axpy", NewOperation("axpy").Name())
}

func TestNewWithConfig(t *testing.T) {
	e, err := NewWithConfig("")
	require.NoError(t, err)
	require.Equal(t, Host, e.Kind())
	require.Empty(t, e.(*fakeExecutor).config)

	e, err = NewWithConfig("fake2:dev=3")
	require.NoError(t, err)
	require.Equal(t, Reference, e.Kind())
	require.Equal(t, "dev=3", e.(*fakeExecutor).config)

	// A bare registered name works without the colon.
	e, err = NewWithConfig("fake2")
	require.NoError(t, err)
	require.Equal(t, Reference, e.Kind())
	require.Empty(t, e.(*fakeExecutor).config)

	require.Panics(t, func() { _, _ = NewWithConfig("nosuch:0") })
}

func TestNewHonorsEnvironment(t *testing.T) {
	t.Setenv(EnvExecutor, "fake2:from-env")
	e, err := New()
	require.NoError(t, err)
	require.Equal(t, "from-env", e.(*fakeExecutor).config)
}

func TestNewHonorsDefaultConfig(t *testing.T) {
	old, hadEnv := os.LookupEnv(EnvExecutor)
	os.Unsetenv(EnvExecutor)
	defer func() {
		if hadEnv {
			os.Setenv(EnvExecutor, old)
		}
	}()
	DefaultConfig = "fake2:from-default"
	defer func() { DefaultConfig = "" }()

	e, err := New()
	require.NoError(t, err)
	require.Equal(t, "from-default", e.(*fakeExecutor).config)
}

// recordingSink captures launch/finish notifications in order.
type recordingSink struct {
	events []string
}

func (r *recordingSink) OperationLaunched(e Executor, opName string) {
	r.events = append(r.events, "launch "+opName)
}

func (r *recordingSink) OperationCompleted(e Executor, opName string) {
	r.events = append(r.events, "finish "+opName)
}

func TestSinksNotifyInOrder(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	sinks := Sinks{a, b}
	e := &fakeExecutor{kind: Host}
	sinks.Launched(e, "spmv")
	sinks.Completed(e, "spmv")
	require.Equal(t, []string{"launch spmv", "finish spmv"}, a.events)
	require.Equal(t, a.events, b.events)
}
