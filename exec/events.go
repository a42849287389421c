package exec

import (
	"github.com/dustin/go-humanize"
	"k8s.io/klog/v2"

	"github.com/glera/glera/memspace"
)

// EventSink receives launch/finish notifications from executors.
// Sinks observe only: they must not affect control flow or ordering, and
// they may be called from any goroutine.
//
// A sink that also wants allocation/copy notifications implements
// memspace.Observer in addition and is attached to the memory space.
type EventSink interface {
	// OperationLaunched is called immediately before an operation is
	// dispatched on the executor.
	OperationLaunched(e Executor, opName string)

	// OperationCompleted is called immediately after dispatch. For
	// asynchronous backends this marks the enqueue, not kernel completion.
	OperationCompleted(e Executor, opName string)
}

// Sinks is the ordered list of sinks attached to an executor.
type Sinks []EventSink

// Launched notifies every sink of an operation launch.
func (s Sinks) Launched(e Executor, opName string) {
	for _, sink := range s {
		sink.OperationLaunched(e, opName)
	}
}

// Completed notifies every sink of an operation completion.
func (s Sinks) Completed(e Executor, opName string) {
	for _, sink := range s {
		sink.OperationCompleted(e, opName)
	}
}

// LoggingSink logs every event through klog at verbosity 1.
// It implements both EventSink and memspace.Observer.
type LoggingSink struct{}

var (
	_ EventSink         = LoggingSink{}
	_ memspace.Observer = LoggingSink{}
)

// OperationLaunched implements EventSink.
func (LoggingSink) OperationLaunched(e Executor, opName string) {
	klog.V(1).Infof("executor %s[%s]: launch %q", e.Kind(), e.ID(), opName)
}

// OperationCompleted implements EventSink.
func (LoggingSink) OperationCompleted(e Executor, opName string) {
	klog.V(1).Infof("executor %s[%s]: finish %q", e.Kind(), e.ID(), opName)
}

// Allocated implements memspace.Observer.
func (LoggingSink) Allocated(loc memspace.Location, numBytes int) {
	klog.V(1).Infof("memspace %s: allocated %s", loc, humanize.IBytes(uint64(numBytes)))
}

// Copied implements memspace.Observer.
func (LoggingSink) Copied(src, dst memspace.Location, numBytes int) {
	klog.V(1).Infof("memspace: copied %s from %s to %s", humanize.IBytes(uint64(numBytes)), src, dst)
}
