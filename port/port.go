// Package port supplies the architecture seam kernel.Scheduler runs
// on top of: the Port interface itself (re-exported here so assembly
// code doesn't need to reach into kernel just for the interface name)
// plus Host, a goroutine-backed implementation for running distortos
// on an ordinary OS process instead of a microcontroller.
package port

import "distortos/kernel"

// Port is the architecture seam a Scheduler is built on.
type Port = kernel.Port

// StackPointer is the opaque per-thread handle a Port implementation
// manages however its architecture requires.
type StackPointer = kernel.StackPointer
