package kv

import "github.com/specdecode/eagleworker/eagle"

// init assigns eagle.NewAllocatorFunc: the interface's owner package
// (eagle) declares the factory variable but never imports its
// implementation, avoiding an import cycle; a caller that blank-imports
// eagle/kv for its side effect gets a working factory wired in.
func init() {
	eagle.NewAllocatorFunc = func(capacity int64) eagle.PagedKvAllocator {
		return NewAllocator(capacity)
	}
}
