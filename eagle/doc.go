// Package eagle implements the EAGLE-style speculative decoding worker at the
// heart of a large-language-model serving system: draft proposal, candidate
// tree construction, target verification, and paged KV cache-slot bookkeeping
// for a single batch of in-flight requests.
//
// # Reading Guide
//
// Start with these files to understand the worker:
//   - request.go, batch.go: the per-request and per-batch state the worker operates on
//   - draft_input.go, verify_input.go: the data exchanged between draft and target forwards
//   - worker.go: the single public entry point, Worker.Forward, and its extend/decode dispatch
//
// # Architecture
//
// eagle/ owns the interfaces and pure bridge types; implementations of the
// external collaborators live in sub-packages:
//   - eagle/kv: PagedKvAllocator implementation (free-list slot allocator with backup/restore)
//   - eagle/runtime: deterministic reference DraftRunner/TargetRunner used by tests and the CLI
//   - eagle/trace: per-step decision trace recording
//
// eagle/kv wires its allocator via an init() function: eagle declares the
// NewAllocatorFunc factory variable, and eagle/kv assigns it on import,
// avoiding an import cycle. eagle/runtime and eagle/trace register
// nothing; callers construct their types directly.
//
// # Key Interfaces
//
//   - DraftRunner / TargetRunner: forward passes over the draft/target models
//   - PagedKvAllocator: cache-slot allocation, leasing, and checkpoint/restore
//
// Model weight loading, tensor kernels, tokenization, HTTP/RPC frontends,
// batch-forming schedulers, and structured-output grammar engines are
// external collaborators consumed through the interfaces above; none of
// them are implemented here.
package eagle
