package eagle

import (
	"fmt"
	"hash/fnv"
	"math/rand"
)

// === SimulationKey ===

// SimulationKey uniquely identifies a reproducible worker run. Two runs
// with the same SimulationKey, identical configuration, and identical
// request seeds MUST produce bit-for-bit identical acceptance decisions.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a master seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// === Subsystem naming ===

const (
	// SubsystemDraft is the RNG subsystem namespace the reference draft
	// runner (eagle/runtime) draws its synthetic logits from. DraftLoop
	// itself draws no random numbers.
	SubsystemDraft = "draft"
)

// SubsystemVerify returns the RNG subsystem name for a request's
// acceptance draws during verification.
func SubsystemVerify(reqID string) string {
	return fmt.Sprintf("verify:%s", reqID)
}

// === PartitionedRNG ===

// PartitionedRNG provides deterministic, isolated RNG instances per
// subsystem so that one request's acceptance coin flips never depend on
// how many other requests share its batch, or in what order they were
// added.
//
// Derivation: masterSeed XOR fnv1a64(subsystemName), except the request's
// own Seed field (if non-zero) additionally perturbs the derivation so
// that two requests sharing a batch but configured with distinct client
// seeds draw from independent streams even under the same subsystem name
// template.
//
// Thread-safety: NOT thread-safe. Must be driven from a single goroutine
// (or external locking); the verifier's one extra goroutine (the grammar
// mask builder) draws nothing, and all acceptance draws happen after it
// has been joined (see verifier.go).
type PartitionedRNG struct {
	key        SimulationKey
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a SimulationKey.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns a deterministically-seeded RNG for the named
// subsystem. The same subsystem name always returns the same *rand.Rand
// instance (cached). Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	derivedSeed := int64(p.key) ^ fnv1a64(name)
	rng := rand.New(rand.NewSource(derivedSeed))
	p.subsystems[name] = rng
	return rng
}

// ForRequest returns the RNG for a request's acceptance draws, folding
// in the request's own seed so that distinct client-specified seeds
// produce distinct streams even for requests that otherwise share a
// subsystem name template.
func (p *PartitionedRNG) ForRequest(subsystem string, req *Request) *rand.Rand {
	if req.Seed == 0 {
		return p.ForSubsystem(subsystem)
	}
	name := fmt.Sprintf("%s#%d", subsystem, req.Seed)
	return p.ForSubsystem(name)
}

// Key returns the SimulationKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
