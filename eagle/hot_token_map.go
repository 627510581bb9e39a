package eagle

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// HotTokenMap is an injective function from a compact draft vocabulary
// to the target vocabulary. A draft head trained over only the target
// model's most frequent tokens emits ids in [0, len(table));
// ApplyIndices rewrites those into their target-vocabulary equivalents
// so everything downstream of the draft forward — tree building,
// logprob attachment — operates in target-vocabulary space uniformly:
// the remap always runs before any logprob or tree-building step
// consumes a draft id.
//
// table[i] is only defined for i < len(table); ids at or beyond
// len(table) are assumed to already be target-vocabulary ids (EAGLE3's
// draft head emits full-vocabulary ids directly and carries no map, so
// HotTokenMap is nil in that configuration).
type HotTokenMap struct {
	table []int64
}

// LoadHotTokenMap reads a hot-token map from a local file: one target
// vocabulary id per line, line number is the compact draft id.
func LoadHotTokenMap(path string) (*HotTokenMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening hot-token map %s: %v", ErrConfiguration, path, err)
	}
	defer f.Close()

	var table []int64
	seen := make(map[int64]bool)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		id, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed hot-token map line %q: %v", ErrConfiguration, line, err)
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: hot-token map is not injective, duplicate target id %d", ErrConfiguration, id)
		}
		seen[id] = true
		table = append(table, id)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading hot-token map %s: %v", ErrConfiguration, path, err)
	}
	return &HotTokenMap{table: table}, nil
}

// ApplyIndices rewrites compact draft-vocabulary ids into target-
// vocabulary ids in place. Ids already at or beyond the table's domain
// pass through unchanged, which is what makes a second application of
// the same map a no-op.
func (m *HotTokenMap) ApplyIndices(indices []int64) {
	if m == nil {
		return
	}
	for i, id := range indices {
		if id >= 0 && int(id) < len(m.table) {
			indices[i] = m.table[id]
		}
	}
}

