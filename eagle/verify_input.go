package eagle

// VerifyInput is the flattened candidate tree handed to the target
// model for one batched tree-attention verify pass. Every
// field is a parallel flat array sized to the tree's total node count
// across the whole batch; -1 is the sentinel for "no parent"/"no next
// sibling"/"no next token" throughout, matching the draft kernels'
// convention of avoiding heap node graphs entirely.
type VerifyInput struct {
	// DraftTokens is the flattened list of candidate token ids across
	// every request's tree, root-first.
	DraftTokens []int64

	// TreeMask is a row-major [totalNodes][totalNodes] boolean
	// ancestor mask: TreeMask[i*totalNodes+j] is true if node j is an
	// ancestor of (or equal to) node i, restricted to nodes within the
	// same request's tree. This is the attention mask the target
	// model's tree-attention kernel consumes directly.
	TreeMask []bool

	// Positions is the flat per-node absolute sequence position,
	// parallel to DraftTokens.
	Positions []int64

	// RetriveIndex, RetriveNextToken, and RetriveNextSibling encode the
	// tree topology as parent-independent flat arrays: for node i,
	// RetriveNextToken[i] is the index of its first child (-1 if
	// none), and RetriveNextSibling[i] is the index of its next
	// sibling under the same parent (-1 if none). RetriveIndex holds
	// one entry per node: that node's index in these flat arrays.
	RetriveIndex       []int64
	RetriveNextToken   []int64
	RetriveNextSibling []int64

	// SeqLensSum is the sum of prefix lengths across the batch,
	// carried alongside the tree so the target forward can compute
	// absolute KV offsets without re-deriving them from Positions.
	SeqLensSum int64

	CaptureHiddenMode CaptureHiddenMode
}
