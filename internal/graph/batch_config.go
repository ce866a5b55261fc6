package graph

// BatchConfig defines UNWIND batch sizes per node label
//
// These batch sizes follow Neo4j practice:
// - Small batches (100-200): nodes with large text properties
// - Medium batches (500-1000): simple nodes with few properties
// - Large batches (1000-5000): edges with minimal properties
type BatchConfig struct {
	PersonBatchSize  int // Optimal: 100-200
	CommitBatchSize  int // Optimal: 200-500
	FileBatchSize    int // Optimal: 500-1000
	IssueBatchSize   int // Optimal: 50-200, bodies can be long
	DefaultBatchSize int

	// Edges. changed edges carry patch text, so they get their own size.
	EdgeBatchSize        int // Optimal: 1000-5000
	ChangedEdgeBatchSize int
}

// DefaultBatchConfig returns batch sizes for medium repositories
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		PersonBatchSize:      200,
		CommitBatchSize:      500,
		FileBatchSize:        1000,
		IssueBatchSize:       100,
		DefaultBatchSize:     500,
		EdgeBatchSize:        5000,
		ChangedEdgeBatchSize: 200,
	}
}

// SmallRepoBatchConfig for repos with a short history
// Uses smaller batches to reduce memory pressure
func SmallRepoBatchConfig() BatchConfig {
	return BatchConfig{
		PersonBatchSize:      50,
		CommitBatchSize:      100,
		FileBatchSize:        200,
		IssueBatchSize:       50,
		DefaultBatchSize:     100,
		EdgeBatchSize:        1000,
		ChangedEdgeBatchSize: 50,
	}
}

// LargeRepoBatchConfig for repos with tens of thousands of commits
func LargeRepoBatchConfig() BatchConfig {
	return BatchConfig{
		PersonBatchSize:      500,
		CommitBatchSize:      1000,
		FileBatchSize:        2000,
		IssueBatchSize:       200,
		DefaultBatchSize:     1000,
		EdgeBatchSize:        10000,
		ChangedEdgeBatchSize: 500,
	}
}

// BatchConfigFromSize scales the defaults so the default node batch equals
// size. Non-positive sizes return the defaults.
func BatchConfigFromSize(size int) BatchConfig {
	cfg := DefaultBatchConfig()
	if size <= 0 || size == cfg.DefaultBatchSize {
		return cfg
	}
	scale := func(n int) int {
		v := n * size / cfg.DefaultBatchSize
		if v < 1 {
			return 1
		}
		return v
	}
	return BatchConfig{
		PersonBatchSize:      scale(cfg.PersonBatchSize),
		CommitBatchSize:      scale(cfg.CommitBatchSize),
		FileBatchSize:        scale(cfg.FileBatchSize),
		IssueBatchSize:       scale(cfg.IssueBatchSize),
		DefaultBatchSize:     size,
		EdgeBatchSize:        scale(cfg.EdgeBatchSize),
		ChangedEdgeBatchSize: scale(cfg.ChangedEdgeBatchSize),
	}
}

// GetBatchSizeForLabel returns the appropriate batch size for a node label
func (bc BatchConfig) GetBatchSizeForLabel(label NodeKind) int {
	var size int
	switch label {
	case KindPerson:
		size = bc.PersonBatchSize
	case KindCommit:
		size = bc.CommitBatchSize
	case KindFile:
		size = bc.FileBatchSize
	case KindIssue, KindPullRequest, KindProject, KindRelease:
		size = bc.IssueBatchSize
	default:
		size = bc.DefaultBatchSize
	}
	if size <= 0 {
		return 500
	}
	return size
}

// GetBatchSizeForEdge returns the batch size for a relationship type
func (bc BatchConfig) GetBatchSizeForEdge(kind EdgeKind) int {
	size := bc.EdgeBatchSize
	if kind == EdgeChanged {
		size = bc.ChangedEdgeBatchSize
	}
	if size <= 0 {
		return 1000
	}
	return size
}
