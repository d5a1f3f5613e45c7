package dataview

// UnknownTotal is the sentinel for "total count not computed", distinct from zero.
// Set when the limiter truncated a result or skipped an exact count.
const UnknownTotal = -1

// floor for MaxRows, the ceiling can't be configured below this
const minMaxRows = 100

// skip the exact COUNT(*) on browse requests above this page size when memory
// optimizations are on, a full-table scan just for a number is not worth it
const countSkipThreshold = 1000

// Limits holds the memory-safety ceilings applied to every read.
type Limits struct {
	MaxRows             int   // hard cap on rows returned by any read
	MemoryOptimizations bool  // enables clamping, truncation and count skipping
	MaxFileBytes        int64 // databases above this are rejected, 0 disables the check
	EphemeralFileBytes  int64 // databases above this load without persistence, 0 disables
}

// DefaultLimits is the configuration used when the caller sets nothing.
var DefaultLimits = Limits{
	MaxRows:             1000,
	MemoryOptimizations: true,
	MaxFileBytes:        2 << 30, // 2GB
	EphemeralFileBytes:  512 << 20,
}

// normalized returns a copy with MaxRows clamped to the floor.
func (l Limits) normalized() Limits {
	if l.MaxRows < minMaxRows {
		l.MaxRows = minMaxRows
	}
	return l
}

// PageSize clamps the requested page size to the ceiling when optimizations are on.
// Non-positive requests fall back to the ceiling.
func (l Limits) PageSize(requested int) int {
	l = l.normalized()
	if requested <= 0 {
		return l.MaxRows
	}
	if l.MemoryOptimizations && requested > l.MaxRows {
		return l.MaxRows
	}
	return requested
}

// SkipExactCount reports whether the COUNT(*) of a browse request should be skipped
// and the unknown sentinel reported instead.
func (l Limits) SkipExactCount(requestedPageSize int) bool {
	return l.MemoryOptimizations && requestedPageSize > countSkipThreshold
}
