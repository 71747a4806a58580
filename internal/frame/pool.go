package frame

import "sync"

// Frames top out at 24 bytes (SEND_JOB_ALL_VARIABLES_WITH_RAMPING_AND_RATE),
// so a single bucket comfortably covers every outbound variant with room to
// grow; inbound frames are decoded straight into typed structs and never
// touch this pool.
const bufferBucketSize = 32

var bufferPool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, bufferBucketSize)
		return &b
	},
}

// GetBuffer returns a zero-length, bufferBucketSize-capacity byte slice from
// the pool, for callers that want to build a frame without allocating.
func GetBuffer() *[]byte {
	return bufferPool.Get().(*[]byte)
}

// PutBuffer returns a buffer obtained from GetBuffer. Buffers larger than
// the bucket size are dropped rather than pooled, since that would only
// ever happen if a caller bypassed Encode* by constructing a larger-than-
// protocol frame.
func PutBuffer(b *[]byte) {
	if cap(*b) > bufferBucketSize {
		return
	}
	*b = (*b)[:0]
	bufferPool.Put(b)
}
