package hgalloc

// Statistics describes the memory footprint of one or more pools at a point in time.
type Statistics struct {
	PoolCount     int
	BucketCount   int
	BucketBytes   int
	LiveCount     int
	FreeCount     int
	HighWaterMark int
}

func (s *Statistics) Clear() {
	s.PoolCount = 0
	s.BucketCount = 0
	s.BucketBytes = 0
	s.LiveCount = 0
	s.FreeCount = 0
	s.HighWaterMark = 0
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.PoolCount += other.PoolCount
	s.BucketCount += other.BucketCount
	s.BucketBytes += other.BucketBytes
	s.LiveCount += other.LiveCount
	s.FreeCount += other.FreeCount
	s.HighWaterMark += other.HighWaterMark
}
