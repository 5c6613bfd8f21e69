package logging

// ProgressSampler thins stage progress logs to one line per percentage bucket.
// A new stage always logs and starts its buckets over.
type ProgressSampler struct {
	step   int
	stage  string
	bucket int
}

// NewProgressSampler returns a sampler with buckets of step percent. Values
// below one fall back to 5.
func NewProgressSampler(step int) *ProgressSampler {
	if step < 1 {
		step = 5
	}
	return &ProgressSampler{step: step, bucket: -1}
}

// ShouldLog reports whether percent for stage reaches a bucket not yet logged.
// A nil sampler logs everything.
func (s *ProgressSampler) ShouldLog(stage string, percent int) bool {
	if s == nil {
		return true
	}
	if stage != s.stage {
		s.stage = stage
		s.bucket = percent / s.step
		return true
	}
	bucket := min(percent, 100) / s.step
	if bucket <= s.bucket {
		return false
	}
	s.bucket = bucket
	return true
}
