//go:build !linux

package cffile

// Advise is a no-op on platforms with no posix_fadvise equivalent
// wired up; readahead hinting is an optimization, not a correctness
// requirement.
func (s *Source) Advise(advisePos int64, adviseAmt int) {}
