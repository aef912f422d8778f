//go:build linux

package cffile

import "golang.org/x/sys/unix"

// Advise hints to the OS that advisePos..advisePos+adviseAmt is about
// to be read, matching FileSource::Advise's posix_fadvise(WILLNEED)
// call. Errors are not reported: advice the kernel ignores is not a
// failure.
func (s *Source) Advise(advisePos int64, adviseAmt int) {
	s.mu.Lock()
	f, ok := s.file.(interface{ Fd() uintptr })
	s.mu.Unlock()
	if !ok {
		return
	}
	_ = unix.Fadvise(int(f.Fd()), advisePos, int64(adviseAmt), unix.FADV_WILLNEED)
}
