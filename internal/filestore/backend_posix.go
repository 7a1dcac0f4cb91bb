package filestore

// applyPosix applies each Transaction in batch with ordinary syscalls.
// Crash atomicity for this backend is provided entirely by the external
// journal replaying the same batch after a crash — the backend itself
// makes no atomicity claim.
func (b *Backend) applyPosix(batch []*Transaction) error {
	var first error
	for _, t := range batch {
		if err := applyOpsPosix(b.basedir, t, b.onStartSync); err != nil && first == nil {
			first = err
		}
	}
	return first
}
