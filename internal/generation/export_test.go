package generation

// SetComputedHook installs fn to run after each fingerprint computation and
// before the memo is updated.
func SetComputedHook(f *Fingerprinter, fn func()) {
	f.computed = fn
}
