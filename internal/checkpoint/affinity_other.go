//go:build !linux

package checkpoint

// pinWorker is a no-op where thread affinity is not supported.
func pinWorker(int) (func(), error) {
	return func() {}, nil
}
