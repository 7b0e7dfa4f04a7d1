//go:build !linux

package engine

// suppressStdStreams is a no-op outside linux; engine output stays visible.
func suppressStdStreams() (restore func(), err error) {
	return func() {}, nil
}
