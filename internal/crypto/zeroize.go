package crypto

import "runtime"

// Scrub overwrites b with zeroes in place and pins it with
// runtime.KeepAlive so the compiler cannot prove the write is dead and
// elide it. Every type in this module that carries key material
// (bip32.Node, session.Seed) calls this from its own Scrub method
// rather than relying on the garbage collector.
func Scrub(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
