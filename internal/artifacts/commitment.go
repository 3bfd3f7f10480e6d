package artifacts

import (
	mimcHash "github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
)

// bytecodeCommitment is a MiMC hash over an assembled script, alongside the
// blake2b name hash used for storage keys. It gives a downstream settlement
// layer a second, algebraic hash it could use to prove a deployment matches
// a disclosed script without re-hashing it inside a circuit itself. Only
// the hash function is exercised here; no circuit is built or proven,
// since proving execution belongs to the VM, not the compiler.
func bytecodeCommitment(script []byte) []byte {
	h := mimcHash.NewMiMC()
	h.Write(script)
	return h.Sum(nil)
}
