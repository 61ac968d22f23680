// Package dist implements phon's precompiled chunk format. A chunk holds
// a compiled routine tree together with a hash of the source it was built
// from, so a loader can skip the scanner and compiler and still detect a
// stale chunk.
package dist

import "github.com/chazu/phon/vm"

// Version is the chunk format version written by this package.
const Version = 1

// Magic prefixes every encoded chunk.
var Magic = [4]byte{'P', 'H', 'C', Version}

// Chunk is the unit stored in a .phc file.
type Chunk struct {
	Version      uint8       `cbor:"1,keyasint"`
	Name         string      `cbor:"2,keyasint"`
	SourceHash   uint64      `cbor:"3,keyasint"`
	Debug        bool        `cbor:"4,keyasint,omitempty"`
	Routine      *vm.Routine `cbor:"5,keyasint"`
	Capabilities []string    `cbor:"6,keyasint,omitempty"` // e.g. "file", "import"
}

// Manifest lists what a set of chunks needs from the host.
type Manifest struct {
	Required []string `cbor:"1,keyasint"`
}
