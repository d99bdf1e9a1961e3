package password

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// argon2Version is argon2.Version (0x13).
const argon2Version = 19

var b64 = base64.RawStdEncoding

// phcHash is a parsed "$argon2id$v=19$m=<kib>,t=<iter>,p=<par>$<salt>$<key>" string.
type phcHash struct {
	params Argon2idParams
	salt   []byte
	key    []byte
}

func (h phcHash) String() string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Version,
		h.params.MemoryKiB,
		h.params.Iterations,
		h.params.Parallelism,
		b64.EncodeToString(h.salt),
		b64.EncodeToString(h.key),
	)
}

// parsePHC treats s as untrusted input. Every malformed shape is ErrInvalidHash.
func parsePHC(s string) (phcHash, error) {
	parts := strings.Split(s, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" || parts[2] != "v="+strconv.Itoa(argon2Version) {
		return phcHash{}, ErrInvalidHash
	}

	mem, it, par, ok := parseCost(parts[3])
	if !ok {
		return phcHash{}, ErrInvalidHash
	}

	salt, err := b64.DecodeString(parts[4])
	if err != nil {
		return phcHash{}, ErrInvalidHash
	}
	key, err := b64.DecodeString(parts[5])
	if err != nil {
		return phcHash{}, ErrInvalidHash
	}

	return phcHash{
		params: Argon2idParams{
			MemoryKiB:   mem,
			Iterations:  it,
			Parallelism: par,
			SaltLength:  uint32(len(salt)), // #nosec G115 -- bounded by the encoded string length.
			KeyLength:   uint32(len(key)),  // #nosec G115 -- bounded by the encoded string length.
		},
		salt: salt,
		key:  key,
	}, nil
}

// parseCost reads "m=<kib>,t=<iter>,p=<par>" in that exact order.
func parseCost(s string) (mem, it uint32, par uint8, ok bool) {
	fields := strings.Split(s, ",")
	if len(fields) != 3 {
		return 0, 0, 0, false
	}
	vals := make([]uint64, 3)
	for i, name := range []string{"m=", "t=", "p="} {
		raw, found := strings.CutPrefix(fields[i], name)
		if !found {
			return 0, 0, 0, false
		}
		n, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || n == 0 {
			return 0, 0, 0, false
		}
		vals[i] = n
	}
	if vals[2] > 255 {
		return 0, 0, 0, false
	}
	return uint32(vals[0]), uint32(vals[1]), uint8(vals[2]), true // #nosec G115 -- parsed with bitSize 32, p checked above.
}
