package protect

import (
	"crypto/sha256"
	"encoding/hex"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Info prefixes for HKDF derivation - distinct strings ensure separate keys
const (
	infoColumnKey = "protect-go/column"
	infoIndexKey  = "protect-go/index"
)

// columnKeys holds the sealing and term keys derived for one column under
// one encryption context.
type columnKeys struct {
	sealing [32]byte // XSalsa20-Poly1305 key
	term    [32]byte // HMAC-SHA256 key for search terms
}

// deriveColumnKeys derives the sealing and term keys for a column from the
// master key using HKDF-SHA256. The derivation binds the column identity
// ("table.column") and a digest of the encryption context into the info
// string, so a mismatched context yields a different sealing key and
// decryption fails authentication.
//
//   - Sealing key: HKDF(master, info="protect-go/column:<ident>:<ctxDigest>")
//   - Term key:    HKDF(master, info="protect-go/index:<ident>:<ctxDigest>")
func deriveColumnKeys(masterKey []byte, ident string, contextJSON []byte) (*columnKeys, error) {
	if len(masterKey) != 32 {
		return nil, ErrInvalidMasterKey
	}

	digest := contextDigest(contextJSON)
	keys := &columnKeys{}
	if err := hkdfDerive(masterKey, infoColumnKey+":"+ident+":"+digest, keys.sealing[:]); err != nil {
		return nil, err
	}
	if err := hkdfDerive(masterKey, infoIndexKey+":"+ident+":"+digest, keys.term[:]); err != nil {
		return nil, err
	}
	return keys, nil
}

// contextDigest returns the hex SHA-256 of the context JSON. Absent and
// empty contexts digest identically.
func contextDigest(contextJSON []byte) string {
	sum := sha256.Sum256(contextJSON)
	return hex.EncodeToString(sum[:])
}

// hkdfDerive performs HKDF-SHA256 key derivation with the given info string.
// No salt is used (nil salt means HKDF uses a zero-filled salt of HashLen bytes).
func hkdfDerive(masterKey []byte, info string, out []byte) error {
	reader := hkdf.New(sha256.New, masterKey, nil, []byte(info))
	_, err := io.ReadFull(reader, out)
	return err
}
