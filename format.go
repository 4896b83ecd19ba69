package protect

import "encoding/binary"

// Ciphertext format (before base64):
// [flag:1][identLen:2 big-endian][ident][nonce:24][secretbox(innerIdent + plaintext)]
//
// Flag byte values:
//   0x00 = no compression
//   0x01 = zstd compressed
//   0x02 = snappy compressed
//
// Inner plaintext format (before encryption):
// [identLen:2 big-endian][ident][actualPlaintext]
//
// ident is the column identity "table.column". The inner copy is
// authenticated by secretbox, so a ciphertext cannot be relabeled to a
// different column without failing decryption.

const (
	flagNoCompression byte = 0x00
	flagZstd          byte = 0x01
	flagSnappy        byte = 0x02

	nonceSize    = 24
	identLenSize = 2
	maxIdentLen  = 1<<16 - 1
)

// formatCiphertext assembles the outer ciphertext format.
// Returns: [flag:1][identLen:2][ident][nonce:24][ciphertext]
func formatCiphertext(flag byte, ident string, nonce [24]byte, ciphertext []byte) []byte {
	identBytes := []byte(ident)

	totalSize := 1 + identLenSize + len(identBytes) + nonceSize + len(ciphertext)
	result := make([]byte, 0, totalSize)

	result = append(result, flag)
	result = binary.BigEndian.AppendUint16(result, uint16(len(identBytes)))
	result = append(result, identBytes...)
	result = append(result, nonce[:]...)
	result = append(result, ciphertext...)

	return result
}

// parseFormat parses the outer ciphertext format.
// Returns flag, ident, nonce, encrypted data (secretbox ciphertext), and error.
func parseFormat(data []byte) (flag byte, ident string, nonce [24]byte, ciphertext []byte, err error) {
	// Minimum size: flag(1) + identLen(2) + ident(1 min) + nonce(24) + some ciphertext
	minSize := 1 + identLenSize + 1 + nonceSize + 1
	if len(data) < minSize {
		err = ErrInvalidCiphertext
		return
	}

	flag = data[0]
	identLen := int(binary.BigEndian.Uint16(data[1 : 1+identLenSize]))
	if identLen == 0 {
		err = ErrInvalidCiphertext
		return
	}

	headerSize := 1 + identLenSize + identLen + nonceSize
	if len(data) < headerSize+1 {
		err = ErrInvalidCiphertext
		return
	}

	ident = string(data[1+identLenSize : 1+identLenSize+identLen])
	copy(nonce[:], data[1+identLenSize+identLen:headerSize])
	ciphertext = data[headerSize:]

	return
}

// formatInnerPlaintext prepends the column identity to the plaintext.
// This inner copy is authenticated by secretbox encryption.
// Returns: [identLen:2][ident][plaintext]
func formatInnerPlaintext(ident string, plaintext []byte) []byte {
	identBytes := []byte(ident)

	totalSize := identLenSize + len(identBytes) + len(plaintext)
	result := make([]byte, 0, totalSize)

	result = binary.BigEndian.AppendUint16(result, uint16(len(identBytes)))
	result = append(result, identBytes...)
	result = append(result, plaintext...)

	return result
}

// parseInnerPlaintext extracts the column identity and actual plaintext from
// the inner format.
func parseInnerPlaintext(data []byte) (ident string, plaintext []byte, err error) {
	if len(data) < identLenSize+1 {
		err = ErrInvalidCiphertext
		return
	}

	identLen := int(binary.BigEndian.Uint16(data[:identLenSize]))
	if identLen == 0 || len(data) < identLenSize+identLen {
		err = ErrInvalidCiphertext
		return
	}

	ident = string(data[identLenSize : identLenSize+identLen])
	plaintext = data[identLenSize+identLen:]

	return
}
