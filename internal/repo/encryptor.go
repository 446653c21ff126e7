package repo

import "io"

// Encryptor transforms content streams for at-rest encryption. Both
// directions are streaming; neither side buffers the payload.
type Encryptor interface {
	// Encrypt reads plaintext from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error
	// Decrypt reads ciphertext from r and writes plaintext to w.
	Decrypt(r io.Reader, w io.Writer) error
}
