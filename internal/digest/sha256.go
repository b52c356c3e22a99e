package digest

import (
	"encoding/binary"
	"hash"
	"math/bits"
)

// initial holds the first 32 bits of the fractional parts of the square
// roots of the first 8 primes.
var initial = [8]uint32{
	0x6a09e667, 0xbb67ae85, 0x3c6ef372, 0xa54ff53a,
	0x510e527f, 0x9b05688c, 0x1f83d9ab, 0x5be0cd19,
}

// k holds the first 32 bits of the fractional parts of the cube roots of
// the first 64 primes.
var k = [64]uint32{
	0x428a2f98, 0x71374491, 0xb5c0fbcf, 0xe9b5dba5, 0x3956c25b, 0x59f111f1, 0x923f82a4, 0xab1c5ed5,
	0xd807aa98, 0x12835b01, 0x243185be, 0x550c7dc3, 0x72be5d74, 0x80deb1fe, 0x9bdc06a7, 0xc19bf174,
	0xe49b69c1, 0xefbe4786, 0x0fc19dc6, 0x240ca1cc, 0x2de92c6f, 0x4a7484aa, 0x5cb0a9dc, 0x76f988da,
	0x983e5152, 0xa831c66d, 0xb00327c8, 0xbf597fc7, 0xc6e00bf3, 0xd5a79147, 0x06ca6351, 0x14292967,
	0x27b70a85, 0x2e1b2138, 0x4d2c6dfc, 0x53380d13, 0x650a7354, 0x766a0abb, 0x81c2c92e, 0x92722c85,
	0xa2bfe8a1, 0xa81a664b, 0xc24b8b70, 0xc76c51a3, 0xd192e819, 0xd6990624, 0xf40e3585, 0x106aa070,
	0x19a4c116, 0x1e376c08, 0x2748774c, 0x34b0bcb5, 0x391c0cb3, 0x4ed8aa4a, 0x5b9cca4f, 0x682e6ff3,
	0x748f82ee, 0x78a5636f, 0x84c87814, 0x8cc70208, 0x90befffa, 0xa4506ceb, 0xbef9a3f7, 0xc67178f2,
}

// state is a streaming SHA-256 computation.
type state struct {
	h   [8]uint32
	buf [BlockSize]byte
	nx  int    // bytes pending in buf
	len uint64 // total message bytes written
}

// New returns a streaming SHA-256 hash.Hash backed by this package's
// compression function.
func New() hash.Hash {
	s := &state{}
	s.Reset()
	return s
}

// Sum returns the SHA-256 digest of msg.
func Sum(msg []byte) Digest {
	var s state
	s.Reset()
	s.Write(msg) //nolint:errcheck
	return s.finish()
}

// SumString returns the SHA-256 digest of the bytes of msg.
func SumString(msg string) Digest {
	return Sum([]byte(msg))
}

// Hash returns the SHA-256 digest of msg as 64 lowercase hex characters.
func Hash(msg []byte) string {
	return Sum(msg).String()
}

func (s *state) Reset() {
	s.h = initial
	s.nx = 0
	s.len = 0
}

func (s *state) Size() int { return Size }

func (s *state) BlockSize() int { return BlockSize }

func (s *state) Write(p []byte) (int, error) {
	n := len(p)
	s.len += uint64(n)

	if s.nx > 0 {
		c := copy(s.buf[s.nx:], p)
		s.nx += c
		p = p[c:]
		if s.nx == BlockSize {
			s.compress(s.buf[:])
			s.nx = 0
		}
	}
	for len(p) >= BlockSize {
		s.compress(p[:BlockSize])
		p = p[BlockSize:]
	}
	if len(p) > 0 {
		s.nx = copy(s.buf[:], p)
	}
	return n, nil
}

// Sum appends the current digest to b without changing the running state.
func (s *state) Sum(b []byte) []byte {
	c := *s
	d := c.finish()
	return append(b, d[:]...)
}

// finish pads the message and returns the final digest. The receiver is
// consumed and must not be written to afterwards.
func (s *state) finish() Digest {
	bitLen := s.len << 3

	// A single 1 bit, then zeros until the length is 56 mod 64 bytes.
	var pad [BlockSize]byte
	pad[0] = 0x80
	rem := s.len % BlockSize
	padLen := 56 - rem
	if rem >= 56 {
		padLen = BlockSize + 56 - rem
	}
	s.Write(pad[:padLen]) //nolint:errcheck

	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], bitLen)
	s.Write(lenBuf[:]) //nolint:errcheck

	var d Digest
	for i, v := range s.h {
		binary.BigEndian.PutUint32(d[i*4:], v)
	}
	return d
}

// compress runs the 64 rounds over one 64-byte block.
func (s *state) compress(p []byte) {
	var w [64]uint32
	for i := 0; i < 16; i++ {
		w[i] = binary.BigEndian.Uint32(p[i*4:])
	}
	for i := 16; i < 64; i++ {
		w[i] = gamma1(w[i-2]) + w[i-7] + gamma0(w[i-15]) + w[i-16]
	}

	a, b, c, d := s.h[0], s.h[1], s.h[2], s.h[3]
	e, f, g, h := s.h[4], s.h[5], s.h[6], s.h[7]

	for i := 0; i < 64; i++ {
		t1 := h + sigma1(e) + ch(e, f, g) + k[i] + w[i]
		t2 := sigma0(a) + maj(a, b, c)
		h = g
		g = f
		f = e
		e = d + t1
		d = c
		c = b
		b = a
		a = t1 + t2
	}

	s.h[0] += a
	s.h[1] += b
	s.h[2] += c
	s.h[3] += d
	s.h[4] += e
	s.h[5] += f
	s.h[6] += g
	s.h[7] += h
}

func rotr(x uint32, n int) uint32 { return bits.RotateLeft32(x, -n) }

func ch(x, y, z uint32) uint32 { return (x & y) ^ (^x & z) }

func maj(x, y, z uint32) uint32 { return (x & y) ^ (x & z) ^ (y & z) }

func sigma0(x uint32) uint32 { return rotr(x, 2) ^ rotr(x, 13) ^ rotr(x, 22) }

func sigma1(x uint32) uint32 { return rotr(x, 6) ^ rotr(x, 11) ^ rotr(x, 25) }

func gamma0(x uint32) uint32 { return rotr(x, 7) ^ rotr(x, 18) ^ (x >> 3) }

func gamma1(x uint32) uint32 { return rotr(x, 17) ^ rotr(x, 19) ^ (x >> 10) }
