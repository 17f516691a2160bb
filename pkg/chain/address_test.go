package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAddress(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", true},
		{"0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", true},
		{"5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", false},
		{"0x5aaeb6053f3e94c9b9a09f33669435e7ef1bea", false},
		{"0xZZaeb6053f3e94c9b9a09f33669435e7ef1beaed", false},
		{"", false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, IsAddress(tc.in), tc.in)
	}
}

func TestChecksumAddress(t *testing.T) {
	// EIP-55 reference vectors
	vectors := []string{
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		"0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359",
		"0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB",
		"0xD1220A0cf47c7B9Be7A2E6BA89F429762e7b9aDb",
	}
	for _, v := range vectors {
		assert.Equal(t, v, ChecksumAddress(NormalizeAddress(v)))
	}
	assert.Equal(t, "not-an-address", ChecksumAddress("not-an-address"))
}

func TestSameAddress(t *testing.T) {
	assert.True(t, SameAddress("0xABCDEF0000000000000000000000000000000001", "0xabcdef0000000000000000000000000000000001"))
	assert.False(t, SameAddress("0xabcdef0000000000000000000000000000000001", "0xabcdef0000000000000000000000000000000002"))
}

func TestKeccak256Hex(t *testing.T) {
	// keccak256("") is a well known constant
	assert.Equal(t, "0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470", Keccak256Hex())
	assert.Equal(t, Keccak256Hex([]byte("ab")), Keccak256Hex([]byte("a"), []byte("b")))
}
