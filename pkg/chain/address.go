// Package chain 提供与链上身份、交易哈希相关的纯函数工具。
package chain

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"
)

// IsAddress 判断字符串是否为 0x 前缀的 20 字节十六进制地址。
func IsAddress(s string) bool {
	if len(s) != 42 || !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return false
	}
	_, err := hex.DecodeString(s[2:])
	return err == nil
}

// NormalizeAddress 返回地址的小写形式。地址在本领域内大小写不敏感。
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// SameAddress 对两个地址做大小写不敏感比较（两边都转为小写）。
func SameAddress(a, b string) bool {
	return NormalizeAddress(a) == NormalizeAddress(b)
}

// ChecksumAddress 按 EIP-55 生成混合大小写的校验地址，非法输入原样返回。
func ChecksumAddress(addr string) string {
	if !IsAddress(addr) {
		return addr
	}
	lower := NormalizeAddress(addr)[2:]
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(lower))
	digest := hex.EncodeToString(h.Sum(nil))

	out := make([]byte, 0, 42)
	out = append(out, '0', 'x')
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		if c >= 'a' && c <= 'f' && digest[i] >= '8' {
			c -= 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}

// Keccak256Hex 计算若干数据片段拼接后的 keccak-256，返回 0x 前缀的十六进制串。
func Keccak256Hex(parts ...[]byte) string {
	h := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		h.Write(p)
	}
	return "0x" + hex.EncodeToString(h.Sum(nil))
}
