package journal

// ============================================================================
// 校驗和計算
// 職責：計算與驗證 journal 事件的 CRC32 校驗和
// ============================================================================

import (
	"hash/crc32"
	"strconv"
)

// CalculateChecksum 計算事件的 CRC32 校驗和
//
// 演算法：
// - 將 Type、File、Worker、Timestamp 以 '|' 串接
// - 使用 CRC32-IEEE 多項式計算
func CalculateChecksum(e Event) uint32 {
	data := string(e.Type) + "|" + e.File + "|" + e.Worker + "|" + strconv.FormatInt(e.Timestamp, 10)
	return crc32.ChecksumIEEE([]byte(data))
}

// VerifyChecksum 驗證事件的校驗和是否正確
func VerifyChecksum(e Event) bool {
	return e.Checksum == CalculateChecksum(e)
}
