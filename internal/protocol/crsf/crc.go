package crsf

// CRCPoly CRSF 使用的 CRC-8 多项式（DVB-S2）
const CRCPoly byte = 0xD5

var crcTable = makeCRCTable(CRCPoly)

func makeCRCTable(poly byte) [256]byte {
	var t [256]byte
	for i := 0; i < 256; i++ {
		crc := byte(i)
		for j := 0; j < 8; j++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ poly
			} else {
				crc <<= 1
			}
		}
		t[i] = crc
	}
	return t
}

// CRC8 计算 CRC-8/0xD5，初值 0
func CRC8(data []byte) byte {
	var crc byte
	for _, b := range data {
		crc = crcTable[crc^b]
	}
	return crc
}
