package fnirsi

// The checksum parameters were recovered from captured traffic with
// CRC RevEng:
//
//	width=8 poly=0x39 init=0x42 refin=false refout=false xorout=0x00
//	check=0x4b residue=0x00
const (
	crcPoly byte = 0x39
	crcInit byte = 0x42
)

// Checksum8 computes the 8-bit CRC the device uses on both reports and
// commands.
func Checksum8(data []byte) byte {
	crc := crcInit
	for _, b := range data {
		crc ^= b
		for bit := 0; bit < 8; bit++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ crcPoly
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// Verify checks a full 64-byte report against its checksum trailer. The
// CRC covers everything between the vendor marker and the trailer.
func Verify(report []byte) bool {
	return Checksum8(report[1:ReportLength-1]) == report[ReportLength-1]
}
