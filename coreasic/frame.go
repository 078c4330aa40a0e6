package coreasic

import "encoding/binary"

// Frame layout mirrors the vendor 0x55/0xAA handshake bytes observed
// on real chains: a work frame is header‖target and is acknowledged
// with {0x55, 0xAA, 0x00, 0x00}; a read-result command is the 4-byte
// {0xAA, 0x55, 0x01, 0x00} and is answered either with a 4-byte
// not-found frame or a 40-byte found frame carrying the little-endian
// nonce and the 32-byte hash.
const (
	frameMarkerA       = 0x55
	frameMarkerB       = 0xAA
	frameCmdReadResult = 0x01
	frameResultFound   = 0x02
)

func encodeWorkFrame(header [80]byte, target [32]byte) []byte {
	out := make([]byte, 0, len(header)+len(target))
	out = append(out, header[:]...)
	out = append(out, target[:]...)
	return out
}

func decodeWorkAck(resp []byte) error {
	if len(resp) < 2 || resp[0] != frameMarkerA || resp[1] != frameMarkerB {
		return errInvalidAck
	}
	return nil
}

func readResultFrame() []byte {
	return []byte{frameMarkerB, frameMarkerA, frameCmdReadResult, 0x00}
}

func decodeResultFrame(resp []byte) (nonce uint32, hash [32]byte, found bool) {
	if len(resp) < 8 || resp[0] != frameMarkerA || resp[1] != frameMarkerB || resp[2] != frameResultFound {
		return 0, hash, false
	}
	nonce = binary.LittleEndian.Uint32(resp[4:8])
	copy(hash[:], resp[8:])
	return nonce, hash, true
}
