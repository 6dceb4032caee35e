package wstransport

// Frames at or below this size always travel as plain text; zstd only pays
// off past roughly a kilobyte of JSON.
const compressionThreshold = 1024

// compress returns the zstd form of frame and true when that form is
// strictly smaller, otherwise the input unchanged and false. The opcode of
// the WebSocket message tells the peer which one it got.
func (s *Socket) compress(frame []byte) ([]byte, bool) {
	if len(frame) <= compressionThreshold {
		return frame, false
	}
	out := s.zenc.EncodeAll(frame, make([]byte, 0, len(frame)))
	if len(out) >= len(frame) {
		return frame, false
	}
	return out, true
}

// decompress restores a frame that arrived as a binary message.
func (s *Socket) decompress(data []byte) ([]byte, error) {
	return s.zdec.DecodeAll(data, nil)
}
