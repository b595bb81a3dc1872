package tlv

import (
	"bytes"
	"io"
)

// byteReader is a minimal buffered reader sufficient for the codec's
// header/length/value parsing. The base TLV bytes are always held in
// memory (the source's KSI_RDR abstraction is replaced by stdlib io.Reader
// per spec §9's re-architecture note), so this wraps whatever io.Reader the
// caller supplies without adding its own buffering policy.
type byteReader struct {
	r io.Reader
}

func newByteReader(r io.Reader) *byteReader {
	return &byteReader{r: r}
}

func newBytesReader(b []byte) *byteReader {
	return &byteReader{r: bytes.NewReader(b)}
}

func (br *byteReader) readByte() (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(br.r, buf[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return 0, err
	}
	return buf[0], nil
}

func (br *byteReader) readN(n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(br.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
