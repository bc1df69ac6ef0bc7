package completion

import (
	"io"
	"strings"
	"unicode/utf8"
)

const relayReadBuffer = 4096

// Relay reads a raw text stream incrementally and invokes onChunk with the
// cumulative decoded text after each read. Multi-byte characters split across
// reads are held back until their continuation bytes arrive, so every
// cumulative value is valid UTF-8 and strictly extends the previous one.
// A read error terminates the relay; whatever text was already delivered is
// returned alongside the error.
func Relay(r io.Reader, onChunk func(cumulative string)) (string, error) {
	var cumulative strings.Builder
	var carry []byte
	buf := make([]byte, relayReadBuffer)

	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := append(carry, buf[:n]...)
			keep := len(data)
			// Hold back a trailing partial rune.
			for i := keep - 1; i >= 0 && i > len(data)-utf8.UTFMax; i-- {
				if utf8.RuneStart(data[i]) {
					if !utf8.FullRune(data[i:]) {
						keep = i
					}
					break
				}
			}
			if keep > 0 {
				cumulative.Write(data[:keep])
				if onChunk != nil {
					onChunk(cumulative.String())
				}
			}
			carry = append([]byte(nil), data[keep:]...)
		}
		if err == io.EOF {
			if len(carry) > 0 {
				cumulative.Write(carry)
				if onChunk != nil {
					onChunk(cumulative.String())
				}
			}
			return cumulative.String(), nil
		}
		if err != nil {
			return cumulative.String(), err
		}
	}
}
