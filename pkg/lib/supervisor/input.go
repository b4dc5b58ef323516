package supervisor

import (
	"bufio"
	"errors"
	"io"
)

// maxLineLength bounds a single operator command. Longer lines are dropped and reading continues.
const maxLineLength = 64 * 1024

// ReadLines feeds the lines of r into the returned channel and closes it at EOF.
// Reading stops only when r returns an error or EOF.
func ReadLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		reader := bufio.NewReaderSize(r, 4096)
		var line []byte
		overlong := false
		for {
			chunk, isPrefix, err := reader.ReadLine()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					logger.Printf("Failed to read operator input: %v", err)
				}
				return
			}
			if !overlong {
				line = append(line, chunk...)
				if len(line) > maxLineLength {
					overlong = true
				}
			}
			if isPrefix {
				continue
			}
			if overlong {
				logger.Printf("Dropped operator input line longer than %d bytes", maxLineLength)
			} else {
				lines <- string(line)
			}
			line = line[:0]
			overlong = false
		}
	}()
	return lines
}
