package parser

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/logflow/tracesim/internal/model"
)

// CSVParser implements byte-level CSV parsing without strings.Split.
type CSVParser struct {
	cfg     Config
	scanner *CSVScanner
}

// NewCSVParser creates a new CSV parser.
func NewCSVParser(cfg Config) *CSVParser {
	return &CSVParser{
		cfg:     cfg,
		scanner: NewCSVScanner(cfg.Delimiter),
	}
}

// Parse implements the Parser interface. Malformed rows fail the parse;
// blank lines are skipped.
func (p *CSVParser) Parse(ctx context.Context, r io.Reader, out chan<- *model.RawEvent) error {
	reader := bufio.NewReaderSize(r, p.cfg.BufferSize)

	headerLine, err := reader.ReadBytes('\n')
	if err != nil && err != io.EOF {
		return err
	}
	headerLine = trimLineEnding(trimBOM(headerLine))
	if len(headerLine) == 0 {
		return fmt.Errorf("%w: missing header", ErrInvalidCSV)
	}

	header := p.scanner.Split(headerLine)
	cols, err := ResolveColumns(header, p.cfg)
	if err != nil {
		return err
	}

	lineNum := 1
	for {
		select {
		case <-ctx.Done():
			return ErrContextCanceled
		default:
		}

		line, err := reader.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return err
		}
		if len(line) == 0 && err == io.EOF {
			break
		}
		lineNum++

		line = trimLineEnding(line)
		if len(line) > 0 {
			event, evErr := cols.Event(p.scanner.Split(line), lineNum)
			if evErr != nil {
				return evErr
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return ErrContextCanceled
			}
		}

		if err == io.EOF {
			break
		}
	}

	return nil
}

// trimLineEnding removes trailing \n and \r characters.
func trimLineEnding(line []byte) []byte {
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line
}

// trimBOM drops a UTF-8 byte order mark.
func trimBOM(line []byte) []byte {
	if len(line) >= 3 && line[0] == 0xEF && line[1] == 0xBB && line[2] == 0xBF {
		return line[3:]
	}
	return line
}
