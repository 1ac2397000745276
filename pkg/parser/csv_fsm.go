package parser

// csvState is the current state of the CSV state machine.
type csvState uint8

const (
	stateFieldStart csvState = iota
	stateInField
	stateInQuotedField
	stateQuoteInQuotedField
)

// CSVScanner splits one CSV record with a finite state machine. It handles
// embedded delimiters, escaped quotes and stray carriage returns; records
// spanning several lines are not supported.
type CSVScanner struct {
	delimiter byte
	field     []byte // reused between records
}

// NewCSVScanner creates a new CSV scanner with the specified delimiter.
func NewCSVScanner(delimiter byte) *CSVScanner {
	return &CSVScanner{delimiter: delimiter}
}

// Split returns the fields of line. Quotes are removed and doubled quotes
// inside quoted fields are unescaped. A character following a closing
// quote is kept as part of the field.
func (s *CSVScanner) Split(line []byte) []string {
	if len(line) == 0 {
		return nil
	}

	fields := make([]string, 0, 16)
	state := stateFieldStart
	s.field = s.field[:0]

	emit := func() {
		fields = append(fields, string(s.field))
		s.field = s.field[:0]
		state = stateFieldStart
	}

	for _, c := range line {
		switch state {
		case stateFieldStart:
			switch c {
			case '"':
				state = stateInQuotedField
			case s.delimiter:
				emit()
			case '\r':
			default:
				s.field = append(s.field, c)
				state = stateInField
			}

		case stateInField:
			switch c {
			case s.delimiter:
				emit()
			case '\r':
			default:
				s.field = append(s.field, c)
			}

		case stateInQuotedField:
			if c == '"' {
				state = stateQuoteInQuotedField
			} else {
				s.field = append(s.field, c)
			}

		case stateQuoteInQuotedField:
			switch c {
			case s.delimiter:
				emit()
			case '"':
				s.field = append(s.field, '"')
				state = stateInQuotedField
			case '\r':
			default:
				s.field = append(s.field, c)
				state = stateInField
			}
		}
	}
	// Last field, possibly empty after a trailing delimiter. An unterminated
	// quoted field keeps what was read.
	emit()

	return fields
}
