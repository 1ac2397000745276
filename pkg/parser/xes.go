package parser

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/logflow/tracesim/internal/model"
)

// XES attribute keys
var (
	xesConceptName = []byte("concept:name")
	xesTimeStamp   = []byte("time:timestamp")
	xesOrgResource = []byte("org:resource")
)

// XML element names
var (
	xmlLog    = []byte("log")
	xmlTrace  = []byte("trace")
	xmlEvent  = []byte("event")
	xmlString = []byte("string")
	xmlDate   = []byte("date")
	xmlInt    = []byte("int")
	xmlFloat  = []byte("float")
	xmlBool   = []byte("boolean")
	xmlID     = []byte("id")
)

var xmlEntities = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'", "&amp;", "&")

// XES parser states
type xesState uint8

const (
	stateInit xesState = iota
	stateLog
	stateTrace
	stateEvent
)

// XESParser implements streaming XES parsing using a state machine. Every
// <event> becomes one RawEvent with Start = End = time:timestamp; lifecycle
// transitions are kept as plain attributes.
type XESParser struct {
	cfg Config
}

// NewXESParser creates a new XES parser.
func NewXESParser(cfg Config) *XESParser {
	return &XESParser{cfg: cfg}
}

// Parse implements the Parser interface using a streaming state machine.
func (p *XESParser) Parse(ctx context.Context, r io.Reader, out chan<- *model.RawEvent) error {
	reader := bufio.NewReaderSize(r, p.cfg.BufferSize)

	state := stateInit
	var caseID string
	var current *model.RawEvent
	var hasTimestamp bool
	events := 0

	for {
		select {
		case <-ctx.Done():
			return ErrContextCanceled
		default:
		}

		tag, err := reader.ReadBytes('>')
		if err != nil && err != io.EOF {
			return err
		}
		if len(tag) == 0 && err == io.EOF {
			break
		}

		// Text content before the tag is not meaningful in XES.
		if i := bytes.IndexByte(tag, '<'); i > 0 {
			tag = tag[i:]
		}
		tag = bytes.TrimSpace(tag)

		switch {
		case len(tag) == 0:

		case isOpenTag(tag, xmlLog):
			state = stateLog

		case isOpenTag(tag, xmlTrace):
			state = stateTrace
			caseID = ""

		case isCloseTag(tag, xmlTrace):
			state = stateLog

		case isOpenTag(tag, xmlEvent):
			if state != stateTrace {
				return fmt.Errorf("%w: event outside of a trace", ErrInvalidXES)
			}
			state = stateEvent
			current = &model.RawEvent{CaseID: caseID}
			hasTimestamp = false

		case isCloseTag(tag, xmlEvent):
			if current == nil {
				return fmt.Errorf("%w: unbalanced </event>", ErrInvalidXES)
			}
			events++
			if current.CaseID == "" {
				return fmt.Errorf("%w: event %d: trace has no concept:name", ErrMissingColumn, events)
			}
			if !hasTimestamp {
				return fmt.Errorf("%w: event %d of case %s has no time:timestamp", ErrMissingColumn, events, current.CaseID)
			}
			select {
			case out <- current:
			case <-ctx.Done():
				return ErrContextCanceled
			}
			current = nil
			state = stateTrace

		case state == stateTrace && isAttributeTag(tag):
			if key, value := extractAttribute(tag); bytes.Equal(key, xesConceptName) {
				caseID = unescape(value)
			}

		case state == stateEvent && isAttributeTag(tag):
			ok, perr := p.processEventAttribute(tag, current)
			if perr != nil {
				return fmt.Errorf("event %d: %w", events+1, perr)
			}
			hasTimestamp = hasTimestamp || ok
		}

		if err == io.EOF {
			break
		}
	}

	if state == stateEvent {
		return fmt.Errorf("%w: unterminated event", ErrInvalidXES)
	}
	return nil
}

// isOpenTag checks if tag is an opening tag for the given element.
func isOpenTag(tag, element []byte) bool {
	if len(tag) < len(element)+2 || tag[0] != '<' {
		return false
	}
	if !bytes.HasPrefix(tag[1:], element) {
		return false
	}
	next := 1 + len(element)
	if next >= len(tag) {
		return true
	}
	c := tag[next]
	return c == '>' || c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// isCloseTag checks if tag closes the given element.
func isCloseTag(tag, element []byte) bool {
	if len(tag) < len(element)+3 || tag[0] != '<' || tag[1] != '/' {
		return false
	}
	rest := tag[2+len(element):]
	return bytes.HasPrefix(tag[2:], element) && len(rest) > 0 && (rest[0] == '>' || rest[0] == ' ')
}

// isAttributeTag checks if tag is an XES attribute element.
func isAttributeTag(tag []byte) bool {
	if len(tag) < 3 || tag[0] != '<' {
		return false
	}
	for _, el := range [][]byte{xmlString, xmlDate, xmlInt, xmlFloat, xmlBool, xmlID} {
		if isOpenTag(tag, el) {
			return true
		}
	}
	return false
}

// extractAttribute extracts key and value from an XES attribute element.
func extractAttribute(tag []byte) (key, value []byte) {
	return extractAttrValue(tag, []byte(`key="`)), extractAttrValue(tag, []byte(`value="`))
}

// extractAttrValue extracts an XML attribute value.
func extractAttrValue(tag, prefix []byte) []byte {
	idx := bytes.Index(tag, prefix)
	if idx < 0 {
		return nil
	}
	start := idx + len(prefix)
	end := bytes.IndexByte(tag[start:], '"')
	if end < 0 {
		return nil
	}
	return tag[start : start+end]
}

func unescape(b []byte) string {
	if bytes.IndexByte(b, '&') < 0 {
		return string(b)
	}
	return xmlEntities.Replace(string(b))
}

// processEventAttribute applies an attribute element to the event and
// reports whether it was the event timestamp.
func (p *XESParser) processEventAttribute(tag []byte, ev *model.RawEvent) (bool, error) {
	key, value := extractAttribute(tag)
	if key == nil || value == nil {
		return false, nil
	}

	switch {
	case bytes.Equal(key, xesConceptName):
		ev.Activity = unescape(value)

	case bytes.Equal(key, xesTimeStamp):
		ts, err := ParseTimestamp(string(value), p.cfg.TimestampFormat)
		if err != nil {
			return false, err
		}
		ev.Start, ev.End = ts, ts
		return true, nil

	case bytes.Equal(key, xesOrgResource):
		ev.Resource = unescape(value)

	default:
		ev.SetAttribute(unescape(key), unescape(value))
	}
	return false, nil
}
