package parser

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Common timestamp layouts ordered by likelihood
var commonLayouts = []string{
	"2006-01-02T15:04:05.000Z07:00", // ISO 8601 with millis
	"2006-01-02T15:04:05Z07:00",     // ISO 8601
	"2006-01-02 15:04:05.000",       // Space separator with millis
	"02/01/2006 15:04:05",           // DD/MM/YYYY
	"01/02/2006 15:04:05",           // MM/DD/YYYY
	"2006/01/02 15:04:05",           // YYYY/MM/DD
	time.RFC3339Nano,
}

// excelEpoch is day zero of spreadsheet serial dates. Starting on
// 1899-12-30 absorbs the 1900 leap-year bug for every date after March 1900.
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// ParseTimestamp parses a timestamp. ISO 8601 is fast-pathed by byte
// inspection, a bare number is a spreadsheet serial date, and layout (when
// set) is tried after the common layouts. Timestamps without a zone are UTC.
func ParseTimestamp(s, layout string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrInvalidTimestamp)
	}
	b := []byte(s)

	if len(b) >= 10 && b[4] == '-' && b[7] == '-' {
		if t, ok := parseISO8601Fast(b); ok {
			return t, nil
		}
	}
	if isNumeric(b) {
		if t, ok := parseExcelSerial(s); ok {
			return t, nil
		}
	}
	for _, l := range commonLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, nil
		}
	}
	if layout != "" {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
}

// parseISO8601Fast parses ISO 8601 format using direct byte arithmetic.
func parseISO8601Fast(b []byte) (time.Time, bool) {
	year := parseInt4(b[0:4])
	month := parseInt2(b[5:7])
	day := parseInt2(b[8:10])
	if year < 0 || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}

	var hour, minute, second, nsec int
	loc := time.UTC

	rest := b[10:]
	if len(rest) > 0 {
		if (rest[0] != 'T' && rest[0] != ' ') || len(b) < 19 || b[13] != ':' || b[16] != ':' {
			return time.Time{}, false
		}
		hour = parseInt2(b[11:13])
		minute = parseInt2(b[14:16])
		second = parseInt2(b[17:19])
		if hour < 0 || hour > 23 || minute < 0 || minute > 59 || second < 0 || second > 60 {
			return time.Time{}, false
		}

		i := 19
		if i < len(b) && b[i] == '.' {
			end := i + 1
			for end < len(b) && b[end] >= '0' && b[end] <= '9' {
				end++
			}
			nsec = parseFraction(b[i+1 : end])
			i = end
		}

		switch {
		case i == len(b):
		case b[i] == 'Z' && i+1 == len(b):
		case b[i] == '+' || b[i] == '-':
			zone := b[i+1:]
			var offH, offM int
			switch len(zone) {
			case 5: // hh:mm
				if zone[2] != ':' {
					return time.Time{}, false
				}
				offH, offM = parseInt2(zone[0:2]), parseInt2(zone[3:5])
			case 4: // hhmm
				offH, offM = parseInt2(zone[0:2]), parseInt2(zone[2:4])
			case 2: // hh
				offH = parseInt2(zone)
			default:
				return time.Time{}, false
			}
			if offH < 0 || offM < 0 {
				return time.Time{}, false
			}
			offset := offH*3600 + offM*60
			if b[i] == '-' {
				offset = -offset
			}
			loc = time.FixedZone("", offset)
		default:
			return time.Time{}, false
		}
	}

	return time.Date(year, time.Month(month), day, hour, minute, second, nsec, loc), true
}

// parseExcelSerial parses a spreadsheet serial date (days since excelEpoch).
func parseExcelSerial(s string) (time.Time, bool) {
	val, err := strconv.ParseFloat(s, 64)
	if err != nil || val < 0 {
		return time.Time{}, false
	}
	days := int64(val)
	t := excelEpoch.AddDate(0, 0, int(days))
	if frac := val - float64(days); frac > 0 {
		t = t.Add(time.Duration(frac * 24 * float64(time.Hour)).Round(time.Millisecond))
	}
	return t, true
}

// parseInt4 parses a 4-digit integer, -1 on anything else.
func parseInt4(b []byte) int {
	if len(b) != 4 || !allDigits(b) {
		return -1
	}
	return int(b[0]-'0')*1000 + int(b[1]-'0')*100 + int(b[2]-'0')*10 + int(b[3]-'0')
}

// parseInt2 parses a 2-digit integer, -1 on anything else.
func parseInt2(b []byte) int {
	if len(b) != 2 || !allDigits(b) {
		return -1
	}
	return int(b[0]-'0')*10 + int(b[1]-'0')
}

func allDigits(b []byte) bool {
	for _, c := range b {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// parseFraction parses fractional seconds to nanoseconds.
func parseFraction(b []byte) int {
	var result int64
	multiplier := int64(100000000) // Start with 10^8

	for i := 0; i < len(b) && i < 9; i++ {
		result += int64(b[i]-'0') * multiplier
		multiplier /= 10
	}
	return int(result)
}

// isNumeric checks if a byte slice contains only numeric characters.
func isNumeric(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	dotCount := 0
	for _, c := range b {
		if c >= '0' && c <= '9' {
			continue
		}
		if c == '.' && dotCount == 0 {
			dotCount++
			continue
		}
		return false
	}
	return true
}
