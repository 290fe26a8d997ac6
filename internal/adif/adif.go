// Package adif parses ADIF (Amateur Data Interchange Format) log
// fragments: the WSJT-X LoggedADIF packet body, and full logbook exports
// fetched from QRZ or read from a local file at startup.
package adif

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// ErrHeaderWithoutEOH is returned when the input looks like it starts a
// header section (or contains an <eoh> tag later) but the scanner never
// finds the terminating tag.
var ErrHeaderWithoutEOH = fmt.Errorf("adif: header section without terminating <eoh>")

var headerFieldRe = regexp.MustCompile(`(?i)<((eoh)|(\w+):(\d+)(:[^>]+)?)>`)
var fieldRe = regexp.MustCompile(`(?i)<((eor)|(\w+):(\d+)(:[^>]+)?)>`)
var eohTagRe = regexp.MustCompile(`(?i)<eoh>`)

// Record is one parsed QSO: every field name upper-cased, value sliced to
// its declared length.
type Record map[string]string

// Parse scans an ADIF byte stream into its optional header and its list of
// QSO records, following the tag-length-value grammar: "<NAME:LEN[:TYPE]>"
// followed by exactly LEN bytes of value, "<eor>" terminating a record and
// "<eoh>" terminating the optional header block.
func Parse(data []byte) (records []Record, headers Record, err error) {
	data = decodeLatin1Fallback(data)
	headers = Record{}

	hasHeader := len(data) == 0 || data[0] != '<' || eohTagRe.Match(data)
	cursor := 0

	if hasHeader {
		eohFound := false
		for {
			loc := headerFieldRe.FindSubmatchIndex(data[cursor:])
			if loc == nil {
				break
			}
			// loc indices are relative to data[cursor:]; translate to absolute.
			tagEnd := cursor + loc[1]
			isEOH := loc[4] >= 0
			if isEOH {
				cursor = tagEnd
				eohFound = true
				break
			}
			name := strings.ToUpper(string(data[cursor+loc[6] : cursor+loc[7]]))
			length, _ := strconv.Atoi(string(data[cursor+loc[8] : cursor+loc[9]]))
			valueStart := tagEnd
			valueEnd := valueStart + length
			if valueEnd > len(data) {
				valueEnd = len(data)
			}
			headers[name] = string(data[valueStart:valueEnd])
			cursor = valueEnd
		}
		if !eohFound {
			return nil, nil, ErrHeaderWithoutEOH
		}
	}

	var recs []Record
	cur := Record{}
	for {
		loc := fieldRe.FindSubmatchIndex(data[cursor:])
		if loc == nil {
			break
		}
		tagEnd := cursor + loc[1]
		isEOR := loc[4] >= 0
		if isEOR {
			cursor = tagEnd
			if len(cur) > 0 {
				recs = append(recs, cur)
			}
			cur = Record{}
			continue
		}
		name := strings.ToUpper(string(data[cursor+loc[6] : cursor+loc[7]]))
		length, _ := strconv.Atoi(string(data[cursor+loc[8] : cursor+loc[9]]))
		valueStart := tagEnd
		valueEnd := valueStart + length

		var value string
		if valueEnd <= len(data) {
			value = string(data[valueStart:valueEnd])
		} else {
			// Declared byte length runs past the end of the input; fall
			// back to decoding the remaining tail as text and taking at
			// most that many runes of it.
			tail := string(data[valueStart:])
			runes := []rune(tail)
			if length > len(runes) {
				length = len(runes)
			}
			value = string(runes[:length])
			valueEnd = valueStart + len(value)
		}
		cur[name] = value
		cursor = valueEnd
	}

	return recs, headers, nil
}

// decodeLatin1Fallback re-encodes data as UTF-8 via ISO-8859-1 when it
// isn't valid UTF-8 to begin with. QRZ logbook exports and many loggers
// write ADIF as Latin-1, and the Python original opens them with
// encoding='latin-1' rather than failing on the first accented callsign
// remark.
func decodeLatin1Fallback(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return data
	}
	return out
}

// IsConfirmed applies the QRZ-logbook confirmation rule: the
// APP_QRZLOG_STATUS field defaults to confirmed ('C') when absent;
// otherwise a QSO counts as confirmed only when both LOTW directions say
// 'Y'.
func IsConfirmed(r Record) bool {
	status := r["APP_QRZLOG_STATUS"]
	if status == "" {
		status = "C"
	}
	if status == "C" {
		return true
	}
	return r["LOTW_QSL_SENT"] == "Y" && r["LOTW_QSL_RCVD"] == "Y"
}

// NormalizeCallsign undoes ADIF's escaping of the portable-callsign slash
// as an underscore.
func NormalizeCallsign(callsign string) string {
	return strings.ReplaceAll(callsign, "_", "/")
}

// QSOID builds the same composite identifier the receiver loop uses to
// correlate a LoggedADIF notification with its own in-flight blacklist
// row: "<QSO_DATE><TIME_ON[:4]>-<QSO_DATE_OFF><TIME_OFF[:4]>".
func QSOID(r Record) string {
	timeOn := r["TIME_ON"]
	if len(timeOn) > 4 {
		timeOn = timeOn[:4]
	}
	timeOff := r["TIME_OFF"]
	if len(timeOff) > 4 {
		timeOff = timeOff[:4]
	}
	return fmt.Sprintf("%s%s-%s%s", r["QSO_DATE"], timeOn, r["QSO_DATE_OFF"], timeOff)
}

// StringBandToNumber parses ADIF-style band strings ("20m", "70cm", "2190m")
// into their integer band tag, used as a fallback when a record carries no
// FREQ field to classify through band.FreqToBand.
func StringBandToNumber(bandStr string) (int, error) {
	s := strings.ToLower(strings.TrimSpace(bandStr))
	switch {
	case strings.HasSuffix(s, "cm"):
		n, err := strconv.Atoi(strings.TrimSuffix(s, "cm"))
		if err != nil {
			return 0, fmt.Errorf("adif: parse band %q: %w", bandStr, err)
		}
		return n, nil
	case strings.HasSuffix(s, "mm"):
		n, err := strconv.Atoi(strings.TrimSuffix(s, "mm"))
		if err != nil {
			return 0, fmt.Errorf("adif: parse band %q: %w", bandStr, err)
		}
		return n, nil
	case strings.HasSuffix(s, "m"):
		n, err := strconv.Atoi(strings.TrimSuffix(s, "m"))
		if err != nil {
			return 0, fmt.Errorf("adif: parse band %q: %w", bandStr, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("adif: unrecognized band string %q", bandStr)
	}
}
