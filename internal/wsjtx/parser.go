package wsjtx

import "regexp"

// MessageType classifies a decoded FT8/FT4 message body.
type MessageType string

const (
	MsgCQ   MessageType = "CQ"
	MsgR73  MessageType = "R73"
	MsgGrid MessageType = "GRID"
	MsgSNR  MessageType = "SNR"
	MsgRSNR MessageType = "RSNR"
)

// callsignPattern captures a full compound callsign (prefix, base, up to
// two suffixes, and an SSID-style trailing "-NNN"), the same shape as the
// addressee pattern below but without a "to" wrapper.
const callsignPattern = `(?P<callsign>(?P<prefixed_callsign>(?:(?P<prefix>[A-Z0-9]{1,4})/)?(?:[0-9]?[A-Z]{1,2}[0-9](?:[A-Z]{1,4}|[0-9]{3}|[0-9]{1,3}[A-Z])[A-Z]{0,5}))(?:/(?P<suffix>[A-Z0-9]{1,4}))?(?:/(?P<suffix2>[A-Z0-9]{1,4}))?(?:(?P<suffix3>-[0-9]{1,3}))?)`

const receiverPattern = `(?P<to>(?P<prefixed_to>(?:(?P<prefix_to>[A-Z0-9]{1,4})/)?(?:[0-9]?[A-Z]{1,2}[0-9](?:[A-Z]{1,4}|[0-9]{3}|[0-9]{1,3}[A-Z])[A-Z]{0,5}))(?:/(?P<suffix_to>[A-Z0-9]{1,4}))?(?:/(?P<suffix2_to>[A-Z0-9]{1,4}))?(?:(?P<suffix3_to>-[0-9]{1,3}))?)`

// ordered cascade, evaluated CQ -> R73 -> GRID -> SNR -> RSNR. R73 is
// checked before GRID: an RR73 suffix token also has the shape of a grid
// locator and would otherwise be read as one.
var callTypes = []struct {
	Type MessageType
	Re   *regexp.Regexp
}{
	{MsgCQ, regexp.MustCompile(`^<?CQ>?(?: <?(?P<extra>.*)>?)? <?` + callsignPattern + `>?(?: <?(?P<grid>[A-Z]{2}[0-9]{2})>?)?$`)},
	{MsgR73, regexp.MustCompile(`^<?` + receiverPattern + `>? <?` + callsignPattern + `>? (?P<R73>RRR|R*73)$`)},
	{MsgGrid, regexp.MustCompile(`^<?` + receiverPattern + `>? <?` + callsignPattern + `>? <?(?P<grid>[A-Z]{2}[0-9]{2})>?$`)},
	{MsgSNR, regexp.MustCompile(`^<?` + receiverPattern + `>? <?` + callsignPattern + `>? (?P<snr>0|[-+][0-9]+)$`)},
	{MsgRSNR, regexp.MustCompile(`^<?` + receiverPattern + `>? <?` + callsignPattern + `>? R(?P<snr>0|[-+][0-9]+)$`)},
}

var gridPattern = regexp.MustCompile(`^[A-Z]{2}[0-9]{2}$`)

// Parsed is the result of matching a decoded message body against the
// ordered call-type cascade. An unmatched message yields a zero-value
// Parsed with Matched == false; the receiver logs and discards it.
type Parsed struct {
	Matched bool
	Type    MessageType

	Callsign         string
	PrefixedCallsign string
	Prefix           string
	Suffix           string
	Suffix2          string
	Suffix3          string

	To         string
	PrefixedTo string
	PrefixTo   string
	SuffixTo   string
	Suffix2To  string
	Suffix3To  string

	Extra string
	Grid  string
	R73   string
	SNR   int
	HasSNR bool
}

// ParseMessage runs the ordered call-type cascade against a decoded message
// body and returns the first matching category.
func ParseMessage(message string) Parsed {
	for _, ct := range callTypes {
		m := ct.Re.FindStringSubmatch(message)
		if m == nil {
			continue
		}
		p := Parsed{Matched: true, Type: ct.Type}
		names := ct.Re.SubexpNames()
		for i, name := range names {
			if name == "" || i >= len(m) {
				continue
			}
			v := m[i]
			switch name {
			case "callsign":
				p.Callsign = v
			case "prefixed_callsign":
				p.PrefixedCallsign = v
			case "prefix":
				p.Prefix = v
			case "suffix":
				p.Suffix = v
			case "suffix2":
				p.Suffix2 = v
			case "suffix3":
				p.Suffix3 = v
			case "to":
				p.To = v
			case "prefixed_to":
				p.PrefixedTo = v
			case "prefix_to":
				p.PrefixTo = v
			case "suffix_to":
				p.SuffixTo = v
			case "suffix2_to":
				p.Suffix2To = v
			case "suffix3_to":
				p.Suffix3To = v
			case "extra":
				p.Extra = v
			case "grid":
				p.Grid = v
			case "R73":
				p.R73 = v
			case "snr":
				p.SNR, p.HasSNR = atoiSigned(v)
			}
		}
		return p
	}
	return Parsed{}
}

// IsValidGrid reports whether s is a well-formed 4-character Maidenhead
// locator.
func IsValidGrid(s string) bool {
	return gridPattern.MatchString(s)
}

func atoiSigned(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	neg := false
	i := 0
	switch s[0] {
	case '+':
		i = 1
	case '-':
		neg = true
		i = 1
	}
	n := 0
	for ; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
		n = n*10 + int(s[i]-'0')
	}
	if neg {
		n = -n
	}
	return n, true
}
