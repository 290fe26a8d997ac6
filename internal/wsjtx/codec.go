// Package wsjtx implements the WSJT-X UDP datagram protocol: the binary
// wire codec and the regex-based decoded-message parser.
package wsjtx

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	Magic  uint32 = 0xadbccbda
	Schema uint32 = 2
)

// Packet type tags, shared by both directions of the wire.
const (
	TypeHeartbeat           uint32 = 0
	TypeStatus              uint32 = 1
	TypeDecode              uint32 = 2
	TypeClear               uint32 = 3
	TypeReply               uint32 = 4
	TypeQSOLogged           uint32 = 5
	TypeClose               uint32 = 6
	TypeReplay              uint32 = 7
	TypeHaltTx              uint32 = 8
	TypeFreeText            uint32 = 9
	TypeWSPRDecode          uint32 = 10
	TypeLocation            uint32 = 11
	TypeLoggedADIF          uint32 = 12
	TypeHighlightCallsign   uint32 = 13
	TypeSwitchConfiguration uint32 = 14
	TypeConfigure           uint32 = 15
	TypeEnableTx            uint32 = 16
	TypeEnqueueDecode       uint32 = 17
)

// NewTxMsgIdx semantic values carried by EnableTx.
const (
	TxLogQSO           uint32 = 5
	TxDisable          uint32 = 8
	TxEnable           uint32 = 9
	TxSetFreqOrGrid    uint32 = 10
	TxEnableMonitoring uint32 = 11
	TxChangeBand       uint32 = 13
	TxEven             uint32 = 14
	TxOdd              uint32 = 15
	TxClearMessage     uint32 = 16
)

// Window values carried by Clear.
const (
	WindowBand uint8 = 0
	WindowRX   uint8 = 1
	WindowBoth uint8 = 2
)

var (
	ErrMagic       = errors.New("wsjtx: bad magic number")
	ErrUnknownType = errors.New("wsjtx: unknown packet type")
	ErrTruncated   = errors.New("wsjtx: truncated packet")
)

// Header is the common prefix of every packet, inbound and outbound.
type Header struct {
	Schema   uint32
	Type     uint32
	ClientID string
}

// Heartbeat is inbound packet type 0.
type Heartbeat struct {
	Header
	MaxSchema uint32
	Version   string
	Revision  string
}

// Status is inbound packet type 1.
type Status struct {
	Header
	Frequency           uint64
	Mode                string
	DXCall              string
	Report              string
	TXMode              string
	TXEnabled           bool
	Transmitting        bool
	Decoding            bool
	RXdf                int32
	TXdf                int32
	DeCall              string
	DeGrid              string
	DXGrid              string
	TXWatchdog          bool
	SubMode             string
	FastMode            bool
	SpecialOpMode       uint8
	FrequencyTolerance  uint32
	TRPeriod            uint32
	ConfigName          string
	LastTxMsg           string
	QSOProgress         uint8
	TxEven              bool
	CQOnly              bool
	GenMsg              string
	TxHaltClicked       bool
	NotScript           bool
}

// Decode is inbound packet type 2.
type Decode struct {
	Header
	New             bool
	Time            uint32
	SNR             int32
	DeltaTime       float64
	DeltaFrequency  uint32
	Mode            string
	Message         string
	LowConfidence   bool
	OffAir          bool
}

// Clear is both inbound (type 3 carries no payload from WSJT-X >= some
// schema revisions, but older ones send Window) and outbound.
type Clear struct {
	Header
	Window uint8
}

// QSOLogged is inbound packet type 5.
type QSOLogged struct {
	Header
	DateOff       uint64
	TimeOff       uint32
	DXCall        string
	DXGrid        string
	DialFrequency uint64
	Mode          string
	ReportSent    string
	ReportRecv    string
	TXPower       string
	Comments      string
	Name          string
	DateOn        uint64
	TimeOn        uint32
}

// Close is both inbound (type 6, header only) and outbound.
type Close struct {
	Header
}

// LoggedADIF is inbound packet type 12: a single logged-QSO ADIF record.
type LoggedADIF struct {
	Header
	ADIF string
}

// EnqueueDecode is inbound packet type 17.
type EnqueueDecode struct {
	Header
	AutoGen        bool
	Time           uint32
	SNR            int32
	DeltaTime      float64
	DeltaFrequency uint32
	Mode           string
	Message        string
	IsDX           bool
	Modifier       uint8
}

// Reply is outbound packet type 4, built from a candidate's decode fields.
type Reply struct {
	Time           uint32
	SNR            int32
	DeltaTime      float64
	DeltaFrequency uint32
	Mode           string
	Message        string
	LowConfidence  bool
	Modifiers      uint8
	NotScript      bool
}

// EnableTx is outbound packet type 16, the multi-purpose command packet.
type EnableTx struct {
	NewTxMsgIdx uint32
	GenMsg      string
	SkipGrid    bool
	UseRR73     bool
	CmdCheck    string
	Offset      uint32
	Frequency   int64
}

// HaltTx is outbound packet type 8.
type HaltTx struct {
	// Mode false = halt immediately, true = finish the current sequence.
	Mode bool
}

// DecodePacket parses one UDP datagram body into its typed packet. Unknown types
// and bad magic numbers are returned as errors, never panicked on, so the
// caller can log-and-drop and keep the loop alive.
func DecodePacket(data []byte) (interface{}, error) {
	r := bytes.NewReader(data)

	var magic, schema, typ uint32
	if err := binary.Read(r, binary.BigEndian, &magic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	if magic != Magic {
		return nil, ErrMagic
	}
	if err := binary.Read(r, binary.BigEndian, &schema); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	if err := binary.Read(r, binary.BigEndian, &typ); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	clientID, err := readString(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	hdr := Header{Schema: schema, Type: typ, ClientID: clientID}

	switch typ {
	case TypeHeartbeat:
		p := &Heartbeat{Header: hdr}
		if err := binary.Read(r, binary.BigEndian, &p.MaxSchema); err != nil {
			return nil, err
		}
		if p.Version, err = readString(r); err != nil {
			return nil, err
		}
		if p.Revision, err = readString(r); err != nil {
			return nil, err
		}
		return p, nil

	case TypeStatus:
		p := &Status{Header: hdr}
		if err := binary.Read(r, binary.BigEndian, &p.Frequency); err != nil {
			return nil, err
		}
		if p.Mode, err = readString(r); err != nil {
			return nil, err
		}
		if p.DXCall, err = readString(r); err != nil {
			return nil, err
		}
		if p.Report, err = readString(r); err != nil {
			return nil, err
		}
		if p.TXMode, err = readString(r); err != nil {
			return nil, err
		}
		if p.TXEnabled, err = readBool(r); err != nil {
			return nil, err
		}
		if p.Transmitting, err = readBool(r); err != nil {
			return nil, err
		}
		if p.Decoding, err = readBool(r); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.BigEndian, &p.RXdf); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.BigEndian, &p.TXdf); err != nil {
			return nil, err
		}
		if p.DeCall, err = readString(r); err != nil {
			return nil, err
		}
		if p.DeGrid, err = readString(r); err != nil {
			return nil, err
		}
		if p.DXGrid, err = readString(r); err != nil {
			return nil, err
		}
		if p.TXWatchdog, err = readBool(r); err != nil {
			return nil, err
		}
		if p.SubMode, err = readString(r); err != nil {
			return nil, err
		}
		if p.FastMode, err = readBool(r); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.BigEndian, &p.SpecialOpMode); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.BigEndian, &p.FrequencyTolerance); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.BigEndian, &p.TRPeriod); err != nil {
			return nil, err
		}
		if p.ConfigName, err = readString(r); err != nil {
			return nil, err
		}
		if p.LastTxMsg, err = readString(r); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.BigEndian, &p.QSOProgress); err != nil {
			return nil, err
		}
		if p.TxEven, err = readBool(r); err != nil {
			return nil, err
		}
		if p.CQOnly, err = readBool(r); err != nil {
			return nil, err
		}
		if p.GenMsg, err = readString(r); err != nil {
			return nil, err
		}
		if p.TxHaltClicked, err = readBool(r); err != nil {
			return nil, err
		}
		if p.NotScript, err = readBool(r); err != nil {
			return nil, err
		}
		return p, nil

	case TypeDecode:
		p := &Decode{Header: hdr}
		if p.New, err = readBool(r); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.BigEndian, &p.Time); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.BigEndian, &p.SNR); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.BigEndian, &p.DeltaTime); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.BigEndian, &p.DeltaFrequency); err != nil {
			return nil, err
		}
		if p.Mode, err = readString(r); err != nil {
			return nil, err
		}
		if p.Message, err = readString(r); err != nil {
			return nil, err
		}
		if p.LowConfidence, err = readBool(r); err != nil {
			return nil, err
		}
		if p.OffAir, err = readBool(r); err != nil {
			return nil, err
		}
		return p, nil

	case TypeClear:
		p := &Clear{Header: hdr}
		if r.Len() > 0 {
			if err := binary.Read(r, binary.BigEndian, &p.Window); err != nil {
				return nil, err
			}
		}
		return p, nil

	case TypeQSOLogged:
		p := &QSOLogged{Header: hdr}
		if err := binary.Read(r, binary.BigEndian, &p.DateOff); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.BigEndian, &p.TimeOff); err != nil {
			return nil, err
		}
		var timeSpec uint8
		if err := binary.Read(r, binary.BigEndian, &timeSpec); err != nil {
			return nil, err
		}
		if timeSpec == 2 {
			var off int32
			if err := binary.Read(r, binary.BigEndian, &off); err != nil {
				return nil, err
			}
		}
		if p.DXCall, err = readString(r); err != nil {
			return nil, err
		}
		if p.DXGrid, err = readString(r); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.BigEndian, &p.DialFrequency); err != nil {
			return nil, err
		}
		if p.Mode, err = readString(r); err != nil {
			return nil, err
		}
		if p.ReportSent, err = readString(r); err != nil {
			return nil, err
		}
		if p.ReportRecv, err = readString(r); err != nil {
			return nil, err
		}
		if p.TXPower, err = readString(r); err != nil {
			return nil, err
		}
		if p.Comments, err = readString(r); err != nil {
			return nil, err
		}
		if p.Name, err = readString(r); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.BigEndian, &p.DateOn); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.BigEndian, &p.TimeOn); err != nil {
			return nil, err
		}
		return p, nil

	case TypeClose:
		return &Close{Header: hdr}, nil

	case TypeLoggedADIF:
		p := &LoggedADIF{Header: hdr}
		if p.ADIF, err = readString(r); err != nil {
			return nil, err
		}
		return p, nil

	case TypeEnqueueDecode:
		p := &EnqueueDecode{Header: hdr}
		if p.AutoGen, err = readBool(r); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.BigEndian, &p.Time); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.BigEndian, &p.SNR); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.BigEndian, &p.DeltaTime); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.BigEndian, &p.DeltaFrequency); err != nil {
			return nil, err
		}
		if p.Mode, err = readString(r); err != nil {
			return nil, err
		}
		if p.Message, err = readString(r); err != nil {
			return nil, err
		}
		if p.IsDX, err = readBool(r); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.BigEndian, &p.Modifier); err != nil {
			return nil, err
		}
		return p, nil

	default:
		return nil, ErrUnknownType
	}
}

// Encoder serializes outbound packets addressed to one client ID.
type Encoder struct {
	ClientID string
}

func (e Encoder) writeHeader(buf *bytes.Buffer, typ uint32) {
	binary.Write(buf, binary.BigEndian, Magic)
	binary.Write(buf, binary.BigEndian, Schema)
	binary.Write(buf, binary.BigEndian, typ)
	writeString(buf, e.ClientID)
}

// EncodeClear builds a Clear (type 3) datagram.
func (e Encoder) EncodeClear(window uint8) []byte {
	buf := new(bytes.Buffer)
	e.writeHeader(buf, TypeClear)
	buf.WriteByte(window)
	return buf.Bytes()
}

// EncodeClose builds a Close (type 6) datagram.
func (e Encoder) EncodeClose() []byte {
	buf := new(bytes.Buffer)
	e.writeHeader(buf, TypeClose)
	return buf.Bytes()
}

// EncodeHaltTx builds a HaltTx (type 8) datagram.
func (e Encoder) EncodeHaltTx(mode bool) []byte {
	buf := new(bytes.Buffer)
	e.writeHeader(buf, TypeHaltTx)
	writeBool(buf, mode)
	return buf.Bytes()
}

// EncodeReply builds a Reply (type 4) datagram quoting a candidate's decode.
func (e Encoder) EncodeReply(r Reply) []byte {
	buf := new(bytes.Buffer)
	e.writeHeader(buf, TypeReply)
	binary.Write(buf, binary.BigEndian, r.Time)
	binary.Write(buf, binary.BigEndian, r.SNR)
	binary.Write(buf, binary.BigEndian, r.DeltaTime)
	binary.Write(buf, binary.BigEndian, r.DeltaFrequency)
	writeString(buf, r.Mode)
	writeString(buf, r.Message)
	writeBool(buf, r.LowConfidence)
	buf.WriteByte(r.Modifiers)
	writeBool(buf, r.NotScript)
	return buf.Bytes()
}

// EncodeEnableTx builds an EnableTx (type 16) command datagram. NewTxMsgIdx
// selects the semantic command; see the Tx* constants.
func (e Encoder) EncodeEnableTx(t EnableTx) []byte {
	buf := new(bytes.Buffer)
	e.writeHeader(buf, TypeEnableTx)
	binary.Write(buf, binary.BigEndian, t.NewTxMsgIdx)
	writeString(buf, t.GenMsg)
	writeBool(buf, t.SkipGrid)
	writeBool(buf, t.UseRR73)
	writeString(buf, t.CmdCheck)
	binary.Write(buf, binary.BigEndian, t.Offset)
	binary.Write(buf, binary.BigEndian, t.Frequency)
	return buf.Bytes()
}

func readString(r *bytes.Reader) (string, error) {
	var n int32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	if n < 0 {
		return "", nil
	}
	if n == 0 {
		return "", nil
	}
	buf := make([]byte, n)
	if _, err := r.Read(buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func readBool(r *bytes.Reader) (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

func writeString(buf *bytes.Buffer, s string) {
	data := []byte(s)
	binary.Write(buf, binary.BigEndian, uint32(len(data)))
	buf.Write(data)
}

func writeBool(buf *bytes.Buffer, b bool) {
	if b {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}
