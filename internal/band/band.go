// Package band holds the static mode-timing table and the frequency-to-band
// classification shared by the receiver and transmitter loops.
package band

// Mode is one of the two digital modes ft8op operates.
type Mode string

const (
	FT8 Mode = "FT8"
	FT4 Mode = "FT4"
)

// Timing describes one mode's slot cadence, in seconds.
type Timing struct {
	Full float64
	Half float64
}

// TimingTable mirrors the TIMING config table: FT4 runs a 15s slot with a
// 7.5s half, FT8 a 30s slot with a 15s half.
var TimingTable = map[Mode]Timing{
	FT4: {Full: 15, Half: 7.5},
	FT8: {Full: 30, Half: 15},
}

// IsEven reports whether secondsOfDay falls in the even half of its slot.
func IsEven(mode Mode, secondsOfDay float64) bool {
	t, ok := TimingTable[mode]
	if !ok {
		t = TimingTable[FT8]
	}
	m := mathMod(secondsOfDay, t.Full)
	return m >= 0 && m < t.Half
}

func mathMod(a, b float64) float64 {
	m := a - b*float64(int64(a/b))
	if m < 0 {
		m += b
	}
	return m
}

// edge is one band-edge entry: frequencies in [Low, High) kHz map to Band.
type edge struct {
	Low, High uint64
	Band      int
}

// edges is the standard amateur HF/VHF allocation table used to classify a
// dial frequency into the integer band tag candidates key on. Kept as a
// small static table rather than an imported dependency: nothing in the
// retrieved pack ships an amateur-band table.
var edges = []edge{
	{135, 138, 2190},
	{472, 479, 630},
	{1800, 2000, 160},
	{3500, 4000, 80},
	{5330, 5410, 60},
	{7000, 7300, 40},
	{10100, 10150, 30},
	{14000, 14350, 20},
	{18068, 18168, 17},
	{21000, 21450, 15},
	{24890, 24990, 12},
	{28000, 29700, 10},
	{50000, 54000, 6},
	{70000, 71000, 4},
	{144000, 148000, 2},
	{222000, 225000, 125},
	{420000, 450000, 70},
}

// FreqToBand classifies a dial frequency given in kHz into its band tag.
// Frequencies outside every known allocation return band 0.
func FreqToBand(freqKHz uint64) int {
	for _, e := range edges {
		if freqKHz >= e.Low && freqKHz < e.High {
			return e.Band
		}
	}
	return 0
}
