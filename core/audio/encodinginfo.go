package audio

const (
	TelephonySampleRate = 8000
	TelephonyFormat     = EncodingMulaw
)

// GetTelephonyEncodingInfo returns the encoding of media-stream audio:
// 8kHz mono mu-law.
func GetTelephonyEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: TelephonySampleRate, Format: TelephonyFormat}
}

type EncodingInfo struct {
	SampleRate int
	Format     encodingFormat
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format.Name() == ""
}

// BytesPerSecond is the data rate of mono audio in this encoding, or -1 for
// unknown formats.
func (e EncodingInfo) BytesPerSecond() int {
	size := e.Format.ByteSize()
	if size < 0 {
		return -1
	}
	return e.SampleRate * size
}

type encodingFormat string

func (e encodingFormat) Name() string {
	return string(e)
}

func (e encodingFormat) ByteSize() int {
	switch e {
	case EncodingMulaw, EncodingALaw:
		return 1
	case EncodingLinear16:
		return 2
	}
	return -1
}

const (
	EncodingMulaw    encodingFormat = "mulaw"
	EncodingALaw     encodingFormat = "alaw"
	EncodingLinear16 encodingFormat = "linear16"
)
