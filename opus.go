package opus

import "errors"

type Decoder struct{}

func NewDecoder(sampleRate, channels int) (*Decoder, error) { return nil, errors.New("stub") }
func (d *Decoder) Decode(data []byte, pcm []int16) (int, error) { return 0, errors.New("stub") }
