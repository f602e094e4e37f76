// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package mpegts

import "errors"

var errBitstreamEnd = errors.New("bitstream exhausted")

type bitReader struct {
	data []byte
	pos  int
}

func (r *bitReader) bit() (uint, error) {
	if r.pos >= len(r.data)*8 {
		return 0, errBitstreamEnd
	}
	b := r.data[r.pos/8] >> (7 - uint(r.pos%8)) & 1
	r.pos++
	return uint(b), nil
}

func (r *bitReader) bits(n int) (uint, error) {
	var v uint
	for i := 0; i < n; i++ {
		b, err := r.bit()
		if err != nil {
			return 0, err
		}
		v = v<<1 | b
	}
	return v, nil
}

// ue reads an unsigned Exp-Golomb code.
func (r *bitReader) ue() (uint, error) {
	zeros := 0
	for {
		b, err := r.bit()
		if err != nil {
			return 0, err
		}
		if b == 1 {
			break
		}
		zeros++
		if zeros > 31 {
			return 0, errors.New("exp-golomb overflow")
		}
	}
	rest, err := r.bits(zeros)
	if err != nil {
		return 0, err
	}
	return 1<<uint(zeros) - 1 + rest, nil
}

func (r *bitReader) se() (int, error) {
	v, err := r.ue()
	if err != nil {
		return 0, err
	}
	if v%2 == 1 {
		return int(v+1) / 2, nil
	}
	return -int(v / 2), nil
}

// unescapeRBSP removes emulation prevention bytes (00 00 03).
func unescapeRBSP(nal []byte) []byte {
	out := make([]byte, 0, len(nal))
	zeros := 0
	for _, b := range nal {
		if zeros >= 2 && b == 0x03 {
			zeros = 0
			continue
		}
		if b == 0 {
			zeros++
		} else {
			zeros = 0
		}
		out = append(out, b)
	}
	return out
}

var highProfiles = map[uint]bool{100: true, 110: true, 122: true, 244: true, 44: true, 83: true, 86: true, 118: true, 128: true, 138: true, 139: true, 134: true, 135: true}

// parseSPS decodes picture dimensions from an H.264 SPS NAL unit (header
// byte included).
func parseSPS(nal []byte) (Resolution, error) {
	if len(nal) < 4 {
		return Resolution{}, errBitstreamEnd
	}
	r := &bitReader{data: unescapeRBSP(nal[1:])}
	profile, err := r.bits(8)
	if err != nil {
		return Resolution{}, err
	}
	if _, err := r.bits(16); err != nil { // constraint flags, level_idc
		return Resolution{}, err
	}
	if _, err := r.ue(); err != nil { // seq_parameter_set_id
		return Resolution{}, err
	}

	chroma := uint(1)
	separatePlanes := uint(0)
	if highProfiles[profile] {
		if chroma, err = r.ue(); err != nil {
			return Resolution{}, err
		}
		if chroma == 3 {
			if separatePlanes, err = r.bit(); err != nil {
				return Resolution{}, err
			}
		}
		for i := 0; i < 2; i++ { // bit depths
			if _, err := r.ue(); err != nil {
				return Resolution{}, err
			}
		}
		if _, err := r.bit(); err != nil { // qpprime_y_zero_transform_bypass
			return Resolution{}, err
		}
		present, err := r.bit()
		if err != nil {
			return Resolution{}, err
		}
		if present == 1 {
			lists := 8
			if chroma == 3 {
				lists = 12
			}
			for i := 0; i < lists; i++ {
				listPresent, err := r.bit()
				if err != nil {
					return Resolution{}, err
				}
				if listPresent == 0 {
					continue
				}
				size := 16
				if i >= 6 {
					size = 64
				}
				if err := skipScalingList(r, size); err != nil {
					return Resolution{}, err
				}
			}
		}
	}

	if _, err := r.ue(); err != nil { // log2_max_frame_num_minus4
		return Resolution{}, err
	}
	pocType, err := r.ue()
	if err != nil {
		return Resolution{}, err
	}
	switch pocType {
	case 0:
		if _, err := r.ue(); err != nil {
			return Resolution{}, err
		}
	case 1:
		if _, err := r.bit(); err != nil {
			return Resolution{}, err
		}
		for i := 0; i < 2; i++ {
			if _, err := r.se(); err != nil {
				return Resolution{}, err
			}
		}
		cycle, err := r.ue()
		if err != nil {
			return Resolution{}, err
		}
		for i := uint(0); i < cycle; i++ {
			if _, err := r.se(); err != nil {
				return Resolution{}, err
			}
		}
	}
	if _, err := r.ue(); err != nil { // max_num_ref_frames
		return Resolution{}, err
	}
	if _, err := r.bit(); err != nil { // gaps_in_frame_num_value_allowed_flag
		return Resolution{}, err
	}
	widthMbs, err := r.ue()
	if err != nil {
		return Resolution{}, err
	}
	heightUnits, err := r.ue()
	if err != nil {
		return Resolution{}, err
	}
	frameMbsOnly, err := r.bit()
	if err != nil {
		return Resolution{}, err
	}
	if frameMbsOnly == 0 {
		if _, err := r.bit(); err != nil {
			return Resolution{}, err
		}
	}
	if _, err := r.bit(); err != nil { // direct_8x8_inference_flag
		return Resolution{}, err
	}

	width := int(widthMbs+1) * 16
	height := int(2-frameMbsOnly) * int(heightUnits+1) * 16

	cropping, err := r.bit()
	if err != nil {
		return Resolution{}, err
	}
	if cropping == 1 {
		var crop [4]uint
		for i := range crop {
			if crop[i], err = r.ue(); err != nil {
				return Resolution{}, err
			}
		}
		unitX, unitY := 1, int(2-frameMbsOnly)
		if separatePlanes == 0 && chroma != 0 {
			subW, subH := 2, 2
			switch chroma {
			case 2:
				subH = 1
			case 3:
				subW, subH = 1, 1
			}
			unitX = subW
			unitY = subH * int(2-frameMbsOnly)
		}
		width -= int(crop[0]+crop[1]) * unitX
		height -= int(crop[2]+crop[3]) * unitY
	}
	if width <= 0 || height <= 0 {
		return Resolution{}, errors.New("invalid sps dimensions")
	}
	return Resolution{Width: width, Height: height}, nil
}

func skipScalingList(r *bitReader, size int) error {
	last, next := 8, 8
	for j := 0; j < size; j++ {
		if next != 0 {
			delta, err := r.se()
			if err != nil {
				return err
			}
			next = (last + delta + 256) % 256
		}
		if next != 0 {
			last = next
		}
	}
	return nil
}

// mpeg2SequenceHeader decodes the size from a sequence header (00 00 01 B3).
func mpeg2SequenceHeader(b []byte) (Resolution, bool) {
	if len(b) < 7 {
		return Resolution{}, false
	}
	w := int(b[4])<<4 | int(b[5])>>4
	h := int(b[5]&0x0F)<<8 | int(b[6])
	if w == 0 || h == 0 {
		return Resolution{}, false
	}
	return Resolution{Width: w, Height: h}, true
}
