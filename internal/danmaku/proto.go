// Package danmaku decodes bullet-comment protobuf segments and compiles them
// onto a scrolling subtitle canvas with lane collision resolution.
package danmaku

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Danmu is one bullet comment. Progress is milliseconds into the video.
type Danmu struct {
	Progress int64
	Mode     int32
	FontSize int32
	Color    uint32 // RGB packed into the low 24 bits
	Content  string
}

// DecodeSegment parses a DmSegMobileReply wire payload: a single repeated
// field 1 of DanmakuElem messages.
func DecodeSegment(data []byte) ([]Danmu, error) {
	var out []Danmu
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("danmaku: bad tag: %w", protowire.ParseError(n))
		}
		data = data[n:]
		if num != 1 || typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("danmaku: bad field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
			continue
		}
		elem, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return nil, fmt.Errorf("danmaku: bad elem: %w", protowire.ParseError(n))
		}
		data = data[n:]
		d, err := decodeElem(elem)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// DanmakuElem field numbers on the wire.
const (
	fieldProgress = 2
	fieldMode     = 3
	fieldFontSize = 4
	fieldColor    = 5
	fieldContent  = 7
)

func decodeElem(data []byte) (Danmu, error) {
	var d Danmu
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return d, fmt.Errorf("danmaku: bad elem tag: %w", protowire.ParseError(n))
		}
		data = data[n:]
		switch {
		case typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return d, fmt.Errorf("danmaku: bad varint: %w", protowire.ParseError(n))
			}
			data = data[n:]
			switch num {
			case fieldProgress:
				d.Progress = int64(int32(v))
			case fieldMode:
				d.Mode = int32(v)
			case fieldFontSize:
				d.FontSize = int32(v)
			case fieldColor:
				d.Color = uint32(v)
			}
		case typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return d, fmt.Errorf("danmaku: bad bytes: %w", protowire.ParseError(n))
			}
			data = data[n:]
			if num == fieldContent {
				d.Content = string(v)
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return d, fmt.Errorf("danmaku: bad field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return d, nil
}
