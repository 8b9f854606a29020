package filter

import (
	"errors"
	"fmt"

	"github.com/robert-malhotra/go-audata/internal/message"
)

// ErrUnavailable reports a filter this package cannot run.
var ErrUnavailable = errors.New("filter unavailable")

// Filter is one stage of a pipeline.
type Filter interface {
	ID() uint16
	Encode(in []byte) ([]byte, error)
	Decode(in []byte) ([]byte, error)
}

var registered = map[uint16]string{
	message.FilterDeflate:     "deflate",
	message.FilterShuffle:     "shuffle",
	message.FilterFletcher32:  "fletcher32",
	message.FilterSZIP:        "szip",
	message.FilterNBit:        "nbit",
	message.FilterScaleOffset: "scaleoffset",
}

// New builds the filter a pipeline entry describes.
func New(info message.FilterInfo) (Filter, error) {
	switch info.ID {
	case message.FilterDeflate:
		return newDeflate(info.ClientData), nil
	case message.FilterShuffle:
		return newShuffle(info.ClientData), nil
	case message.FilterFletcher32:
		return fletcher32{}, nil
	}
	name := registered[info.ID]
	if name == "" {
		name = info.Name
	}
	return nil, fmt.Errorf("%w: %q (id %d)", ErrUnavailable, name, info.ID)
}

type stage struct {
	f        Filter // nil when unavailable
	id       uint16
	optional bool
}

// Pipeline runs the filters of a dataset. Stage i corresponds to bit i of a
// chunk's filter mask.
type Pipeline struct {
	stages []stage
}

// NewPipeline builds the pipeline fp describes. A nil message is an empty
// pipeline. Unavailable optional filters are kept as placeholders: chunks
// that skipped them still decode.
func NewPipeline(fp *message.FilterPipeline) (*Pipeline, error) {
	p := &Pipeline{}
	if fp == nil {
		return p, nil
	}
	for _, info := range fp.Filters {
		f, err := New(info)
		if err != nil && !(errors.Is(err, ErrUnavailable) && info.IsOptional()) {
			return nil, err
		}
		p.stages = append(p.stages, stage{f: f, id: info.ID, optional: info.IsOptional()})
	}
	return p, nil
}

func (p *Pipeline) Empty() bool { return len(p.stages) == 0 }
func (p *Pipeline) Len() int    { return len(p.stages) }

// Encode filters a chunk for storage. An optional filter that is missing or
// fails is skipped and its bit set in the returned mask.
func (p *Pipeline) Encode(chunk []byte) ([]byte, uint32, error) {
	var mask uint32
	for i, s := range p.stages {
		if s.f == nil {
			mask |= 1 << i
			continue
		}
		out, err := s.f.Encode(chunk)
		switch {
		case err == nil:
			chunk = out
		case s.optional:
			mask |= 1 << i
		default:
			return nil, 0, fmt.Errorf("filter %d: %w", s.id, err)
		}
	}
	return chunk, mask, nil
}

// Decode undoes Encode, last stage first, skipping the stages set in mask.
func (p *Pipeline) Decode(stored []byte, mask uint32) ([]byte, error) {
	for i := len(p.stages) - 1; i >= 0; i-- {
		s := p.stages[i]
		if mask&(1<<i) != 0 {
			continue
		}
		if s.f == nil {
			return nil, fmt.Errorf("%w: chunk needs filter %d", ErrUnavailable, s.id)
		}
		out, err := s.f.Decode(stored)
		if err != nil {
			return nil, fmt.Errorf("filter %d: %w", s.id, err)
		}
		stored = out
	}
	return stored, nil
}
