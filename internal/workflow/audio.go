package workflow

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"narrator/internal/services/llm"
	"narrator/internal/transcript"
)

// Synthesizer renders one utterance to encoded audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req llm.SpeechRequest) ([]byte, error)
}

// VoicePlan assigns voices to speakers: Speaker 1 gets Host, the others
// rotate through Cohosts.
type VoicePlan struct {
	Host    string
	Cohosts []string
}

// Voice returns the voice for speaker.
func (v VoicePlan) Voice(speaker string) string {
	index := transcript.SpeakerIndex(speaker)
	if index <= 1 || len(v.Cohosts) == 0 {
		return v.Host
	}
	return v.Cohosts[(index-2)%len(v.Cohosts)]
}

// SynthesizeDialogue renders each turn and joins the segments into one file
// in format.
func SynthesizeDialogue(ctx context.Context, synth Synthesizer, turns []transcript.Turn, voices VoicePlan, model, format string) ([]byte, error) {
	if len(turns) == 0 {
		return nil, errors.New("no dialogue to synthesize")
	}
	segments := make([][]byte, 0, len(turns))
	for i, turn := range turns {
		if strings.TrimSpace(turn.Text) == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		audio, err := synth.Synthesize(ctx, llm.SpeechRequest{
			Model:  model,
			Voice:  voices.Voice(turn.Speaker),
			Input:  turn.Text,
			Format: format,
		})
		if err != nil {
			return nil, fmt.Errorf("synthesize turn %d (%s): %w", i+1, turn.Speaker, err)
		}
		segments = append(segments, audio)
	}
	if len(segments) == 0 {
		return nil, errors.New("no dialogue to synthesize")
	}
	if strings.EqualFold(format, "wav") {
		return mergeWAV(segments)
	}
	// mp3, aac and opus streams are frame based and play back concatenated.
	return bytes.Join(segments, nil), nil
}

type wavSegment struct {
	format []byte
	data   []byte
}

// mergeWAV joins RIFF/WAVE files that share one fmt chunk into a single file.
func mergeWAV(segments [][]byte) ([]byte, error) {
	var (
		format []byte
		data   bytes.Buffer
	)
	for i, raw := range segments {
		seg, err := parseWAV(raw)
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", i+1, err)
		}
		if format == nil {
			format = seg.format
		} else if !bytes.Equal(format, seg.format) {
			return nil, fmt.Errorf("segment %d: sample format differs from segment 1", i+1)
		}
		data.Write(seg.data)
	}

	var out bytes.Buffer
	riffSize := 4 + (8 + len(format)) + (8 + data.Len())
	out.WriteString("RIFF")
	_ = binary.Write(&out, binary.LittleEndian, uint32(riffSize))
	out.WriteString("WAVE")
	out.WriteString("fmt ")
	_ = binary.Write(&out, binary.LittleEndian, uint32(len(format)))
	out.Write(format)
	out.WriteString("data")
	_ = binary.Write(&out, binary.LittleEndian, uint32(data.Len()))
	out.Write(data.Bytes())
	return out.Bytes(), nil
}

func parseWAV(raw []byte) (wavSegment, error) {
	var seg wavSegment
	if len(raw) < 12 || string(raw[0:4]) != "RIFF" || string(raw[8:12]) != "WAVE" {
		return seg, errors.New("not a RIFF/WAVE file")
	}
	pos := 12
	for pos+8 <= len(raw) {
		id := string(raw[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(raw[pos+4 : pos+8]))
		body := pos + 8
		end := body + size
		// streamed WAVs may carry a placeholder size on the data chunk
		if end > len(raw) || (id == "data" && size == 0) {
			end = len(raw)
		}
		switch id {
		case "fmt ":
			seg.format = raw[body:end]
		case "data":
			seg.data = raw[body:end]
		}
		pos = end + (size & 1)
	}
	if seg.format == nil || seg.data == nil {
		return seg, errors.New("missing fmt or data chunk")
	}
	return seg, nil
}
