// Package speech converts wishes between audio and text at the API boundary.
package speech

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"jinn/internal/logging"
)

// Transcriber turns recorded speech into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// Synthesizer turns text into speech. It returns the audio and its MIME type.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, string, error)
}

// Options configures the Gemini speech services.
type Options struct {
	TranscribeModel string
	VoiceModel      string
	Voice           string
}

// Gemini implements Transcriber and Synthesizer with the Gemini API.
type Gemini struct {
	client *genai.Client
	opts   Options
}

// NewGemini creates speech services on an existing GenAI client.
func NewGemini(client *genai.Client, opts Options) *Gemini {
	if opts.TranscribeModel == "" {
		opts.TranscribeModel = "gemini-2.5-flash"
	}
	if opts.VoiceModel == "" {
		opts.VoiceModel = "gemini-2.5-flash-preview-tts"
	}
	if opts.Voice == "" {
		opts.Voice = "Kore"
	}
	return &Gemini{client: client, opts: opts}
}

const transcribePrompt = "Transcribe this recording verbatim. Reply with the transcript only."

// Transcribe returns the words spoken in audio.
func (g *Gemini) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("empty audio")
	}
	timer := logging.StartTimer(logging.CategorySpeech, "transcribe")
	defer timer.Stop()

	content := genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromText(transcribePrompt),
		genai.NewPartFromBytes(audio, mimeType),
	}, genai.RoleUser)

	resp, err := g.client.Models.GenerateContent(ctx, g.opts.TranscribeModel, []*genai.Content{content},
		&genai.GenerateContentConfig{Temperature: genai.Ptr[float32](0)})
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("transcription returned no text")
	}
	logging.Get(logging.CategorySpeech).Debug("transcribed %d bytes of %s into %d chars", len(audio), mimeType, len(text))
	return text, nil
}

// Synthesize speaks text. Gemini returns raw 16-bit PCM which is wrapped in
// a WAV container.
func (g *Gemini) Synthesize(ctx context.Context, text string) ([]byte, string, error) {
	timer := logging.StartTimer(logging.CategorySpeech, "synthesize")
	defer timer.Stop()

	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: g.opts.Voice},
			},
		},
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.opts.VoiceModel,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, cfg)
	if err != nil {
		return nil, "", fmt.Errorf("speech synthesis failed: %w", err)
	}

	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			mime := part.InlineData.MIMEType
			if strings.HasPrefix(mime, "audio/L16") || strings.HasPrefix(mime, "audio/pcm") || mime == "" {
				return WAV(part.InlineData.Data, sampleRate(mime), 1), "audio/wav", nil
			}
			return part.InlineData.Data, mime, nil
		}
	}
	return nil, "", fmt.Errorf("speech synthesis returned no audio")
}

// sampleRate reads the rate parameter of an audio/L16 MIME type.
func sampleRate(mime string) int {
	for _, param := range strings.Split(mime, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || k != "rate" {
			continue
		}
		var rate int
		if _, err := fmt.Sscanf(v, "%d", &rate); err == nil && rate > 0 {
			return rate
		}
	}
	return 24000
}

// WAV wraps 16-bit little endian PCM samples in a RIFF/WAVE header.
func WAV(pcm []byte, rate, channels int) []byte {
	const bitsPerSample = 16
	blockAlign := channels * bitsPerSample / 8

	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(rate))
	binary.Write(&buf, binary.LittleEndian, uint32(rate*blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}
