// ABOUTME: Live speech synthesis backend on Amazon Polly.
// ABOUTME: Wraps a narrow client interface so tests can substitute a fake.

package provider

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"
)

// defaultVoice is used when the caller does not name one.
const defaultVoice = "Joanna"

// speechCharsPerSecond approximates neural-voice speaking rate for the
// duration estimate returned alongside the audio.
const speechCharsPerSecond = 15.0

// PollyAPI is the slice of the Polly client this backend uses.
type PollyAPI interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
	DescribeVoices(ctx context.Context, params *polly.DescribeVoicesInput, optFns ...func(*polly.Options)) (*polly.DescribeVoicesOutput, error)
}

var _ PollyAPI = (*polly.Client)(nil)

// Polly turns text into speech through Amazon Polly. It implements
// Synthesizer.
type Polly struct {
	client PollyAPI
	logger *slog.Logger
}

// NewPolly creates the live speech backend.
func NewPolly(client PollyAPI, logger *slog.Logger) *Polly {
	return &Polly{
		client: client,
		logger: logger.With("component", "polly"),
	}
}

// Synthesize renders text as MP3 audio with the named voice.
func (p *Polly) Synthesize(ctx context.Context, text, voice string) (*Synthesis, error) {
	if voice == "" {
		voice = defaultVoice
	}

	out, err := p.client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		OutputFormat: types.OutputFormatMp3,
		Text:         aws.String(text),
		VoiceId:      types.VoiceId(voice),
		Engine:       types.EngineNeural,
	})
	if err != nil {
		return nil, mapAWSError("synthesizing speech", err)
	}
	defer out.AudioStream.Close()

	audio, err := io.ReadAll(out.AudioStream)
	if err != nil {
		return nil, fmt.Errorf("reading audio stream: %w", err)
	}

	p.logger.Debug("synthesized speech", "voice", voice, "bytes", len(audio))
	return &Synthesis{
		Audio:    audio,
		Format:   "mp3",
		Duration: float64(len(text)) / speechCharsPerSecond,
	}, nil
}

// ListVoices returns the voices available for synthesis.
func (p *Polly) ListVoices(ctx context.Context) ([]Voice, error) {
	out, err := p.client.DescribeVoices(ctx, &polly.DescribeVoicesInput{
		Engine: types.EngineNeural,
	})
	if err != nil {
		return nil, mapAWSError("listing voices", err)
	}

	voices := make([]Voice, 0, len(out.Voices))
	for _, v := range out.Voices {
		voices = append(voices, Voice{
			ID:       string(v.Id),
			Name:     aws.ToString(v.Name),
			Language: string(v.LanguageCode),
		})
	}
	return voices, nil
}
