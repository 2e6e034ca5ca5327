// ABOUTME: Tests for the Polly speech backend using a fake client.
// ABOUTME: Covers synthesis, voice defaults, and voice catalog mapping.

package provider

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePolly struct {
	synthIn  *polly.SynthesizeSpeechInput
	synthErr error
	audio    []byte
	voices   []types.Voice
}

func (f *fakePolly) SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error) {
	f.synthIn = params
	if f.synthErr != nil {
		return nil, f.synthErr
	}
	return &polly.SynthesizeSpeechOutput{
		AudioStream: io.NopCloser(bytes.NewReader(f.audio)),
	}, nil
}

func (f *fakePolly) DescribeVoices(ctx context.Context, params *polly.DescribeVoicesInput, optFns ...func(*polly.Options)) (*polly.DescribeVoicesOutput, error) {
	return &polly.DescribeVoicesOutput{Voices: f.voices}, nil
}

func TestPolly_Synthesize(t *testing.T) {
	fake := &fakePolly{audio: []byte("mp3bytes")}
	p := NewPolly(fake, testLogger())

	syn, err := p.Synthesize(context.Background(), "hello world", "Matthew")
	require.NoError(t, err)

	assert.Equal(t, []byte("mp3bytes"), syn.Audio)
	assert.Equal(t, "mp3", syn.Format)
	assert.Greater(t, syn.Duration, 0.0)

	require.NotNil(t, fake.synthIn)
	assert.Equal(t, types.VoiceId("Matthew"), fake.synthIn.VoiceId)
	assert.Equal(t, types.OutputFormatMp3, fake.synthIn.OutputFormat)
	assert.Equal(t, "hello world", aws.ToString(fake.synthIn.Text))
}

func TestPolly_Synthesize_DefaultVoice(t *testing.T) {
	fake := &fakePolly{audio: []byte("x")}
	p := NewPolly(fake, testLogger())

	_, err := p.Synthesize(context.Background(), "hi", "")
	require.NoError(t, err)
	assert.Equal(t, types.VoiceId("Joanna"), fake.synthIn.VoiceId)
}

func TestPolly_ListVoices(t *testing.T) {
	fake := &fakePolly{
		voices: []types.Voice{
			{Id: types.VoiceId("Joanna"), Name: aws.String("Joanna"), LanguageCode: types.LanguageCode("en-US")},
			{Id: types.VoiceId("Amy"), Name: aws.String("Amy"), LanguageCode: types.LanguageCode("en-GB")},
		},
	}
	p := NewPolly(fake, testLogger())

	voices, err := p.ListVoices(context.Background())
	require.NoError(t, err)

	require.Len(t, voices, 2)
	assert.Equal(t, Voice{ID: "Joanna", Name: "Joanna", Language: "en-US"}, voices[0])
	assert.Equal(t, Voice{ID: "Amy", Name: "Amy", Language: "en-GB"}, voices[1])
}
