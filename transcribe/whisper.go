// Package transcribe turns a segment of the source vocal track into a
// word-timestamped analysis record. Whisper supplies the words, a librosa
// helper supplies pitch and energy, and the result is persisted twice: sqlite
// rows for the pipeline and a JSON file for audit.
package transcribe

import (
	"context"
	"os"

	log "github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/logger"
	openai "github.com/sashabaranov/go-openai"
)

// TranscribedWord is one word with segment-relative timestamps in seconds.
type TranscribedWord struct {
	Word  string
	Start float64
	End   float64
}

type Transcript struct {
	Language string
	Text     string
	Words    []TranscribedWord
}

// Transcriber is satisfied by WhisperClient and by test fakes.
type Transcriber interface {
	Transcribe(audioFile string) (Transcript, *log.Status)
}

type WhisperClient struct {
	ctx    context.Context
	client *openai.Client
	model  string
}

func NewWhisperClient(ctx context.Context, model string) (WhisperClient, *log.Status) {
	var w WhisperClient
	w.ctx = ctx
	w.model = model
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return w, log.ErrorNoErr(ctx, 400, "OPENAI_API_KEY is not set")
	}
	w.client = openai.NewClient(apiKey)
	return w, nil
}

// Transcribe requests a verbose transcription with word-level timestamps.
// A response with no words is a failure: there is nothing to partition.
func (w WhisperClient) Transcribe(audioFile string) (Transcript, *log.Status) {
	var result Transcript
	request := openai.AudioRequest{
		Model:    w.model,
		FilePath: audioFile,
		Format:   openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []openai.TranscriptionTimestampGranularity{
			openai.TranscriptionTimestampGranularityWord,
		},
	}
	response, err := w.client.CreateTranscription(w.ctx, request)
	if err != nil {
		return result, log.Error(w.ctx, 500, err, "Whisper transcription failed", audioFile)
	}
	result.Language = response.Language
	result.Text = response.Text
	for _, word := range response.Words {
		result.Words = append(result.Words, TranscribedWord{
			Word:  word.Word,
			Start: word.Start,
			End:   word.End,
		})
	}
	if len(result.Words) == 0 {
		return result, log.ErrorNoErr(w.ctx, 500, "Whisper returned no word timestamps", audioFile)
	}
	return result, nil
}
