package ffmpeg

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	log "github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/logger"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

type ProbeData struct {
	Streams []ProbeStream `json:"streams"`
	Format  ProbeFormat   `json:"format"`
}

type ProbeFormat struct {
	Filename       string `json:"filename"`
	NBStreams      int    `json:"nb_streams"`
	FormatName     string `json:"format_name"`
	FormatLongName string `json:"format_long_name"`
	StartTime      string `json:"start_time"`
	Duration       string `json:"duration"`
	Size           string `json:"size"`
	BitRate        string `json:"bit_rate"`
	ProbeScore     int    `json:"probe_score"`
}

type ProbeStream struct {
	CodecType  string `json:"codec_type"`
	CodecName  string `json:"codec_name"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
	Duration   string `json:"duration"`
}

func GetProbeData(ctx context.Context, filePath string) (ProbeData, *log.Status) {
	var result ProbeData
	data, err := ffmpeg.Probe(filePath)
	if err != nil {
		return result, log.Error(ctx, 500, err, "Error probing audio file", filePath)
	}
	err = json.Unmarshal([]byte(data), &result)
	if err != nil {
		return result, log.Error(ctx, 500, err, "Error parsing probe data", filePath)
	}
	return result, nil
}

func GetAudioDuration(ctx context.Context, filePath string) (float64, *log.Status) {
	var result float64
	probeData, status := GetProbeData(ctx, filePath)
	if status != nil {
		return result, status
	}
	if strings.TrimSpace(probeData.Format.Duration) != "" {
		var err error
		result, err = strconv.ParseFloat(probeData.Format.Duration, 64)
		if err != nil {
			return result, log.Error(ctx, 500, err, "Data conversion error in ffmpeg.GetAudioDuration")
		}
	}
	if result <= 0 {
		return result, log.ErrorNoErr(ctx, 500, "Invalid audio duration", filePath)
	}
	return result, nil
}

// GetAudioFormat returns the sample rate and channel count of the first audio stream.
func GetAudioFormat(ctx context.Context, filePath string) (int, int, *log.Status) {
	probeData, status := GetProbeData(ctx, filePath)
	if status != nil {
		return 0, 0, status
	}
	for _, stream := range probeData.Streams {
		if stream.CodecType == "audio" {
			sampleRate, err := strconv.Atoi(stream.SampleRate)
			if err != nil {
				return 0, 0, log.Error(ctx, 500, err, "Data conversion error in ffmpeg.GetAudioFormat")
			}
			return sampleRate, stream.Channels, nil
		}
	}
	return 0, 0, log.ErrorNoErr(ctx, 500, "No audio stream found", filePath)
}
