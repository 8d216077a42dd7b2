package playback

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/pkg/errors"
	"layeh.com/gopus"

	"github.com/hudhaifi/murattal/pkg/catalog"
)

const (
	sampleRate   = 48000
	channels     = 2
	frameSamples = 960                         // samples per channel per 20ms frame
	framePCMLen  = frameSamples * channels     // int16 values per frame
	frameBytes   = frameSamples * channels * 2 // raw s16le bytes per frame
)

// pcmSource produces 20ms frames of interleaved 48kHz stereo s16le PCM.
// ReadFrame returns io.EOF when the track is exhausted.
type pcmSource interface {
	ReadFrame(pcm []int16) error
	Close() error
}

// frameEncoder turns one PCM frame into an opus packet.
type frameEncoder interface {
	Encode(pcm []int16) ([]byte, error)
}

type sourceFactory func(cfg Config, src *catalog.StreamSource, offset time.Duration) (pcmSource, error)

type encoderFactory func(bitrate int) (frameEncoder, error)

// newSource picks the decode path for a resolved stream: beep for local mp3
// files, ffmpeg for everything else.
func newSource(cfg Config, src *catalog.StreamSource, offset time.Duration) (pcmSource, error) {
	if src.Local {
		return newBeepSource(src.URL, offset)
	}
	return newFFmpegSource(cfg.FFmpegPath, src.URL, offset)
}

// ffmpegSource shells out to ffmpeg to decode a remote stream to raw PCM.
type ffmpegSource struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	reader *bufio.Reader
	buf    []byte
}

func newFFmpegSource(ffmpegPath, url string, offset time.Duration) (*ffmpegSource, error) {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5",
	}
	if offset > 0 {
		args = append(args, "-ss", fmt.Sprintf("%.3f", offset.Seconds()))
	}
	args = append(args,
		"-i", url,
		"-vn",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", "48000",
		"-ac", "2",
		"pipe:1",
	)

	cmd := exec.Command(ffmpegPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "ffmpeg stdout pipe")
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "starting ffmpeg")
	}

	return &ffmpegSource{
		cmd:    cmd,
		stdout: stdout,
		reader: bufio.NewReaderSize(stdout, frameBytes*4),
		buf:    make([]byte, frameBytes),
	}, nil
}

func (s *ffmpegSource) ReadFrame(pcm []int16) error {
	n, err := io.ReadFull(s.reader, s.buf)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return io.EOF
		}
		return errors.Wrap(err, "reading pcm from ffmpeg")
	}
	bytesToInt16(s.buf[:n], pcm)
	return nil
}

func (s *ffmpegSource) Close() error {
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	s.cmd.Wait()
	return nil
}

// bytesToInt16 converts little-endian s16le bytes into interleaved samples.
func bytesToInt16(raw []byte, pcm []int16) {
	for i := 0; i+1 < len(raw) && i/2 < len(pcm); i += 2 {
		pcm[i/2] = int16(raw[i]) | int16(raw[i+1])<<8
	}
}

// beepSource decodes a local mp3 file in-process.
type beepSource struct {
	file     *os.File
	decoded  beep.StreamSeekCloser
	streamer beep.Streamer
	samples  [][2]float64
}

func newBeepSource(path string, offset time.Duration) (*beepSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening local track")
	}

	decoded, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "decoding mp3")
	}

	if offset > 0 {
		pos := int(offset.Seconds() * float64(format.SampleRate))
		if pos < decoded.Len() {
			if err := decoded.Seek(pos); err != nil {
				decoded.Close()
				f.Close()
				return nil, errors.Wrap(err, "seeking mp3")
			}
		}
	}

	var streamer beep.Streamer = decoded
	if format.SampleRate != sampleRate {
		streamer = beep.Resample(4, format.SampleRate, sampleRate, decoded)
	}

	return &beepSource{
		file:     f,
		decoded:  decoded,
		streamer: streamer,
		samples:  make([][2]float64, frameSamples),
	}, nil
}

func (s *beepSource) ReadFrame(pcm []int16) error {
	n, ok := s.streamer.Stream(s.samples)
	if !ok && n == 0 {
		if err := s.decoded.Err(); err != nil {
			return errors.Wrap(err, "streaming mp3")
		}
		return io.EOF
	}

	for i := 0; i < frameSamples; i++ {
		var l, r float64
		if i < n {
			l, r = s.samples[i][0], s.samples[i][1]
		}
		pcm[i*2] = floatToInt16(l)
		pcm[i*2+1] = floatToInt16(r)
	}
	return nil
}

func (s *beepSource) Close() error {
	s.decoded.Close()
	return s.file.Close()
}

func floatToInt16(v float64) int16 {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int16(v * 32767)
}

// gopusEncoder wraps the opus codec at Discord's voice parameters.
type gopusEncoder struct {
	enc *gopus.Encoder
}

func newGopusEncoder(bitrate int) (frameEncoder, error) {
	enc, err := gopus.NewEncoder(sampleRate, channels, gopus.Audio)
	if err != nil {
		return nil, errors.Wrap(err, "creating opus encoder")
	}
	enc.SetBitrate(bitrate)
	return &gopusEncoder{enc: enc}, nil
}

func (g *gopusEncoder) Encode(pcm []int16) ([]byte, error) {
	return g.enc.Encode(pcm, frameSamples, frameBytes)
}
