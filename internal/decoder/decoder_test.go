package decoder

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"wavemood/internal/types"

	"github.com/mewkiz/flac/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuantizePCM16Clips(t *testing.T) {
	got := QuantizePCM16([]float32{0, 0.5, 1, 1.5, -1, -3, float32(math.NaN())})
	assert.Equal(t, []int{0, 16383, 32767, 32767, -32767, -32767, 0}, got)
}

func TestWriteMonoWAVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tone.wav")
	const sr = 22050
	samples := make([]float32, sr/2)
	for i := range samples {
		samples[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/sr))
	}

	require.NoError(t, WriteMonoWAV(path, samples, sr))

	registry := NewDecoderRegistry()
	matrix, file, err := registry.LoadMatrix(path)
	require.NoError(t, err)
	assert.Equal(t, "WAV", file.GetFormat())
	assert.Equal(t, 16, file.GetBitDepth())
	assert.Equal(t, 1, matrix.Channels)
	assert.Equal(t, sr, matrix.SampleRate)
	assert.Equal(t, len(samples), matrix.Frames())
	assert.InDelta(t, 0.5, matrix.Seconds(), 1e-6)
	for i := 0; i < len(samples); i += 97 {
		assert.InDelta(t, samples[i], matrix.Data[i], 1e-3)
	}
}

func TestWriteMonoWAVRejectsBadRate(t *testing.T) {
	err := WriteMonoWAV(filepath.Join(t.TempDir(), "x.wav"), []float32{0}, 0)
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.ValidationError))
}

func TestGetDecoderUnsupported(t *testing.T) {
	registry := NewDecoderRegistry()

	_, err := registry.GetDecoder("song.ogg")
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.ValidationError))

	_, err = registry.GetDecoder("noext")
	assert.True(t, types.IsKind(err, types.ValidationError))

	assert.True(t, registry.Supports("A.WAV"))
	assert.True(t, registry.Supports("b.flac"))
	assert.True(t, registry.Supports("c.mp3"))
	assert.False(t, registry.Supports("d.txt"))
}

func TestLoadMatrixCorruptFile(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"bad.wav", "bad.flac", "bad.mp3"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("definitely not audio"), 0o644))

		_, _, err := NewDecoderRegistry().LoadMatrix(path)
		require.Error(t, err, name)
		assert.True(t, types.IsKind(err, types.IOError), name)
	}
}

func TestLoadMatrixMissingFile(t *testing.T) {
	_, _, err := NewDecoderRegistry().LoadMatrix(filepath.Join(t.TempDir(), "missing.wav"))
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.IOError))
}

func TestSampleMatrixMono(t *testing.T) {
	m := types.NewSampleMatrix([]float64{1, 0, 0.5, 0.5, -1, 1}, 2, 8000)
	assert.Equal(t, 3, m.Frames())
	assert.Equal(t, []float64{0.5, 0.5, 0}, m.Mono())
}

func TestLoadMatrixFLACStereoWithTags(t *testing.T) {
	matrix, file, err := NewDecoderRegistry().LoadMatrix(filepath.Join("testdata", "tagged_stereo.flac"))
	require.NoError(t, err)

	assert.Equal(t, "FLAC", file.GetFormat())
	assert.Equal(t, 16, file.GetBitDepth())
	assert.Equal(t, 2, file.GetChannels())
	assert.Equal(t, 44100, file.GetSampleRate())
	assert.Equal(t, 2, matrix.Channels)
	assert.Equal(t, 44100, matrix.SampleRate)
	assert.Equal(t, 5880, matrix.Frames())
	assert.Len(t, matrix.Data, 5880*2)
	assert.InDelta(t, 5880.0/44100, matrix.Seconds(), 1e-9)

	md := file.GetMetadata()
	assert.Equal(t, "1", md.Artist)
	assert.Equal(t, "2", md.Title)
	assert.Equal(t, file.GetDuration().String(), md.Duration)
}

func TestLoadMatrixFLACMono(t *testing.T) {
	matrix, file, err := NewDecoderRegistry().LoadMatrix(filepath.Join("testdata", "tone.flac"))
	require.NoError(t, err)

	assert.Equal(t, "FLAC", file.GetFormat())
	assert.Equal(t, 1, matrix.Channels)
	assert.Equal(t, 44100, matrix.SampleRate)
	assert.Equal(t, 22050, matrix.Frames())
	assert.InDelta(t, 0.5, matrix.Seconds(), 1e-9)

	peak := 0.0
	for _, v := range matrix.Data {
		peak = math.Max(peak, math.Abs(float64(v)))
	}
	assert.Greater(t, peak, 0.0)
	assert.LessOrEqual(t, peak, 1.0)
}

func TestLoadMatrixMP3(t *testing.T) {
	matrix, file, err := NewDecoderRegistry().LoadMatrix(filepath.Join("testdata", "tone.mp3"))
	require.NoError(t, err)

	assert.Equal(t, "MP3", file.GetFormat())
	assert.Equal(t, 2, file.GetChannels())
	assert.Equal(t, 44100, matrix.SampleRate)
	assert.Equal(t, 2, matrix.Channels)
	assert.Greater(t, matrix.Frames(), 0)
	assert.Len(t, matrix.Data, matrix.Frames()*2)
	// 单声道源解码为双声道，左右声道一致
	for i := 0; i < len(matrix.Data); i += 2 {
		require.Equal(t, matrix.Data[i], matrix.Data[i+1], "frame %d", i/2)
	}
	// 编码器会在首尾补齐静音
	assert.GreaterOrEqual(t, matrix.Seconds(), 0.45)
	assert.Less(t, matrix.Seconds(), 1.0)
	assert.Equal(t, file.GetDuration().String(), file.GetMetadata().Duration)
}

func TestLoadMatrixWAVFixture(t *testing.T) {
	matrix, file, err := NewDecoderRegistry().LoadMatrix(filepath.Join("testdata", "tone.wav"))
	require.NoError(t, err)

	assert.Equal(t, "WAV", file.GetFormat())
	assert.Equal(t, 22050, matrix.Frames())
	assert.InDelta(t, 2.0/32768, matrix.Data[0], 1e-12)
	assert.InDelta(t, 1639.0/32768, matrix.Data[1], 1e-12)
	assert.InDelta(t, 10808.0/32768, matrix.Data[1000], 1e-12)
}

func TestInterleaveFrame(t *testing.T) {
	subframes := []*frame.Subframe{
		{Samples: []int32{1, 2, 3}},
		{Samples: []int32{-1, -2, -3}},
	}
	got := interleaveFrame([]float64{9}, subframes, 0.5)
	assert.Equal(t, []float64{9, 0.5, -0.5, 1, -1, 1.5, -1.5}, got)
}
