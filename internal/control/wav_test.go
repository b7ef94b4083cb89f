package control

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func writeWAV(t *testing.T, sampleRate, channels int, data []int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadWAVDownmixesAndResamples(t *testing.T) {
	t.Parallel()

	// 8kHz stereo: left full scale positive, right silent
	frames := 800
	data := make([]int, 0, frames*2)
	for i := 0; i < frames; i++ {
		data = append(data, 16384, 0)
	}
	samples, err := readWAVMono16k(writeWAV(t, 8000, 2, data))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(samples) != 1600 {
		t.Fatalf("expected 1600 samples at 16kHz, got %d", len(samples))
	}
	if math.Abs(float64(samples[100])-0.25) > 0.001 {
		t.Fatalf("expected downmixed amplitude 0.25, got %f", samples[100])
	}
}

func TestReadWAVRejectsGarbage(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.wav")
	if err := os.WriteFile(path, []byte("not a wav file at all"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := readWAVMono16k(path); err == nil {
		t.Fatalf("expected error for invalid file")
	}
}

func TestResampleLinearLength(t *testing.T) {
	t.Parallel()

	in := []float32{0, 1, 2, 3}
	if out := resampleLinear(in, 16000, 8000); len(out) != 2 {
		t.Fatalf("downsample length got %d", len(out))
	}
	if out := resampleLinear(in, 8000, 16000); len(out) != 8 {
		t.Fatalf("upsample length got %d", len(out))
	}
}

func TestResampleLinearEnds(t *testing.T) {
	t.Parallel()

	out := resampleLinear([]float32{0, 10}, 1000, 2000)
	if out[0] != 0 || out[len(out)-1] != 10 {
		t.Fatalf("endpoints not preserved: %v", out)
	}
}
