package asset

import "testing"

func TestDetect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		hint string
		head []byte
		want container
	}{
		{"wav extension", ".wav", nil, formatWAV},
		{"wav content type", "audio/x-wav", nil, formatWAV},
		{"mp3 extension", ".mp3", nil, formatMP3},
		{"mpeg content type", "audio/mpeg", nil, formatMP3},
		{"riff header", "", []byte("RIFF\x24\x00\x00\x00WAVEfmt "), formatWAV},
		{"id3 header", "application/octet-stream", []byte("ID3\x04\x00"), formatMP3},
		{"frame sync", "", []byte{0xFF, 0xFB, 0x90, 0x00}, formatMP3},
		{"unknown", ".bin", []byte("hello"), formatUnknown},
		{"empty", "", nil, formatUnknown},
	}
	for _, tt := range tests {
		if got := detect(tt.hint, tt.head); got != tt.want {
			t.Errorf("%s: detect = %d, want %d", tt.name, got, tt.want)
		}
	}
}
