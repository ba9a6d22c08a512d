package conv

import "testing"

func TestParseFormat(t *testing.T) {
	tests := []struct {
		id      string
		want    Format
		wantErr bool
	}{
		{id: "pcm_16000", want: Format{Encoding: EncodingPCM, SampleRate: 16000}},
		{id: "pcm_48000", want: Format{Encoding: EncodingPCM, SampleRate: 48000}},
		{id: "pcm_22050", want: Format{Encoding: EncodingPCM, SampleRate: 22050}},
		{id: "ulaw_8000", want: Format{Encoding: EncodingULaw, SampleRate: 8000}},
		{id: "pcm_11025", wantErr: true},
		{id: "ulaw_16000", wantErr: true},
		{id: "mp3_44100", wantErr: true},
		{id: "pcm_abc", wantErr: true},
		{id: "pcm", wantErr: true},
		{id: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, err := ParseFormat(tt.id)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseFormat(%q) accepted an invalid id", tt.id)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseFormat(%q): %v", tt.id, err)
			}
			if got != tt.want {
				t.Fatalf("ParseFormat(%q) = %+v, want %+v", tt.id, got, tt.want)
			}
		})
	}
}

func TestFormatString(t *testing.T) {
	f := Format{Encoding: EncodingPCM, SampleRate: 24000}
	if got := f.String(); got != "pcm_24000" {
		t.Fatalf("String() = %q, want pcm_24000", got)
	}
}
