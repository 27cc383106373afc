package billingsync

import "testing"

func TestISOTimestamp(t *testing.T) {
	tests := []struct {
		name  string
		epoch int64
		want  string
	}{
		{
			name:  "known epoch",
			epoch: 1700000000,
			want:  "2023-11-14T22:13:20.000Z",
		},
		{
			name:  "unix epoch",
			epoch: 0,
			want:  "1970-01-01T00:00:00.000Z",
		},
		{
			name:  "pre-epoch",
			epoch: -1,
			want:  "1969-12-31T23:59:59.000Z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ISOTimestamp(tt.epoch); got != tt.want {
				t.Errorf("ISOTimestamp(%d) = %q, want %q", tt.epoch, got, tt.want)
			}
		})
	}
}

func TestISOTimestampOrNil(t *testing.T) {
	if got := ISOTimestampOrNil(0); got != nil {
		t.Errorf("ISOTimestampOrNil(0) = %q, want nil", *got)
	}

	got := ISOTimestampOrNil(1700000000)
	if got == nil {
		t.Fatal("ISOTimestampOrNil(1700000000) = nil, want value")
	}
	if *got != "2023-11-14T22:13:20.000Z" {
		t.Errorf("ISOTimestampOrNil(1700000000) = %q, want %q", *got, "2023-11-14T22:13:20.000Z")
	}
}
