package embedjob

import "testing"

func TestConfig_Clamp(t *testing.T) {
	tests := []struct {
		name string
		in   Config
		want Config
	}{
		{
			name: "defaults pass through",
			in:   DefaultConfig(),
			want: DefaultConfig(),
		},
		{
			name: "everything too large",
			in:   Config{BatchSize: 5000, DelayMS: 99, RetryAttempts: 50, Workers: 20, SkipExisting: true},
			want: Config{BatchSize: 1000, DelayMS: 99, RetryAttempts: 10, Workers: 5, Priority: "normal", SkipExisting: true},
		},
		{
			name: "everything too small",
			in:   Config{BatchSize: 0, DelayMS: -1, RetryAttempts: -3, Workers: 0},
			want: Config{BatchSize: 1, DelayMS: 0, RetryAttempts: 0, Workers: 1, Priority: "normal"},
		},
		{
			name: "boundaries kept",
			in:   Config{BatchSize: 1000, DelayMS: 0, RetryAttempts: 10, Workers: 5, Priority: "high"},
			want: Config{BatchSize: 1000, DelayMS: 0, RetryAttempts: 10, Workers: 5, Priority: "high"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.Clamp(); got != tt.want {
				t.Errorf("Clamp() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
