package query

import (
	"errors"
	"testing"
)

func TestChunks(t *testing.T) {
	tests := []struct {
		name string
		keys []string
		size int
		want [][]string
	}{
		{
			name: "even split",
			keys: []string{"A", "B", "C", "D"},
			size: 2,
			want: [][]string{{"A", "B"}, {"C", "D"}},
		},
		{
			name: "short tail",
			keys: []string{"A", "B", "C", "D", "E"},
			size: 2,
			want: [][]string{{"A", "B"}, {"C", "D"}, {"E"}},
		},
		{
			name: "single oversized chunk",
			keys: []string{"A", "B"},
			size: 50,
			want: [][]string{{"A", "B"}},
		},
		{
			name: "empty input",
			keys: nil,
			size: 10,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq, err := Chunks(tt.keys, tt.size)
			if err != nil {
				t.Fatalf("Chunks() error = %v", err)
			}

			var got [][]string
			for chunk := range seq {
				got = append(got, chunk)
			}

			if len(got) != len(tt.want) {
				t.Fatalf("Got %d chunks, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if len(got[i]) != len(tt.want[i]) {
					t.Fatalf("Chunk %d = %v, want %v", i, got[i], tt.want[i])
				}
				for j := range got[i] {
					if got[i][j] != tt.want[i][j] {
						t.Errorf("Chunk %d[%d] = %q, want %q", i, j, got[i][j], tt.want[i][j])
					}
				}
			}
		})
	}
}

func TestChunksInvalidSize(t *testing.T) {
	for _, size := range []int{0, -1, -50} {
		if _, err := Chunks([]string{"A"}, size); !errors.Is(err, ErrInvalidLimit) {
			t.Errorf("Chunks(size=%d) error = %v, want ErrInvalidLimit", size, err)
		}
	}
}
