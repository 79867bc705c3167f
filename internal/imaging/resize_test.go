package imaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFitWithin(t *testing.T) {
	tests := []struct {
		name  string
		w, h  int
		max   int
		wantW int
		wantH int
	}{
		{name: "fits already", w: 300, h: 200, max: 400, wantW: 300, wantH: 200},
		{name: "exact fit", w: 400, h: 400, max: 400, wantW: 400, wantH: 400},
		{name: "wide", w: 800, h: 400, max: 400, wantW: 400, wantH: 200},
		{name: "tall", w: 400, h: 800, max: 400, wantW: 200, wantH: 400},
		{name: "square", w: 1000, h: 1000, max: 400, wantW: 400, wantH: 400},
		{name: "extreme aspect floors to one", w: 10000, h: 2, max: 400, wantW: 400, wantH: 1},
		{name: "never upscales", w: 50, h: 30, max: 2048, wantW: 50, wantH: 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotW, gotH := fitWithin(tt.w, tt.h, tt.max)
			assert.Equal(t, tt.wantW, gotW)
			assert.Equal(t, tt.wantH, gotH)
		})
	}
}
