package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/piracysim/piracysim/pkg/core"
)

func TestNewShip_DefaultDirections(t *testing.T) {
	tests := []struct {
		kind core.ShipKind
		want Vec
	}{
		{core.KindCargo, Vec{1, 0}},
		{core.KindPatrol, Vec{-2, 0}},
		{core.KindPirate, Vec{0, -1}},
		{core.KindCapture, Vec{0, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			s := NewShip(tt.kind, 1, Vec{5, 5})
			assert.Equal(t, tt.want, s.Dir)
			s.Move()
			assert.Equal(t, Vec{5, 5}.Add(tt.want), s.Pos)
		})
	}
}

func TestShipClone_IsDeep(t *testing.T) {
	s := NewShip(core.KindCargo, 4, Vec{1, 2})
	s.EvadedPirates = []int{7, 9}

	c := s.Clone()
	assert.Equal(t, s, c)
	assert.NotSame(t, s, c)

	c.EvadedPirates[0] = 100
	c.Pos = Vec{0, 0}
	assert.Equal(t, []int{7, 9}, s.EvadedPirates)
	assert.Equal(t, Vec{1, 2}, s.Pos)
}

func TestInLooseRange(t *testing.T) {
	s := NewShip(core.KindPatrol, 1, Vec{10, 10})
	tests := []struct {
		name string
		p    Vec
		r    int
		want bool
	}{
		{"same cell", Vec{10, 10}, 0, true},
		{"corner of square", Vec{13, 7}, 3, true},
		{"one axis too far", Vec{14, 10}, 3, false},
		{"other axis too far", Vec{10, 6}, 3, false},
		{"inside", Vec{11, 9}, 2, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.InLooseRange(tt.p, tt.r))
		})
	}
}

func TestInStrictRing(t *testing.T) {
	s := NewShip(core.KindCargo, 1, Vec{10, 10})
	tests := []struct {
		name string
		p    Vec
		want bool
	}{
		{"east edge", Vec{14, 10}, true},
		{"north edge", Vec{10, 6}, true},
		{"corner", Vec{6, 14}, true},
		{"edge off-center", Vec{14, 7}, true},
		{"inside ring", Vec{13, 13}, false},
		{"adjacent", Vec{11, 10}, false},
		{"outside ring", Vec{15, 10}, false},
		{"past corner", Vec{14, 15}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.InStrictRing(tt.p, 4))
		})
	}
}

func TestBounds_HalfOpen(t *testing.T) {
	b := GridBounds(10, 20)
	assert.True(t, b.Contains(Vec{0, 0}))
	assert.True(t, b.Contains(Vec{19, 9}))
	assert.False(t, b.Contains(Vec{20, 5}))
	assert.False(t, b.Contains(Vec{5, 10}))
	assert.False(t, b.Contains(Vec{-1, 5}))
	assert.False(t, b.Contains(Vec{5, -1}))
}

func TestCounter(t *testing.T) {
	c := NewCounter(0)
	assert.Equal(t, 0, c.NextID())
	assert.Equal(t, 1, c.NextID())

	c.Observe(10)
	assert.Equal(t, 11, c.NextID())

	c.Observe(3)
	assert.Equal(t, 12, c.Peek())
}
