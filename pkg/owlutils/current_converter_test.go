package owlutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAmpDeciAmpConversion(t *testing.T) {
	assert.Equal(t, uint32(41), AmpToDeciAmp(4.1))
	assert.Equal(t, uint32(0), AmpToDeciAmp(-1.0))
	assert.Equal(t, 4.1, DeciAmpToAmp(41))
}

func TestAmpToWatt(t *testing.T) {
	assert.Equal(t, uint32(943), AmpToWatt(4.1, 230))
	assert.Equal(t, uint32(0), AmpToWatt(-4.1, 230))
}
