package owlutils

import "math"

// Readings are stored as tenths of an ampere - No negative values
func AmpToDeciAmp(amp float64) uint32 {
	if amp < 0 {
		return 0
	}
	return uint32(math.Round(amp * 10))
}

func DeciAmpToAmp(deciAmp uint32) float64 {
	return float64(deciAmp) / 10
}

// Approximate power draw for a mains voltage - No negative values
func AmpToWatt(amp float64, mainsVoltage float64) uint32 {
	if amp < 0 || mainsVoltage < 0 {
		return 0
	}
	return uint32(math.Round(amp * mainsVoltage))
}
