package utils

import "math"

// Round rounds a float64 value to 2 decimal places
// Used for health and metrics payloads to avoid unnecessary precision
func Round(val float64) float64 {
	// Use proper rounding that works for both positive and negative numbers
	return math.Round(val*100) / 100
}

// GBytes converts a byte count to gigabytes, rounded to 2 decimal places
func GBytes(bytes uint64) float64 {
	return Round(float64(bytes) / 1024 / 1024 / 1024)
}
