package forecast

import "strings"

var cloudCodes = map[string]bool{"CL": true, "FW": true, "SC": true, "BK": true, "OV": true}

// Lookup resolves a text key; it returns the key itself when it has no
// text.
type Lookup func(key string) string

// ObservationText turns an Aeris coded weather string
// (coverage:intensity:weather) into words. Cloud cover codes have their own
// text; other codes are spelled as coverage, intensity and weather.
func ObservationText(coded string, lookup Lookup) string {
	parts := strings.SplitN(coded, ":", 3)
	for len(parts) < 3 {
		parts = append([]string{""}, parts...)
	}
	coverage, intensity, weather := parts[0], parts[1], parts[2]

	if cloudCodes[weather] {
		return lookup("cloud_code_" + weather)
	}

	var words []string
	if coverage != "" {
		words = append(words, lookup("coverage_code_"+coverage))
	}
	if intensity != "" {
		words = append(words, lookup("intensity_code_"+intensity))
	}
	words = append(words, lookup("weather_code_"+weather))
	return strings.Join(words, " ")
}
