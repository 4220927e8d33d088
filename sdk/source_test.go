package sdk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSource_Validate(t *testing.T) {
	testCases := []struct {
		name          string
		source        *Source
		expectedError bool
	}{
		{
			name: "valid html source",
			source: &Source{
				Country:        "GB",
				VisaType:       "Student",
				URL:            "https://www.gov.uk/student-visa",
				FetchType:      FetchTypeHTML,
				CheckFrequency: CheckFrequencyDaily,
			},
			expectedError: false,
		},
		{
			name: "valid pdf source with custom cadence",
			source: &Source{
				Country:        "DE",
				VisaType:       "Work",
				URL:            "https://example.com/policy.pdf",
				FetchType:      FetchTypePDF,
				CheckFrequency: CheckFrequencyCustom,
			},
			expectedError: false,
		},
		{
			name: "lowercase country",
			source: &Source{
				Country:        "gb",
				VisaType:       "Student",
				URL:            "https://www.gov.uk/student-visa",
				FetchType:      FetchTypeHTML,
				CheckFrequency: CheckFrequencyDaily,
			},
			expectedError: true,
		},
		{
			name: "three character country",
			source: &Source{
				Country:        "GBR",
				VisaType:       "Student",
				URL:            "https://www.gov.uk/student-visa",
				FetchType:      FetchTypeHTML,
				CheckFrequency: CheckFrequencyDaily,
			},
			expectedError: true,
		},
		{
			name: "missing url",
			source: &Source{
				Country:        "GB",
				VisaType:       "Student",
				FetchType:      FetchTypeHTML,
				CheckFrequency: CheckFrequencyDaily,
			},
			expectedError: true,
		},
		{
			name: "missing visa type",
			source: &Source{
				Country:        "GB",
				URL:            "https://www.gov.uk/student-visa",
				FetchType:      FetchTypeHTML,
				CheckFrequency: CheckFrequencyDaily,
			},
			expectedError: true,
		},
		{
			name: "api fetch type rejected for stored sources",
			source: &Source{
				Country:        "GB",
				VisaType:       "Student",
				URL:            "https://www.gov.uk/student-visa",
				FetchType:      FetchTypeAPI,
				CheckFrequency: CheckFrequencyDaily,
			},
			expectedError: true,
		},
		{
			name: "invalid check frequency",
			source: &Source{
				Country:        "GB",
				VisaType:       "Student",
				URL:            "https://www.gov.uk/student-visa",
				FetchType:      FetchTypeHTML,
				CheckFrequency: CheckFrequency("hourly"),
			},
			expectedError: true,
		},
		{
			name: "negative failure counter",
			source: &Source{
				Country:                  "GB",
				VisaType:                 "Student",
				URL:                      "https://www.gov.uk/student-visa",
				FetchType:                FetchTypeHTML,
				CheckFrequency:           CheckFrequencyDaily,
				ConsecutiveFetchFailures: -1,
			},
			expectedError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.source.Validate()
			if tc.expectedError {
				assert.Error(t, err, tc.name)
			} else {
				assert.NoError(t, err, tc.name)
			}
		})
	}
}

func TestMatchVisaTypes(t *testing.T) {
	testCases := []struct {
		name           string
		a              string
		b              string
		expectedOutput bool
	}{
		{name: "exact match", a: "Student", b: "Student", expectedOutput: true},
		{name: "case insensitive match", a: "student", b: "Student", expectedOutput: true},
		{name: "mismatch", a: "Student", b: "Work", expectedOutput: false},
		{name: "both on the left matches anything", a: "Both", b: "Work", expectedOutput: true},
		{name: "both on the right matches anything", a: "Student", b: "Both", expectedOutput: true},
		{name: "both on both sides", a: "Both", b: "Both", expectedOutput: true},
		{name: "both is case insensitive", a: "both", b: "Work", expectedOutput: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expectedOutput, MatchVisaTypes(tc.a, tc.b), tc.name)
		})
	}
}

func TestSource_ConfigString(t *testing.T) {
	s := &Source{Config: map[string]interface{}{
		"user_agent": "custom/1.0",
		"attempts":   3,
	}}

	assert.Equal(t, "custom/1.0", s.ConfigString("user_agent"))
	assert.Equal(t, "", s.ConfigString("attempts"))
	assert.Equal(t, "", s.ConfigString("missing"))

	var empty Source
	assert.Equal(t, "", empty.ConfigString("user_agent"))
}
