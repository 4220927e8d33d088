package sdk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const testHashA = "a665a45920422f9d417e4867efdc4fb8a04a1f3fff1fa07e998e86f7f7a27ae3"
const testHashB = "b665a45920422f9d417e4867efdc4fb8a04a1f3fff1fa07e998e86f7f7a27ae3"

func TestValidContentHash(t *testing.T) {
	assert.True(t, ValidContentHash(testHashA))
	assert.False(t, ValidContentHash(strings.ToUpper(testHashA)))
	assert.False(t, ValidContentHash(testHashA[:63]))
	assert.False(t, ValidContentHash(""))
}

func TestPolicyVersion_Validate(t *testing.T) {
	testCases := []struct {
		name          string
		version       *PolicyVersion
		expectedError bool
	}{
		{
			name: "valid version",
			version: &PolicyVersion{
				SourceID:      1,
				ContentHash:   testHashA,
				RawText:       "hello",
				ContentLength: 5,
			},
			expectedError: false,
		},
		{
			name: "invalid hash",
			version: &PolicyVersion{
				SourceID:      1,
				ContentHash:   "nope",
				RawText:       "hello",
				ContentLength: 5,
			},
			expectedError: true,
		},
		{
			name: "content length disagrees with raw text",
			version: &PolicyVersion{
				SourceID:      1,
				ContentHash:   testHashA,
				RawText:       "hello",
				ContentLength: 4,
			},
			expectedError: true,
		},
		{
			name: "missing source id",
			version: &PolicyVersion{
				ContentHash:   testHashA,
				RawText:       "hello",
				ContentLength: 5,
			},
			expectedError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.version.Validate()
			if tc.expectedError {
				assert.Error(t, err, tc.name)
			} else {
				assert.NoError(t, err, tc.name)
			}
		})
	}
}

func TestPolicyChange_Validate(t *testing.T) {
	testCases := []struct {
		name          string
		change        *PolicyChange
		expectedError bool
	}{
		{
			name: "valid change",
			change: &PolicyChange{
				SourceID:     1,
				NewVersionID: 2,
				OldHash:      testHashA,
				NewHash:      testHashB,
				Diff:         "-a\n+b\n",
				DiffLength:   6,
			},
			expectedError: false,
		},
		{
			name: "identical hashes",
			change: &PolicyChange{
				SourceID:     1,
				NewVersionID: 2,
				OldHash:      testHashA,
				NewHash:      testHashA,
				Diff:         "-a\n+b\n",
				DiffLength:   6,
			},
			expectedError: true,
		},
		{
			name: "missing new version id",
			change: &PolicyChange{
				SourceID:   1,
				OldHash:    testHashA,
				NewHash:    testHashB,
				Diff:       "-a\n+b\n",
				DiffLength: 6,
			},
			expectedError: true,
		},
		{
			name: "diff length disagrees with diff",
			change: &PolicyChange{
				SourceID:     1,
				NewVersionID: 2,
				OldHash:      testHashA,
				NewHash:      testHashB,
				Diff:         "-a\n+b\n",
				DiffLength:   5,
			},
			expectedError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.change.Validate()
			if tc.expectedError {
				assert.Error(t, err, tc.name)
			} else {
				assert.NoError(t, err, tc.name)
			}
		})
	}
}
