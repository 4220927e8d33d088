package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_GetHumanVersion(t *testing.T) {
	testCases := []struct {
		name           string
		commit         string
		describe       string
		version        string
		prerelease     string
		metadata       string
		expectedOutput string
	}{
		{
			name:           "dev build with commit",
			commit:         "440bca3+CHANGES",
			version:        "0.1.3",
			prerelease:     "dev",
			expectedOutput: "v0.1.3-dev (440bca3+CHANGES)",
		},
		{
			name:           "beta prerelease",
			commit:         "440bca3",
			version:        "0.6.0",
			prerelease:     "beta1",
			expectedOutput: "v0.6.0-beta1 (440bca3)",
		},
		{
			name:           "describe wins on tagged release",
			commit:         "440bca3",
			describe:       "v1.0.0",
			version:        "1.0.0",
			expectedOutput: "v1.0.0",
		},
		{
			name:           "metadata appended",
			commit:         "440bca3",
			describe:       "v1.0.0",
			version:        "1.0.0",
			metadata:       "special",
			expectedOutput: "v1.0.0+special",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			GitCommit = tc.commit
			GitDescribe = tc.describe
			Version = tc.version
			VersionPrerelease = tc.prerelease
			VersionMetadata = tc.metadata
			assert.Equal(t, tc.expectedOutput, GetHumanVersion())
		})
	}
}
