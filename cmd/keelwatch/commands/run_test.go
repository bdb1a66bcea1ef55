package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/keelwatch/diff"
)

// The --type filter validates before any database is touched, and the
// accepted spellings are exactly the stored run-type literals.
func TestRunLsRejectsUnknownType(t *testing.T) {
	for _, bad := range []string{"detail_worker", "bogus"} {
		runListType = bad
		err := runLs(runLsCmd, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown run type")
	}
	runListType = ""
}

func TestRunLsTypeFlagMatchesStoredLiterals(t *testing.T) {
	for _, rt := range []diff.RunType{diff.RunDetect, diff.RunDetailWorker, diff.RunReconcile} {
		assert.True(t, diff.IsValidRunType(string(rt)))
	}
}
