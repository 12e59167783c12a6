package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/go-manga-studio/pkg/domain"
	"github.com/shouni/go-manga-studio/pkg/workflow"
)

func TestParseRegens(t *testing.T) {
	got, err := parseRegens([]string{"2=darker tone", " 0 =close-up, rain"})
	require.NoError(t, err)
	assert.Equal(t, map[int]string{2: "darker tone", 0: "close-up, rain"}, got)

	for _, bad := range [][]string{{"darker tone"}, {"x=darker"}, {"-1=darker"}, {"1=a", "1=b"}} {
		_, err := parseRegens(bad)
		assert.Error(t, err, "%v は受け付けないのだ", bad)
	}
}

func TestReadNarrative(t *testing.T) {
	got, err := readNarrative(nil, GenerateOptions{Narrative: "A hero's journey begins"})
	require.NoError(t, err)
	assert.Equal(t, "A hero's journey begins", got)

	got, err = readNarrative(strings.NewReader("from stdin"), GenerateOptions{NarrativeFile: "-"})
	require.NoError(t, err)
	assert.Equal(t, "from stdin", got)

	path := filepath.Join(t.TempDir(), "story.txt")
	require.NoError(t, os.WriteFile(path, []byte("from file"), 0o600))
	got, err = readNarrative(nil, GenerateOptions{NarrativeFile: path})
	require.NoError(t, err)
	assert.Equal(t, "from file", got)

	_, err = readNarrative(nil, GenerateOptions{})
	assert.Error(t, err)
}

func TestGenerateCommand_Placeholder(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{
		"generate",
		"--tier", "BASIC",
		"--narrative", "A hero's journey begins",
		"--panels", "3",
		"--regen", "1=darker tone",
	})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		genOpts = GenerateOptions{}
	})

	require.NoError(t, rootCmd.Execute())

	var snap workflow.Snapshot
	require.NoError(t, json.Unmarshal(out.Bytes(), &snap))
	assert.Equal(t, "ready", snap.State)
	assert.Equal(t, domain.TierBasic, snap.Tier)
	assert.Equal(t, "anime-v1", snap.DefaultModel)
	require.Len(t, snap.Panels, 3)
	assert.Equal(t, "darker tone", snap.Panels[1].PromptText())
	assert.Nil(t, snap.Panels[0].Prompt)
	assert.Empty(t, snap.PanelStates)
}
