package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghabxph/happy-on-slack/internal/config"
	"github.com/ghabxph/happy-on-slack/internal/repository"
)

func TestServePortFlagNamesConfigVariable(t *testing.T) {
	serve, _, err := rootCmd.Find([]string{"serve"})
	require.NoError(t, err)

	flag := serve.Flags().Lookup("port")
	require.NotNil(t, flag)
	assert.Contains(t, flag.Usage, "SERVER_PORT")

	// The variable named in the help text is the one config reads
	t.Setenv("SERVER_PORT", "9099")
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 9099, cfg.ServerPort)
}

func TestPrintInteractions(t *testing.T) {
	var buf bytes.Buffer
	printInteractions(&buf, []*repository.Interaction{
		{
			UserID:       "U1",
			ThreadTS:     "1700000000.000100",
			PromptChars:  12,
			ReplyChars:   80,
			HistoryTurns: 3,
			Outcome:      repository.OutcomeReplied,
			CreatedAt:    time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
		},
		{
			UserID:    "U2",
			ThreadTS:  "1700000001.000200",
			Outcome:   repository.OutcomeClarified,
			CreatedAt: time.Date(2026, 3, 4, 5, 0, 0, 0, time.UTC),
		},
	})

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 3)
	assert.Contains(t, string(lines[0]), "OUTCOME")
	assert.Contains(t, string(lines[1]), "2026-03-04 05:06:07")
	assert.Contains(t, string(lines[1]), "replied")
	assert.Contains(t, string(lines[1]), "1700000000.000100")
	assert.Contains(t, string(lines[2]), "clarified")
}

func TestPrintInteractions_Empty(t *testing.T) {
	var buf bytes.Buffer
	printInteractions(&buf, nil)
	assert.Equal(t, "No interactions recorded.\n", buf.String())
}

func TestInteractionsCmd_ArgumentErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "missing channel", args: []string{"interactions"}},
		{name: "non-positive limit", args: []string{"interactions", "C1", "--limit", "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			rootCmd.SetOut(&out)
			rootCmd.SetErr(&out)
			rootCmd.SetArgs(tt.args)
			t.Cleanup(func() { rootCmd.SetArgs(nil) })

			assert.Error(t, rootCmd.Execute())
		})
	}
}
