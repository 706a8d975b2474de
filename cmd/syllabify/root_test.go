package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestSyllabify_Text(t *testing.T) {
	out, _, err := execute(t, "", "murciélago", "Hola")
	require.NoError(t, err)
	assert.Equal(t, "mu - rcié - la - go\nho - la\n", out)
}

func TestSyllabify_SSML(t *testing.T) {
	out, _, err := execute(t, "", "--format", "ssml", "perro")
	require.NoError(t, err)
	assert.Equal(t, "pe<break time=\"500ms\"/>rro\n", out)
}

func TestSyllabify_JSON(t *testing.T) {
	out, _, err := execute(t, "", "-f", "json", "agua")
	require.NoError(t, err)

	var results []Result
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Equal(t, Result{Word: "agua", Syllables: []string{"a", "gua"}}, results[0])
}

func TestSyllabify_Stdin(t *testing.T) {
	out, _, err := execute(t, "chocolate\n\n  \ncalle\n")
	require.NoError(t, err)
	assert.Equal(t, "cho - co - la - te\nca - lle\n", out)
}

func TestSyllabify_InvalidWord(t *testing.T) {
	out, errOut, err := execute(t, "", "hola", " ")
	assert.ErrorIs(t, err, errInvalidWords)
	assert.Equal(t, "ho - la\n", out)
	assert.Contains(t, errOut, "invalid input")
}

func TestSyllabify_InvalidWordJSON(t *testing.T) {
	out, _, err := execute(t, "", "--format=json", " ")
	assert.ErrorIs(t, err, errInvalidWords)

	var results []Result
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.NotEmpty(t, results[0].Error)
}

func TestSyllabify_UnsupportedFormat(t *testing.T) {
	_, _, err := execute(t, "", "--format", "xml", "hola")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")
}

func TestSyllabify_FormatFromEnv(t *testing.T) {
	t.Setenv("SYLLABIFY_FORMAT", "ssml")
	out, _, err := execute(t, "", "hola")
	require.NoError(t, err)
	assert.Equal(t, "ho<break time=\"500ms\"/>la\n", out)
}
