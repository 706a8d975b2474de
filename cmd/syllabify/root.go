package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/lexiqai/speech-practice/internal/config"
	"github.com/lexiqai/speech-practice/internal/syllable"
	"github.com/spf13/cobra"
)

// Output formats
const (
	FormatText = "text"
	FormatSSML = "ssml"
	FormatJSON = "json"
)

const textSeparator = " - "

var errInvalidWords = errors.New("one or more words could not be split")

// Result is the JSON output for a single word
type Result struct {
	Word      string   `json:"word"`
	Syllables []string `json:"syllables,omitempty"`
	Error     string   `json:"error,omitempty"`
}

func newRootCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "syllabify [word...]",
		Short: "Split Spanish words into syllables",
		Long: `Split Spanish words into syllables the same way the practice skill does.

Words are read from the arguments, or one per line from stdin when no
arguments are given. Blank stdin lines are skipped.

Examples:
  syllabify murciélago
  syllabify --format ssml hola perro
  echo chocolate | syllabify --format json`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			words := args
			if len(words) == 0 {
				var err error
				words, err = readWords(cmd.InOrStdin())
				if err != nil {
					return err
				}
			}
			return run(cmd.OutOrStdout(), cmd.ErrOrStderr(), words, format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", config.GetEnv("SYLLABIFY_FORMAT", FormatText),
		"Output format (text, ssml, json)")
	return cmd
}

func readWords(r io.Reader) ([]string, error) {
	var words []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		words = append(words, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read words: %w", err)
	}
	return words, nil
}

func run(stdout, stderr io.Writer, words []string, format string) error {
	switch format {
	case FormatText, FormatSSML, FormatJSON:
	default:
		return fmt.Errorf("unsupported format %q", format)
	}

	results := make([]Result, 0, len(words))
	failed := false
	for _, word := range words {
		res := Result{Word: word}
		syllables, err := syllable.Split(word)
		if err != nil {
			failed = true
			res.Error = err.Error()
		} else {
			res.Syllables = syllables
		}
		results = append(results, res)

		if format == FormatJSON {
			continue
		}
		if err != nil {
			fmt.Fprintf(stderr, "%q: %v\n", word, err)
			continue
		}
		if format == FormatSSML {
			fmt.Fprintln(stdout, syllable.Join(syllables))
		} else {
			fmt.Fprintln(stdout, strings.Join(syllables, textSeparator))
		}
	}

	if format == FormatJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		if err := enc.Encode(results); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}

	if failed {
		return errInvalidWords
	}
	return nil
}
