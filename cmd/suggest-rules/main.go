package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sokoledger/sokoledger/internal/ingest"
	"github.com/sokoledger/sokoledger/internal/logger"
	"github.com/sokoledger/sokoledger/internal/suggest"
)

// Reads item descriptions (one per line) that the rule table filed under
// "Other" and asks the model for candidate keyword rules. Output is for a
// human to review and fold into the rule table; nothing here touches the
// ingest path.
func main() {
	log := logger.New()

	var (
		file = flag.String("file", "", "File with one item description per line (default: stdin)")
	)
	flag.Parse()

	items, err := readItems(*file)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read item descriptions")
	}
	if len(items) == 0 {
		log.Fatal().Msg("No item descriptions provided")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	log.Info().Int("items", len(items)).Msg("Requesting rule suggestions")

	suggestions, err := suggest.SuggestRules(ctx, items, ingest.CategoryLabels())
	if err != nil {
		log.Fatal().Err(err).Msg("Suggestion request failed")
	}

	for _, s := range suggestions {
		fmt.Printf("%s: %s\n", s.Category, strings.Join(s.Keywords, ", "))
	}
}

func readItems(path string) ([]string, error) {
	in := os.Stdin
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		in = f
	}

	var items []string
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			items = append(items, line)
		}
	}
	return items, scanner.Err()
}
