// Package report renders crawl results into browsable snapshots: a
// timestamped HTML and JSON pair, "latest" aliases and an append-only
// history of earlier runs.
package report

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/xrdtools/catalog/internal/clock"
	"github.com/xrdtools/catalog/internal/crawl"
	"github.com/xrdtools/catalog/internal/xroad"
)

const (
	timeLayout   = "2006-01-02 15:04:05"
	suffixLayout = "20060102150405"

	historyFile   = "history.html"
	historyHeader = "<h1>History</h1>"
)

// Generator writes report files into the crawl output directory.
type Generator struct {
	dir      string
	instance string
	clock    clock.Clock
	log      *zap.Logger
}

// NewGenerator builds a Generator for one output directory and instance.
func NewGenerator(dir, instance string, clk clock.Clock, log *zap.Logger) *Generator {
	if clk == nil {
		clk = clock.System{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Generator{dir: dir, instance: instance, clock: clk, log: log}
}

// Snapshot names the files produced by one report run.
type Snapshot struct {
	Suffix   string
	HTMLFile string
	JSONFile string
}

// Write renders the result map into a new timestamped snapshot, points the
// index aliases at it and prepends it to the history. The snapshot files
// themselves are immutable; index.html, index.json and history.html are
// rewritten in full.
func (g *Generator) Write(results map[string]crawl.SubsystemResult) (Snapshot, error) {
	now := g.clock.Now()
	snap := Snapshot{
		Suffix:   now.Format(suffixLayout),
		HTMLFile: fmt.Sprintf("index_%s.html", now.Format(suffixLayout)),
		JSONFile: fmt.Sprintf("index_%s.json", now.Format(suffixLayout)),
	}

	html, err := renderHTML(g.instance, now.Format(timeLayout), snap.Suffix, results)
	if err != nil {
		return Snapshot{}, fmt.Errorf("render report: %w", err)
	}
	jsonDoc, err := renderJSON(results)
	if err != nil {
		return Snapshot{}, fmt.Errorf("render report: %w", err)
	}

	for _, f := range []struct {
		name string
		data []byte
	}{
		{snap.HTMLFile, html},
		{snap.JSONFile, jsonDoc},
		{"index.html", html},
		{"index.json", jsonDoc},
	} {
		if err := os.WriteFile(filepath.Join(g.dir, f.name), f.data, 0o640); err != nil {
			return Snapshot{}, fmt.Errorf("write %s: %w", f.name, err)
		}
	}
	if err := g.appendHistory(snap.HTMLFile, now.Format(timeLayout)); err != nil {
		return Snapshot{}, err
	}
	g.log.Info("report written",
		zap.String("html", snap.HTMLFile),
		zap.String("json", snap.JSONFile))
	return snap, nil
}

// appendHistory inserts the newest snapshot link directly under the
// history heading, so links stay ordered most recent first. A missing
// history file is created from scratch.
func (g *Generator) appendHistory(htmlFile, formattedTime string) error {
	item := fmt.Sprintf("<p><a href=%q>%s</a></p>", htmlFile, formattedTime)
	historyPath := filepath.Join(g.dir, historyFile)

	existing, err := os.ReadFile(historyPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("read history: %w", err)
		}
		html, err := renderHistory(item)
		if err != nil {
			return fmt.Errorf("render history: %w", err)
		}
		return os.WriteFile(historyPath, html, 0o640)
	}

	var b strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(string(existing)))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	inserted := false
	for scanner.Scan() {
		line := scanner.Text()
		b.WriteString(line)
		b.WriteByte('\n')
		if !inserted && strings.TrimSpace(line) == historyHeader {
			b.WriteString(item)
			b.WriteByte('\n')
			inserted = true
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read history: %w", err)
	}
	if !inserted {
		// Unrecognized file; start the history over rather than lose the
		// new link.
		html, err := renderHistory(item)
		if err != nil {
			return fmt.Errorf("render history: %w", err)
		}
		return os.WriteFile(historyPath, html, 0o640)
	}
	return os.WriteFile(historyPath, []byte(b.String()), 0o640)
}

// sortedKeys returns map keys in stable report order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// methodParts splits a full method identifier into its six decoded parts,
// tolerating shorter REST identifiers.
func methodParts(key string) []string {
	parts, err := xroad.ParseIdentifier(key)
	if err != nil {
		return nil
	}
	return parts
}
