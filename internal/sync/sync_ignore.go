package sync

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"

	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/savebox/savebox/internal/utils"
)

// IgnoreFileName is the optional rules file in the savebox data directory.
const IgnoreFileName = "saveboxignore"

// defaultIgnoreLines covers files games churn through constantly. Matching
// writes never wake the watcher; the saves still sync in full on the next
// refresh.
var defaultIgnoreLines = []string{
	// savebox
	"saveboxignore",
	"savebox.yaml",
	// transient game output
	"*.tmp",
	"*.temp",
	"*.bak",
	"*.lock",
	"*.log",
	"logs/",
	"cache/",
	"crashdumps/",
	// OS-specific
	".DS_Store",
	"Thumbs.db",
	"desktop.ini",
}

// IgnoreList filters watcher events with gitignore-style rules, defaults
// plus whatever the saveboxignore file adds.
type IgnoreList struct {
	baseDir string
	ignore  *gitignore.GitIgnore
}

func NewIgnoreList(baseDir string) *IgnoreList {
	return &IgnoreList{baseDir: baseDir}
}

// Load compiles the rule set. Safe to call again to pick up edits.
func (s *IgnoreList) Load() {
	ignorePath := filepath.Join(s.baseDir, IgnoreFileName)
	ignoreLines := defaultIgnoreLines

	if utils.FileExists(ignorePath) {
		file, err := os.Open(ignorePath)
		if err != nil {
			slog.Warn("failed to open ignore file", "path", ignorePath, "error", err)
		} else {
			defer file.Close()

			rules := 0
			scanner := bufio.NewScanner(file)
			for scanner.Scan() {
				line := scanner.Text()
				if line != "" {
					ignoreLines = append(ignoreLines, line)
					rules++
				}
			}

			if err := scanner.Err(); err != nil {
				slog.Warn("error reading ignore file", "path", ignorePath, "error", err)
			} else {
				slog.Info("loaded ignore file", "path", ignorePath, "rules", rules)
			}
		}
	}

	s.ignore = gitignore.CompileIgnoreLines(ignoreLines...)
}

// ShouldIgnore reports whether a path matches the rule set.
func (s *IgnoreList) ShouldIgnore(path string) bool {
	return s.ignore.MatchesPath(path)
}
