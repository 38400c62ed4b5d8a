package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/poiesic/finrank/core"
	"gopkg.in/yaml.v3"
)

// textExtensions are the files picked up when a directory is ingested.
var textExtensions = []string{".txt", ".md"}

// filing is one manifest entry.
type filing struct {
	Filepath   string `yaml:"filepath"`
	Company    string `yaml:"company"`
	FilingType string `yaml:"filing_type"`
	FiscalYear string `yaml:"fiscal_year"`
	Quarter    string `yaml:"quarter"`
}

// loadManifest reads a YAML list of filings. Relative paths resolve
// against the manifest's directory.
func loadManifest(path string) ([]filing, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var filings []filing
	if err := yaml.Unmarshal(data, &filings); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	base := filepath.Dir(path)
	for i := range filings {
		if filings[i].Filepath != "" && !filepath.IsAbs(filings[i].Filepath) {
			filings[i].Filepath = filepath.Join(base, filings[i].Filepath)
		}
	}
	return filings, nil
}

// expandPaths turns files and directories into a sorted list of text files.
func expandPaths(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && slices.Contains(textExtensions, strings.ToLower(filepath.Ext(path))) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	slices.Sort(files)
	return slices.Compact(files), nil
}

// readDocuments loads every filing. Unreadable files are reported and
// skipped so one bad path does not abort a batch.
func readDocuments(filings []filing) ([]core.Document, []error) {
	docs := make([]core.Document, 0, len(filings))
	var problems []error
	for _, f := range filings {
		text, err := os.ReadFile(f.Filepath)
		if err != nil {
			problems = append(problems, fmt.Errorf("%s: %w", f.Filepath, err))
			continue
		}
		docs = append(docs, core.Document{
			SourceFile: f.Filepath,
			Company:    f.Company,
			FilingType: f.FilingType,
			FiscalYear: f.FiscalYear,
			Quarter:    f.Quarter,
			Text:       string(text),
		})
	}
	return docs, problems
}
