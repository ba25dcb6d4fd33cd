package dataset

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
)

// ReadmeFileName is the submission description file scanned for a parameter count.
const ReadmeFileName = "README.md"

var paramCountRegEx = regexp.MustCompile(`(?i)(\d+)[\s-]*parameter`)

// DeclaredParams returns the parameter count a submission declares in its
// README (e.g. "a 3-parameter model"), or nil when none is stated.
func DeclaredParams(dir string) *int {
	b, err := os.ReadFile(filepath.Join(dir, ReadmeFileName))
	if err != nil {
		return nil
	}
	return ParseParamCount(string(b))
}

// ParseParamCount extracts the first "<n> parameter" phrase from text.
func ParseParamCount(text string) *int {
	m := paramCountRegEx.FindStringSubmatch(text)
	if len(m) < 2 {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &n
}
