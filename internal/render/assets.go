package render

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/roach88/livedoc/internal/markup"
)

// Banks maps an asset bank name to its files, slash-separated and relative
// to the document directory, sorted.
type Banks map[string][]string

// ResolveBanks expands the glob of every bank declared by doc against fsys.
// A bank whose glob matches nothing resolves to an empty list.
func ResolveBanks(fsys fs.FS, doc *markup.Document) (Banks, error) {
	banks := Banks{}
	for _, b := range doc.Banks {
		pattern, ok := b.StringProp("glob")
		if !ok {
			continue
		}
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("bank %s: invalid glob %q", b.ID, pattern)
		}
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("bank %s: %w", b.ID, err)
		}
		sort.Strings(matches)
		banks[b.ID] = matches
	}
	return banks, nil
}

// Match returns the files of bank carrying every tag. A file carries a tag
// when the tag is one of its directory names or one of the '-', '_' or '.'
// separated words of its base name.
func (b Banks) Match(bank string, tags []string) []string {
	files := b[bank]
	if len(tags) == 0 {
		return files
	}
	var out []string
	for _, f := range files {
		words := fileWords(f)
		all := true
		for _, t := range tags {
			if !words[strings.ToLower(t)] {
				all = false
				break
			}
		}
		if all {
			out = append(out, f)
		}
	}
	return out
}

func fileWords(file string) map[string]bool {
	words := map[string]bool{}
	dir, base := path.Split(file)
	for _, seg := range strings.Split(strings.Trim(dir, "/"), "/") {
		if seg != "" {
			words[strings.ToLower(seg)] = true
		}
	}
	for _, w := range strings.FieldsFunc(base, func(r rune) bool { return r == '-' || r == '_' || r == '.' }) {
		words[strings.ToLower(w)] = true
	}
	return words
}
