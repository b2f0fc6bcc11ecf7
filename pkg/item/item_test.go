package item

import (
	"errors"
	"iter"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentTypeFilter(t *testing.T) {
	pdf := ContentTypeFilter(ContentTypePDF)

	tests := []struct {
		name string
		item Item
		want bool
	}{
		{"pdf with file", Item{Key: "A", ContentType: ContentTypePDF, File: "A/a.pdf"}, true},
		{"pdf without file", Item{Key: "B", ContentType: ContentTypePDF}, false},
		{"html with file", Item{Key: "C", ContentType: "text/html", File: "C/c.html"}, false},
		{"missing content type", Item{Key: "D", File: "D/d.pdf"}, false},
		{"zero item", Item{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pdf(tt.item))
		})
	}
}

func TestItemPath(t *testing.T) {
	root := filepath.Join("lib", "storage")

	p, ok := Item{File: "ABC/paper.pdf"}.Path(root)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(root, "ABC", "paper.pdf"), p)

	_, ok = Item{}.Path(root)
	assert.False(t, ok, "no file reference")

	_, ok = Item{File: "../../etc/passwd"}.Path(root)
	assert.False(t, ok, "reference escaping root")
}

func TestItemName(t *testing.T) {
	assert.Equal(t, "Title", Item{Key: "K", Filename: "f.pdf", Title: "Title"}.Name())
	assert.Equal(t, "f.pdf", Item{Key: "K", Filename: "f.pdf"}.Name())
	assert.Equal(t, "K", Item{Key: "K"}.Name())
}

func TestAll(t *testing.T) {
	notKeyX := func(i Item) bool { return i.Key != "X" }
	f := All(ContentTypeFilter(ContentTypePDF), notKeyX, nil)

	assert.True(t, f(Item{Key: "A", ContentType: ContentTypePDF, File: "a"}))
	assert.False(t, f(Item{Key: "X", ContentType: ContentTypePDF, File: "x"}))
	assert.True(t, All()(Item{}), "empty conjunction accepts everything")
}

func seqOf(items []Item, err error) iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		for _, it := range items {
			if !yield(it, nil) {
				return
			}
		}
		if err != nil {
			yield(Item{}, err)
		}
	}
}

func TestFilterApply(t *testing.T) {
	items := []Item{
		{Key: "1", ContentType: ContentTypePDF, File: "1/a.pdf"},
		{Key: "2", ContentType: "text/html", File: "2/b.html"},
		{Key: "3", ContentType: ContentTypePDF},
		{Key: "4", ContentType: ContentTypePDF, File: "4/d.pdf"},
	}

	var keys []string
	for it, err := range ContentTypeFilter(ContentTypePDF).Apply(seqOf(items, nil)) {
		require.NoError(t, err)
		keys = append(keys, it.Key)
	}
	assert.Equal(t, []string{"1", "4"}, keys)
}

func TestFilterApplyPassesErrors(t *testing.T) {
	boom := errors.New("boom")
	items := []Item{{Key: "1", ContentType: ContentTypePDF, File: "1/a.pdf"}}

	var got []string
	var gotErr error
	for it, err := range ContentTypeFilter(ContentTypePDF).Apply(seqOf(items, boom)) {
		if err != nil {
			gotErr = err
			continue
		}
		got = append(got, it.Key)
	}
	assert.Equal(t, []string{"1"}, got)
	assert.ErrorIs(t, gotErr, boom)
}

func TestFilterApplyStopsEarly(t *testing.T) {
	items := []Item{
		{Key: "1", ContentType: ContentTypePDF, File: "a"},
		{Key: "2", ContentType: ContentTypePDF, File: "b"},
	}
	count := 0
	for range ContentTypeFilter(ContentTypePDF).Apply(seqOf(items, nil)) {
		count++
		break
	}
	assert.Equal(t, 1, count)
}
