package corpus_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowledge-engine/errclass/internal/corpus"
)

func newLoader() *corpus.Loader {
	return corpus.NewLoader(logrus.New().WithField("test", "corpus"), 0)
}

const sample = `{"id":1,"text":"db timeout","callstack":"at db.connect","category":"A"}
{"id":2,"text":"null pointer","callstack":"at Main.run","category":"B"}
{"id":3,"text":"unlabelled","callstack":"","category":""}
{"id":4,"text":"db refused","callstack":"at db.connect","category":"A"}
{"id":5,"text":"disk full","callstack":"at fs.write","category":"C"}
`

func TestStream_CategoryIndexing(t *testing.T) {
	categories := corpus.NewCategorySet()
	var labels []int
	collectLabels := corpus.SubscriberFunc(func(rec corpus.Record, _ int) error {
		i, ok := categories.Index(rec.Category)
		require.True(t, ok)
		labels = append(labels, i)
		return nil
	})

	total, err := newLoader().Stream(context.Background(), strings.NewReader(sample), 0, categories, collectLabels)
	require.NoError(t, err)

	assert.Equal(t, 4, total)
	assert.Equal(t, []string{"A", "B", "C"}, categories.Names())
	assert.Equal(t, []int{0, 1, 0, 2}, labels)
}

func TestStream_SkipsEmptyCategory(t *testing.T) {
	var ids []int64
	var indices []int
	sub := corpus.SubscriberFunc(func(rec corpus.Record, index int) error {
		ids = append(ids, rec.ID)
		indices = append(indices, index)
		return nil
	})

	total, err := newLoader().Stream(context.Background(), strings.NewReader(sample), 0, sub)
	require.NoError(t, err)

	assert.Equal(t, 4, total)
	assert.Equal(t, []int64{1, 2, 4, 5}, ids)
	assert.Equal(t, []int{0, 1, 2, 3}, indices)
}

func TestStream_Limit(t *testing.T) {
	tests := []struct {
		name     string
		limit    int
		expected []int64
	}{
		{"No limit", 0, []int64{1, 2, 4, 5}},
		{"Negative means no limit", -1, []int64{1, 2, 4, 5}},
		{"Two records", 2, []int64{1, 2}},
		{"Skipped lines do not count", 3, []int64{1, 2, 4}},
		{"Limit above total", 10, []int64{1, 2, 4, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ids []int64
			sub := corpus.SubscriberFunc(func(rec corpus.Record, _ int) error {
				ids = append(ids, rec.ID)
				return nil
			})

			total, err := newLoader().Stream(context.Background(), strings.NewReader(sample), tt.limit, sub)
			require.NoError(t, err)
			assert.Equal(t, len(tt.expected), total)
			assert.Equal(t, tt.expected, ids)
		})
	}
}

func TestStream_DocumentCollectorUsesText(t *testing.T) {
	docs := &corpus.DocumentCollector{}

	_, err := newLoader().Stream(context.Background(), strings.NewReader(sample), 0, docs)
	require.NoError(t, err)

	require.Len(t, docs.Documents, 4)
	assert.Equal(t, int64(1), docs.Documents[0].ID)
	assert.Equal(t, "db timeout", docs.Documents[0].Text)
	assert.Equal(t, "disk full", docs.Documents[3].Text)
}

func TestStream_InvalidRecords(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"Not JSON", `not json`},
		{"Empty line", ``},
		{"Missing category", `{"id":1,"text":"a","callstack":"b"}`},
		{"Null text", `{"id":1,"text":null,"callstack":"b","category":"A"}`},
		{"Id is a string", `{"id":"1","text":"a","callstack":"b","category":"A"}`},
		{"Fractional id", `{"id":1.5,"text":"a","callstack":"b","category":"A"}`},
		{"Id beyond int64", `{"id":1e19,"text":"a","callstack":"b","category":"A"}`},
		{"Category is a number", `{"id":1,"text":"a","callstack":"b","category":3}`},
		{"Array", `[1,2,3]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := `{"id":1,"text":"ok","callstack":"ok","category":"A"}` + "\n" + tt.line + "\n"

			called := 0
			sub := corpus.SubscriberFunc(func(corpus.Record, int) error {
				called++
				return nil
			})

			_, err := newLoader().Stream(context.Background(), strings.NewReader(input), 0, sub)
			require.Error(t, err)
			assert.True(t, errors.Is(err, corpus.ErrInvalidRecord))

			var verr *corpus.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, 2, verr.Line)
			assert.Equal(t, 1, called)
		})
	}
}

func TestParseRecord(t *testing.T) {
	rec, err := corpus.ParseRecord([]byte(`{"id":0,"text":"","callstack":"","category":"X","extra":true}`))
	require.NoError(t, err)
	assert.Equal(t, corpus.Record{ID: 0, Text: "", Callstack: "", Category: "X"}, rec)

	_, err = corpus.ParseRecord([]byte(`{"text":"a","callstack":"b","category":"c"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id is required")
}

func TestParseRecord_IntegralIDs(t *testing.T) {
	tests := []struct {
		raw      string
		expected int64
	}{
		{"7", 7},
		{"1.0", 1},
		{"1e3", 1000},
		{"-2.0", -2},
		{"9007199254740993", 9007199254740993},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			rec, err := corpus.ParseRecord([]byte(`{"id":` + tt.raw + `,"text":"a","callstack":"b","category":"A"}`))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, rec.ID)
		})
	}
}

func TestStream_CRLF(t *testing.T) {
	input := "{\"id\":1,\"text\":\"a\",\"callstack\":\"b\",\"category\":\"A\"}\r\n" +
		"{\"id\":2,\"text\":\"c\",\"callstack\":\"d\",\"category\":\"B\"}\r\n"
	categories := corpus.NewCategorySet()

	total, err := newLoader().Stream(context.Background(), strings.NewReader(input), 0, categories)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, []string{"A", "B"}, categories.Names())
}

func TestStream_SubscriberError(t *testing.T) {
	boom := errors.New("boom")
	sub := corpus.SubscriberFunc(func(corpus.Record, int) error { return boom })

	_, err := newLoader().Stream(context.Background(), strings.NewReader(sample), 0, sub)
	assert.ErrorIs(t, err, boom)
}

func TestStream_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	total, err := newLoader().Stream(ctx, strings.NewReader(sample), 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, total)
}

func TestStream_LineTooLong(t *testing.T) {
	loader := corpus.NewLoader(nil, 32)
	line := `{"id":1,"text":"` + strings.Repeat("x", 64) + `","callstack":"","category":"A"}`

	_, err := loader.Stream(context.Background(), strings.NewReader(line), 0)
	assert.Error(t, err)
}

func TestStreamFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.json")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0644))

	categories := corpus.NewCategorySet()
	total, err := newLoader().StreamFile(context.Background(), path, 0, categories)
	require.NoError(t, err)
	assert.Equal(t, 4, total)

	_, err = newLoader().StreamFile(context.Background(), filepath.Join(t.TempDir(), "missing.json"), 0)
	assert.Error(t, err)
}

func TestCategorySet(t *testing.T) {
	c := corpus.NewCategorySet()
	assert.Equal(t, 0, c.Add("net"))
	assert.Equal(t, 1, c.Add("db"))
	assert.Equal(t, 0, c.Add("net"))
	assert.Equal(t, 2, c.Len())

	name, ok := c.Name(1)
	assert.True(t, ok)
	assert.Equal(t, "db", name)
	_, ok = c.Name(2)
	assert.False(t, ok)
	_, ok = c.Index("missing")
	assert.False(t, ok)

	restored, err := corpus.CategorySetFrom(c.Names())
	require.NoError(t, err)
	assert.Equal(t, c.Names(), restored.Names())

	_, err = corpus.CategorySetFrom([]string{"a", "b", "a"})
	assert.Error(t, err)
}
