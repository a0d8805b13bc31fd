package extractor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfairouz/ariadne/internal/config"
	"github.com/mfairouz/ariadne/internal/document"
)

const quotesPage = `<html><body>
	<div class="quote">
		<span class="text">The unexamined life is not worth living.</span>
		<small class="author">Socrates</small>
		<a class="tag">philosophy</a><a class="tag">life</a><a class="tag">ethics</a>
	</div>
	<div class="quote">
		<span class="text">Know thyself.</span>
		<small class="author"></small>
		<a class="tag">wisdom</a>
	</div>
	<div class="quote">
		<span class="text">Fortune favors the bold.</span>
		<small class="author">Virgil</small>
	</div>
</body></html>`

func quotesJob() *config.JobConfig {
	c := &config.JobConfig{
		StartURL:     "https://quotes.example",
		ItemSelector: "div.quote",
		Fields: []config.FieldConfig{
			{Name: "text", Selector: "span.text", Required: true},
			{Name: "author", Selector: "small.author", Required: true},
			{Name: "tags", Selector: "a.tag", Multiple: true},
		},
	}
	c.ApplyDefaults()
	return c
}

func newExtractor(t *testing.T, job *config.JobConfig) *Extractor {
	t.Helper()
	ex, err := New(job, nil)
	require.NoError(t, err)
	return ex
}

func TestNewRejectsMalformedSelectors(t *testing.T) {
	job := quotesJob()
	job.Fields[0].Selector = "span..text"
	_, err := New(job, nil)
	require.Error(t, err)
	var cfgErr *config.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "fields.text", cfgErr.Field)

	job = quotesJob()
	job.ItemSelector = "div[["
	_, err = New(job, nil)
	assert.Error(t, err)
}

func TestExtractDropsItemsMissingRequiredFields(t *testing.T) {
	ex := newExtractor(t, quotesJob())
	records, warnings := ex.Extract(document.New("https://quotes.example", quotesPage, 200))

	// The second quote has an empty author and is dropped.
	require.Len(t, records, 2)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "item 1 dropped")
	assert.Contains(t, warnings[0], `"author"`)

	text, _ := records[0].Get("text")
	assert.Equal(t, "The unexamined life is not worth living.", text)
	author, _ := records[1].Get("author")
	assert.Equal(t, "Virgil", author)
}

func TestExtractMultipleValuesKeepDocumentOrder(t *testing.T) {
	ex := newExtractor(t, quotesJob())
	records, _ := ex.Extract(document.New("https://quotes.example", quotesPage, 200))
	require.NotEmpty(t, records)

	tags, ok := records[0].Get("tags")
	require.True(t, ok)
	assert.Equal(t, []string{"philosophy", "life", "ethics"}, tags)

	// A multi-valued field with no matches is an empty list, not nil.
	tags, _ = records[1].Get("tags")
	assert.Equal(t, []string{}, tags)
}

func TestExtractOptionalFieldDefaults(t *testing.T) {
	job := quotesJob()
	job.Fields = append(job.Fields, config.FieldConfig{
		Name: "source", Selector: "cite.source",
		SelectorType: config.SelectorCSS, Attribute: config.AttributeText,
		DefaultValue: "unknown",
	}, config.FieldConfig{
		Name: "note", Selector: "p.note",
		SelectorType: config.SelectorCSS, Attribute: config.AttributeText,
	})

	ex := newExtractor(t, job)
	records, _ := ex.Extract(document.New("https://quotes.example", quotesPage, 200))
	require.NotEmpty(t, records)

	source, _ := records[0].Get("source")
	assert.Equal(t, "unknown", source)

	// No default configured: the key is still present, holding "".
	note, ok := records[0].Get("note")
	require.True(t, ok)
	assert.Equal(t, "", note)
}

func TestExtractNoItemsIsNotAnError(t *testing.T) {
	ex := newExtractor(t, quotesJob())
	records, warnings := ex.Extract(document.New("https://quotes.example", "<html><body>nothing here</body></html>", 200))
	assert.Empty(t, records)
	assert.Empty(t, warnings)
}

func TestExtractXPathFields(t *testing.T) {
	job := quotesJob()
	job.ItemSelector = "//div[@class='quote']"
	job.ItemSelectorType = config.SelectorXPath
	job.Fields = []config.FieldConfig{
		{Name: "author", Selector: ".//small[@class='author']", SelectorType: config.SelectorXPath,
			Attribute: config.AttributeText, Required: true},
	}

	ex := newExtractor(t, job)
	records, _ := ex.Extract(document.New("https://quotes.example", quotesPage, 200))
	require.Len(t, records, 2)
	author, _ := records[0].Get("author")
	assert.Equal(t, "Socrates", author)
}

func TestRecordJSONPreservesFieldOrder(t *testing.T) {
	r := NewRecord()
	r.Set("zeta", "1")
	r.Set("alpha", "2")
	r.Set("mid", []string{"a", "b"})

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Equal(t, `{"zeta":"1","alpha":"2","mid":["a","b"]}`, string(data))
}

func TestPreview(t *testing.T) {
	ex := newExtractor(t, quotesJob())
	p, err := ex.Preview(document.New("https://quotes.example", quotesPage, 200))
	require.NoError(t, err)

	assert.Equal(t, 3, p.ItemsFound)
	assert.True(t, p.Fields["text"].Found)
	assert.Equal(t, "The unexamined life is not worth living.", p.Fields["text"].Sample)

	p, err = ex.Preview(document.New("https://quotes.example", "<html></html>", 200))
	require.NoError(t, err)
	assert.Equal(t, 0, p.ItemsFound)
}
