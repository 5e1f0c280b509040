package completion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseKeywordsBasic(t *testing.T) {
	got := ParseKeywords("Personal Factors:\n* Budget conscious\nProduct Factors:\n1. Battery life")
	assert.Equal(t, []string{"Budget conscious"}, got.PersonalFactors)
	assert.Equal(t, []string{"Battery life"}, got.ProductKeywords)
}

func TestParseKeywordsMarkdownAndBullets(t *testing.T) {
	text := `Here is what I found:
- ignored preamble

## **Personal Factors:**
- Busy parent
• Values reliability
+ busy parent
(1) Prefers email

**Product Keywords**
1) 4K display
2. Energy efficient
* **Warranty**
`
	got := ParseKeywords(text)
	assert.Equal(t, []string{"Busy parent", "Values reliability", "Prefers email"}, got.PersonalFactors)
	assert.Equal(t, []string{"4K display", "Energy efficient", "Warranty"}, got.ProductKeywords)
}

func TestParseKeywordsInlineLists(t *testing.T) {
	got := ParseKeywords("personal factors: price sensitive, family\nPRODUCT FACTORS: battery, camera, Battery")
	assert.Equal(t, []string{"price sensitive", "family"}, got.PersonalFactors)
	assert.Equal(t, []string{"battery", "camera"}, got.ProductKeywords)
}

func TestParseKeywordsWithoutHeaders(t *testing.T) {
	got := ParseKeywords("Just some text\n* with bullets")
	assert.Empty(t, got.PersonalFactors)
	assert.Empty(t, got.ProductKeywords)
	assert.NotNil(t, got.PersonalFactors)
	assert.Equal(t, "", got.String())
}

func TestParseKeywordsIgnoresLookalikeSentences(t *testing.T) {
	got := ParseKeywords("Personal factors matter a lot here.\nProduct Factors:\n- Price")
	assert.Empty(t, got.PersonalFactors)
	assert.Equal(t, []string{"Price"}, got.ProductKeywords)
}

func TestKeywordsString(t *testing.T) {
	k := Keywords{PersonalFactors: []string{"a", "b"}, ProductKeywords: []string{"c"}}
	assert.Equal(t, "Personal Factors: a, b\nProduct Factors: c", k.String())
}
