package checkout

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/beatvault/beatvault-backend/pkg/errors"
)

func TestEncodeDecodeRoundTripAcrossChunks(t *testing.T) {
	items := make([]Item, 0, 6)
	for i := 0; i < 6; i++ {
		item := validItem()
		item.Title = fmt.Sprintf("Track %d – ünïcode", i)
		items = append(items, item)
	}

	meta, err := EncodeMetadata("user-1", items)
	require.NoError(t, err)
	assert.Equal(t, "user-1", meta[MetaUserID])
	assert.Equal(t, "payment", meta[MetaMode])
	assert.NotEqual(t, "1", meta[MetaChunkCount], "six items should need several chunks")
	for key, value := range meta {
		assert.LessOrEqual(t, len(value), MaxMetadataValueLen, key)
	}

	decoded, err := DecodeItems(meta)
	require.NoError(t, err)
	require.Len(t, decoded, len(items))
	for i := range items {
		assert.Equal(t, items[i].CompositionID, decoded[i].CompositionID)
		assert.Equal(t, items[i].Title, decoded[i].Title)
		assert.True(t, items[i].LicensePrice.Equal(decoded[i].LicensePrice))
	}
}

func TestEncodeRejectsOversizedCart(t *testing.T) {
	items := make([]Item, 200)
	for i := range items {
		items[i] = validItem()
	}
	_, err := EncodeMetadata("user-1", items)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestDecodeLegacyCartData(t *testing.T) {
	id := uuid.New()
	meta := map[string]string{
		MetaUserID:         "user-1",
		MetaLegacyCartData: fmt.Sprintf(`{"items":[{"compositionId":"%s","title":"Old","artist":"a","licenseName":"Basic","licensePrice":19.99,"coverImage":"c.png","file":"f.mp3"}]}`, id),
	}
	items, err := DecodeItems(meta)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, id, items[0].CompositionID)
	assert.Empty(t, items[0].LicenseID)
	assert.True(t, items[0].LicensePrice.Equal(decimal.RequireFromString("19.99")))
}

func TestDecodeFailures(t *testing.T) {
	cases := map[string]map[string]string{
		"missing":        {MetaUserID: "u"},
		"empty items":    {MetaLegacyCartData: `{"items":[]}`},
		"garbage":        {MetaLegacyCartData: `{"items":`},
		"bad count":      {MetaChunkCount: "zero"},
		"missing chunk":  {MetaChunkCount: "2", MetaChunkKey + "0": `{"items":[]`},
		"too many parts": {MetaChunkCount: "51"},
	}
	for name, meta := range cases {
		_, err := DecodeItems(meta)
		assert.Error(t, err, name)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), name)
	}
}

func TestSplitChunksKeepsRunesWhole(t *testing.T) {
	s := strings.Repeat("é", 300)
	chunks := splitChunks(s, 501)
	require.Len(t, chunks, 2)
	assert.Equal(t, 500, len(chunks[0]))
	assert.Equal(t, s, chunks[0]+chunks[1])
}

func TestTotal(t *testing.T) {
	a, b := validItem(), validItem()
	b.LicensePrice = decimal.RequireFromString("29.99")
	assert.True(t, Total([]Item{a, b}).Equal(decimal.RequireFromString("49.99")))
	assert.True(t, Total(nil).IsZero())
}

func TestCentsConversion(t *testing.T) {
	assert.Equal(t, int64(2000), ToCents(decimal.NewFromInt(20)))
	assert.Equal(t, int64(1999), ToCents(decimal.RequireFromString("19.99")))
	assert.Equal(t, int64(1000), ToCents(decimal.RequireFromString("9.995")))
	assert.True(t, FromCents(2050).Equal(decimal.RequireFromString("20.5")))
}
