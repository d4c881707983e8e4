package checkout

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/beatvault/beatvault-backend/pkg/enums"
	pkgerrors "github.com/beatvault/beatvault-backend/pkg/errors"
)

// Stripe metadata limits.
const (
	MaxMetadataKeys     = 50
	MaxMetadataValueLen = 500
)

// Metadata keys written on checkout sessions.
const (
	MetaUserID     = "userId"
	MetaMode       = "mode"
	MetaChunkCount = "cartDataChunks"
	MetaChunkKey   = "cartData_"
	// MetaLegacyCartData is the single-key layout written by older sessions.
	MetaLegacyCartData = "cartData"
)

// ErrNoItems is returned when a snapshot decodes to an empty item list.
var ErrNoItems = pkgerrors.New(pkgerrors.CodeValidation, "checkout snapshot has no items")

// EncodeMetadata lays out the payment-mode metadata for userID and items.
// The snapshot JSON is split into chunks that fit Stripe's value limit.
func EncodeMetadata(userID string, items []Item) (map[string]string, error) {
	raw, err := json.Marshal(Snapshot{Items: items})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode cart snapshot")
	}

	chunks := splitChunks(string(raw), MaxMetadataValueLen)
	meta := map[string]string{
		MetaUserID:     userID,
		MetaMode:       string(enums.CheckoutModePayment),
		MetaChunkCount: strconv.Itoa(len(chunks)),
	}
	if len(meta)+len(chunks) > MaxMetadataKeys {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "cart too large for checkout: %d metadata keys exceed the limit of %d", len(meta)+len(chunks), MaxMetadataKeys)
	}
	for i, chunk := range chunks {
		meta[fmt.Sprintf("%s%d", MetaChunkKey, i)] = chunk
	}
	for key, value := range meta {
		if len(value) > MaxMetadataValueLen {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "metadata value for %s exceeds %d characters", key, MaxMetadataValueLen)
		}
	}
	return meta, nil
}

// DecodeItems rebuilds the snapshot from session metadata. Both the chunked
// layout and the legacy single cartData key are accepted.
func DecodeItems(meta map[string]string) ([]Item, error) {
	raw, err := snapshotJSON(meta)
	if err != nil {
		return nil, err
	}
	var snapshot Snapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode cart snapshot")
	}
	if len(snapshot.Items) == 0 {
		return nil, ErrNoItems
	}
	return snapshot.Items, nil
}

func snapshotJSON(meta map[string]string) (string, error) {
	countRaw, chunked := meta[MetaChunkCount]
	if !chunked {
		legacy, ok := meta[MetaLegacyCartData]
		if !ok || strings.TrimSpace(legacy) == "" {
			return "", pkgerrors.New(pkgerrors.CodeValidation, "checkout metadata missing cart data")
		}
		return legacy, nil
	}

	count, err := strconv.Atoi(strings.TrimSpace(countRaw))
	if err != nil || count < 1 || count > MaxMetadataKeys {
		return "", pkgerrors.Newf(pkgerrors.CodeValidation, "invalid %s value %q", MetaChunkCount, countRaw)
	}
	var b strings.Builder
	for i := 0; i < count; i++ {
		chunk, ok := meta[fmt.Sprintf("%s%d", MetaChunkKey, i)]
		if !ok {
			return "", pkgerrors.Newf(pkgerrors.CodeValidation, "checkout metadata missing chunk %d of %d", i, count)
		}
		b.WriteString(chunk)
	}
	return b.String(), nil
}

// splitChunks cuts s into pieces of at most size bytes without splitting a
// UTF-8 sequence.
func splitChunks(s string, size int) []string {
	if s == "" {
		return []string{""}
	}
	var chunks []string
	for len(s) > 0 {
		if len(s) <= size {
			chunks = append(chunks, s)
			break
		}
		cut := size
		for cut > 0 && !isRuneStart(s[cut]) {
			cut--
		}
		chunks = append(chunks, s[:cut])
		s = s[cut:]
	}
	return chunks
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
