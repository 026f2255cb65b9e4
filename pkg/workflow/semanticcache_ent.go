package workflow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/jonkmatsumo/text2sql-sub000/ent"
	"github.com/jonkmatsumo/text2sql-sub000/ent/semanticcacheentry"
)

// EntSemanticCache implements SemanticCache against the SemanticCacheEntry
// entity, using an exact fingerprint match over the normalized question
// text. Approximate (embedding) matching is left to a future lookup path;
// the embedding column exists on the entity so that path has somewhere to
// land without another schema migration.
type EntSemanticCache struct {
	client *ent.Client
}

// NewEntSemanticCache constructs an EntSemanticCache backed by client.
func NewEntSemanticCache(client *ent.Client) *EntSemanticCache {
	return &EntSemanticCache{client: client}
}

// Lookup returns the cached SQL for question under tenantID, if present and
// unexpired.
func (c *EntSemanticCache) Lookup(ctx context.Context, question string, tenantID any) (string, bool, error) {
	tenant := fmt.Sprintf("%v", tenantID)
	fp := fingerprintQuestion(question)

	row, err := c.client.SemanticCacheEntry.Query().
		Where(
			semanticcacheentry.TenantIDEQ(tenant),
			semanticcacheentry.QuestionFingerprintEQ(fp),
		).
		Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("semantic cache lookup: %w", err)
	}
	if row.ExpiresAt != nil && row.ExpiresAt.Before(time.Now()) {
		return "", false, nil
	}
	return row.SQL, true, nil
}

func fingerprintQuestion(question string) string {
	normalized := strings.ToLower(strings.TrimSpace(question))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
