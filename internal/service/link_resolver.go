package service

import (
	"fmt"
	"strings"

	"github.com/Paashik/MyIS-sub004/internal/models"
)

// LinkResolver classifies external records against the local catalog. It is
// stateless; all inputs are passed explicitly per call.
type LinkResolver struct{}

// NewLinkResolver constructs the resolver.
func NewLinkResolver() *LinkResolver {
	return &LinkResolver{}
}

// SelectLatestLink picks the current link among those accumulated for one
// external key: maximum by (SyncedAt ?? UpdatedAt), then UpdatedAt. An
// explicit max-by comparator, not a sort: correctness must not depend on
// stable-sort behavior. Exact ties are equivalent records; the first one
// encountered wins.
func SelectLatestLink(links []models.ExternalEntityLink) *models.ExternalEntityLink {
	if len(links) == 0 {
		return nil
	}
	best := 0
	for i := 1; i < len(links); i++ {
		if linkAfter(links[i], links[best]) {
			best = i
		}
	}
	return &links[best]
}

func linkAfter(a, b models.ExternalEntityLink) bool {
	ae, be := a.EffectiveTime(), b.EffectiveTime()
	if !ae.Equal(be) {
		return ae.After(be)
	}
	return a.UpdatedAt.After(b.UpdatedAt)
}

// NormalizeCode canonicalizes a catalog code for strong-attribute matching:
// uppercase, with spaces and hyphens stripped.
func NormalizeCode(raw string) string {
	replacer := strings.NewReplacer(" ", "", "-", "", "\t", "")
	return strings.ToUpper(replacer.Replace(strings.TrimSpace(raw)))
}

// Resolve decides what to do with one external record, first match wins:
//
//  1. latest link is as fresh as the record   → Skip
//  2. latest link exists, record is newer     → Update the linked entity
//  3. no link, exactly one candidate by code  → Update and attach a link
//  4. no link, ambiguous or missing code      → Merge (manual review)
//  5. no link, no candidate                   → Create
func (r *LinkResolver) Resolve(record models.ExternalRecord, existingLinks []models.ExternalEntityLink, candidates []models.Item) models.Resolution {
	if latest := SelectLatestLink(existingLinks); latest != nil {
		if !latest.EffectiveTime().Before(record.UpdatedAt) {
			return models.Resolution{Action: models.ResolutionSkip, TargetLocalID: latest.EntityID}
		}
		return models.Resolution{Action: models.ResolutionUpdate, TargetLocalID: latest.EntityID}
	}

	normalized := NormalizeCode(record.Code)
	if normalized == "" {
		return models.Resolution{
			Action:  models.ResolutionMerge,
			Reasons: []string{"external record has no normalized code"},
		}
	}

	switch len(candidates) {
	case 0:
		return models.Resolution{Action: models.ResolutionCreate}
	case 1:
		return models.Resolution{
			Action:        models.ResolutionUpdate,
			TargetLocalID: candidates[0].ID,
			AttachLink:    true,
		}
	default:
		reasons := make([]string, 0, len(candidates)+1)
		reasons = append(reasons, fmt.Sprintf("multiple items share normalized code %s", normalized))
		for _, candidate := range candidates {
			reasons = append(reasons, fmt.Sprintf("candidate %s (%s)", candidate.ID, candidate.Code))
		}
		return models.Resolution{Action: models.ResolutionMerge, Reasons: reasons}
	}
}
