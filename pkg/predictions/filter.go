package predictions

import "predictium_backend/internal/model"

// prediction_history is the one elite-only section of a game detail.
const eliteOnlyField = "prediction_history"

var freeTierPredictionFields = []string{
	"final_spread",
	"final_total",
	"final_home_win_prob",
	"confidence",
}

// FilterForPlan redacts a game detail document for the caller's current
// subscription. Pure transform: the input document is never mutated.
// A nil subscription is treated as free tier.
func FilterForPlan(sub *model.Subscription, doc Document) Document {
	switch {
	case sub != nil && sub.HasEliteAccess():
		return doc
	case sub != nil && sub.HasProAccess():
		return filterProTier(doc)
	default:
		return filterFreeTier(doc)
	}
}

func filterFreeTier(doc Document) Document {
	preds, _ := doc["predictions"].(map[string]any)
	filteredPreds := make(map[string]any, len(freeTierPredictionFields))
	for _, field := range freeTierPredictionFields {
		filteredPreds[field] = preds[field]
	}

	return Document{
		"prediction_id":        doc["prediction_id"],
		"game_id":              doc["game_id"],
		"prediction_timestamp": doc["prediction_timestamp"],
		"teams":                doc["teams"],
		"predictions":          filteredPreds,
		"context":              doc["context"],
	}
}

func filterProTier(doc Document) Document {
	filtered := make(Document, len(doc))
	for k, v := range doc {
		if k == eliteOnlyField {
			continue
		}
		filtered[k] = v
	}
	return filtered
}
