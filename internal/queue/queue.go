package queue

import (
	"context"
	"fmt"
	"time"

	"leadboard/api/internal/store"
)

// Item is one company's research queue membership, folded from every raw
// entry queued for that company.
type Item struct {
	// ID, NewsLeadID and ResearchStatus belong to the seed entry, the first one
	// seen for the company.
	ID              string    `json:"id"`
	NewsLeadID      *string   `json:"news_lead_id"`
	CompanyName     string    `json:"company_name"`
	ResearchStatus  string    `json:"research_status"`
	CompositeStatus string    `json:"composite_status"`
	AddedAt         time.Time `json:"added_at"`
	SignalIDs       []string  `json:"signal_ids"`
	LogoURL         *string   `json:"logo_url"`
}

func (i Item) Completed() bool {
	return i.CompositeStatus == store.ResearchCompleted
}

// Group folds entries by company name in first-seen order. Entries are
// expected newest first; Group does not re-sort them.
func Group(entries []store.ResearchQueueEntry) []Item {
	items := make([]Item, 0)
	index := make(map[string]int)

	for _, entry := range entries {
		pos, seen := index[entry.CompanyName]
		if !seen {
			item := Item{
				ID:              entry.ID,
				NewsLeadID:      entry.NewsLeadID,
				CompanyName:     entry.CompanyName,
				ResearchStatus:  entry.ResearchStatus,
				CompositeStatus: entry.ResearchStatus,
				AddedAt:         entry.AddedAt,
				SignalIDs:       []string{},
			}
			item.addSignal(entry.NewsLeadID)
			index[entry.CompanyName] = len(items)
			items = append(items, item)
			continue
		}

		item := &items[pos]
		item.addSignal(entry.NewsLeadID)
		if entry.ResearchStatus == store.ResearchCompleted {
			item.CompositeStatus = store.ResearchCompleted
		}
		if entry.AddedAt.After(item.AddedAt) {
			item.AddedAt = entry.AddedAt
		}
	}
	return items
}

func (i *Item) addSignal(signalID *string) {
	if signalID == nil || *signalID == "" {
		return
	}
	for _, existing := range i.SignalIDs {
		if existing == *signalID {
			return
		}
	}
	i.SignalIDs = append(i.SignalIDs, *signalID)
}

type LogoSource interface {
	ListSignalLogos(ctx context.Context, signalIDs []string) (map[string]string, error)
}

// AttachLogos resolves every group's logo from its primary signal with a
// single lookup. Groups without a primary signal, or whose primary signal has
// no logo, get nil.
func AttachLogos(ctx context.Context, logos LogoSource, items []Item) error {
	ids := make([]string, 0)
	seen := make(map[string]struct{})
	for _, item := range items {
		for _, id := range item.SignalIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	byID, err := logos.ListSignalLogos(ctx, ids)
	if err != nil {
		return fmt.Errorf("resolve queue logos: %w", err)
	}
	for i := range items {
		items[i].LogoURL = nil
		if items[i].NewsLeadID == nil {
			continue
		}
		if logo, ok := byID[*items[i].NewsLeadID]; ok {
			items[i].LogoURL = &logo
		}
	}
	return nil
}
