package topology

// Group is one section of the channel sidebar: a category and the channels
// nested under it, or the uncategorised channels when Category is nil.
type Group struct {
	Category *Channel  `json:"category,omitempty"`
	Channels []Channel `json:"channels"`
}

// GroupByCategory arranges channels into the two-level category tree.
// Uncategorised channels come first, then one group per category in the
// order the categories appear. Children keep their relative order. A
// channel whose parent is not a category in the list is treated as
// uncategorised.
func GroupByCategory(channels []Channel) []Group {
	categories := make(map[string]int) // category ID -> index into groups
	groups := []Group{{Channels: []Channel{}}}

	for i := range channels {
		if channels[i].Kind != KindCategory {
			continue
		}
		cat := channels[i]
		categories[cat.ID] = len(groups)
		groups = append(groups, Group{Category: &cat, Channels: []Channel{}})
	}

	for _, ch := range channels {
		if ch.Kind == KindCategory {
			continue
		}
		idx, ok := categories[ch.ParentID]
		if !ok {
			idx = 0
		}
		groups[idx].Channels = append(groups[idx].Channels, ch)
	}

	if len(groups[0].Channels) == 0 {
		groups = groups[1:]
	}
	return groups
}
