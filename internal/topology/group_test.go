package topology_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jamesprial/guildview/internal/topology"
)

func Test_GroupByCategory(t *testing.T) {
	t.Parallel()

	cat := func(id, name string) topology.Channel {
		return topology.Channel{ID: id, Name: name, Kind: topology.KindCategory}
	}
	text := func(id, parent string) topology.Channel {
		return topology.Channel{ID: id, Name: id, Kind: topology.KindText, ParentID: parent}
	}
	ptr := func(c topology.Channel) *topology.Channel { return &c }

	tests := []struct {
		name  string
		input []topology.Channel
		want  []topology.Group
	}{
		{
			name:  "empty",
			input: nil,
			want:  []topology.Group{},
		},
		{
			name:  "uncategorised only",
			input: []topology.Channel{text("a", ""), text("b", "")},
			want:  []topology.Group{{Channels: []topology.Channel{text("a", ""), text("b", "")}}},
		},
		{
			name: "uncategorised first then categories in order",
			input: []topology.Channel{
				cat("c2", "Voice"),
				text("x", "c1"),
				text("top", ""),
				cat("c1", "Text"),
				text("y", "c2"),
				text("z", "c1"),
			},
			want: []topology.Group{
				{Channels: []topology.Channel{text("top", "")}},
				{Category: ptr(cat("c2", "Voice")), Channels: []topology.Channel{text("y", "c2")}},
				{Category: ptr(cat("c1", "Text")), Channels: []topology.Channel{text("x", "c1"), text("z", "c1")}},
			},
		},
		{
			name:  "orphan treated as uncategorised",
			input: []topology.Channel{cat("c1", "Text"), text("lost", "gone")},
			want: []topology.Group{
				{Channels: []topology.Channel{text("lost", "gone")}},
				{Category: ptr(cat("c1", "Text")), Channels: []topology.Channel{}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := topology.GroupByCategory(tt.input)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("GroupByCategory mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
