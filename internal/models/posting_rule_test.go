package models

import (
	"reflect"
	"testing"
)

func TestDailyLimit(t *testing.T) {
	tests := []struct {
		name string
		max  int
		want int
	}{
		{"within range", 2, 2},
		{"minimum", 1, 1},
		{"at ceiling", 3, 3},
		{"zero clamps to ceiling", 0, 3},
		{"negative clamps to ceiling", -1, 3},
		{"over ceiling clamps", 10, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := &PostingRule{MaxPostsPerDay: tt.max}
			if got := rule.DailyLimit(); got != tt.want {
				t.Errorf("DailyLimit() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFixedTimeList(t *testing.T) {
	tests := []struct {
		name  string
		times string
		want  []string
	}{
		{"two entries", "09:00,18:00", []string{"09:00", "18:00"}},
		{"spacing trimmed", " 09:00 , 18:00 ", []string{"09:00", "18:00"}},
		{"empty entries dropped", "09:00,,18:00,", []string{"09:00", "18:00"}},
		{"empty string", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := &PostingRule{FixedTimes: tt.times}
			if got := rule.FixedTimeList(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("FixedTimeList() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestActiveCategory(t *testing.T) {
	project := &Project{
		Categories: []Category{
			{ID: "a", IsActive: false},
			{ID: "b", IsActive: true},
			{ID: "c", IsActive: false},
		},
	}

	active := project.ActiveCategory()
	if active == nil || active.ID != "b" {
		t.Errorf("ActiveCategory() = %v, want category b", active)
	}

	project.Categories[1].IsActive = false
	if got := project.ActiveCategory(); got != nil {
		t.Errorf("ActiveCategory() with none active = %v, want nil", got)
	}
}
