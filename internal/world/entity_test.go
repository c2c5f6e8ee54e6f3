package world

import "testing"

func u32(v uint32) *uint32 { return &v }
func i32(v int32) *int32   { return &v }

func TestClassifyKindPlayerHintWins(t *testing.T) {
	// The explicit player signal beats any template range.
	if got := ClassifyKind(true, u32(monsterTemplateMin)); got != KindPlayer {
		t.Fatalf("expected Player, got %s", got)
	}
}

func TestClassifyKindTemplateRanges(t *testing.T) {
	cases := []struct {
		tmpl uint32
		want Kind
	}{
		{npcTemplateMin, KindNPC},
		{npcTemplateMax, KindNPC},
		{monsterTemplateMin, KindMonster},
		{monsterTemplateMin + 50000, KindMonster},
		{0, KindMonster}, // below NPC range: no signal
	}
	for _, c := range cases {
		if got := ClassifyKind(false, u32(c.tmpl)); got != c.want {
			t.Fatalf("template %d: expected %s, got %s", c.tmpl, c.want, got)
		}
	}
}

func TestClassifyKindDefaultsToMonster(t *testing.T) {
	// No signal at all must land on the hostile default.
	if got := ClassifyKind(false, nil); got != KindMonster {
		t.Fatalf("expected Monster default, got %s", got)
	}
}

func TestClassifyFriendlyThreshold(t *testing.T) {
	if ClassifyFriendly(i32(FriendlyRelationThreshold - 1)) {
		t.Fatal("relation below threshold must be hostile")
	}
	if !ClassifyFriendly(i32(FriendlyRelationThreshold)) {
		t.Fatal("relation at threshold must be friendly")
	}
}

func TestClassifyFriendlyMissingCodeIsHostile(t *testing.T) {
	// A missing relation code is deliberately hostile.
	if ClassifyFriendly(nil) {
		t.Fatal("missing relation code must be hostile")
	}
}
