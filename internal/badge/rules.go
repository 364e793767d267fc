// Package badge evaluates clan achievements, runs the daily inactivity and
// weekly decay passes, and tracks the real-time One-Shot like window.
package badge

import (
	"slices"

	"github.com/kayteedberserker/oreblogda-sub000/internal/store"
)

const (
	Gotei13           = "Gotei 13"
	FiveKage          = "The 5 Kage"
	LibraryOfOhara    = "Library of Ohara"
	KingsHaki         = "King's Haki"
	SageMode          = "Sage Mode"
	FinalForm         = "Final Form"
	OneShot           = "One-Shot"
	Gear2nd           = "Gear 2nd"
	ZenkaiBoost       = "Zenkai Boost"
	PirateKing        = "The Pirate King"
	Pillars           = "The Pillars"
	HunterAssociation = "Hunter Association"
	TalkNoJutsu       = "Talk-no-jutsu"
	UnlimitedChakra   = "Unlimited Chakra"
)

// Titles are stripped from every clan and reassigned on each weekly pass.
var Titles = []string{PirateKing, Pillars, HunterAssociation, TalkNoJutsu}

var scouterLadder = []struct {
	followers int64
	badge     string
}{
	{1000, "Scouter Lvl 1"},
	{5000, "Scouter Lvl 2"},
	{10000, "Scouter Lvl 3"},
	{50000, "Scouter Lvl 4"},
	{80000, "Scouter: Broken Scale"},
	{100000, "Scouter: It's Over 9000"},
}

const MaxRank = 6

// rankThresholds[r-1] is the minimum total points for rank r.
var rankThresholds = [MaxRank]int64{0, 5000, 20000, 50000, 100000, 200000}

// RankFor maps total points to a rank in 1..MaxRank.
func RankFor(points int64) int {
	rank := 1
	for r, threshold := range rankThresholds {
		if points >= threshold {
			rank = r + 1
		}
	}
	return rank
}

// NextThreshold returns the points needed for the rank above rank. It
// reports false at MaxRank.
func NextThreshold(rank int) (int64, bool) {
	if rank >= MaxRank {
		return 0, false
	}
	if rank < 1 {
		rank = 1
	}
	return rankThresholds[rank], true
}

// Delta is a set change to a clan's badges.
type Delta struct {
	Add    []string `json:"add,omitempty"`
	Remove []string `json:"remove,omitempty"`
}

func (d Delta) Empty() bool {
	return len(d.Add) == 0 && len(d.Remove) == 0
}

// Evaluate returns the milestone badges c qualifies for but does not hold.
// It never removes: milestone badges are permanent.
func Evaluate(c *store.Clan) Delta {
	var d Delta
	grant := func(badge string) {
		if !c.HasBadge(badge) && !slices.Contains(d.Add, badge) {
			d.Add = append(d.Add, badge)
		}
	}

	switch roster := len(c.Roster()); {
	case roster >= 10:
		grant(Gotei13)
	case roster >= 5:
		grant(FiveKage)
	}

	if c.Stats.TotalPosts >= 1000 {
		grant(LibraryOfOhara)
	}
	if c.Stats.Likes >= 100000 {
		grant(KingsHaki)
	}
	if c.TotalPoints >= 50000 && c.Stats.Likes >= 500 && c.Stats.Comments >= 500 && c.Stats.Shares >= 500 {
		grant(SageMode)
	}
	if c.Rank == MaxRank {
		grant(FinalForm)
	}
	for _, step := range scouterLadder {
		if c.Stats.Followers >= step.followers {
			grant(step.badge)
		}
	}
	return d
}
