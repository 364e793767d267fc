package badge

import (
	"slices"

	"github.com/kayteedberserker/oreblogda-sub000/internal/leaderboard"
	"github.com/kayteedberserker/oreblogda-sub000/internal/store"
)

const (
	// DecayPercent is the share of total points a clan keeps each week.
	DecayPercent = 90
	// HistoryWeeks caps weeklyPointHistory.
	HistoryWeeks = 52
	// ChakraWeeks is the streak length that earns Unlimited Chakra.
	ChakraWeeks = 4
	// chakraPercent is how close to the next threshold a clan must stay.
	chakraPercent = 80
)

// WeeklyOutcome is the computed weekly change for one clan.
type WeeklyOutcome struct {
	Tag     string             `json:"tag"`
	Decayed int64              `json:"decayed"`
	LBRank  int                `json:"lbRank"`
	Update  store.WeeklyUpdate `json:"update"`
}

// Weekly computes the weekly pass over a snapshot of every clan: growth
// badges, decay, re-rank, titles and the Unlimited Chakra streak. It does
// not touch storage.
func Weekly(clans []store.Clan) []WeeklyOutcome {
	decayed := make([]store.Clan, len(clans))
	for i, c := range clans {
		decayed[i] = c
		decayed[i].TotalPoints = c.TotalPoints * DecayPercent / 100
	}

	ranked := leaderboard.RankClans(decayed, leaderboard.ByTotalPoints)
	positions := make(map[string]int, len(ranked))
	titles := make(map[string]string, 10)
	for _, e := range ranked {
		positions[e.Tag] = e.LBRank
		if e.Score <= 0 {
			continue
		}
		switch {
		case e.LBRank == 1:
			titles[e.Tag] = PirateKing
		case e.LBRank <= 5:
			titles[e.Tag] = Pillars
		case e.LBRank <= 10:
			titles[e.Tag] = HunterAssociation
		}
	}
	var talker string
	if byComments := leaderboard.RankClans(clans, leaderboard.ByComments); len(byComments) > 0 && byComments[0].Score > 0 {
		talker = byComments[0].Tag
	}

	out := make([]WeeklyOutcome, 0, len(clans))
	for i := range clans {
		c := &clans[i]
		points := decayed[i].TotalPoints
		rank := RankFor(points)

		var add []string
		if t, ok := titles[c.Tag]; ok {
			add = append(add, t)
		}
		if c.Tag == talker {
			add = append(add, TalkNoJutsu)
		}
		var remove []string
		for _, t := range Titles {
			if !slices.Contains(add, t) {
				remove = append(remove, t)
			}
		}

		if g := growthBadge(c); g != "" && !c.HasBadge(g) {
			add = append(add, g)
		}
		if rank == MaxRank && !c.HasBadge(FinalForm) {
			add = append(add, FinalForm)
		}

		streak := 0
		if holdsPace(points, rank) {
			streak = c.ConsecutiveWeeksNoDerank + 1
		}
		switch {
		case streak >= ChakraWeeks:
			if !c.HasBadge(UnlimitedChakra) {
				add = append(add, UnlimitedChakra)
			}
		case streak == 0:
			remove = append(remove, UnlimitedChakra)
		}

		history := append(slices.Clone(c.WeeklyPointHistory), c.CurrentWeeklyPoints)
		if len(history) > HistoryWeeks {
			history = history[len(history)-HistoryWeeks:]
		}

		out = append(out, WeeklyOutcome{
			Tag:     c.Tag,
			Decayed: points,
			LBRank:  positions[c.Tag],
			Update: store.WeeklyUpdate{
				ClosedWeekPoints:   c.CurrentWeeklyPoints,
				ClosedWeekComments: c.Stats.WeeklyComments,
				History:            history,
				DecayPercent:       DecayPercent,
				Rank:               rank,
				Streak:             streak,
				AddBadges:          add,
				RemoveBadges:       remove,
			},
		})
	}
	return out
}

// growthBadge compares the closing week with the previous one.
func growthBadge(c *store.Clan) string {
	if len(c.WeeklyPointHistory) == 0 {
		return ""
	}
	last := c.WeeklyPointHistory[len(c.WeeklyPointHistory)-1]
	if last <= 0 {
		return ""
	}
	switch week := c.CurrentWeeklyPoints; {
	case week >= 2*last:
		return Gear2nd
	case 2*week >= 3*last:
		return ZenkaiBoost
	}
	return ""
}

// holdsPace reports whether post-decay points are within chakraPercent of the
// next threshold of rank, or rank is already the top.
func holdsPace(points int64, rank int) bool {
	next, ok := NextThreshold(rank)
	if !ok {
		return true
	}
	return points*100 >= next*chakraPercent
}
