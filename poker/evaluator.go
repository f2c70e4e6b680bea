package poker

import "sort"

// Category is the class of a five-card hand, ordered weakest to strongest.
type Category int

const (
	HighCard Category = iota + 1
	Pair
	TwoPair
	ThreeOfAKind
	Straight
	Flush
	FullHouse
	FourOfAKind
	StraightFlush
	RoyalFlush
)

// String returns the display name of a category
func (c Category) String() string {
	switch c {
	case HighCard:
		return "High Card"
	case Pair:
		return "One Pair"
	case TwoPair:
		return "Two Pair"
	case ThreeOfAKind:
		return "Three of a Kind"
	case Straight:
		return "Straight"
	case Flush:
		return "Flush"
	case FullHouse:
		return "Full House"
	case FourOfAKind:
		return "Four of a Kind"
	case StraightFlush:
		return "Straight Flush"
	case RoyalFlush:
		return "Royal Flush"
	default:
		return "Unknown"
	}
}

// HandScore is the rank of a best-five hand: a category plus tiebreak ranks
// in order of significance.
type HandScore struct {
	Category  Category
	Tiebreaks []Rank
}

// Compare returns -1, 0 or 1 ordering s against o.
func (s HandScore) Compare(o HandScore) int {
	if s.Category != o.Category {
		if s.Category < o.Category {
			return -1
		}
		return 1
	}
	n := len(s.Tiebreaks)
	if len(o.Tiebreaks) < n {
		n = len(o.Tiebreaks)
	}
	for i := 0; i < n; i++ {
		if s.Tiebreaks[i] != o.Tiebreaks[i] {
			if s.Tiebreaks[i] < o.Tiebreaks[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Name returns the display name of the scored hand.
func (s HandScore) Name() string {
	return s.Category.String()
}

// Evaluator scores a seven-card set into its best five-card hand.
// The table actor only depends on this interface; the default
// implementation below is a plain best-of-21 scorer.
type Evaluator interface {
	Evaluate(seven []Card) HandScore
}

type evaluator struct{}

// NewEvaluator returns the default hand evaluator.
func NewEvaluator() Evaluator {
	return evaluator{}
}

// Evaluate scores all C(7,5) combinations and keeps the best.
func (evaluator) Evaluate(seven []Card) HandScore {
	var best HandScore
	var combo [5]Card
	n := len(seven)
	for a := 0; a < n-4; a++ {
		for b := a + 1; b < n-3; b++ {
			for c := b + 1; c < n-2; c++ {
				for d := c + 1; d < n-1; d++ {
					for e := d + 1; e < n; e++ {
						combo[0], combo[1], combo[2], combo[3], combo[4] =
							seven[a], seven[b], seven[c], seven[d], seven[e]
						s := scoreFive(combo)
						if best.Category == 0 || s.Compare(best) > 0 {
							best = s
						}
					}
				}
			}
		}
	}
	return best
}

// scoreFive ranks exactly five cards.
func scoreFive(cards [5]Card) HandScore {
	ranks := make([]Rank, 5)
	flush := true
	for i, c := range cards {
		ranks[i] = c.Rank
		if c.Suit != cards[0].Suit {
			flush = false
		}
	}
	sort.Slice(ranks, func(i, j int) bool { return ranks[i] > ranks[j] })

	counts := map[Rank]int{}
	for _, r := range ranks {
		counts[r]++
	}

	straight, high := straightHigh(counts)

	// groups sorted by count then rank, descending
	type group struct {
		rank  Rank
		count int
	}
	groups := make([]group, 0, len(counts))
	for r, c := range counts {
		groups = append(groups, group{r, c})
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].count != groups[j].count {
			return groups[i].count > groups[j].count
		}
		return groups[i].rank > groups[j].rank
	})

	switch {
	case straight && flush:
		if high == Ace {
			return HandScore{RoyalFlush, []Rank{Ace}}
		}
		return HandScore{StraightFlush, []Rank{high}}
	case groups[0].count == 4:
		return HandScore{FourOfAKind, []Rank{groups[0].rank, groups[1].rank}}
	case groups[0].count == 3 && groups[1].count >= 2:
		return HandScore{FullHouse, []Rank{groups[0].rank, groups[1].rank}}
	case flush:
		return HandScore{Flush, ranks}
	case straight:
		return HandScore{Straight, []Rank{high}}
	case groups[0].count == 3:
		tb := []Rank{groups[0].rank}
		for _, g := range groups[1:] {
			tb = append(tb, g.rank)
		}
		return HandScore{ThreeOfAKind, tb}
	case groups[0].count == 2 && groups[1].count == 2:
		return HandScore{TwoPair, []Rank{groups[0].rank, groups[1].rank, groups[2].rank}}
	case groups[0].count == 2:
		tb := []Rank{groups[0].rank}
		for _, g := range groups[1:] {
			tb = append(tb, g.rank)
		}
		return HandScore{Pair, tb}
	default:
		return HandScore{HighCard, ranks}
	}
}

// straightHigh reports whether the distinct ranks form a straight and its
// high card. The wheel (A-2-3-4-5) counts with a high of Five.
func straightHigh(counts map[Rank]int) (bool, Rank) {
	if len(counts) != 5 {
		return false, 0
	}
	lo, hi := Ace+1, Rank(0)
	for r := range counts {
		if r < lo {
			lo = r
		}
		if r > hi {
			hi = r
		}
	}
	if hi-lo == 4 {
		return true, hi
	}
	wheel := []Rank{Ace, Two, Three, Four, Five}
	for _, r := range wheel {
		if counts[r] == 0 {
			return false, 0
		}
	}
	return true, Five
}
