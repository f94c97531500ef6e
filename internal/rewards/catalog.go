package rewards

// Check is the eligibility rule family a catalog entry belongs to.
type Check string

const (
	CheckFirstGame        Check = "first_game"
	CheckFirstGameCreated Check = "first_game_created"
	CheckWins             Check = "wins"
)

// CatalogEntry describes one mintable badge.
type CatalogEntry struct {
	Check     Check
	Threshold int
	BadgeType string

	Name        string
	Description string
	SourceURL   string
}

// Catalog is the build-time badge table. Order matters for the tiered "wins"
// family: Decide picks the first unearned entry in this order.
var Catalog = []CatalogEntry{
	{
		Check:       CheckFirstGame,
		Threshold:   1,
		BadgeType:   "first_game",
		Name:        "First Game",
		Description: "Played a first game of chess on-chain.",
		SourceURL:   "https://badges.chesskite.io/first_game.png",
	},
	{
		Check:       CheckFirstGameCreated,
		Threshold:   1,
		BadgeType:   "first_game_created",
		Name:        "Game Creator",
		Description: "Created a first game of chess on-chain.",
		SourceURL:   "https://badges.chesskite.io/first_game_created.png",
	},
	{
		Check:       CheckWins,
		Threshold:   1,
		BadgeType:   "first_win",
		Name:        "First Win",
		Description: "Won a first game of chess.",
		SourceURL:   "https://badges.chesskite.io/first_win.png",
	},
	{
		Check:       CheckWins,
		Threshold:   10,
		BadgeType:   "wins_10",
		Name:        "Ten Wins",
		Description: "Won ten games of chess.",
		SourceURL:   "https://badges.chesskite.io/wins_10.png",
	},
	{
		Check:       CheckWins,
		Threshold:   50,
		BadgeType:   "wins_50",
		Name:        "Fifty Wins",
		Description: "Won fifty games of chess.",
		SourceURL:   "https://badges.chesskite.io/wins_50.png",
	},
	{
		Check:       CheckWins,
		Threshold:   100,
		BadgeType:   "wins_100",
		Name:        "Century Club",
		Description: "Won one hundred games of chess.",
		SourceURL:   "https://badges.chesskite.io/wins_100.png",
	},
}

// ByBadgeType returns the catalog entry for a badge type.
func ByBadgeType(badgeType string) (CatalogEntry, bool) {
	for _, e := range Catalog {
		if e.BadgeType == badgeType {
			return e, true
		}
	}
	return CatalogEntry{}, false
}
