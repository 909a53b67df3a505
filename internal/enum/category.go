package enum

const CategoryUnclassified = "Unclassified"

// MaxCustomCategories bounds the user-defined categories accepted on top of the standard set.
const MaxCustomCategories = 3

var StandardCategories = []string{
	"Work",
	"Personal",
	"Finance",
	"Shopping",
	"Travel",
	"Social",
	"Newsletters",
	"Promotions",
	"Updates",
}

type ModelType string

const (
	ModelTypeFast     ModelType = "fast"
	ModelTypeAccurate ModelType = "accurate"
)

type EntityType string

const (
	EntityEmail  EntityType = "email"
	EntityURL    EntityType = "url"
	EntityMoney  EntityType = "money"
	EntityDate   EntityType = "date"
	EntityPhone  EntityType = "phone"
	EntityProper EntityType = "proper_noun"
)
